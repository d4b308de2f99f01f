// Package config handles configuration for the CampusFix client: defaults,
// JSON overlay, then command-line flags, later sources winning.
package config

// Config holds runtime settings for the client.
type Config struct {
	// ServerURL is the base URL of the backend HTTP API.
	ServerURL string

	// RealtimeURL is the websocket endpoint for the change feed.
	RealtimeURL string

	// CachePath is the sqlite file backing the local fallback cache.
	CachePath string

	// MediaBucket is the object-storage bucket photo uploads go to.
	MediaBucket string
}

// LoadDefaults populates c with development defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.RealtimeURL = "ws://127.0.0.1:8080/realtime"
	c.CachePath = "campusfix.db"
	c.MediaBucket = "media"
}

// LoadConfig builds a Config from defaults, an optional JSON file and flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
