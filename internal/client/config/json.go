package config

import (
	"encoding/json"
	"os"

	"github.com/campusfix/campusfix/internal/flagx"
)

// JsonConfig is the DTO for the optional JSON config file.
type JsonConfig struct {
	ServerURL   string `json:"server_url"`
	RealtimeURL string `json:"realtime_url"`
	CachePath   string `json:"cache_path"`
	MediaBucket string `json:"media_bucket"`
}

// parseJson overlays cfg with values from the file named by -c/-config.
// Absent file path means no overlay; read or parse failures panic, since a
// config file that exists but cannot be used is a deployment mistake.
func parseJson(cfg *Config) {
	path := flagx.JsonConfigFlags()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.RealtimeURL != "" {
		cfg.RealtimeURL = jc.RealtimeURL
	}
	if jc.CachePath != "" {
		cfg.CachePath = jc.CachePath
	}
	if jc.MediaBucket != "" {
		cfg.MediaBucket = jc.MediaBucket
	}
}
