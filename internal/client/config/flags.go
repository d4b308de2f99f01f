package config

import (
	"flag"
	"os"

	"github.com/campusfix/campusfix/internal/flagx"
)

// parseFlags overlays cfg from command-line flags. Only the flags handled
// here are parsed; everything else is filtered out first.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-r", "-d", "-b"})

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "backend base URL")
	fs.StringVar(&cfg.RealtimeURL, "r", cfg.RealtimeURL, "realtime websocket URL")
	fs.StringVar(&cfg.CachePath, "d", cfg.CachePath, "local cache database path")
	fs.StringVar(&cfg.MediaBucket, "b", cfg.MediaBucket, "media bucket name")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
