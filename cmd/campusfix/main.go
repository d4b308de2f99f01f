package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/campusfix/campusfix/internal/buildinfo"
	"github.com/campusfix/campusfix/internal/client/cli"
	"github.com/campusfix/campusfix/internal/client/config"
	"github.com/campusfix/campusfix/internal/logging"
)

func main() {
	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()

	// Log to a file so structured output does not interleave with the REPL.
	logOut, err := os.OpenFile("campusfix.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer logOut.Close()
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(logOut, nil)))

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}
