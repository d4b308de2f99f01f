// Package cli implements the interactive CampusFix client: a small REPL that
// drives the reconciliation layer against a live backend.
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	clientcfg "github.com/campusfix/campusfix/internal/client/config"
	"github.com/campusfix/campusfix/internal/client/fallback"
	"github.com/campusfix/campusfix/internal/client/feed"
	"github.com/campusfix/campusfix/internal/client/reconcile"
	"github.com/campusfix/campusfix/internal/client/remote"
	"github.com/campusfix/campusfix/internal/logging"
)

// App wires the client components together and runs the command loop.
type App struct {
	cfg    *clientcfg.Config
	logger logging.Logger

	remote *remote.Client
	feeds  reconcile.FeedSource
	cache  *fallback.Cache
	db     *sql.DB

	in  *bufio.Reader
	out io.Writer
}

func NewApp(ctx context.Context, cfg *clientcfg.Config, logger logging.Logger) (*App, error) {
	db, err := fallback.OpenDatabase(ctx, cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	rc := remote.NewClient(cfg.ServerURL, logger)
	sub := feed.NewSubscriber(cfg.RealtimeURL, rc.AccessToken, logger)

	return &App{
		cfg:    cfg,
		logger: logger,
		remote: rc,
		feeds:  reconcile.NewFeedSource(sub),
		cache:  fallback.NewCache(fallback.NewSQLiteKV(db)),
		db:     db,
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}, nil
}

func (a *App) Close() error {
	return a.db.Close()
}

// Run reads commands until EOF or "exit".
func (a *App) Run(ctx context.Context) error {
	fmt.Fprintln(a.out, "CampusFix client. Type 'help' for commands.")
	for {
		fmt.Fprint(a.out, "> ")
		line, err := a.in.ReadString('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		cmd, args := splitCommand(line)
		if cmd == "" {
			continue
		}
		if cmd == "exit" || cmd == "quit" {
			return nil
		}
		if err := a.dispatch(ctx, cmd, args); err != nil {
			fmt.Fprintf(a.out, "error: %v\n", err)
		}
	}
}

func (a *App) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		a.printHelp()
		return nil
	case "register":
		return a.cmdRegister(ctx, args)
	case "login":
		return a.cmdLogin(ctx, args)
	case "list":
		return a.cmdList(ctx, args)
	case "mine":
		return a.cmdMine(ctx, args)
	case "watch":
		return a.cmdWatch(ctx, args)
	case "report":
		return a.cmdReport(ctx, args)
	case "issue":
		return a.cmdIssue(ctx, args)
	case "resolve":
		return a.cmdResolve(ctx, args)
	case "events":
		return a.cmdEvents(ctx)
	case "signup":
		return a.cmdSignup(ctx, args)
	default:
		return fmt.Errorf("unknown command %q, try 'help'", cmd)
	}
}

func (a *App) printHelp() {
	fmt.Fprint(a.out, `commands:
  register <username>          create an account
  login <username>             log in
  list <collection>            list rows (issues, reports, events)
  mine <collection>            list your rows merged with the local cache
  watch <collection>           live view; press Enter to stop
  issue <title> [photo-path]   report a maintenance issue
  report <title> [photo-path]  submit a general report
  resolve <id>                 mark an issue resolved
  events                       browse published events
  signup <event-id>            register for an event
  exit
`)
}

func splitCommand(line string) (string, []string) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}
