// Command deskctl administers the desk-booking backend from a terminal. It
// shares the console's persisted session, so logging in with either one
// logs in both.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/adapter/driven/deskapi"
	sqliteadapter "github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/adapter/driven/sqlite"
	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/application"
	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/config"
	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/model"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	global := pflag.NewFlagSet("deskctl", pflag.ContinueOnError)
	global.SetOutput(stderr)
	global.SetInterspersed(false)
	verbose := global.BoolP("verbose", "v", false, "log backend requests to stderr")
	global.Usage = func() { printUsage(stderr, global) }

	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if global.NArg() == 0 {
		printUsage(stderr, global)
		return exitUsage
	}

	a, cleanup, err := wire(ctx, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	defer cleanup()

	a.stdin, a.stdout, a.stderr = stdin, stdout, stderr
	return a.dispatch(ctx, global.Args())
}

// wire builds the same adapter stack as the console.
func wire(ctx context.Context, logger *slog.Logger) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.Error("error closing database", "error", err)
		}
	}
	if _, err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		cleanup()
		return nil, nil, err
	}

	backend, err := deskapi.NewClient(cfg.APIBaseURL, deskapi.Options{
		Timeout:     cfg.RequestTimeout,
		ReadRetries: cfg.ReadRetries,
		Logger:      logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	guard := application.NewSessionGuard(backend, sqliteadapter.NewCredentialRepo(db, cfg.SecretKey), application.GuardOptions{
		ExpiryLeeway: cfg.ExpiryLeeway,
		UserInfoTTL:  cfg.UserInfoTTL,
		Logger:       logger,
	})
	guard.OnSessionEnd(backend.ResetCache)
	if err := guard.Restore(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}

	return newApp(guard, application.NewDeltaUpdater(backend, guard, application.DiffPolicy{MaxDepth: cfg.DiffMaxDepth}, logger)), cleanup, nil
}

// usageError marks a mistake in the command line rather than a failed call.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// dispatch validates the session, then runs the named command.
func (a *app) dispatch(ctx context.Context, args []string) int {
	cmd, ok := a.lookup(args[0])
	if !ok {
		fmt.Fprintf(a.stderr, "error: unknown command %q\n\n", args[0])
		printCommands(a.stderr)
		return exitUsage
	}

	state, err := a.guard.EnforceValidity(ctx)
	if err != nil {
		fmt.Fprintf(a.stderr, "warning: %v\n", err)
	}
	if state == model.SessionExpired {
		fmt.Fprintln(a.stderr, "session expired; logged out")
	}

	if err := cmd.run(ctx, a, args[1:]); err != nil {
		var ue *usageError
		if errors.As(err, &ue) {
			fmt.Fprintf(a.stderr, "error: %v\nusage: deskctl %s\n", err, cmd.usage)
			return exitUsage
		}
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(a.stderr, "error: %v\n", err)
		return exitError
	}
	return exitOK
}

func printUsage(w io.Writer, global *pflag.FlagSet) {
	fmt.Fprintf(w, "deskctl administers the desk-booking backend.\n\nUsage:\n  deskctl [global flags] <command> [flags] [args]\n\nGlobal flags:\n")
	global.PrintDefaults()
	fmt.Fprintln(w)
	printCommands(w)
}

func printCommands(w io.Writer) {
	fmt.Fprintln(w, "Commands:")
	for _, c := range commandTable() {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.summary)
	}
}
