package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/georgemunganga/warehouse-backend/internal/log"
	loglogrus "github.com/georgemunganga/warehouse-backend/internal/log/logrus"
)

// Version is the application version (set via ldflags).
var Version = "dev"

// Run runs the main application.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	// A missing .env is fine, the environment and flags are enough.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("could not load .env file: %w", err)
	}

	app := kingpin.New("warehouse", "Warehouse inventory, task and fleet backend.")
	cfg := newConfig(app)

	app.Command("serve", "Run the HTTP API and the maintenance sweeper.").Default()
	tokenCmd := app.Command("token", "Issue a bearer token for a caller.")
	tokenCfg := newTokenConfig(tokenCmd)

	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	logger := getLogger(*cfg, stderr)

	if cmdName == tokenCmd.FullCommand() {
		return issueToken(ctx, *cfg, *tokenCfg, stdout)
	}

	srv, err := newServer(ctx, *cfg, logger)
	if err != nil {
		return err
	}
	defer srv.close()

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				logger.Infof("Termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// HTTP server.
	{
		g.Add(
			func() error {
				logger.WithValues(log.Kv{"addr": srv.http.Addr}).Infof("HTTP server listening")
				return srv.http.ListenAndServe()
			},
			func(_ error) {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.http.Shutdown(ctx); err != nil {
					logger.Errorf("could not shut down HTTP server: %s", err)
				}
			},
		)
	}

	// Maintenance sweeper.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				return srv.sweeper.Run(ctx)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

// getLogger returns the application logger.
func getLogger(cfg Config, out io.Writer) log.Logger {
	logrusLog := logrus.New()
	logrusLog.Out = out
	logrusLogEntry := logrus.NewEntry(logrusLog)

	if cfg.Debug {
		logrusLogEntry.Logger.SetLevel(logrus.DebugLevel)
	}

	switch cfg.LoggerType {
	case loggerTypeJSON:
		logrusLogEntry.Logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrusLogEntry.Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logger := loglogrus.NewLogrus(logrusLogEntry).WithValues(log.Kv{
		"version": Version,
	})
	logger.Debugf("Debug level is enabled")

	return logger
}

func main() {
	ctx := context.Background()
	err := Run(ctx, os.Args, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
