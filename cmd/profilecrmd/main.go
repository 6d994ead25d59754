// ProfileCRM Daemon - serves the local API the browser extension talks to.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/profilecrm/profilecrm/internal/api"
	"github.com/profilecrm/profilecrm/internal/config"
	"github.com/profilecrm/profilecrm/internal/logging"
	"github.com/profilecrm/profilecrm/internal/reminders"
	"github.com/profilecrm/profilecrm/internal/scheduler"
	"github.com/profilecrm/profilecrm/internal/storage"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath string
	dataDir    string
	host       string
	port       int

	version = "0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "profilecrmd",
		Short:        "ProfileCRM Daemon - local API for the browser extension",
		RunE:         runDaemon,
		SilenceUsage: true,
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "config file (default <data-dir>/config.json)")
	rootCmd.Flags().StringVar(&dataDir, "data-dir", "", "data directory (default ~/.profilecrm)")
	rootCmd.Flags().StringVar(&host, "host", "", "listen host (overrides config)")
	rootCmd.Flags().IntVar(&port, "port", 0, "HTTP server port (overrides config)")

	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" && dataDir != "" {
		path = filepath.Join(dataDir, "config.json")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logging.Configure(logging.Options{
		Level:  level,
		Format: logging.Format(cfg.Logging.Format),
		Color:  term.IsTerminal(int(os.Stdout.Fd())),
		Output: os.Stdout,
	})
	log := logging.WithField("component", "daemon")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting ProfileCRM %s", version)

	// Open database
	db, err := storage.Open(ctx, storage.Config{
		Path:        cfg.DatabasePath(),
		InMemory:    cfg.Storage.InMemory,
		BusyTimeout: cfg.Storage.BusyTimeout,
		ListColor:   cfg.Defaults.ListColor,
		TagColor:    cfg.Defaults.TagColor,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	log.WithField("path", cfg.DatabasePath()).Info("Database ready")

	store := storage.NewStore(db)
	server := api.New(api.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Store:          store,
		Version:        version,
	})

	// Background jobs
	sched := scheduler.New()
	if cfg.Reminders.Enabled {
		notifier := reminders.NewNotifier(store, api.EventFollowUpDue, server.Broadcast)
		if err := notifier.Register(sched, cfg.Reminders.Interval, cfg.Reminders.IntegrityCheck); err != nil {
			return fmt.Errorf("failed to register reminders: %w", err)
		}
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down...")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
