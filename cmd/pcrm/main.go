// ProfileCRM CLI - inspect and maintain the local contact store.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/profilecrm/profilecrm/internal/config"
	"github.com/profilecrm/profilecrm/internal/logging"
	"github.com/profilecrm/profilecrm/internal/storage"
)

var (
	// Flags
	configPath string
	dataDir    string
	logLevel   string

	// Version
	version = "0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pcrm",
		Short: "ProfileCRM - a personal CRM for the profiles you follow",
		Long: `ProfileCRM keeps contacts, lists, tags and interactions for the social
profiles you save from the browser extension.

Everything lives in a local SQLite database. Nothing leaves your machine.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default <data-dir>/config.json)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default ~/.profilecrm)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(contactsCmd())
	rootCmd.AddCommand(listsCmd())
	rootCmd.AddCommand(tagsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flag overrides
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" && dataDir != "" {
		path = filepath.Join(dataDir, "config.json")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logging.Configure(logging.Options{
		Level:  level,
		Format: logging.Format(cfg.Logging.Format),
		Color:  term.IsTerminal(int(os.Stderr.Fd())),
		Output: os.Stderr,
	})

	return cfg, nil
}

// openStore loads config and opens the store it points at
func openStore(ctx context.Context) (*storage.Store, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	db, err := storage.Open(ctx, storageConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	return storage.NewStore(db), cfg, nil
}

func storageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Path:        cfg.DatabasePath(),
		InMemory:    cfg.Storage.InMemory,
		BusyTimeout: cfg.Storage.BusyTimeout,
		ListColor:   cfg.Defaults.ListColor,
		TagColor:    cfg.Defaults.TagColor,
	}
}

// initCmd creates the data directory, database and default config
func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the local database and config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			dbPath := cfg.DatabasePath()
			_, statErr := os.Stat(dbPath)
			existed := statErr == nil

			db, err := storage.Open(cmd.Context(), storageConfig(cfg))
			if err != nil {
				return fmt.Errorf("failed to create database: %w", err)
			}
			defer db.Close()

			cfgFile := configPath
			if cfgFile == "" {
				cfgFile = filepath.Join(cfg.DataDir, "config.json")
			}
			if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
				if err := cfg.Save(cfgFile); err != nil {
					return fmt.Errorf("failed to write config: %w", err)
				}
			}

			schemaVersion, err := db.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}

			if existed {
				fmt.Println(yellow("ProfileCRM is already initialized."))
			} else {
				fmt.Println(green("ProfileCRM initialized."))
			}
			fmt.Printf("   Database: %s (schema v%d)\n", dbPath, schemaVersion)
			fmt.Printf("   Config:   %s\n", cfgFile)
			fmt.Println()
			fmt.Println("Next steps:")
			fmt.Println("   profilecrmd      - Serve the API for the extension")
			fmt.Println("   pcrm status      - Dashboard summary")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ProfileCRM %s\n", version)
		},
	}
}
