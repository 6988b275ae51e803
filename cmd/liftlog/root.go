package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/liftlog/liftlog/internal/config"
	"github.com/liftlog/liftlog/internal/queue"
	"github.com/liftlog/liftlog/internal/store"
)

var (
	cfgFile  string
	dbFlag   string
	userFlag string

	cfgLoader *config.Loader
	cfg       *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "liftlog",
	Short: "Offline-first workout tracking with write-back sync",
	Long: `LiftLog records workouts locally and syncs them to a remote backend.

All writes land in a local SQLite database first and are replayed to the
remote through a durable sync queue, so the app works fully offline.
Reads are served from the local cache and revalidated in the background.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loader, c, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfgLoader = loader
		cfg = c
		if dbFlag != "" {
			cfg.DBPath = dbFlag
		}
		if userFlag != "" {
			cfg.UserID = userFlag
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.liftlog/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "user id (overrides config)")

	rootCmd.AddGroup(&cobra.Group{ID: "sync", Title: "Sync Commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: "workout", Title: "Workout Commands:"})
}

// openStore opens the configured database and applies pending migrations.
func openStore(ctx context.Context) (*store.DB, error) {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// openQueue opens the store plus its sync queue.
func openQueue(ctx context.Context) (*store.DB, *queue.Store, error) {
	db, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return db, queue.NewStore(db.RawDB()), nil
}

// newLogger builds a component logger. With log.file configured, output
// goes through lumberjack for rotation; otherwise stderr.
func newLogger(prefix string) *log.Logger {
	var w io.Writer = os.Stderr
	if cfg.Log.File != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		}
	}
	return log.New(w, prefix, log.LstdFlags)
}

// currentUser returns the configured user id, failing commands that need
// one.
func currentUser() (string, error) {
	if cfg.UserID == "" {
		return "", fmt.Errorf("no user configured: set user_id in config or pass --user")
	}
	return cfg.UserID, nil
}
