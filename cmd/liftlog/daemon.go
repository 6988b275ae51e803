package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/liftlog/liftlog/internal/cache"
	"github.com/liftlog/liftlog/internal/config"
	"github.com/liftlog/liftlog/internal/dashboard"
	"github.com/liftlog/liftlog/internal/metrics"
	"github.com/liftlog/liftlog/internal/remote"
	"github.com/liftlog/liftlog/internal/syncer"
	"github.com/liftlog/liftlog/internal/ui"
)

var daemonRevalidateEvery time.Duration

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync daemon (foreground)",
	Long: `Run the background sync engine in foreground mode.

The daemon will:
  1. Replay queued mutations against the remote backend, oldest first
  2. Verify every write with a follow-up read
  3. Revalidate the cached remote tables on an interval
  4. Serve the live dashboard and metrics endpoint when enabled

Press Ctrl+C to stop.`,
	Run: func(cmd *cobra.Command, args []string) {
		if cfg.Remote.URL == "" {
			fmt.Fprintf(os.Stderr, "Error: no remote configured (remote.url)\n")
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, q, err := openQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		logger := newLogger("[daemon] ")
		client := remote.New(cfg.Remote.URL, cfg.Remote.APIKey)
		metrics.Register()

		syncCfg := syncer.DefaultConfig()
		syncCfg.Interval = cfg.Sync.Interval
		syncCfg.MaxAttempts = cfg.Sync.MaxAttempts
		syncCfg.Enabled = cfg.Sync.Enabled
		syncCfg.Logger = newLogger("[syncer] ")

		// Dashboard is optional; the syncer callbacks stay nil without it.
		var (
			srv     *dashboard.Server
			handler *dashboard.Handler
		)
		if cfg.Dashboard.Enabled {
			srv = dashboard.NewServer(&dashboard.Config{
				Addr:   cfg.Dashboard.Addr,
				Logger: newLogger("[dashboard] "),
			})
			if err := srv.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error starting dashboard: %v\n", err)
				os.Exit(1)
			}
			defer func() { _ = srv.Stop() }()

			handler = dashboard.NewHandler(srv, logger)
			syncCfg.OnSuccess = handler.OnItemSynced
			syncCfg.OnFailure = handler.OnItemFailed

			deadLetters, _ := q.ListDeadLetters(ctx)
			pending, _ := q.Len(ctx)
			handler.UpdateStats(pending, len(deadLetters), true, "")
		}

		s := syncer.New(client, q, syncCfg)
		s.SetOnline(true)
		q.OnEnqueue(s.Kick)

		// Cache revalidators for every remote-backed table, scoped to the
		// configured user (anonymous when none is set).
		owner := cache.Anonymous()
		if cfg.UserID != "" {
			owner = cache.OwnerID(cfg.UserID)
		}
		cacheLogger := newLogger("[cache] ")
		revalidators := []*cache.Revalidator{
			cache.New(db.RawDB(), client, cache.ProfileSpec(), cacheLogger),
			cache.New(db.RawDB(), client, cache.ExerciseSpec(), cacheLogger),
			cache.New(db.RawDB(), client, cache.TemplateSpec(), cacheLogger),
			cache.New(db.RawDB(), client, cache.TemplateExerciseSpec(), cacheLogger),
			cache.New(db.RawDB(), client, cache.GymSpec(), cacheLogger),
			cache.New(db.RawDB(), client, cache.TrainingPathSpec(), cacheLogger),
		}
		for _, rev := range revalidators {
			if handler != nil {
				rev := rev
				rev.Subscribe(func() {
					handler.OnRevalidated(rev.Table(), rev.LastCount(), rev.Err())
				})
			}
			rev.SetOwner(ctx, owner)
		}

		// Config hot reload: sync enable/disable takes effect on the next
		// tick boundary.
		cfgLoader.Watch(func(fresh *config.Config) {
			logger.Printf("config reloaded")
			s.SetEnabled(fresh.Sync.Enabled)
		}, func(err error) {
			logger.Printf("config reload failed, keeping previous: %v", err)
		})

		go func() {
			ticker := time.NewTicker(daemonRevalidateEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					for _, rev := range revalidators {
						if err := rev.Revalidate(ctx); err != nil {
							logger.Printf("revalidation of %s failed: %v", rev.Table(), err)
						}
					}
				}
			}
		}()

		fmt.Printf("%s Starting sync daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Remote:   %s\n", cfg.Remote.URL)
		fmt.Printf("   Database: %s\n", db.Path())
		if srv != nil {
			fmt.Printf("   Dashboard: http://%s\n", srv.Addr())
		}
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		if err := s.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	daemonCmd.Flags().DurationVar(&daemonRevalidateEvery, "revalidate-every", 5*time.Minute,
		"interval between cache revalidation passes")
	rootCmd.AddCommand(daemonCmd)
}
