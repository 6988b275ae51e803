package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/liftlog/liftlog/internal/remote"
	"github.com/liftlog/liftlog/internal/syncer"
	"github.com/liftlog/liftlog/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Drain the sync queue once",
	Long: `Replay every pending queued mutation against the remote backend.

Items are processed oldest first with write verification. The command
stops when the queue is empty or no further progress is possible (items
waiting out their backoff window stay queued for the daemon).`,
	Run: func(cmd *cobra.Command, args []string) {
		if cfg.Remote.URL == "" {
			fmt.Fprintf(os.Stderr, "Error: no remote configured (remote.url)\n")
			os.Exit(1)
		}

		ctx := context.Background()
		db, q, err := openQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		before, err := q.Len(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading queue: %v\n", err)
			os.Exit(1)
		}
		if before == 0 {
			fmt.Printf("%s Queue is empty, nothing to sync\n", ui.RenderPass("✓"))
			return
		}

		client := remote.New(cfg.Remote.URL, cfg.Remote.APIKey)
		syncCfg := syncer.DefaultConfig()
		syncCfg.MaxAttempts = cfg.Sync.MaxAttempts
		syncCfg.Logger = newLogger("[syncer] ")

		s := syncer.New(client, q, syncCfg)
		s.SetOnline(true)

		fmt.Printf("%s Syncing %d queued mutations to %s...\n",
			ui.RenderAccent("🔄"), before, cfg.Remote.URL)
		start := time.Now()

		if err := s.Drain(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error during sync: %v\n", err)
			os.Exit(1)
		}

		after, _ := q.Len(ctx)
		elapsed := time.Since(start)

		if after == 0 {
			fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), elapsed.Round(time.Millisecond))
		} else {
			fmt.Printf("%s Synced %d of %d items in %v (%d still pending)\n",
				ui.RenderWarn("⚠"), before-after, before, elapsed.Round(time.Millisecond), after)
			if lastErr := s.LastError(); lastErr != "" {
				fmt.Printf("   Last error: %s\n", lastErr)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
