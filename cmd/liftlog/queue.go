package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/liftlog/liftlog/internal/loadtest"
	"github.com/liftlog/liftlog/internal/ui"
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	GroupID: "sync",
	Short:   "Inspect and manage the sync queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending queue items",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		db, q, err := openQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		items, err := q.GetAll(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading queue: %v\n", err)
			os.Exit(1)
		}

		if len(items) == 0 {
			fmt.Printf("%s Queue is empty\n", ui.RenderPass("✓"))
			return
		}

		fmt.Printf("\n%s Pending sync items (oldest first)\n\n", ui.RenderAccent("📋"))
		for _, it := range items {
			age := time.Since(time.UnixMilli(it.Timestamp)).Round(time.Second)
			line := fmt.Sprintf("  #%-5d %-6s %-22s attempts=%d age=%v",
				it.ID, it.Operation, it.Table, it.Attempts, age)
			fmt.Println(line)
			if it.Error != "" {
				fmt.Printf("         %s\n", ui.RenderDim(it.Error))
			}
		}
		fmt.Println()
	},
}

var queueClearForce bool

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every pending queue item",
	Long: `Remove all pending items from the sync queue.

Cleared mutations are never sent to the remote. Requires --force.`,
	Run: func(cmd *cobra.Command, args []string) {
		if !queueClearForce {
			fmt.Fprintf(os.Stderr, "Error: refusing to clear the queue without --force\n")
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
		if err := q.Clear(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error clearing queue: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Cleared %d items\n", ui.RenderPass("✓"), before)
	},
}

var queueDeadLettersCmd = &cobra.Command{
	Use:   "dead-letters",
	Short: "List items dropped after exhausting their retry budget",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		db, q, err := openQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		records, err := q.ListDeadLetters(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading dead letters: %v\n", err)
			os.Exit(1)
		}

		if len(records) == 0 {
			fmt.Printf("%s No dead letters\n", ui.RenderPass("✓"))
			return
		}

		fmt.Printf("\n%s Dead letters (newest first)\n\n", ui.RenderErr("☠"))
		for _, rec := range records {
			fmt.Printf("  #%-5d %-6s %-22s attempts=%d dropped=%s\n",
				rec.QueueID, rec.Operation, rec.Table, rec.Attempts,
				rec.DroppedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("         %s\n", ui.RenderDim(rec.Reason))
			if rec.Error != "" && rec.Error != rec.Reason {
				fmt.Printf("         %s\n", ui.RenderDim(rec.Error))
			}
		}
		fmt.Println()
	},
}

var (
	loadtestItems   int
	loadtestPollers int
	loadtestReads   int
	loadtestVerify  time.Duration
)

var queueLoadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Soak test the sync queue with concurrent pollers",
	Long: `Populate a throwaway database with synthetic queued mutations and
hammer it with concurrent pollers, reporting read latency percentiles.
Optionally runs an ordering verification pass under concurrent mutation.`,
	Run: func(cmd *cobra.Command, args []string) {
		tmpDir, err := os.MkdirTemp("", "liftlog-loadtest-*")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating temp dir: %v\n", err)
			os.Exit(1)
		}
		defer os.RemoveAll(tmpDir)

		fmt.Printf("%s Creating harness with %d items...\n", ui.RenderAccent("🔧"), loadtestItems)
		h, err := loadtest.CreateHarness(filepath.Join(tmpDir, "soak.db"), loadtestItems)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating harness: %v\n", err)
			os.Exit(1)
		}
		defer h.Close()

		fmt.Printf("%s Running %d pollers x %d reads...\n",
			ui.RenderAccent("🏋"), loadtestPollers, loadtestReads)
		stats, err := h.RunConcurrentReads(loadtestPollers, loadtestReads)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during load test: %v\n", err)
			os.Exit(1)
		}
		stats.PrintStats()

		if loadtestVerify > 0 {
			fmt.Printf("\n%s Verifying ordering under mutation for %v...\n",
				ui.RenderAccent("🔍"), loadtestVerify)
			if err := h.VerifyOrdering(loadtestPollers, loadtestVerify); err != nil {
				fmt.Fprintf(os.Stderr, "%s Ordering violation: %v\n", ui.RenderErr("✗"), err)
				os.Exit(1)
			}
			fmt.Printf("%s Ordering held\n", ui.RenderPass("✓"))
		}
	},
}

func init() {
	queueClearCmd.Flags().BoolVar(&queueClearForce, "force", false, "actually clear the queue")
	queueLoadtestCmd.Flags().IntVar(&loadtestItems, "items", 1000, "synthetic items to enqueue")
	queueLoadtestCmd.Flags().IntVar(&loadtestPollers, "pollers", 50, "concurrent pollers")
	queueLoadtestCmd.Flags().IntVar(&loadtestReads, "reads", 20, "reads per poller")
	queueLoadtestCmd.Flags().DurationVar(&loadtestVerify, "verify", 0, "ordering verification duration (0 to skip)")

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueClearCmd)
	queueCmd.AddCommand(queueDeadLettersCmd)
	queueCmd.AddCommand(queueLoadtestCmd)
	rootCmd.AddCommand(queueCmd)
}
