package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/liftlog/liftlog/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show local cache and sync queue status",
	Long: `Display the current state of the local database and sync queue.

Shows:
  - Database file location and size
  - Schema version
  - Cached session and exercise counts
  - Pending queue depth and dead letters`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		info, err := os.Stat(cfg.DBPath)
		if os.IsNotExist(err) {
			fmt.Printf("\n%s Local database not initialized\n", ui.RenderWarn("⚠"))
			fmt.Printf("   Run any workout or sync command to create it\n\n")
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error checking database: %v\n", err)
			os.Exit(1)
		}

		db, q, err := openQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		version, err := db.SchemaVersion(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading schema version: %v\n", err)
			os.Exit(1)
		}
		sessions, err := db.SessionCount(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error counting sessions: %v\n", err)
			os.Exit(1)
		}
		exercises, err := db.ExerciseCount(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error counting exercises: %v\n", err)
			os.Exit(1)
		}
		pending, err := q.Len(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading queue: %v\n", err)
			os.Exit(1)
		}
		deadLetters, err := q.ListDeadLetters(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading dead letters: %v\n", err)
			os.Exit(1)
		}

		size := info.Size()
		sizeStr := fmt.Sprintf("%d bytes", size)
		if size > 1024*1024 {
			sizeStr = fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
		} else if size > 1024 {
			sizeStr = fmt.Sprintf("%.1f KB", float64(size)/1024)
		}

		fmt.Printf("\n%s LiftLog Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Database: %s\n", cfg.DBPath)
		fmt.Printf("Size: %s\n", sizeStr)
		fmt.Printf("Schema version: %d\n", version)
		fmt.Printf("Sessions: %d\n", sessions)
		fmt.Printf("Exercises: %d\n", exercises)
		fmt.Printf("Pending sync items: %d\n", pending)
		if len(deadLetters) > 0 {
			fmt.Printf("Dead letters: %s\n", ui.RenderErr(fmt.Sprintf("%d", len(deadLetters))))
		} else {
			fmt.Printf("Dead letters: 0\n")
		}
		fmt.Printf("Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
