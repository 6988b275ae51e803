package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/liftlog/liftlog/internal/seed"
	"github.com/liftlog/liftlog/internal/ui"
)

var (
	seedFile   string
	seedDryRun bool
)

var seedCmd = &cobra.Command{
	Use:     "seed",
	GroupID: "sync",
	Short:   "Import the exercise library from a JSONL export",
	Long: `Import exercise definitions into the local cache from a JSONL file,
one definition per line. Re-importing the same file is idempotent: rows
upsert by id. Invalid definitions are skipped and reported.`,
	Run: func(cmd *cobra.Command, args []string) {
		if seedFile == "" {
			fmt.Fprintf(os.Stderr, "Error: --file is required\n")
			os.Exit(1)
		}

		ctx := context.Background()
		db, err := openStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		result, err := seed.Import(ctx, db, seed.Options{
			Path:   seedFile,
			DryRun: seedDryRun,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error importing library: %v\n", err)
			os.Exit(1)
		}

		verb := "Imported"
		if seedDryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s %d of %d definitions\n",
			ui.RenderPass("✓"), verb, result.Imported, result.Parsed)
		if result.Skipped > 0 {
			fmt.Printf("%s Skipped %d:\n", ui.RenderWarn("⚠"), result.Skipped)
			for _, msg := range result.Errors {
				fmt.Printf("   %s\n", ui.RenderDim(msg))
			}
		}
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "JSONL file to import")
	seedCmd.Flags().BoolVar(&seedDryRun, "dry-run", false, "parse and validate without writing")
	rootCmd.AddCommand(seedCmd)
}
