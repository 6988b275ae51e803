package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/liftlog/liftlog/internal/queue"
	"github.com/liftlog/liftlog/internal/store"
	"github.com/liftlog/liftlog/internal/ui"
	"github.com/liftlog/liftlog/internal/workout"
)

var workoutCmd = &cobra.Command{
	Use:     "workout",
	GroupID: "workout",
	Short:   "Record an offline workout",
	Long: `Record a workout against the local cache.

Sets accumulate as drafts; the session record is created when the first
set is saved, and every mutation is queued for background sync. The
workout works fully offline.`,
}

// newReconciler builds a reconciler resumed onto any in-progress session.
func newReconciler(ctx context.Context, db *store.DB) (*workout.Reconciler, error) {
	user, err := currentUser()
	if err != nil {
		return nil, err
	}
	q := queue.NewStore(db.RawDB())
	r := workout.NewReconciler(db, q, user, newLogger("[workout] "))
	if err := r.Restore(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

var workoutStartName string

var workoutStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a workout",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		db, err := openStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		r, err := newReconciler(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if r.SessionID() != nil {
			fmt.Printf("%s A workout is already in progress (session %s)\n",
				ui.RenderWarn("⚠"), *r.SessionID())
			return
		}

		r.StartWorkout(workoutStartName, nil, nil)
		fmt.Printf("%s Workout started; log sets with 'liftlog workout log'\n", ui.RenderPass("✓"))
	},
}

var (
	logWeight float64
	logReps   int
	logRepsL  int
	logRepsR  int
	logTime   int
)

var workoutLogCmd = &cobra.Command{
	Use:   "log <exercise-id> <set-index>",
	Short: "Record draft input for one set",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		setIndex, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: set index must be a number: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		db, err := openStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		r, err := newReconciler(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		d := &store.DraftSet{ExerciseID: args[0], SetIndex: setIndex}
		if cmd.Flags().Changed("weight") {
			d.WeightKg = &logWeight
		}
		if cmd.Flags().Changed("reps") {
			d.Reps = &logReps
		}
		if cmd.Flags().Changed("reps-l") {
			d.RepsL = &logRepsL
		}
		if cmd.Flags().Changed("reps-r") {
			d.RepsR = &logRepsR
		}
		if cmd.Flags().Changed("time") {
			d.TimeSeconds = &logTime
		}

		if err := r.UpdateDraft(ctx, d); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Draft updated for %s set %d\n", ui.RenderPass("✓"), args[0], setIndex)
	},
}

var workoutSaveCmd = &cobra.Command{
	Use:   "save <exercise-id> <set-index>",
	Short: "Commit one draft set",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		setIndex, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: set index must be a number: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		db, err := openStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		r, err := newReconciler(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		l, err := r.SaveSet(ctx, args[0], setIndex)
		if errors.Is(err, workout.ErrValidation) {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderErr("✗"), err)
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error saving set: %v\n", err)
			os.Exit(1)
		}

		if l.IsPB {
			fmt.Printf("%s Set saved: new personal record!\n", ui.RenderPass("🏆"))
		} else {
			fmt.Printf("%s Set saved\n", ui.RenderPass("✓"))
		}
	},
}

var workoutSetsCmd = &cobra.Command{
	Use:   "sets",
	Short: "List the current workout's drafts",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		db, err := openStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		r, err := newReconciler(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		drafts, err := db.ListDrafts(ctx, r.SessionID())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing drafts: %v\n", err)
			os.Exit(1)
		}
		if len(drafts) == 0 {
			fmt.Println("No sets in the current workout")
			return
		}

		fmt.Printf("\n%s Current workout\n\n", ui.RenderAccent("🏋"))
		for _, d := range drafts {
			state := ui.RenderDim("draft")
			if d.IsSaved {
				state = ui.RenderPass("saved")
			}
			detail := ""
			switch {
			case d.WeightKg != nil && d.Reps != nil:
				detail = fmt.Sprintf("%.1fkg x %d", *d.WeightKg, *d.Reps)
			case d.RepsL != nil && d.RepsR != nil:
				detail = fmt.Sprintf("L%d/R%d", *d.RepsL, *d.RepsR)
			case d.TimeSeconds != nil:
				detail = fmt.Sprintf("%ds", *d.TimeSeconds)
			}
			fmt.Printf("  %-24s set %d  %-14s %s\n", d.ExerciseID, d.SetIndex, detail, state)
		}
		fmt.Println()
	},
}

var workoutCompleteCmd = &cobra.Command{
	Use:   "complete",
	Short: "Complete the current workout",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		db, err := openStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		r, err := newReconciler(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		s, err := r.CompleteSession(ctx)
		if errors.Is(err, workout.ErrNoSession) {
			fmt.Fprintf(os.Stderr, "Error: no workout in progress (save a set first)\n")
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error completing workout: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Workout %q completed and queued for sync\n", ui.RenderPass("✓"), s.Name)
	},
}

var workoutDiscardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Abandon the current workout",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		db, err := openStore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		r, err := newReconciler(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := r.DiscardSession(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error discarding workout: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Workout discarded\n", ui.RenderPass("✓"))
	},
}

func init() {
	workoutStartCmd.Flags().StringVar(&workoutStartName, "name", "", "workout name")
	workoutLogCmd.Flags().Float64Var(&logWeight, "weight", 0, "weight in kg")
	workoutLogCmd.Flags().IntVar(&logReps, "reps", 0, "repetitions")
	workoutLogCmd.Flags().IntVar(&logRepsL, "reps-l", 0, "left-side repetitions")
	workoutLogCmd.Flags().IntVar(&logRepsR, "reps-r", 0, "right-side repetitions")
	workoutLogCmd.Flags().IntVar(&logTime, "time", 0, "elapsed seconds")

	workoutCmd.AddCommand(workoutStartCmd)
	workoutCmd.AddCommand(workoutLogCmd)
	workoutCmd.AddCommand(workoutSaveCmd)
	workoutCmd.AddCommand(workoutSetsCmd)
	workoutCmd.AddCommand(workoutCompleteCmd)
	workoutCmd.AddCommand(workoutDiscardCmd)
	rootCmd.AddCommand(workoutCmd)
}
