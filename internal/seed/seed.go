// Package seed imports the exercise library from a JSONL export into the
// local cache.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/liftlog/liftlog/internal/domain"
	"github.com/liftlog/liftlog/internal/store"
)

// Options configures an import run.
type Options struct {
	// Path to the JSONL file, one exercise definition per line.
	Path string

	// DryRun parses and validates without writing.
	DryRun bool
}

// Result contains import statistics.
type Result struct {
	Parsed   int
	Imported int
	Skipped  int
	Errors   []string
}

// FromJSONL reads a JSONL file of exercise definitions. Lines that fail
// to parse abort the read; validation failures are the caller's to
// handle per definition.
func FromJSONL(path string) ([]*domain.ExerciseDefinition, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	var defs []*domain.ExerciseDefinition
	decoder := json.NewDecoder(file)
	lineNum := 0

	for {
		var def domain.ExerciseDefinition
		if err := decoder.Decode(&def); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum+1, err)
		}
		lineNum++

		if def.CreatedAt.IsZero() {
			def.CreatedAt = time.Now().UTC()
		}
		if def.UpdatedAt.IsZero() {
			def.UpdatedAt = def.CreatedAt
		}

		defs = append(defs, &def)
	}

	return defs, nil
}

// Import loads the library into the local cache. Definitions that fail
// validation are skipped and reported, never aborting the rest of the
// file. Re-importing the same file is idempotent: rows upsert by id.
func Import(ctx context.Context, db *store.DB, opts Options) (*Result, error) {
	if _, err := os.Stat(opts.Path); err != nil {
		return nil, fmt.Errorf("input file does not exist: %w", err)
	}

	defs, err := FromJSONL(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSONL: %w", err)
	}

	result := &Result{Parsed: len(defs)}

	for _, def := range defs {
		if err := def.Validate(); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors,
				fmt.Sprintf("invalid definition %s: %v", def.ID, err))
			continue
		}

		if !opts.DryRun {
			if err := db.UpsertExerciseDefinition(ctx, def); err != nil {
				result.Skipped++
				result.Errors = append(result.Errors,
					fmt.Sprintf("failed to import %s: %v", def.ID, err))
				continue
			}
		}
		result.Imported++
	}

	return result, nil
}
