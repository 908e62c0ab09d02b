package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/timmy/annotate/internal/checkpoint"
	"github.com/timmy/annotate/internal/domain"
	"github.com/timmy/annotate/internal/logger"
	"github.com/timmy/annotate/internal/storage"
)

// Catalog enumerates the images eligible for annotation.
type Catalog interface {
	// ListImageItems returns image assets in catalog order, without the ids in exclude.
	ListImageItems(ctx context.Context, exclude map[int64]struct{}) ([]domain.CatalogItem, error)
}

// Describer produces the text for one image and prompt.
type Describer interface {
	Describe(ctx context.Context, imageURL string, prompt domain.Prompt) (string, error)
}

// Publisher stores a copy of the finished checkpoint.
type Publisher interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}

// RunState is the lifecycle position of a Runner.
type RunState string

const (
	StateIdle       RunState = "idle"
	StateScanning   RunState = "scanning"
	StateGenerating RunState = "generating"
	StateDrained    RunState = "drained"
)

// RunnerConfig is the immutable configuration of a generate run.
type RunnerConfig struct {
	Prompts   domain.PromptSet
	Publisher Publisher // optional
}

// RunStats summarizes a generate run.
type RunStats struct {
	RunID            string
	CheckpointPath   string
	AlreadyProcessed int
	Pending          int
	Written          int
	Empty            int
	StartTime        time.Time
	EndTime          time.Time
}

// Runner drives the generate phase: scan the checkpoint, enumerate what is
// left, annotate each image and append its row.
type Runner struct {
	store   *checkpoint.Store
	catalog Catalog
	model   Describer
	cfg     *RunnerConfig
	logger  *logger.Logger
	state   RunState
}

// NewRunner creates a new generate-phase runner.
func NewRunner(store *checkpoint.Store, catalog Catalog, model Describer, cfg *RunnerConfig, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Runner{
		store:   store,
		catalog: catalog,
		model:   model,
		cfg:     cfg,
		logger:  log,
		state:   StateIdle,
	}
}

// State returns the current lifecycle state.
func (r *Runner) State() RunState {
	return r.state
}

// Run executes one generate pass. A fatal model error stops the pass at the
// failing item; every row appended before it is kept and skipped next time.
// Parameters:
//   - ctx: cancellation ends the run like an operator interrupt.
//
// Returns:
//   - *RunStats: counters, also populated when the run stops early.
//   - error: wraps ErrModelUnavailable, ErrImageFetch, checkpoint or catalog errors.
func (r *Runner) Run(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{
		RunID:          uuid.New().String(),
		CheckpointPath: r.store.Path(),
		StartTime:      time.Now(),
	}
	ctx = r.logger.WithContext(ctx)
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldRunID:     stats.RunID,
		logger.FieldPhase:     "generate",
		logger.FieldComponent: "pipeline",
	})

	unlock, err := r.store.Lock()
	if err != nil {
		return stats, err
	}
	defer unlock()

	r.state = StateScanning
	if err := r.store.Initialize(); err != nil {
		return stats, err
	}
	processed, err := r.store.ScanProcessed()
	if err != nil {
		return stats, err
	}
	stats.AlreadyProcessed = len(processed)

	items, err := r.catalog.ListImageItems(ctx, processed)
	if err != nil {
		return stats, fmt.Errorf("failed to enumerate catalog: %w", err)
	}
	stats.Pending = len(items)

	kinds := r.cfg.Prompts.Enabled()
	logger.FromContext(ctx).WithFields(logger.Fields{
		"checkpoint": stats.CheckpointPath,
		"processed":  stats.AlreadyProcessed,
		"pending":    stats.Pending,
		"kinds":      kinds,
	}).Info("Starting generation")

	r.state = StateGenerating
	if err := r.generate(ctx, items, kinds, stats); err != nil {
		stats.EndTime = time.Now()
		return stats, err
	}

	r.state = StateDrained
	stats.EndTime = time.Now()
	r.publish(ctx)

	logger.With(logger.Fields{
		"written":              stats.Written,
		"empty":                stats.Empty,
		logger.FieldDurationMs: stats.EndTime.Sub(stats.StartTime).Milliseconds(),
	}).Info(ctx, "Generation complete. Results are in %s; review them, then run again with -mode commit to apply them", stats.CheckpointPath)

	return stats, nil
}

func (r *Runner) generate(ctx context.Context, items []domain.CatalogItem, kinds []domain.Kind, stats *RunStats) error {
	w, err := r.store.OpenWriter()
	if err != nil {
		return err
	}
	defer w.Close()
	if n := w.Repaired(); n > 0 {
		logger.CtxWarn(ctx, "Dropped %d bytes of a partially written row from an interrupted run", n)
	}

	tracker := NewProgressTracker()
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		itemCtx := logger.WithField(ctx, logger.FieldItemID, item.ID)

		start := time.Now()
		row, err := r.annotate(itemCtx, item, kinds)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("item %d: %w", item.ID, err)
		}
		elapsed := time.Since(start)
		tracker.Record(elapsed)

		// An empty row is not written, so the item is offered again next run
		status := "written"
		if row.HasContent() {
			if err := w.Append(row); err != nil {
				return err
			}
			stats.Written++
		} else {
			status = "empty"
			stats.Empty++
		}

		remaining := len(items) - (i + 1)
		logger.With(logger.Fields{
			"done":                 i + 1,
			"total":                len(items),
			"eta":                  FormatETA(tracker.EstimateRemaining(remaining)),
			logger.FieldStatus:     status,
			logger.FieldDurationMs: elapsed.Milliseconds(),
		}).Info(itemCtx, "Annotated image %d (%s of %s)", item.ID,
			humanize.Comma(int64(i+1)), humanize.Comma(int64(len(items))))
	}

	return w.Close()
}

// annotate runs every enabled kind for one item in declared order.
func (r *Runner) annotate(ctx context.Context, item domain.CatalogItem, kinds []domain.Kind) (domain.ResultRow, error) {
	row := domain.NewResultRow(item.ID, item.SourceURL)
	for _, kind := range kinds {
		text, err := r.model.Describe(logger.WithField(ctx, logger.FieldKind, kind), item.SourceURL, r.cfg.Prompts.For(kind))
		if err != nil {
			return domain.ResultRow{}, fmt.Errorf("%s: %w", kind, err)
		}
		if text != "" {
			row.Fields[kind] = text
		}
	}
	return row, nil
}

// publish uploads the checkpoint when a publisher is configured. Failures only
// warn: the local file is the record.
func (r *Runner) publish(ctx context.Context) {
	if r.cfg.Publisher == nil {
		return
	}

	key := path.Join("checkpoints", filepath.Base(r.store.Path()))
	err := func() error {
		f, err := os.Open(r.store.Path())
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}
		return r.cfg.Publisher.Upload(ctx, key, f, info.Size(), "text/csv")
	}()

	switch {
	case errors.Is(err, storage.ErrUploadUnsupported):
		logger.CtxWarn(ctx, "Storage backend cannot publish checkpoints; configure an S3 backend to enable -publish")
	case err != nil:
		logger.FromContext(ctx).WithError(err).Warn("Failed to publish checkpoint")
	default:
		logger.CtxInfo(ctx, "Published checkpoint to %s", key)
	}
}
