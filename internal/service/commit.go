package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/annotate/internal/checkpoint"
	"github.com/timmy/annotate/internal/domain"
	"github.com/timmy/annotate/internal/logger"
)

// RecordStore is the authoritative store that accepted annotations are applied to.
type RecordStore interface {
	UpdateMetadata(ctx context.Context, id int64, u domain.MetadataUpdate) error
	UpdateAltText(ctx context.Context, id int64, text string) error
}

// CommitStats summarizes a commit run.
type CommitStats struct {
	RunID          string
	Rows           int
	MetadataWrites int
	AltWrites      int
	FailedWrites   int
	EmptyRows      int
	StartTime      time.Time
	EndTime        time.Time
}

// Committer applies checkpoint rows to the store of record. Rerunning it
// against the same checkpoint writes the same values again.
type Committer struct {
	store   *checkpoint.Store
	records RecordStore
	logger  *logger.Logger
}

// NewCommitter creates a new commit-phase runner.
func NewCommitter(store *checkpoint.Store, records RecordStore, log *logger.Logger) *Committer {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Committer{
		store:   store,
		records: records,
		logger:  log,
	}
}

// Commit streams the checkpoint and writes every non-empty field. A failed
// write is logged and counted; the remaining writes still happen.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//
// Returns:
//   - *CommitStats: write counters.
//   - error: non-nil only for checkpoint, lock or context errors.
func (c *Committer) Commit(ctx context.Context) (*CommitStats, error) {
	stats := &CommitStats{
		RunID:     uuid.New().String(),
		StartTime: time.Now(),
	}
	ctx = c.logger.WithContext(ctx)
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldRunID:     stats.RunID,
		logger.FieldPhase:     "commit",
		logger.FieldComponent: "commit",
	})

	unlock, err := c.store.Lock()
	if err != nil {
		return stats, err
	}
	defer unlock()

	logger.CtxInfo(ctx, "Applying annotations from %s", c.store.Path())

	err = c.store.Stream(func(row domain.ResultRow) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Rows++
		c.apply(logger.WithField(ctx, logger.FieldItemID, row.ItemID), row, stats)
		return nil
	})
	stats.EndTime = time.Now()
	if err != nil {
		return stats, err
	}

	logger.With(logger.Fields{
		"rows":                 stats.Rows,
		"metadata_writes":      stats.MetadataWrites,
		"alt_writes":           stats.AltWrites,
		"failed":               stats.FailedWrites,
		logger.FieldDurationMs: stats.EndTime.Sub(stats.StartTime).Milliseconds(),
	}).Info(ctx, "Commit complete")

	return stats, nil
}

func (c *Committer) apply(ctx context.Context, row domain.ResultRow, stats *CommitStats) {
	if !row.HasContent() {
		stats.EmptyRows++
		return
	}

	if meta := domain.MetadataFromRow(row); !meta.IsEmpty() {
		if err := c.records.UpdateMetadata(ctx, row.ItemID, meta); err != nil {
			stats.FailedWrites++
			logger.FromContext(ctx).WithError(err).Error("Failed to update image metadata")
		} else {
			stats.MetadataWrites++
		}
	}

	if alt := row.Field(domain.KindAlt); alt != "" {
		if err := c.records.UpdateAltText(ctx, row.ItemID, alt); err != nil {
			stats.FailedWrites++
			logger.FromContext(ctx).WithError(err).Error("Failed to update image alt text")
		} else {
			stats.AltWrites++
		}
	}
}
