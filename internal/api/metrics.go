package api

import (
	"errors"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/timmy/annotate/internal/checkpoint"
	"github.com/timmy/annotate/internal/domain"
	"github.com/timmy/annotate/internal/logger"
)

// checkpointCollector reports what the checkpoint holds at scrape time.
type checkpointCollector struct {
	store       *checkpoint.Store
	rows        *prometheus.Desc
	annotations *prometheus.Desc
}

func newCheckpointCollector(store *checkpoint.Store) *checkpointCollector {
	return &checkpointCollector{
		store: store,
		rows: prometheus.NewDesc("annotate_checkpoint_rows",
			"Rows in the checkpoint file.", nil, nil),
		annotations: prometheus.NewDesc("annotate_checkpoint_annotations",
			"Non-empty annotations in the checkpoint file by kind.", []string{"kind"}, nil),
	}
}

func (c *checkpointCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rows
	ch <- c.annotations
}

func (c *checkpointCollector) Collect(ch chan<- prometheus.Metric) {
	rows := 0
	byKind := make(map[domain.Kind]int, len(domain.Kinds))
	err := c.store.Stream(func(row domain.ResultRow) error {
		rows++
		for _, kind := range domain.Kinds {
			if row.Field(kind) != "" {
				byKind[kind]++
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.GetDefault().WithError(err).Warn("Failed to read checkpoint for metrics")
		return
	}

	ch <- prometheus.MustNewConstMetric(c.rows, prometheus.GaugeValue, float64(rows))
	for _, kind := range domain.Kinds {
		ch <- prometheus.MustNewConstMetric(c.annotations, prometheus.GaugeValue, float64(byKind[kind]), string(kind))
	}
}
