package handler

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/annotate/internal/checkpoint"
	"github.com/timmy/annotate/internal/domain"
	"github.com/timmy/annotate/internal/logger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Annotation is the JSON view of one checkpoint row.
type Annotation struct {
	ID          int64  `json:"id"`
	Alt         string `json:"alt"`
	Description string `json:"description"`
	Caption     string `json:"caption"`
	Title       string `json:"title"`
	URL         string `json:"url"`
}

// AnnotationList is one page of checkpoint rows.
type AnnotationList struct {
	Results []Annotation `json:"results"`
	Total   int          `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// AnnotationStats counts what the checkpoint holds.
type AnnotationStats struct {
	Rows      int                 `json:"rows"`
	UniqueIDs int                 `json:"unique_ids"`
	EmptyRows int                 `json:"empty_rows"`
	ByKind    map[domain.Kind]int `json:"by_kind"`
}

func newAnnotation(row domain.ResultRow) Annotation {
	return Annotation{
		ID:          row.ItemID,
		Alt:         row.Field(domain.KindAlt),
		Description: row.Field(domain.KindDescription),
		Caption:     row.Field(domain.KindCaption),
		Title:       row.Field(domain.KindTitle),
		URL:         row.SourceURL,
	}
}

// AnnotationHandler serves the checkpoint file for review before commit.
type AnnotationHandler struct {
	store *checkpoint.Store
}

// NewAnnotationHandler creates a new annotation handler.
// Parameters:
//   - store: checkpoint to read; it is never written.
//
// Returns:
//   - *AnnotationHandler: initialized handler.
func NewAnnotationHandler(store *checkpoint.Store) *AnnotationHandler {
	return &AnnotationHandler{store: store}
}

// stream reads the checkpoint; a missing file reads as empty.
func (h *AnnotationHandler) stream(fn func(row domain.ResultRow) error) error {
	err := h.store.Stream(fn)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// ListAnnotations handles GET /api/v1/annotations.
func (h *AnnotationHandler) ListAnnotations(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	result := AnnotationList{Results: []Annotation{}, Limit: limit, Offset: offset}
	err = h.stream(func(row domain.ResultRow) error {
		if result.Total >= offset && len(result.Results) < limit {
			result.Results = append(result.Results, newAnnotation(row))
		}
		result.Total++
		return nil
	})
	if err != nil {
		logger.FromContext(c.Request.Context()).WithError(err).Error("Failed to read checkpoint")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read annotations",
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetAnnotation handles GET /api/v1/annotations/:id. When an id appears more
// than once, the last row wins, matching what commit applies.
func (h *AnnotationHandler) GetAnnotation(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Annotation ID must be an integer",
		})
		return
	}

	var found *Annotation
	err = h.stream(func(row domain.ResultRow) error {
		if row.ItemID == id {
			a := newAnnotation(row)
			found = &a
		}
		return nil
	})
	if err != nil {
		logger.FromContext(c.Request.Context()).WithError(err).Error("Failed to read checkpoint")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read annotations",
		})
		return
	}
	if found == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Annotation not found",
		})
		return
	}

	c.JSON(http.StatusOK, found)
}

// GetStats handles GET /api/v1/annotations/stats.
func (h *AnnotationHandler) GetStats(c *gin.Context) {
	stats := AnnotationStats{ByKind: make(map[domain.Kind]int, len(domain.Kinds))}
	for _, kind := range domain.Kinds {
		stats.ByKind[kind] = 0
	}

	seen := make(map[int64]struct{})
	err := h.stream(func(row domain.ResultRow) error {
		stats.Rows++
		seen[row.ItemID] = struct{}{}
		if !row.HasContent() {
			stats.EmptyRows++
		}
		for _, kind := range domain.Kinds {
			if row.Field(kind) != "" {
				stats.ByKind[kind]++
			}
		}
		return nil
	})
	if err != nil {
		logger.FromContext(c.Request.Context()).WithError(err).Error("Failed to read checkpoint")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read annotations",
		})
		return
	}
	stats.UniqueIDs = len(seen)

	c.JSON(http.StatusOK, stats)
}
