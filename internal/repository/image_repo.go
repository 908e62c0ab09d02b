package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/annotate/internal/domain"
	"github.com/timmy/annotate/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultCatalogBatchSize = 500

// ErrImageNotFound is returned when an update targets an id the store does not hold.
var ErrImageNotFound = errors.New("image not found")

// ImageRepository is both the asset catalog and the store of record.
type ImageRepository struct {
	db        *gorm.DB
	urls      storage.ObjectStorage
	size      string
	batchSize int
}

// NewImageRepository creates a new ImageRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//   - urls: storage resolving object keys to fetchable URLs.
//   - size: rendition handed to the model (original, large, medium, small).
//
// Returns:
//   - *ImageRepository: repository instance bound to db.
func NewImageRepository(db *gorm.DB, urls storage.ObjectStorage, size string) *ImageRepository {
	return &ImageRepository{
		db:        db,
		urls:      urls,
		size:      size,
		batchSize: defaultCatalogBatchSize,
	}
}

// ListImageItems returns every image-typed asset in id order, leaving out the
// ids in exclude. Rows are read in batches and the exclusion is applied in
// memory, so large processed sets never reach the SQL bind limit.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - exclude: ids to leave out.
//
// Returns:
//   - []domain.CatalogItem: remaining images with their rendition URL.
//   - error: non-nil if the query fails.
func (r *ImageRepository) ListImageItems(ctx context.Context, exclude map[int64]struct{}) ([]domain.CatalogItem, error) {
	var items []domain.CatalogItem
	var batch []domain.Image

	result := r.db.WithContext(ctx).
		Select("id", "storage_key").
		Where("media_type = ?", domain.MediaTypeImage).
		FindInBatches(&batch, r.batchSize, func(tx *gorm.DB, _ int) error {
			for _, img := range batch {
				if _, skip := exclude[img.ID]; skip {
					continue
				}
				items = append(items, domain.CatalogItem{
					ID:        img.ID,
					SourceURL: r.urls.GetURL(storage.RenditionKey(r.size, img.StorageKey)),
				})
			}
			return nil
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list images: %w", result.Error)
	}
	return items, nil
}

// UpdateMetadata overwrites the editorial fields set in u. Unset fields keep
// their stored value.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: image ID.
//   - u: fields to write.
//
// Returns:
//   - error: ErrImageNotFound when no image has id, or the database error.
func (r *ImageRepository) UpdateMetadata(ctx context.Context, id int64, u domain.MetadataUpdate) error {
	updates := make(map[string]interface{}, 3)
	if u.Title != nil {
		updates["title"] = *u.Title
	}
	if u.Description != nil {
		updates["description"] = *u.Description
	}
	if u.Caption != nil {
		updates["caption"] = *u.Caption
	}
	if len(updates) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).Model(&domain.Image{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update image %d metadata: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrImageNotFound, id)
	}
	return nil
}

// UpdateAltText stores the accessibility text of an image, replacing any
// previous value.
func (r *ImageRepository) UpdateAltText(ctx context.Context, id int64, text string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Image{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to look up image %d: %w", id, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %d", ErrImageNotFound, id)
	}

	alt := &domain.ImageAltText{ImageID: id, Text: text, UpdatedAt: time.Now()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "image_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"text", "updated_at"}),
	}).Create(alt).Error
	if err != nil {
		return fmt.Errorf("failed to update image %d alt text: %w", id, err)
	}
	return nil
}
