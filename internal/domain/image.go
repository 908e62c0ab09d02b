package domain

import "time"

// MediaType classifies a catalog asset, e.g. "image", "video" or "document".
// Only MediaTypeImage assets are offered for annotation.
type MediaType string

const MediaTypeImage MediaType = "image"

// Image is an asset in the store of record. IDs are assigned by the catalog
// owner and never generated here.
type Image struct {
	ID          int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	MediaType   MediaType `gorm:"type:text;not null;default:image;index:idx_images_media_type" json:"media_type"`
	StorageKey  string    `gorm:"type:text;not null" json:"storage_key"`
	Title       string    `gorm:"type:text" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Caption     string    `gorm:"type:text" json:"caption"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Image.
func (Image) TableName() string {
	return "images"
}

// ImageAltText holds the accessibility text of an image, kept apart from the
// editorial metadata.
type ImageAltText struct {
	ImageID   int64     `gorm:"primaryKey;autoIncrement:false" json:"image_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for ImageAltText.
func (ImageAltText) TableName() string {
	return "image_alt_texts"
}

// MetadataUpdate carries the editorial fields to overwrite. Nil fields are
// left untouched.
type MetadataUpdate struct {
	Title       *string
	Description *string
	Caption     *string
}

// IsEmpty reports whether the update would change nothing.
func (u MetadataUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Caption == nil
}

// MetadataFromRow collects the non-empty editorial fields of a row.
func MetadataFromRow(row ResultRow) MetadataUpdate {
	var u MetadataUpdate
	if v := row.Field(KindTitle); v != "" {
		u.Title = &v
	}
	if v := row.Field(KindDescription); v != "" {
		u.Description = &v
	}
	if v := row.Field(KindCaption); v != "" {
		u.Caption = &v
	}
	return u
}
