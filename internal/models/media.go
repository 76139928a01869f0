package models

import "time"

// MediaType is the kind of an uploaded media file
type MediaType string

const (
	MediaTypeVideo MediaType = "video"
	MediaTypeAudio MediaType = "audio"
)

// MediaFile is an uploaded asset. Duration and DerivedMetadata stay nil
// until the probe job succeeds.
type MediaFile struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	Filename         string    `json:"filename" gorm:"size:255;not null"`
	OriginalFilename string    `json:"original_filename" gorm:"size:255;not null"`
	StorageKey       string    `json:"storage_key" gorm:"size:512;not null;uniqueIndex"`
	ContentType      string    `json:"content_type" gorm:"size:128"`
	FileSize         int64     `json:"file_size" gorm:"not null"`
	Duration         *float64  `json:"duration"`
	MediaType        MediaType `json:"media_type" gorm:"size:16;not null;index"`
	ProjectID        uint      `json:"project_id" gorm:"not null;index"`
	UploadedBy       uint      `json:"uploaded_by" gorm:"not null;index"`
	DerivedMetadata  JSONMap   `json:"derived_metadata" gorm:"type:text"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	Project  *Project `json:"-" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	Uploader *User    `json:"-" gorm:"foreignKey:UploadedBy;constraint:OnDelete:RESTRICT"`
}

// IsProcessed reports whether the probe has populated the derived fields
func (m *MediaFile) IsProcessed() bool {
	return m.Duration != nil
}

// TableName specifies the table name for GORM
func (MediaFile) TableName() string {
	return "media_files"
}

// VideoSegment is a stream-copied sub-clip of a video
type VideoSegment struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	MediaFileID uint      `json:"media_file_id" gorm:"not null;uniqueIndex:idx_segment_range"`
	StartTime   float64   `json:"start_time" gorm:"not null;uniqueIndex:idx_segment_range"`
	EndTime     float64   `json:"end_time" gorm:"not null;uniqueIndex:idx_segment_range"`
	StorageKey  string    `json:"storage_key" gorm:"size:512;not null"`
	CreatedBy   uint      `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`

	MediaFile *MediaFile `json:"-" gorm:"foreignKey:MediaFileID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for GORM
func (VideoSegment) TableName() string {
	return "video_segments"
}
