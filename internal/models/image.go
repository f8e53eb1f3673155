package models

import (
	"fmt"
	"time"
)

// Image is an uploaded photo stored in the object store and tracked in
// Postgres. It is created as a placeholder with FaceCount 0 and updated once
// when detection completes.
type Image struct {
	ID            int64     `json:"id" db:"id"`
	EventID       int64     `json:"event_id" db:"event_id"`
	UUID          string    `json:"uuid" db:"uuid"`
	StorageURL    string    `json:"storage_url" db:"storage_url"`
	FileExtension string    `json:"file_extension" db:"file_extension"`
	FaceCount     int       `json:"face_count" db:"face_count"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	LastModified  time.Time `json:"last_modified" db:"last_modified"`
}

// BoundingBox locates a face inside its image. X and Y are the top-left
// corner in pixels.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (b BoundingBox) Validate() error {
	if b.X < 0 || b.Y < 0 {
		return fmt.Errorf("bounding box origin must be non-negative, got (%d,%d)", b.X, b.Y)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("bounding box must have positive size, got %dx%d", b.Width, b.Height)
	}
	return nil
}

// Face is one detected face. The embedding is immutable once written; only
// the cluster label is updated afterwards, by clustering runs.
type Face struct {
	ID        int64        `json:"id" db:"id"`
	EventID   int64        `json:"event_id" db:"event_id"`
	ImageID   int64        `json:"image_id" db:"image_id"`
	Box       BoundingBox  `json:"bbox" db:"bbox"`
	Embedding []float32    `json:"-" db:"embedding"`
	Label     ClusterLabel `json:"cluster_id" db:"cluster_id"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}
