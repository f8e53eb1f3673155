// Package ingest accepts uploaded photos, stores the originals and runs
// face extraction asynchronously on a bounded worker pool.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facepool/internal/apperr"
	"github.com/your-org/facepool/internal/models"
	"github.com/your-org/facepool/internal/observability"
	"github.com/your-org/facepool/internal/queue"
	"github.com/your-org/facepool/internal/storage"
	"github.com/your-org/facepool/internal/vision"
	"github.com/your-org/facepool/internal/workerpool"
)

// allowedExtensions is the upload whitelist; anything else is stored as png.
var allowedExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true,
	"bmp": true, "gif": true, "tiff": true,
}

const defaultExtension = "png"

// Notifier publishes processed notifications. Implemented by
// queue.Producer; nil disables publishing.
type Notifier interface {
	PublishImageProcessed(ctx context.Context, note models.ImageProcessed) error
}

// Store is the slice of the face store the coordinator needs. Implemented
// by storage.PostgresStore.
type Store interface {
	ResolveEvent(ctx context.Context, code string) (*models.Event, error)
	InsertImage(ctx context.Context, img *models.Image) error
	SetImageFaces(ctx context.Context, img *models.Image, faces []models.Face) error
	GetImage(ctx context.Context, uuid string) (*models.Image, error)
	DeleteImage(ctx context.Context, uuid string) error
}

// Coordinator runs the upload pipeline. The synchronous half validates,
// stores the blob and inserts a placeholder row; detection runs later on
// the pool and a failure there leaves the image with zero faces instead of
// rolling the upload back.
type Coordinator struct {
	db        Store
	blobs     storage.ObjectStore
	extractor vision.Extractor
	pool      *workerpool.Pool
	notifier  Notifier
	hub       Broadcaster
	indexes   IndexInvalidator
}

// Broadcaster pushes notifications to connected WebSocket clients.
type Broadcaster interface {
	Broadcast(v interface{})
}

// IndexInvalidator drops a cached search index for an event. The search
// service detects added faces by count, but a delete followed by an upload
// can leave the count unchanged, so deletion invalidates explicitly.
type IndexInvalidator interface {
	InvalidateIndex(eventID int64)
}

func NewCoordinator(
	db Store,
	blobs storage.ObjectStore,
	extractor vision.Extractor,
	pool *workerpool.Pool,
	notifier Notifier,
	hub Broadcaster,
	indexes IndexInvalidator,
) *Coordinator {
	return &Coordinator{
		db:        db,
		blobs:     blobs,
		extractor: extractor,
		pool:      pool,
		notifier:  notifier,
		hub:       hub,
		indexes:   indexes,
	}
}

// Ingest accepts one uploaded photo for an event. On return the original is
// durably stored and a placeholder image row exists; face extraction is
// queued. The returned image carries face_count zero until the pool task
// completes.
func (c *Coordinator) Ingest(ctx context.Context, eventCode, filename string, data []byte) (*models.Image, error) {
	event, err := c.db.ResolveEvent(ctx, eventCode)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty upload: %w", apperr.ErrInvalidInput)
	}

	ext := deriveExtension(filename)
	imageUUID := strings.ReplaceAll(uuid.New().String(), "-", "")
	key := fmt.Sprintf("images/%s.%s", imageUUID, ext)

	// Blob first. If this fails nothing was written to the database, so the
	// client can simply retry.
	url, err := c.blobs.PutObject(ctx, key, data, contentTypeFor(ext))
	if err != nil {
		return nil, fmt.Errorf("store blob: %v: %w", err, apperr.ErrStorageFailure)
	}

	created, modified, err := c.blobs.StatObject(ctx, key)
	if err != nil {
		now := time.Now().UTC()
		created, modified = now, now
	}

	img := &models.Image{
		EventID:       event.ID,
		UUID:          imageUUID,
		StorageURL:    url,
		FileExtension: ext,
		CreatedAt:     created,
		LastModified:  modified,
	}
	if err := c.db.InsertImage(ctx, img); err != nil {
		return nil, err
	}

	observability.ImagesIngested.WithLabelValues(eventCode).Inc()

	task := workerpool.Task{
		Key: imageUUID,
		Run: func(taskCtx context.Context) error {
			return c.extract(taskCtx, event, img, data)
		},
	}
	if err := c.pool.Submit(task); err != nil {
		// The blob and row stay; the image can be reprocessed later.
		slog.Warn("extraction queue full", "event", eventCode, "image", imageUUID)
		return nil, err
	}

	return img, nil
}

// extract runs on the worker pool. Detection failures are terminal for this
// attempt: the image keeps zero faces and shows up in listings as faceless.
func (c *Coordinator) extract(ctx context.Context, event *models.Event, img *models.Image, data []byte) error {
	start := time.Now()
	detected, err := c.extractor.Extract(data)
	observability.ExtractionDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		observability.ExtractionFailures.WithLabelValues(event.Code).Inc()
		slog.Warn("extraction failed", "event", event.Code, "image", img.UUID, "error", err)
		c.notify(ctx, event.Code, img.UUID, 0, true)
		return fmt.Errorf("extract %s: %v: %w", img.UUID, err, apperr.ErrExtractionFailure)
	}

	faces := make([]models.Face, len(detected))
	for i, d := range detected {
		faces[i] = models.Face{
			EventID:   event.ID,
			ImageID:   img.ID,
			Box:       d.Box,
			Embedding: d.Embedding,
			Label:     models.PendingLabel(),
		}
	}

	if err := c.db.SetImageFaces(ctx, img, faces); err != nil {
		observability.ExtractionFailures.WithLabelValues(event.Code).Inc()
		c.notify(ctx, event.Code, img.UUID, 0, true)
		return fmt.Errorf("persist faces %s: %w", img.UUID, err)
	}

	observability.FacesDetected.WithLabelValues(event.Code).Add(float64(len(faces)))
	slog.Info("image processed", "event", event.Code, "image", img.UUID, "faces", len(faces))
	c.notify(ctx, event.Code, img.UUID, len(faces), false)
	return nil
}

func (c *Coordinator) notify(ctx context.Context, eventCode, imageUUID string, faceCount int, failed bool) {
	note := models.ImageProcessed{
		EventCode:  eventCode,
		ImageUUID:  imageUUID,
		FaceCount:  faceCount,
		Failed:     failed,
		FinishedAt: time.Now().UTC(),
	}
	if c.notifier != nil {
		if err := c.notifier.PublishImageProcessed(ctx, note); err != nil {
			slog.Warn("publish processed note", "image", imageUUID, "error", err)
		}
	}
	if c.hub != nil {
		c.hub.Broadcast(note)
	}
}

// DeleteImage removes the stored blob first, then the database row with its
// faces. A missing blob is not fatal; the row is authoritative.
func (c *Coordinator) DeleteImage(ctx context.Context, imageUUID string) error {
	img, err := c.db.GetImage(ctx, imageUUID)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("images/%s.%s", img.UUID, img.FileExtension)
	if err := c.blobs.DeleteObject(ctx, key); err != nil {
		slog.Warn("delete blob", "image", img.UUID, "error", err)
	}

	if err := c.db.DeleteImage(ctx, imageUUID); err != nil {
		return err
	}
	if c.indexes != nil {
		c.indexes.InvalidateIndex(img.EventID)
	}
	return nil
}

// deriveExtension lowercases the filename extension and maps anything
// outside the whitelist to the default.
func deriveExtension(filename string) string {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 || idx == len(filename)-1 {
		return defaultExtension
	}
	ext := strings.ToLower(filename[idx+1:])
	if !allowedExtensions[ext] {
		return defaultExtension
	}
	return ext
}

func contentTypeFor(ext string) string {
	switch ext {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	case "tiff":
		return "image/tiff"
	default:
		return "image/png"
	}
}

var (
	_ Notifier = (*queue.Producer)(nil)
	_ Store    = (*storage.PostgresStore)(nil)
)
