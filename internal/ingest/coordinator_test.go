package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facepool/internal/apperr"
	"github.com/your-org/facepool/internal/models"
	"github.com/your-org/facepool/internal/vision"
	"github.com/your-org/facepool/internal/workerpool"
)

type fakeIngestStore struct {
	mu     sync.Mutex
	event  *models.Event
	nextID int64

	inserted []*models.Image
	faceSets map[string][]models.Face
	deleted  []string
}

func newFakeIngestStore() *fakeIngestStore {
	return &fakeIngestStore{
		event:    &models.Event{ID: 3, Code: "gala"},
		faceSets: map[string][]models.Face{},
	}
}

func (f *fakeIngestStore) ResolveEvent(ctx context.Context, code string) (*models.Event, error) {
	if f.event == nil || f.event.Code != code {
		return nil, fmt.Errorf("event %s: %w", code, apperr.ErrNotFound)
	}
	return f.event, nil
}

func (f *fakeIngestStore) InsertImage(ctx context.Context, img *models.Image) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	img.ID = f.nextID
	f.inserted = append(f.inserted, img)
	return nil
}

func (f *fakeIngestStore) SetImageFaces(ctx context.Context, img *models.Image, faces []models.Face) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faceSets[img.UUID] = faces
	return nil
}

func (f *fakeIngestStore) GetImage(ctx context.Context, uuid string) (*models.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, img := range f.inserted {
		if img.UUID == uuid {
			return img, nil
		}
	}
	return nil, fmt.Errorf("image %s: %w", uuid, apperr.ErrNotFound)
}

func (f *fakeIngestStore) DeleteImage(ctx context.Context, uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, uuid)
	return nil
}

func (f *fakeIngestStore) insertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}

type fakeBlobs struct {
	mu      sync.Mutex
	putErr  error
	puts    []string
	deletes []string
}

func (f *fakeBlobs) PutObject(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return "", f.putErr
	}
	f.puts = append(f.puts, key)
	return "http://blobs/" + key, nil
}

func (f *fakeBlobs) GetObject(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("not stored")
}

func (f *fakeBlobs) DeleteObject(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, key)
	return nil
}

func (f *fakeBlobs) StatObject(ctx context.Context, key string) (time.Time, time.Time, error) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return now, now, nil
}

type fakeIngestExtractor struct {
	faces       []vision.DetectedFace
	err         error
	block       chan struct{}
	started     chan struct{}
	startedOnce sync.Once
}

func (f *fakeIngestExtractor) Extract(data []byte) ([]vision.DetectedFace, error) {
	if f.started != nil {
		f.startedOnce.Do(func() { close(f.started) })
	}
	if f.block != nil {
		<-f.block
	}
	return f.faces, f.err
}

func (f *fakeIngestExtractor) Dim() int { return 4 }

type recordingNotifier struct {
	notes chan models.ImageProcessed
}

func (r *recordingNotifier) PublishImageProcessed(ctx context.Context, note models.ImageProcessed) error {
	r.notes <- note
	return nil
}

func oneDetectedFace() []vision.DetectedFace {
	return []vision.DetectedFace{{
		Box:       models.BoundingBox{X: 1, Y: 1, Width: 10, Height: 10},
		Embedding: []float32{1, 0, 0, 0},
	}}
}

func newTestCoordinator(t *testing.T, store *fakeIngestStore, blobs *fakeBlobs, ex vision.Extractor) (*Coordinator, *recordingNotifier) {
	t.Helper()
	pool := workerpool.New(1, 4, time.Second)
	t.Cleanup(func() { pool.Shutdown(context.Background()) })
	notifier := &recordingNotifier{notes: make(chan models.ImageProcessed, 8)}
	return NewCoordinator(store, blobs, ex, pool, notifier, nil, nil), notifier
}

func waitForNote(t *testing.T, notifier *recordingNotifier) models.ImageProcessed {
	t.Helper()
	select {
	case note := <-notifier.notes:
		return note
	case <-time.After(2 * time.Second):
		t.Fatal("no processed notification arrived")
		return models.ImageProcessed{}
	}
}

func TestIngestUnknownEventWritesNothing(t *testing.T) {
	store := newFakeIngestStore()
	blobs := &fakeBlobs{}
	coord, _ := newTestCoordinator(t, store, blobs, &fakeIngestExtractor{faces: oneDetectedFace()})

	_, err := coord.Ingest(context.Background(), "absent", "a.jpg", []byte("data"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, blobs.puts)
	assert.Equal(t, 0, store.insertCount())
}

func TestIngestBlobFailureWritesNoRow(t *testing.T) {
	store := newFakeIngestStore()
	blobs := &fakeBlobs{putErr: errors.New("connection refused")}
	coord, _ := newTestCoordinator(t, store, blobs, &fakeIngestExtractor{faces: oneDetectedFace()})

	_, err := coord.Ingest(context.Background(), "gala", "a.jpg", []byte("data"))
	assert.ErrorIs(t, err, apperr.ErrStorageFailure)
	assert.Equal(t, 0, store.insertCount())
}

func TestIngestStoresPlaceholderThenFaces(t *testing.T) {
	store := newFakeIngestStore()
	blobs := &fakeBlobs{}
	coord, notifier := newTestCoordinator(t, store, blobs, &fakeIngestExtractor{faces: oneDetectedFace()})

	img, err := coord.Ingest(context.Background(), "gala", "party.JPG", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, "jpg", img.FileExtension)
	assert.NotEmpty(t, img.UUID)
	assert.Equal(t, "http://blobs/images/"+img.UUID+".jpg", img.StorageURL)
	assert.Equal(t, 1, store.insertCount())

	note := waitForNote(t, notifier)
	assert.Equal(t, img.UUID, note.ImageUUID)
	assert.Equal(t, 1, note.FaceCount)
	assert.False(t, note.Failed)

	faces := store.faceSets[img.UUID]
	require.Len(t, faces, 1)
	assert.True(t, faces[0].Label.IsPending())
	assert.Equal(t, store.event.ID, faces[0].EventID)
}

func TestIngestExtractionFailureKeepsImage(t *testing.T) {
	store := newFakeIngestStore()
	blobs := &fakeBlobs{}
	coord, notifier := newTestCoordinator(t, store, blobs,
		&fakeIngestExtractor{err: errors.New("corrupt stream")})

	img, err := coord.Ingest(context.Background(), "gala", "a.png", []byte("data"))
	require.NoError(t, err)

	note := waitForNote(t, notifier)
	assert.True(t, note.Failed)
	assert.Equal(t, 0, note.FaceCount)

	assert.Equal(t, 1, store.insertCount())
	_, ok := store.faceSets[img.UUID]
	assert.False(t, ok, "a failed extraction must not write faces")
}

func TestIngestQueueFullSurfacesBackpressure(t *testing.T) {
	store := newFakeIngestStore()
	blobs := &fakeBlobs{}
	ex := &fakeIngestExtractor{
		faces:   oneDetectedFace(),
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}

	pool := workerpool.New(1, 1, 0)
	notifier := &recordingNotifier{notes: make(chan models.ImageProcessed, 8)}
	coord := NewCoordinator(store, blobs, ex, pool, notifier, nil, nil)

	// First upload occupies the worker; wait until the worker has actually
	// dequeued it so the second upload lands in the queue slot.
	_, err := coord.Ingest(context.Background(), "gala", "a.jpg", []byte("one"))
	require.NoError(t, err)
	select {
	case <-ex.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first extraction never started")
	}

	_, err = coord.Ingest(context.Background(), "gala", "b.jpg", []byte("two"))
	require.NoError(t, err)

	_, err = coord.Ingest(context.Background(), "gala", "c.jpg", []byte("three"))
	assert.ErrorIs(t, err, apperr.ErrQueueFull)

	// The rejected upload's blob and row survive for a later retry.
	assert.Equal(t, 3, store.insertCount())
	assert.Len(t, blobs.puts, 3)

	close(ex.block)
	require.NoError(t, pool.Shutdown(context.Background()))
}

type recordingInvalidator struct {
	mu       sync.Mutex
	eventIDs []int64
}

func (r *recordingInvalidator) InvalidateIndex(eventID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventIDs = append(r.eventIDs, eventID)
}

func TestDeleteImageRemovesBlobRowAndIndex(t *testing.T) {
	store := newFakeIngestStore()
	blobs := &fakeBlobs{}
	ex := &fakeIngestExtractor{faces: oneDetectedFace()}
	pool := workerpool.New(1, 4, time.Second)
	defer pool.Shutdown(context.Background())
	invalidator := &recordingInvalidator{}
	coord := NewCoordinator(store, blobs, ex, pool, nil, nil, invalidator)

	img, err := coord.Ingest(context.Background(), "gala", "a.jpg", []byte("data"))
	require.NoError(t, err)

	require.NoError(t, coord.DeleteImage(context.Background(), img.UUID))
	assert.Equal(t, []string{img.UUID}, store.deleted)
	assert.Equal(t, []string{"images/" + img.UUID + ".jpg"}, blobs.deletes)
	assert.Equal(t, []int64{store.event.ID}, invalidator.eventIDs)
}

func TestDeriveExtension(t *testing.T) {
	cases := []struct {
		filename string
		want     string
	}{
		{"photo.jpg", "jpg"},
		{"IMG_001.JPG", "jpg"},
		{"scan.TIFF", "tiff"},
		{"portrait.png", "png"},
		{"animated.gif", "gif"},
		{"photo.webp", "png"},
		{"archive.tar.gz", "png"},
		{"noext", "png"},
		{"trailing.", "png"},
		{"", "png"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, deriveExtension(tc.filename), "filename %q", tc.filename)
	}
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "image/jpeg", contentTypeFor("jpg"))
	assert.Equal(t, "image/jpeg", contentTypeFor("jpeg"))
	assert.Equal(t, "image/gif", contentTypeFor("gif"))
	assert.Equal(t, "image/bmp", contentTypeFor("bmp"))
	assert.Equal(t, "image/tiff", contentTypeFor("tiff"))
	assert.Equal(t, "image/png", contentTypeFor("png"))
	assert.Equal(t, "image/png", contentTypeFor("webp"))
}
