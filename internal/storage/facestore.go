package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facepool/internal/apperr"
	"github.com/your-org/facepool/internal/models"
)

// Metric selects the pgvector distance operator used for nearest-neighbor
// ordering. Lower distance means more similar for all three.
type Metric string

const (
	MetricCosine       Metric = "cosine"
	MetricL2           Metric = "l2"
	MetricInnerProduct Metric = "inner_product"
)

// Operator returns the pgvector operator for the metric. The inner-product
// operator yields the negated inner product, so ascending order still ranks
// most-similar first.
func (m Metric) Operator() (string, error) {
	switch m {
	case MetricCosine:
		return "<=>", nil
	case MetricL2:
		return "<->", nil
	case MetricInnerProduct:
		return "<#>", nil
	default:
		return "", fmt.Errorf("metric %q: %w", string(m), apperr.ErrInvalidInput)
	}
}

// ImageFilter narrows ListImages. Nil fields are not applied.
type ImageFilter struct {
	DateFrom   *time.Time
	DateTo     *time.Time
	MinFaces   *int
	MaxFaces   *int
	ClusterIDs []int
	Limit      int
	Offset     int
}

// --- Images ---

// InsertImage persists an image placeholder with face count zero. Inserts
// with an already-known uuid are ignored, so redelivered uploads are
// idempotent; the returned image carries the row id either way.
func (s *PostgresStore) InsertImage(ctx context.Context, img *models.Image) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO images (event_id, uuid, storage_url, file_extension, face_count, created_at, last_modified)
		 VALUES ($1, $2, $3, $4, 0, $5, $6)
		 ON CONFLICT (uuid) DO NOTHING
		 RETURNING id`,
		img.EventID, img.UUID, img.StorageURL, img.FileExtension, img.CreatedAt, img.LastModified,
	).Scan(&img.ID)
	if err == pgx.ErrNoRows {
		// Duplicate uuid: fetch the existing row id.
		return s.pool.QueryRow(ctx,
			`SELECT id FROM images WHERE uuid = $1`, img.UUID,
		).Scan(&img.ID)
	}
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetImage(ctx context.Context, uuid string) (*models.Image, error) {
	img := &models.Image{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, event_id, uuid, storage_url, file_extension, face_count, created_at, last_modified
		 FROM images WHERE uuid = $1`, uuid,
	).Scan(&img.ID, &img.EventID, &img.UUID, &img.StorageURL, &img.FileExtension,
		&img.FaceCount, &img.CreatedAt, &img.LastModified)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("image %q: %w", uuid, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("get image: %w", err)
	}
	return img, nil
}

// ListImages returns a filtered, paginated page of an event's images ordered
// by last_modified descending.
func (s *PostgresStore) ListImages(ctx context.Context, eventID int64, f ImageFilter) ([]models.Image, error) {
	query := `SELECT DISTINCT i.id, i.event_id, i.uuid, i.storage_url, i.file_extension,
		i.face_count, i.created_at, i.last_modified FROM images i`
	where := ` WHERE i.event_id = $1`
	args := []interface{}{eventID}
	argIdx := 2

	if len(f.ClusterIDs) > 0 {
		query += ` JOIN faces fc ON fc.image_id = i.id`
		where += fmt.Sprintf(` AND fc.cluster_id = ANY($%d)`, argIdx)
		args = append(args, f.ClusterIDs)
		argIdx++
	}
	if f.DateFrom != nil {
		where += fmt.Sprintf(` AND i.created_at >= $%d`, argIdx)
		args = append(args, *f.DateFrom)
		argIdx++
	}
	if f.DateTo != nil {
		where += fmt.Sprintf(` AND i.created_at <= $%d`, argIdx)
		args = append(args, *f.DateTo)
		argIdx++
	}
	if f.MinFaces != nil {
		where += fmt.Sprintf(` AND i.face_count >= $%d`, argIdx)
		args = append(args, *f.MinFaces)
		argIdx++
	}
	if f.MaxFaces != nil {
		where += fmt.Sprintf(` AND i.face_count <= $%d`, argIdx)
		args = append(args, *f.MaxFaces)
		argIdx++
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	query += where + fmt.Sprintf(` ORDER BY i.last_modified DESC LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var images []models.Image
	for rows.Next() {
		var img models.Image
		if err := rows.Scan(&img.ID, &img.EventID, &img.UUID, &img.StorageURL,
			&img.FileExtension, &img.FaceCount, &img.CreatedAt, &img.LastModified); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// DeleteImage removes an image row; its faces cascade.
func (s *PostgresStore) DeleteImage(ctx context.Context, uuid string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM images WHERE uuid = $1`, uuid)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("image %q: %w", uuid, apperr.ErrNotFound)
	}
	return nil
}

// --- Faces ---

// SetImageFaces records the outcome of detection for one image: the face
// count plus one row per face, all inside one transaction so a crash cannot
// leave an image with a partial face set. Re-running for the same image
// replaces earlier rows.
func (s *PostgresStore) SetImageFaces(ctx context.Context, img *models.Image, faces []models.Face) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE images SET face_count = $1, last_modified = NOW() WHERE id = $2`,
		len(faces), img.ID); err != nil {
		return fmt.Errorf("update face count: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM faces WHERE image_id = $1`, img.ID); err != nil {
		return fmt.Errorf("clear previous faces: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range faces {
		f := &faces[i]
		if err := f.Box.Validate(); err != nil {
			return fmt.Errorf("face %d: %w", i, err)
		}
		if len(f.Embedding) != s.dim {
			return fmt.Errorf("face %d: embedding has %d dims, store expects %d", i, len(f.Embedding), s.dim)
		}
		bbox, err := json.Marshal(f.Box)
		if err != nil {
			return fmt.Errorf("marshal bbox: %w", err)
		}
		batch.Queue(
			`INSERT INTO faces (event_id, image_id, bbox, embedding, cluster_id)
			 VALUES ($1, $2, $3, $4, $5)`,
			img.EventID, img.ID, bbox, pgvector.NewVector(f.Embedding), f.Label.ToStored(),
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert faces: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit faces: %w", err)
	}
	img.FaceCount = len(faces)
	return nil
}

// ImageFaces returns the faces of one image, without embeddings.
func (s *PostgresStore) ImageFaces(ctx context.Context, imageID int64) ([]models.Face, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_id, image_id, bbox, cluster_id, created_at
		 FROM faces WHERE image_id = $1 ORDER BY id`, imageID)
	if err != nil {
		return nil, fmt.Errorf("image faces: %w", err)
	}
	defer rows.Close()

	var faces []models.Face
	for rows.Next() {
		f, err := scanFace(rows)
		if err != nil {
			return nil, err
		}
		faces = append(faces, *f)
	}
	return faces, rows.Err()
}

func scanFace(rows pgx.Rows) (*models.Face, error) {
	var (
		f      models.Face
		bbox   []byte
		stored int
	)
	if err := rows.Scan(&f.ID, &f.EventID, &f.ImageID, &bbox, &stored, &f.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan face: %w", err)
	}
	if err := json.Unmarshal(bbox, &f.Box); err != nil {
		return nil, fmt.Errorf("decode bbox: %w", err)
	}
	label, err := models.LabelFromStored(stored)
	if err != nil {
		return nil, err
	}
	f.Label = label
	return &f, nil
}

// EventEmbeddings fetches every face embedding of an event, in stable id
// order, for clustering.
func (s *PostgresStore) EventEmbeddings(ctx context.Context, eventID int64) ([]int64, [][]float32, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, embedding FROM faces WHERE event_id = $1 ORDER BY id`, eventID)
	if err != nil {
		return nil, nil, fmt.Errorf("event embeddings: %w", err)
	}
	defer rows.Close()

	var (
		ids  []int64
		embs [][]float32
	)
	for rows.Next() {
		var (
			id  int64
			vec pgvector.Vector
		)
		if err := rows.Scan(&id, &vec); err != nil {
			return nil, nil, fmt.Errorf("scan embedding: %w", err)
		}
		ids = append(ids, id)
		embs = append(embs, vec.Slice())
	}
	return ids, embs, rows.Err()
}

// HasPendingFaces reports whether any of the event's faces still carry the
// pending label.
func (s *PostgresStore) HasPendingFaces(ctx context.Context, eventID int64) (bool, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM faces WHERE event_id = $1 AND cluster_id = $2`,
		eventID, models.StoredPending,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count pending faces: %w", err)
	}
	return count > 0, nil
}

func (s *PostgresStore) CountFaces(ctx context.Context, eventID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM faces WHERE event_id = $1`, eventID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count faces: %w", err)
	}
	return count, nil
}

// BulkUpdateLabels persists one label per face id in a single batched
// statement. len(faceIDs) must equal len(labels).
func (s *PostgresStore) BulkUpdateLabels(ctx context.Context, eventID int64, faceIDs []int64, labels []models.ClusterLabel) error {
	if len(faceIDs) != len(labels) {
		return fmt.Errorf("bulk update: %d face ids but %d labels", len(faceIDs), len(labels))
	}
	if len(faceIDs) == 0 {
		return nil
	}

	stored := make([]int, len(labels))
	for i, l := range labels {
		stored[i] = l.ToStored()
	}

	_, err := s.pool.Exec(ctx,
		`UPDATE faces SET cluster_id = u.label
		 FROM unnest($1::bigint[], $2::int[]) AS u(face_id, label)
		 WHERE faces.id = u.face_id AND faces.event_id = $3`,
		faceIDs, stored, eventID)
	if err != nil {
		return fmt.Errorf("bulk update labels: %w", err)
	}
	return nil
}

// --- Nearest neighbors ---

// NearestFaces returns the event's top-k faces closest to the query
// embedding, ordered ascending by distance. Exhaustive pgvector scan; the
// approximate index (hnsw.go) is layered on top by the search service.
func (s *PostgresStore) NearestFaces(ctx context.Context, eventID int64, embedding []float32, metric Metric, k int) ([]models.FaceMatch, error) {
	op, err := metric.Operator()
	if err != nil {
		return nil, err
	}
	if len(embedding) != s.dim {
		return nil, fmt.Errorf("query embedding has %d dims, store expects %d: %w",
			len(embedding), s.dim, apperr.ErrInvalidInput)
	}

	query := fmt.Sprintf(
		`SELECT f.id, i.uuid, i.storage_url, f.cluster_id, f.bbox, f.embedding %s $1 AS distance
		 FROM faces f
		 JOIN images i ON i.id = f.image_id
		 WHERE f.event_id = $2
		 ORDER BY distance ASC
		 LIMIT $3`, op)

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(embedding), eventID, k)
	if err != nil {
		return nil, fmt.Errorf("nearest faces: %w", err)
	}
	defer rows.Close()

	var matches []models.FaceMatch
	for rows.Next() {
		var (
			m      models.FaceMatch
			bbox   []byte
			stored int
		)
		if err := rows.Scan(&m.FaceID, &m.ImageUUID, &m.StorageURL, &stored, &bbox, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		if err := json.Unmarshal(bbox, &m.Box); err != nil {
			return nil, fmt.Errorf("decode bbox: %w", err)
		}
		label, err := models.LabelFromStored(stored)
		if err != nil {
			return nil, err
		}
		m.Label = label
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// FaceMatchesByIDs hydrates match metadata for faces found through the
// in-memory index. Distances are left zero for the caller to fill; results
// come back keyed by face id.
func (s *PostgresStore) FaceMatchesByIDs(ctx context.Context, eventID int64, faceIDs []int64) (map[int64]models.FaceMatch, error) {
	if len(faceIDs) == 0 {
		return map[int64]models.FaceMatch{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT f.id, i.uuid, i.storage_url, f.cluster_id, f.bbox
		 FROM faces f
		 JOIN images i ON i.id = f.image_id
		 WHERE f.event_id = $1 AND f.id = ANY($2)`, eventID, faceIDs)
	if err != nil {
		return nil, fmt.Errorf("face matches by ids: %w", err)
	}
	defer rows.Close()

	matches := make(map[int64]models.FaceMatch, len(faceIDs))
	for rows.Next() {
		var (
			m      models.FaceMatch
			bbox   []byte
			stored int
		)
		if err := rows.Scan(&m.FaceID, &m.ImageUUID, &m.StorageURL, &stored, &bbox); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		if err := json.Unmarshal(bbox, &m.Box); err != nil {
			return nil, fmt.Errorf("decode bbox: %w", err)
		}
		label, err := models.LabelFromStored(stored)
		if err != nil {
			return nil, err
		}
		m.Label = label
		matches[m.FaceID] = m
	}
	return matches, rows.Err()
}

// --- Cluster summaries ---

// ClusterSummaries aggregates per-cluster face counts with up to sampleSize
// random representative faces each. Pending and noise groups are included.
func (s *PostgresStore) ClusterSummaries(ctx context.Context, eventID int64, sampleSize int) ([]models.ClusterSummary, error) {
	if sampleSize <= 0 {
		sampleSize = 3
	}

	rows, err := s.pool.Query(ctx, `
		WITH summary AS (
			SELECT cluster_id, COUNT(*) AS face_count
			FROM faces
			WHERE event_id = $1
			GROUP BY cluster_id
		)
		SELECT s.cluster_id, s.face_count, subs.id, i.uuid, i.storage_url, subs.bbox
		FROM summary s
		CROSS JOIN LATERAL (
			SELECT id, bbox, image_id
			FROM faces
			WHERE event_id = $1 AND cluster_id = s.cluster_id
			ORDER BY RANDOM()
			LIMIT $2
		) AS subs
		JOIN images i ON i.id = subs.image_id
		ORDER BY s.cluster_id`, eventID, sampleSize)
	if err != nil {
		return nil, fmt.Errorf("cluster summaries: %w", err)
	}
	defer rows.Close()

	var (
		summaries []models.ClusterSummary
		current   *models.ClusterSummary
		lastID    = models.StoredPending - 1 // sentinel below any valid label
	)
	for rows.Next() {
		var (
			stored, count int
			sample        models.FaceSample
			bbox          []byte
		)
		if err := rows.Scan(&stored, &count, &sample.FaceID, &sample.ImageUUID,
			&sample.StorageURL, &bbox); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		if err := json.Unmarshal(bbox, &sample.Box); err != nil {
			return nil, fmt.Errorf("decode bbox: %w", err)
		}

		if current == nil || stored != lastID {
			label, err := models.LabelFromStored(stored)
			if err != nil {
				return nil, err
			}
			summaries = append(summaries, models.ClusterSummary{Label: label, FaceCount: count})
			current = &summaries[len(summaries)-1]
			lastID = stored
		}
		current.Samples = append(current.Samples, sample)
	}
	return summaries, rows.Err()
}
