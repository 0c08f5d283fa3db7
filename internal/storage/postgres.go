package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/Tapedynamics/privacyguard/internal/config"
	"github.com/Tapedynamics/privacyguard/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the schema if it doesn't exist yet. Statements are
// idempotent so every binary can run this at startup.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS photos (
			id UUID PRIMARY KEY,
			filename TEXT NOT NULL,
			storage_key TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL DEFAULT 'uploaded',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS faces (
			id UUID PRIMARY KEY,
			photo_id UUID NOT NULL REFERENCES photos(id) ON DELETE CASCADE,
			bbox_left DOUBLE PRECISION NOT NULL,
			bbox_top DOUBLE PRECISION NOT NULL,
			bbox_width DOUBLE PRECISION NOT NULL,
			bbox_height DOUBLE PRECISION NOT NULL,
			name TEXT,
			consent_status TEXT NOT NULL DEFAULT 'pending',
			external_face_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_faces_photo_id ON faces (photo_id)`,
		`CREATE INDEX IF NOT EXISTS idx_faces_external_id ON faces (external_face_id) WHERE external_face_id IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}',
			attempt_count INT NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'queued',
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status, updated_at)`,
		`CREATE TABLE IF NOT EXISTS face_embeddings (
			external_face_id TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			label TEXT NOT NULL,
			embedding vector(512) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_face_embeddings_collection ON face_embeddings (collection)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// --- Photos ---

func (s *PostgresStore) CreatePhoto(ctx context.Context, p *models.Photo) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = models.PhotoStatusUploaded
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO photos (id, filename, storage_key, status) VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		p.ID, p.Filename, p.StorageKey, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create photo: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error) {
	p := &models.Photo{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, filename, storage_key, status, created_at, updated_at FROM photos WHERE id = $1`, id,
	).Scan(&p.ID, &p.Filename, &p.StorageKey, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get photo: %w", err)
	}
	return p, nil
}

// ListPhotos returns photos newest-first, optionally filtered by status.
func (s *PostgresStore) ListPhotos(ctx context.Context, status *models.PhotoStatus) ([]models.Photo, error) {
	query := `SELECT id, filename, storage_key, status, created_at, updated_at FROM photos`
	args := []interface{}{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	var photos []models.Photo
	for rows.Next() {
		var p models.Photo
		if err := rows.Scan(&p.ID, &p.Filename, &p.StorageKey, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, p)
	}
	return photos, nil
}

// ListExportPhotos returns all photos in a stable order (oldest first, id as
// tiebreak) so repeated exports with unchanged consent state produce
// identical membership and ordering.
func (s *PostgresStore) ListExportPhotos(ctx context.Context) ([]models.Photo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, filename, storage_key, status, created_at, updated_at
		 FROM photos ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list export photos: %w", err)
	}
	defer rows.Close()

	var photos []models.Photo
	for rows.Next() {
		var p models.Photo
		if err := rows.Scan(&p.ID, &p.Filename, &p.StorageKey, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, p)
	}
	return photos, nil
}

func (s *PostgresStore) UpdatePhotoStatus(ctx context.Context, id uuid.UUID, status models.PhotoStatus) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE photos SET status = $1, updated_at = now() WHERE id = $2`,
		status, id)
	return err
}

func (s *PostgresStore) CountFaces(ctx context.Context, photoID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM faces WHERE photo_id = $1`, photoID,
	).Scan(&count)
	return count, err
}

// --- Faces ---

// ReplaceFaces persists a photo's detected face set and the transition to
// ready as a single transaction, replacing any faces left over from an
// earlier delivery of the same detect job. No reader can observe ready with
// a partial face set.
func (s *PostgresStore) ReplaceFaces(ctx context.Context, photoID uuid.UUID, faces []models.Face) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace faces: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM faces WHERE photo_id = $1`, photoID); err != nil {
		return fmt.Errorf("clear faces: %w", err)
	}

	for i := range faces {
		f := &faces[i]
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
		f.PhotoID = photoID
		if f.ConsentStatus == "" {
			f.ConsentStatus = models.ConsentStatusPending
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO faces (id, photo_id, bbox_left, bbox_top, bbox_width, bbox_height, consent_status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			f.ID, f.PhotoID, f.BBox.Left, f.BBox.Top, f.BBox.Width, f.BBox.Height, f.ConsentStatus)
		if err != nil {
			return fmt.Errorf("insert face: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE photos SET status = $1, updated_at = now() WHERE id = $2`,
		models.PhotoStatusReady, photoID); err != nil {
		return fmt.Errorf("mark photo ready: %w", err)
	}

	return tx.Commit(ctx)
}

func scanFace(row pgx.Row, f *models.Face) error {
	return row.Scan(&f.ID, &f.PhotoID,
		&f.BBox.Left, &f.BBox.Top, &f.BBox.Width, &f.BBox.Height,
		&f.Name, &f.ConsentStatus, &f.ExternalFaceID, &f.CreatedAt, &f.UpdatedAt)
}

const faceColumns = `id, photo_id, bbox_left, bbox_top, bbox_width, bbox_height,
	name, consent_status, external_face_id, created_at, updated_at`

func (s *PostgresStore) GetFace(ctx context.Context, id uuid.UUID) (*models.Face, error) {
	f := &models.Face{}
	err := scanFace(s.pool.QueryRow(ctx,
		`SELECT `+faceColumns+` FROM faces WHERE id = $1`, id), f)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get face: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) ListFaces(ctx context.Context, photoID uuid.UUID) ([]models.Face, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+faceColumns+` FROM faces WHERE photo_id = $1 ORDER BY created_at ASC, id ASC`, photoID)
	if err != nil {
		return nil, fmt.Errorf("list faces: %w", err)
	}
	defer rows.Close()

	var faces []models.Face
	for rows.Next() {
		var f models.Face
		if err := scanFace(rows, &f); err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		faces = append(faces, f)
	}
	return faces, nil
}

// RenameFace updates a face's name under a row lock and returns the previous
// name, so the caller can decide whether an index job is due. The row lock
// serializes concurrent edits of the same face.
func (s *PostgresStore) RenameFace(ctx context.Context, id uuid.UUID, name string) (*string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin rename face: %w", err)
	}
	defer tx.Rollback(ctx)

	var prev *string
	err = tx.QueryRow(ctx, `SELECT name FROM faces WHERE id = $1 FOR UPDATE`, id).Scan(&prev)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock face: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE faces SET name = $1, updated_at = now() WHERE id = $2`, name, id); err != nil {
		return nil, fmt.Errorf("rename face: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit rename face: %w", err)
	}
	return prev, nil
}

// UpdateFaceConsent sets the consent status. A single-row UPDATE, so
// concurrent writers serialize on the row without losing updates.
func (s *PostgresStore) UpdateFaceConsent(ctx context.Context, id uuid.UUID, status models.ConsentStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE faces SET consent_status = $1, updated_at = now() WHERE id = $2`,
		status, id)
	if err != nil {
		return fmt.Errorf("update consent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetFaceExternalID records the provider's external id for a face. Without
// force the id is set at most once: a face that already carries one is left
// untouched and false is returned.
func (s *PostgresStore) SetFaceExternalID(ctx context.Context, id uuid.UUID, externalID string, force bool) (bool, error) {
	query := `UPDATE faces SET external_face_id = $1, updated_at = now() WHERE id = $2 AND external_face_id IS NULL`
	if force {
		query = `UPDATE faces SET external_face_id = $1, updated_at = now() WHERE id = $2`
	}
	tag, err := s.pool.Exec(ctx, query, externalID, id)
	if err != nil {
		return false, fmt.Errorf("set external face id: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetFacesByExternalIDs(ctx context.Context, externalIDs []string) ([]models.Face, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+faceColumns+` FROM faces WHERE external_face_id = ANY($1)`, externalIDs)
	if err != nil {
		return nil, fmt.Errorf("get faces by external ids: %w", err)
	}
	defer rows.Close()

	var faces []models.Face
	for rows.Next() {
		var f models.Face
		if err := scanFace(rows, &f); err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		faces = append(faces, f)
	}
	return faces, nil
}

// --- Jobs ---

// EnqueueJob records the job row for an idempotency key. While a non-terminal
// job exists under the same key this is a no-op and false is returned; a key
// whose previous run finished (succeeded or failed terminally) is re-armed.
func (s *PostgresStore) EnqueueJob(ctx context.Context, job *models.Job) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, kind, payload, status)
		 VALUES ($1, $2, $3, 'queued')
		 ON CONFLICT (id) DO UPDATE
		   SET status = 'queued', attempt_count = 0, error = '', payload = EXCLUDED.payload, updated_at = now()
		   WHERE jobs.status IN ('succeeded', 'failed_terminal')`,
		job.ID, job.Kind, job.Payload)
	if err != nil {
		return false, fmt.Errorf("enqueue job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	j := &models.Job{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, kind, payload, attempt_count, status, error, created_at, updated_at FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.Kind, &j.Payload, &j.AttemptCount, &j.Status, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) MarkJobRunning(ctx context.Context, id string, attempt int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'running', attempt_count = $1, updated_at = now() WHERE id = $2`,
		attempt, id)
	return err
}

func (s *PostgresStore) FinishJob(ctx context.Context, id string, status models.JobStatus, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, error = $2, updated_at = now() WHERE id = $3`,
		status, errMsg, id)
	return err
}

// DeleteTerminalJobsBefore garbage-collects jobs that reached a terminal
// state before the cutoff.
func (s *PostgresStore) DeleteTerminalJobsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM jobs WHERE status IN ('succeeded', 'failed_terminal') AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete terminal jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- Face embeddings (identity index backing the provider) ---

type EmbeddingMatch struct {
	ExternalFaceID string  `json:"external_face_id"`
	Label          string  `json:"label"`
	Score          float32 `json:"score"`
}

func (s *PostgresStore) AddFaceEmbedding(ctx context.Context, externalID, collection, label string, embedding []float32) error {
	vec := pgvector.NewVector(embedding)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO face_embeddings (external_face_id, collection, label, embedding)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (external_face_id) DO UPDATE SET label = EXCLUDED.label, embedding = EXCLUDED.embedding`,
		externalID, collection, label, vec)
	if err != nil {
		return fmt.Errorf("add face embedding: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteFaceEmbedding(ctx context.Context, externalID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM face_embeddings WHERE external_face_id = $1`, externalID)
	if err != nil {
		return fmt.Errorf("delete face embedding: %w", err)
	}
	return nil
}

// SearchFaceEmbeddings finds the closest indexed faces for an embedding
// within a collection, best first.
func (s *PostgresStore) SearchFaceEmbeddings(ctx context.Context, collection string, embedding []float32, threshold float64, limit int) ([]EmbeddingMatch, error) {
	if limit <= 0 {
		limit = 10
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.pool.Query(ctx,
		`SELECT external_face_id, label, 1 - (embedding <=> $1) AS score
		 FROM face_embeddings
		 WHERE collection = $2
		   AND 1 - (embedding <=> $1) >= $3
		 ORDER BY embedding <=> $1
		 LIMIT $4`,
		vec, collection, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("search face embeddings: %w", err)
	}
	defer rows.Close()

	var matches []EmbeddingMatch
	for rows.Next() {
		var m EmbeddingMatch
		if err := rows.Scan(&m.ExternalFaceID, &m.Label, &m.Score); err != nil {
			return nil, fmt.Errorf("scan embedding match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}
