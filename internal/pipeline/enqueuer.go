package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Tapedynamics/privacyguard/internal/models"
)

// JobStore records job rows keyed by idempotency key.
type JobStore interface {
	EnqueueJob(ctx context.Context, job *models.Job) (bool, error)
	FinishJob(ctx context.Context, id string, status models.JobStatus, errMsg string) error
}

// JobPublisher delivers queued jobs to the worker pool.
type JobPublisher interface {
	PublishJob(ctx context.Context, job *models.Job) error
}

// Enqueuer is the single entry point for submitting asynchronous work. Every
// submission runs through the jobs table first: while a non-terminal job
// exists under the same key the submission is a no-op, so callers can submit
// freely without creating duplicate work.
type Enqueuer struct {
	db    JobStore
	queue JobPublisher
}

func NewEnqueuer(db JobStore, queue JobPublisher) *Enqueuer {
	return &Enqueuer{db: db, queue: queue}
}

// SubmitDetection queues face detection for an uploaded photo.
func (e *Enqueuer) SubmitDetection(ctx context.Context, photoID uuid.UUID, storageKey string) error {
	return e.submit(ctx, models.DetectJobID(photoID), models.JobKindDetect,
		models.DetectPayload{PhotoID: photoID, StorageKey: storageKey})
}

// SubmitIndex queues indexing of a named face. Force re-indexes a face that
// already carries an external id.
func (e *Enqueuer) SubmitIndex(ctx context.Context, faceID uuid.UUID, force bool) error {
	return e.submit(ctx, models.IndexJobID(faceID), models.JobKindIndex,
		models.IndexPayload{FaceID: faceID, Force: force})
}

// SubmitExport queues an export archive build.
func (e *Enqueuer) SubmitExport(ctx context.Context, exportID uuid.UUID, mode string) error {
	return e.submit(ctx, models.ExportJobID(exportID), models.JobKindBuildExport,
		models.ExportPayload{ExportID: exportID, Mode: mode})
}

func (e *Enqueuer) submit(ctx context.Context, id string, kind models.JobKind, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}

	job := &models.Job{ID: id, Kind: kind, Payload: body, Status: models.JobStatusQueued}
	enqueued, err := e.db.EnqueueJob(ctx, job)
	if err != nil {
		return fmt.Errorf("enqueue %s job: %w", kind, err)
	}
	if !enqueued {
		slog.Debug("job already pending, skipping publish", "job_id", id, "kind", kind)
		return nil
	}

	if err := e.queue.PublishJob(ctx, job); err != nil {
		// The row was just inserted as queued but no message exists for it,
		// so it must not keep suppressing later submissions under this key.
		// Marking it terminal re-arms the key for the next submit.
		if ferr := e.db.FinishJob(ctx, id, models.JobStatusFailedTerminal, "publish failed: "+err.Error()); ferr != nil {
			slog.Error("release job key after failed publish", "job_id", id, "error", ferr)
		}
		return fmt.Errorf("publish %s job: %w", kind, err)
	}
	slog.Info("job submitted", "job_id", id, "kind", kind)
	return nil
}
