// Package pipeline executes the asynchronous jobs behind the HTTP surface:
// face detection, identity indexing and export builds. Handlers are
// idempotent, so the at-least-once delivery of the queue is safe; failures
// are classified as retryable (redelivered with backoff) or terminal
// (delivery stops, state records the failure).
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Tapedynamics/privacyguard/internal/export"
	"github.com/Tapedynamics/privacyguard/internal/models"
	"github.com/Tapedynamics/privacyguard/internal/observability"
	"github.com/Tapedynamics/privacyguard/internal/provider"
	"github.com/Tapedynamics/privacyguard/internal/queue"
)

// Store is the data-layer surface job handlers need.
type Store interface {
	GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error)
	UpdatePhotoStatus(ctx context.Context, id uuid.UUID, status models.PhotoStatus) error
	ReplaceFaces(ctx context.Context, photoID uuid.UUID, faces []models.Face) error
	GetFace(ctx context.Context, id uuid.UUID) (*models.Face, error)
	SetFaceExternalID(ctx context.Context, id uuid.UUID, externalID string, force bool) (bool, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	MarkJobRunning(ctx context.Context, id string, attempt int) error
	FinishJob(ctx context.Context, id string, status models.JobStatus, errMsg string) error
}

// ObjectStore is the object-storage surface job handlers need.
type ObjectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObjectStream(ctx context.Context, key string, reader io.Reader, contentType string) error
}

// EventPublisher broadcasts lifecycle events for UI consumption.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *models.PhotoEvent) error
}

type Pipeline struct {
	db      Store
	objects ObjectStore
	faces   provider.Provider
	events  EventPublisher
	builder *export.Builder

	maxAttempts int
}

func New(db Store, objects ObjectStore, faces provider.Provider, events EventPublisher, builder *export.Builder, maxAttempts int) *Pipeline {
	return &Pipeline{
		db:          db,
		objects:     objects,
		faces:       faces,
		events:      events,
		builder:     builder,
		maxAttempts: maxAttempts,
	}
}

// HandleMessage is the queue consumer entry point. It decodes the job,
// records the running attempt, dispatches by kind and classifies the result.
// A nil return acknowledges the message; queue.ErrTerminal stops delivery;
// any other error triggers redelivery with backoff.
func (p *Pipeline) HandleMessage(ctx context.Context, msg jetstream.Msg) error {
	var job models.Job
	if err := json.Unmarshal(msg.Data(), &job); err != nil {
		return fmt.Errorf("%w: decode job: %v", queue.ErrTerminal, err)
	}

	delivered := 1
	if meta, err := msg.Metadata(); err == nil {
		delivered = int(meta.NumDelivered)
	}

	// A redelivery of work that already finished (e.g. the ack was lost)
	// must not run again.
	row, err := p.db.GetJob(ctx, job.ID)
	if err != nil {
		// The handlers are idempotent, so running without the check is
		// safe; it just must not fail silently.
		slog.Warn("job status lookup failed, running anyway", "job_id", job.ID, "error", err)
	}
	if row != nil && row.Status == models.JobStatusSucceeded {
		slog.Info("skipping redelivery of succeeded job", "job_id", job.ID)
		return nil
	}

	if err := p.db.MarkJobRunning(ctx, job.ID, delivered); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}

	start := time.Now()
	err = p.dispatch(ctx, &job)
	observability.JobDuration.WithLabelValues(string(job.Kind)).Observe(time.Since(start).Seconds())

	if err == nil {
		if ferr := p.db.FinishJob(ctx, job.ID, models.JobStatusSucceeded, ""); ferr != nil {
			return fmt.Errorf("finish job: %w", ferr)
		}
		observability.JobsProcessed.WithLabelValues(string(job.Kind), "succeeded").Inc()
		return nil
	}

	terminal := errors.Is(err, queue.ErrTerminal)
	if !terminal && delivered >= p.maxAttempts {
		// Retries exhausted: the last failure becomes terminal.
		err = fmt.Errorf("%w: attempts exhausted (%d): %v", queue.ErrTerminal, delivered, err)
		terminal = true
	}

	if terminal {
		p.recordTerminalFailure(ctx, &job, err)
		observability.JobsProcessed.WithLabelValues(string(job.Kind), "failed_terminal").Inc()
		return err
	}

	if ferr := p.db.FinishJob(ctx, job.ID, models.JobStatusFailedRetry, err.Error()); ferr != nil {
		slog.Error("record retryable failure", "job_id", job.ID, "error", ferr)
	}
	observability.JobsProcessed.WithLabelValues(string(job.Kind), "failed_retryable").Inc()
	return err
}

func (p *Pipeline) dispatch(ctx context.Context, job *models.Job) error {
	switch job.Kind {
	case models.JobKindDetect:
		return p.handleDetect(ctx, job)
	case models.JobKindIndex:
		return p.handleIndex(ctx, job)
	case models.JobKindBuildExport:
		return p.handleBuildExport(ctx, job)
	}
	return fmt.Errorf("%w: unknown job kind %q", queue.ErrTerminal, job.Kind)
}

// recordTerminalFailure persists the terminal status and, for detect jobs,
// moves the photo into detection_failed so its state is queryable.
func (p *Pipeline) recordTerminalFailure(ctx context.Context, job *models.Job, cause error) {
	if err := p.db.FinishJob(ctx, job.ID, models.JobStatusFailedTerminal, cause.Error()); err != nil {
		slog.Error("record terminal failure", "job_id", job.ID, "error", err)
	}

	if job.Kind != models.JobKindDetect {
		return
	}
	var payload models.DetectPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return
	}
	if err := p.db.UpdatePhotoStatus(ctx, payload.PhotoID, models.PhotoStatusDetectionFailed); err != nil {
		slog.Error("mark photo detection_failed", "photo_id", payload.PhotoID, "error", err)
		return
	}
	p.publishEvent(ctx, &models.PhotoEvent{
		Type:    "photo_detection_failed",
		PhotoID: payload.PhotoID,
		Status:  string(models.PhotoStatusDetectionFailed),
	})
}

func (p *Pipeline) publishEvent(ctx context.Context, event *models.PhotoEvent) {
	event.Timestamp = time.Now().UTC()
	if err := p.events.PublishEvent(ctx, event); err != nil {
		// Events feed the UI only; losing one never fails the job.
		slog.Warn("publish event", "type", event.Type, "error", err)
	}
}
