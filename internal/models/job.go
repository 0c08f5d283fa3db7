package models

import (
	"time"

	"github.com/google/uuid"
)

type JobKind string

const (
	JobKindDetect      JobKind = "detect"
	JobKindIndex       JobKind = "index"
	JobKindBuildExport JobKind = "build_export"
)

type JobStatus string

const (
	JobStatusQueued         JobStatus = "queued"
	JobStatusRunning        JobStatus = "running"
	JobStatusSucceeded      JobStatus = "succeeded"
	JobStatusFailedRetry    JobStatus = "failed_retryable"
	JobStatusFailedTerminal JobStatus = "failed_terminal"
)

// Terminal reports whether a job in this status will never run again
// without an explicit re-submission.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailedTerminal
}

// Job is the persisted record of one unit of asynchronous work. The ID is
// the idempotency key: re-enqueueing the same key while a non-terminal job
// exists is a no-op.
type Job struct {
	ID           string    `json:"id" db:"id"`
	Kind         JobKind   `json:"kind" db:"kind"`
	Payload      []byte    `json:"payload" db:"payload"`
	AttemptCount int       `json:"attempt_count" db:"attempt_count"`
	Status       JobStatus `json:"status" db:"status"`
	Error        string    `json:"error,omitempty" db:"error"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// DetectPayload is the detect job body, keyed by photo id.
type DetectPayload struct {
	PhotoID    uuid.UUID `json:"photo_id"`
	StorageKey string    `json:"storage_key"`
}

// IndexPayload is the index job body, keyed by face id. Force re-indexes a
// face that already has an external id instead of no-opping.
type IndexPayload struct {
	FaceID uuid.UUID `json:"face_id"`
	Force  bool      `json:"force,omitempty"`
}

// ExportPayload is the build_export job body.
type ExportPayload struct {
	ExportID uuid.UUID `json:"export_id"`
	Mode     string    `json:"mode"`
}

func DetectJobID(photoID uuid.UUID) string { return "detect-" + photoID.String() }
func IndexJobID(faceID uuid.UUID) string   { return "index-" + faceID.String() }
func ExportJobID(exportID uuid.UUID) string {
	return "export-" + exportID.String()
}
