package models

import (
	"time"

	"github.com/google/uuid"
)

type PhotoStatus string

const (
	PhotoStatusUploaded        PhotoStatus = "uploaded"
	PhotoStatusDetecting       PhotoStatus = "detecting"
	PhotoStatusReady           PhotoStatus = "ready"
	PhotoStatusDetectionFailed PhotoStatus = "detection_failed"
)

type Photo struct {
	ID         uuid.UUID   `json:"id" db:"id"`
	Filename   string      `json:"filename" db:"filename"`
	StorageKey string      `json:"storage_key" db:"storage_key"`
	Status     PhotoStatus `json:"status" db:"status"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}

// PhotoEvent is published to the EVENTS stream when a photo changes state,
// and broadcast to admin UI clients over WebSocket.
type PhotoEvent struct {
	Type      string    `json:"type"` // photo_ready, photo_detection_failed, face_indexed, export_ready
	PhotoID   uuid.UUID `json:"photo_id"`
	FaceID    *uuid.UUID `json:"face_id,omitempty"`
	ExportID  *uuid.UUID `json:"export_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	FaceCount int       `json:"face_count,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
