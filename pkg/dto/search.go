package dto

import (
	"time"

	"github.com/google/uuid"
)

type SearchResult struct {
	PhotoID  uuid.UUID `json:"photo_id"`
	FaceID   uuid.UUID `json:"face_id"`
	Name     string    `json:"name,omitempty"`
	Score    float32   `json:"score"`
	PhotoURL string    `json:"photo_url,omitempty"`
}

// WSEvent is the lifecycle event pushed to WebSocket clients.
type WSEvent struct {
	Type      string     `json:"type"`
	PhotoID   uuid.UUID  `json:"photo_id"`
	FaceID    *uuid.UUID `json:"face_id,omitempty"`
	ExportID  *uuid.UUID `json:"export_id,omitempty"`
	Status    string     `json:"status,omitempty"`
	FaceCount int        `json:"face_count,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
