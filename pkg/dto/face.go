package dto

import (
	"github.com/google/uuid"
)

type BoundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type FaceResponse struct {
	ID             uuid.UUID   `json:"id"`
	PhotoID        uuid.UUID   `json:"photo_id"`
	BBox           BoundingBox `json:"bbox"`
	Name           *string     `json:"name,omitempty"`
	ConsentStatus  string      `json:"consent_status"`
	ExternalFaceID *string     `json:"external_face_id,omitempty"`
	CreatedAt      string      `json:"created_at"`
	UpdatedAt      string      `json:"updated_at"`
}

type RenameFaceRequest struct {
	Name string `json:"name" binding:"required"`
}

type ConsentRequest struct {
	Status string `json:"status" binding:"required"`
}

type IndexFaceRequest struct {
	Force bool `json:"force"`
}
