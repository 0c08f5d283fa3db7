package dto

import (
	"github.com/google/uuid"
)

type PhotoResponse struct {
	ID        uuid.UUID `json:"id"`
	Filename  string    `json:"filename"`
	Status    string    `json:"status"`
	FaceCount int       `json:"face_count"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

type PhotoDetailResponse struct {
	PhotoResponse
	Faces []FaceResponse `json:"faces"`
}

type PhotoURLResponse struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in"`
}
