package dto

import (
	"github.com/google/uuid"
)

type CreateExportRequest struct {
	Mode string `json:"mode" binding:"required"`
}

type ExportJobResponse struct {
	ExportID    uuid.UUID `json:"export_id"`
	JobID       string    `json:"job_id"`
	Mode        string    `json:"mode,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	DownloadURL string    `json:"download_url,omitempty"`
	CreatedAt   string    `json:"created_at,omitempty"`
	UpdatedAt   string    `json:"updated_at,omitempty"`
}
