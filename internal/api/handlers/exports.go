package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Tapedynamics/privacyguard/internal/export"
	"github.com/Tapedynamics/privacyguard/internal/models"
	"github.com/Tapedynamics/privacyguard/internal/pipeline"
	"github.com/Tapedynamics/privacyguard/internal/storage"
	"github.com/Tapedynamics/privacyguard/pkg/dto"
)

type ExportHandler struct {
	db       *storage.PostgresStore
	minio    *storage.MinIOStore
	enqueuer *pipeline.Enqueuer
	builder  *export.Builder
}

func NewExportHandler(db *storage.PostgresStore, minio *storage.MinIOStore, enqueuer *pipeline.Enqueuer, builder *export.Builder) *ExportHandler {
	return &ExportHandler{db: db, minio: minio, enqueuer: enqueuer, builder: builder}
}

// Create queues an asynchronous export build. The archive lands in object
// storage; poll Get for completion and the download URL.
func (h *ExportHandler) Create(c *gin.Context) {
	var req dto.CreateExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mode, err := export.ParseMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exportID := uuid.New()
	if err := h.enqueuer.SubmitExport(c.Request.Context(), exportID, string(mode)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, dto.ExportJobResponse{
		ExportID: exportID,
		JobID:    models.ExportJobID(exportID),
		Mode:     string(mode),
		Status:   string(models.JobStatusQueued),
	})
}

// Get reports the state of a queued export build, with a download URL once
// the archive is in object storage.
func (h *ExportHandler) Get(c *gin.Context) {
	exportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid export id"})
		return
	}

	job, err := h.db.GetJob(c.Request.Context(), models.ExportJobID(exportID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "export not found"})
		return
	}

	resp := dto.ExportJobResponse{
		ExportID:  exportID,
		JobID:     job.ID,
		Status:    string(job.Status),
		Error:     job.Error,
		CreatedAt: job.CreatedAt.Format(timeFormat),
		UpdatedAt: job.UpdatedAt.Format(timeFormat),
	}
	var payload models.ExportPayload
	if err := json.Unmarshal(job.Payload, &payload); err == nil {
		resp.Mode = payload.Mode
	}

	if job.Status == models.JobStatusSucceeded {
		url, err := h.minio.PresignedURL(c.Request.Context(), export.ArchiveKey(exportID), urlExpiry)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp.DownloadURL = url
	}

	c.JSON(http.StatusOK, resp)
}

// Download streams an export archive directly in the response, built on the
// fly from current photo and consent state. The zip trailer carries the
// truth: if an entry fails mid-stream the archive still closes cleanly with
// the failure reported in its manifest.
func (h *ExportHandler) Download(mode export.Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		filename := fmt.Sprintf("export-%s.zip", mode)
		c.Header("Content-Type", "application/zip")
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)

		summary, err := h.builder.WriteArchive(c.Request.Context(), c.Writer, mode)
		if err != nil {
			// Headers are gone; all we can do is cut the stream and log.
			if !errors.Is(err, c.Request.Context().Err()) {
				_ = c.Error(err)
			}
			c.Abort()
			return
		}
		slog.Info("export streamed",
			"mode", mode, "included", summary.Included,
			"excluded", summary.Excluded, "failures", len(summary.Failures))
	}
}
