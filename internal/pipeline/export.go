package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/Tapedynamics/privacyguard/internal/export"
	"github.com/Tapedynamics/privacyguard/internal/models"
	"github.com/Tapedynamics/privacyguard/internal/queue"
)

// handleBuildExport streams an export archive straight into object storage
// through a pipe, so the full zip is never held in memory. Rebuilding the
// same export id overwrites the previous archive with identical content as
// long as the photo and consent state hasn't changed.
func (p *Pipeline) handleBuildExport(ctx context.Context, job *models.Job) error {
	var payload models.ExportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("%w: decode export payload: %v", queue.ErrTerminal, err)
	}

	mode, err := export.ParseMode(payload.Mode)
	if err != nil {
		return fmt.Errorf("%w: %v", queue.ErrTerminal, err)
	}

	pr, pw := io.Pipe()
	var summary *export.Summary
	buildErr := make(chan error, 1)
	go func() {
		s, werr := p.builder.WriteArchive(ctx, pw, mode)
		summary = s
		pw.CloseWithError(werr)
		buildErr <- werr
	}()

	key := export.ArchiveKey(payload.ExportID)
	if err := p.objects.PutObjectStream(ctx, key, pr, "application/zip"); err != nil {
		pr.CloseWithError(err)
		<-buildErr
		return fmt.Errorf("upload export archive: %w", err)
	}
	if err := <-buildErr; err != nil {
		return fmt.Errorf("build export archive: %w", err)
	}

	slog.Info("export archive built",
		"export_id", payload.ExportID, "mode", mode, "key", key,
		"included", summary.Included, "excluded", summary.Excluded, "failures", len(summary.Failures))
	p.publishEvent(ctx, &models.PhotoEvent{
		Type:     "export_ready",
		ExportID: &payload.ExportID,
	})
	return nil
}
