package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Tapedynamics/privacyguard/internal/models"
	"github.com/Tapedynamics/privacyguard/internal/observability"
	"github.com/Tapedynamics/privacyguard/internal/provider"
	"github.com/Tapedynamics/privacyguard/internal/queue"
)

// handleDetect runs face detection for one photo and persists the resulting
// face set together with the ready transition in a single transaction. The
// handler is idempotent: a redelivery replaces the previous delivery's faces
// instead of appending to them.
func (p *Pipeline) handleDetect(ctx context.Context, job *models.Job) error {
	var payload models.DetectPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("%w: decode detect payload: %v", queue.ErrTerminal, err)
	}

	photo, err := p.db.GetPhoto(ctx, payload.PhotoID)
	if err != nil {
		return fmt.Errorf("load photo: %w", err)
	}
	if photo == nil {
		return fmt.Errorf("%w: photo %s not found", queue.ErrTerminal, payload.PhotoID)
	}

	if err := p.db.UpdatePhotoStatus(ctx, photo.ID, models.PhotoStatusDetecting); err != nil {
		return fmt.Errorf("mark photo detecting: %w", err)
	}

	data, err := p.objects.GetObject(ctx, photo.StorageKey)
	if err != nil {
		return fmt.Errorf("fetch photo bytes: %w", err)
	}

	boxes, err := p.faces.Detect(ctx, data)
	if err != nil {
		if provider.IsTransient(err) {
			return fmt.Errorf("detect faces: %w", err)
		}
		return fmt.Errorf("%w: detect faces: %v", queue.ErrTerminal, err)
	}

	faces := make([]models.Face, 0, len(boxes))
	for _, box := range boxes {
		if err := box.Validate(); err != nil {
			return fmt.Errorf("%w: provider returned invalid bounding box: %v", queue.ErrTerminal, err)
		}
		faces = append(faces, models.Face{
			PhotoID:       photo.ID,
			BBox:          box,
			ConsentStatus: models.ConsentStatusPending,
		})
	}

	if err := p.db.ReplaceFaces(ctx, photo.ID, faces); err != nil {
		return fmt.Errorf("persist face set: %w", err)
	}
	observability.FacesDetected.Add(float64(len(faces)))

	slog.Info("photo detection complete", "photo_id", photo.ID, "faces", len(faces))
	p.publishEvent(ctx, &models.PhotoEvent{
		Type:      "photo_ready",
		PhotoID:   photo.ID,
		Status:    string(models.PhotoStatusReady),
		FaceCount: len(faces),
	})
	return nil
}
