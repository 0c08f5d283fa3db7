package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"

	"github.com/Tapedynamics/privacyguard/internal/models"
	"github.com/Tapedynamics/privacyguard/internal/observability"
	"github.com/Tapedynamics/privacyguard/internal/provider"
	"github.com/Tapedynamics/privacyguard/internal/queue"
)

// handleIndex registers one named face with the identity collection. The
// external id is set-once: a redelivery that finds it already recorded cleans
// up after itself instead of overwriting. Force (explicit re-index) releases
// the previous id before registering the new one, so the collection never
// accumulates orphans.
func (p *Pipeline) handleIndex(ctx context.Context, job *models.Job) error {
	var payload models.IndexPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("%w: decode index payload: %v", queue.ErrTerminal, err)
	}

	face, err := p.db.GetFace(ctx, payload.FaceID)
	if err != nil {
		return fmt.Errorf("load face: %w", err)
	}
	if face == nil {
		// The face set was replaced by a newer detection run.
		slog.Info("index job for missing face, skipping", "face_id", payload.FaceID)
		return nil
	}
	if face.Name == nil || *face.Name == "" {
		slog.Info("index job for unnamed face, skipping", "face_id", face.ID)
		return nil
	}
	if face.ExternalFaceID != nil && !payload.Force {
		slog.Info("face already indexed, skipping", "face_id", face.ID, "external_face_id", *face.ExternalFaceID)
		return nil
	}

	photo, err := p.db.GetPhoto(ctx, face.PhotoID)
	if err != nil {
		return fmt.Errorf("load photo: %w", err)
	}
	if photo == nil {
		return fmt.Errorf("%w: photo %s not found for face %s", queue.ErrTerminal, face.PhotoID, face.ID)
	}

	data, err := p.objects.GetObject(ctx, photo.StorageKey)
	if err != nil {
		return fmt.Errorf("fetch photo bytes: %w", err)
	}

	crop, err := cropFace(data, face.BBox)
	if err != nil {
		return fmt.Errorf("%w: crop face region: %v", queue.ErrTerminal, err)
	}

	if payload.Force && face.ExternalFaceID != nil {
		if err := p.deindex(ctx, *face.ExternalFaceID); err != nil {
			return fmt.Errorf("release previous external id: %w", err)
		}
	}

	externalID, err := p.faces.Index(ctx, crop, *face.Name)
	if err != nil {
		if provider.IsTransient(err) {
			return fmt.Errorf("index face: %w", err)
		}
		if errors.Is(err, provider.ErrNoFace) {
			return fmt.Errorf("%w: index face %s: %v", queue.ErrTerminal, face.ID, err)
		}
		return fmt.Errorf("%w: index face: %v", queue.ErrTerminal, err)
	}

	updated, err := p.db.SetFaceExternalID(ctx, face.ID, externalID, payload.Force)
	if err != nil {
		return fmt.Errorf("record external face id: %w", err)
	}
	if !updated {
		// Lost the set-once race against a concurrent delivery; drop the
		// id we just registered so it doesn't dangle.
		if derr := p.deindex(ctx, externalID); derr != nil {
			slog.Warn("release redundant external id", "external_face_id", externalID, "error", derr)
		}
		return nil
	}

	observability.FacesIndexed.Inc()
	slog.Info("face indexed", "face_id", face.ID, "external_face_id", externalID)
	p.publishEvent(ctx, &models.PhotoEvent{
		Type:    "face_indexed",
		PhotoID: face.PhotoID,
		FaceID:  &face.ID,
	})
	return nil
}

func (p *Pipeline) deindex(ctx context.Context, externalID string) error {
	d, ok := p.faces.(provider.Deindexer)
	if !ok {
		slog.Warn("provider cannot deindex, leaving external id behind", "external_face_id", externalID)
		return nil
	}
	return d.Deindex(ctx, externalID)
}

// cropFace cuts the bounding-box region out of the image and re-encodes it
// as JPEG for the provider.
func cropFace(imageData []byte, box models.BoundingBox) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	x0, y0, x1, y1 := box.Denormalize(bounds.Dx(), bounds.Dy())
	if x1 <= x0 || y1 <= y0 {
		return nil, fmt.Errorf("bounding box has no area")
	}

	crop := imaging.Crop(img, image.Rect(x0, y0, x1, y1))
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, crop, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	return buf.Bytes(), nil
}
