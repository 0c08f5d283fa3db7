// Package export assembles consent-compliant photo bundles. The builder
// streams one photo at a time into a zip archive, so memory stays bounded
// no matter how many photos an event has accumulated.
package export

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Tapedynamics/privacyguard/internal/config"
	"github.com/Tapedynamics/privacyguard/internal/models"
	"github.com/Tapedynamics/privacyguard/internal/observability"
)

type Mode string

const (
	// ModeApproved includes a photo only when every face on it is approved.
	ModeApproved Mode = "approved"
	// ModePrivacySafe includes every photo, redacting non-approved faces.
	ModePrivacySafe Mode = "privacy-safe"
)

var ErrInvalidMode = errors.New("invalid export mode")

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeApproved, ModePrivacySafe:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

type Store interface {
	ListExportPhotos(ctx context.Context) ([]models.Photo, error)
	ListFaces(ctx context.Context, photoID uuid.UUID) ([]models.Face, error)
}

type ObjectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// EntryFailure records a photo that should have been in the archive but
// couldn't be written. Failures are reported, never silently skipped, so a
// caller can tell an empty-but-complete export from a partial one.
type EntryFailure struct {
	PhotoID uuid.UUID `json:"photo_id"`
	Name    string    `json:"name"`
	Reason  string    `json:"reason"`
}

type Summary struct {
	Mode     Mode           `json:"mode"`
	Included int            `json:"included"`
	Excluded int            `json:"excluded"`
	Failures []EntryFailure `json:"failures,omitempty"`
}

// Complete reports whether every eligible photo made it into the archive.
func (s *Summary) Complete() bool { return len(s.Failures) == 0 }

type Builder struct {
	db      Store
	objects ObjectStore
	cfg     config.ExportConfig
}

func NewBuilder(db Store, objects ObjectStore, cfg config.ExportConfig) *Builder {
	return &Builder{db: db, objects: objects, cfg: cfg}
}

// WriteArchive streams the export for the given mode into w as a zip
// archive, one photo fetched, processed and written at a time. Membership is
// a pure function of the photo/consent state, so re-running with unchanged
// state yields identical membership. A manifest.json entry summarising the
// build (including any per-photo failures) is written last.
func (b *Builder) WriteArchive(ctx context.Context, w io.Writer, mode Mode) (*Summary, error) {
	photos, err := b.db.ListExportPhotos(ctx)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}

	summary := &Summary{Mode: mode}
	zw := zip.NewWriter(w)

	for _, photo := range photos {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		faces, err := b.db.ListFaces(ctx, photo.ID)
		if err != nil {
			return summary, fmt.Errorf("list faces for photo %s: %w", photo.ID, err)
		}

		pending := nonApprovedBoxes(faces)
		if mode == ModeApproved && len(pending) > 0 {
			summary.Excluded++
			continue
		}

		name := entryName(photo)
		data, err := b.objects.GetObject(ctx, photo.StorageKey)
		if err != nil {
			summary.Failures = append(summary.Failures, EntryFailure{
				PhotoID: photo.ID, Name: name, Reason: fmt.Sprintf("fetch: %v", err),
			})
			slog.Warn("export entry fetch failed", "photo_id", photo.ID, "key", photo.StorageKey, "error", err)
			continue
		}

		if mode == ModePrivacySafe && len(pending) > 0 {
			data, err = Redact(data, pending, b.cfg.BlurSigma, b.cfg.JPEGQuality)
			if err != nil {
				summary.Failures = append(summary.Failures, EntryFailure{
					PhotoID: photo.ID, Name: name, Reason: fmt.Sprintf("redact: %v", err),
				})
				slog.Warn("export entry redaction failed", "photo_id", photo.ID, "error", err)
				continue
			}
		}

		entry, err := zw.Create(name)
		if err != nil {
			return summary, fmt.Errorf("create archive entry %s: %w", name, err)
		}
		if _, err := entry.Write(data); err != nil {
			return summary, fmt.Errorf("write archive entry %s: %w", name, err)
		}
		summary.Included++
		observability.ExportEntries.WithLabelValues(string(mode)).Inc()
	}

	if err := writeManifest(zw, summary); err != nil {
		return summary, err
	}
	if err := zw.Close(); err != nil {
		return summary, fmt.Errorf("finalize archive: %w", err)
	}
	return summary, nil
}

// ArchiveKey is the object storage key a built export lands under.
func ArchiveKey(exportID uuid.UUID) string {
	return "exports/" + exportID.String() + ".zip"
}

func writeManifest(zw *zip.Writer, summary *Summary) error {
	entry, err := zw.Create("manifest.json")
	if err != nil {
		return fmt.Errorf("create manifest entry: %w", err)
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if _, err := entry.Write(data); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// nonApprovedBoxes returns the bounding boxes of every face that hasn't
// been approved. A zero-face photo yields none and is trivially eligible.
func nonApprovedBoxes(faces []models.Face) []models.BoundingBox {
	var boxes []models.BoundingBox
	for _, f := range faces {
		if f.ConsentStatus != models.ConsentStatusApproved {
			boxes = append(boxes, f.BBox)
		}
	}
	return boxes
}

// entryName pairs the photo id with the original filename so archive
// entries stay unique and stable across rebuilds.
func entryName(p models.Photo) string {
	return p.ID.String() + "_" + p.Filename
}
