// Package consent implements the per-face name/consent state machine. It is
// connected to indexing only through the JobEmitter interface, so consent
// logic and the indexing worker stay independently testable.
package consent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Tapedynamics/privacyguard/internal/models"
	"github.com/Tapedynamics/privacyguard/internal/storage"
)

var (
	ErrFaceNotFound = errors.New("face not found")
	ErrEmptyName    = errors.New("face name must not be empty")
)

// Store is the data-layer surface the state machine needs. RenameFace and
// UpdateFaceConsent serialize concurrent writers per face row.
type Store interface {
	GetFace(ctx context.Context, id uuid.UUID) (*models.Face, error)
	RenameFace(ctx context.Context, id uuid.UUID, name string) (prevName *string, err error)
	UpdateFaceConsent(ctx context.Context, id uuid.UUID, status models.ConsentStatus) error
}

// JobEmitter submits an index job for a face. Force re-indexes a face that
// already carries an external id.
type JobEmitter interface {
	SubmitIndex(ctx context.Context, faceID uuid.UUID, force bool) error
}

type Service struct {
	store           Store
	jobs            JobEmitter
	reindexOnRename bool
}

func NewService(store Store, jobs JobEmitter, reindexOnRename bool) *Service {
	return &Service{store: store, jobs: jobs, reindexOnRename: reindexOnRename}
}

// Rename assigns a name to a face. The first transition from unnamed to
// named emits exactly one index job. Renaming an already-named face updates
// the name only, unless re-indexing on rename is enabled, in which case a
// forced index job is emitted so the identity collection follows the new
// name.
func (s *Service) Rename(ctx context.Context, faceID uuid.UUID, name string) (*models.Face, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	prev, err := s.store.RenameFace(ctx, faceID, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrFaceNotFound
		}
		return nil, fmt.Errorf("rename face %s: %w", faceID, err)
	}

	firstName := prev == nil || strings.TrimSpace(*prev) == ""
	switch {
	case firstName:
		if err := s.jobs.SubmitIndex(ctx, faceID, false); err != nil {
			return nil, fmt.Errorf("submit index job for face %s: %w", faceID, err)
		}
	case s.reindexOnRename && *prev != name:
		if err := s.jobs.SubmitIndex(ctx, faceID, true); err != nil {
			return nil, fmt.Errorf("submit re-index job for face %s: %w", faceID, err)
		}
		slog.Info("re-index requested on rename", "face_id", faceID)
	}

	face, err := s.store.GetFace(ctx, faceID)
	if err != nil {
		return nil, fmt.Errorf("reload face %s: %w", faceID, err)
	}
	if face == nil {
		return nil, ErrFaceNotFound
	}
	return face, nil
}

// SetConsent transitions a face's consent status. The transition is total:
// any of the three enumerated values is accepted from any current state, so
// approvals stay revocable. Other literals fail validation and are never
// retried. Consent has no indexing side effect; consent and identity are
// orthogonal.
func (s *Service) SetConsent(ctx context.Context, faceID uuid.UUID, status string) (*models.Face, error) {
	parsed, err := models.ParseConsentStatus(status)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateFaceConsent(ctx, faceID, parsed); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrFaceNotFound
		}
		return nil, fmt.Errorf("set consent for face %s: %w", faceID, err)
	}

	face, err := s.store.GetFace(ctx, faceID)
	if err != nil {
		return nil, fmt.Errorf("reload face %s: %w", faceID, err)
	}
	if face == nil {
		return nil, ErrFaceNotFound
	}
	return face, nil
}
