package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/Tapedynamics/privacyguard/internal/models"
)

// Static is a deterministic in-memory Provider. Detect always returns the
// configured boxes, Index hands out sequential external ids and remembers
// the label, and Match returns the configured matches. It backs offline
// tests and local demos without a real face service.
type Static struct {
	mu sync.Mutex

	// Boxes is returned by every Detect call.
	Boxes []models.BoundingBox
	// Matches is returned by every Match call (trimmed to the limit).
	Matches []Match

	// DetectErr, IndexErr and MatchErr, when set, fail the corresponding
	// call. Useful for exercising the retry policy.
	DetectErr error
	IndexErr  error
	MatchErr  error

	indexed map[string]string // external id -> label
	nextID  int

	DetectCalls int
	IndexCalls  int
	MatchCalls  int
}

var _ Provider = (*Static)(nil)
var _ Deindexer = (*Static)(nil)

func (s *Static) Detect(ctx context.Context, image []byte) ([]models.BoundingBox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DetectCalls++
	if s.DetectErr != nil {
		return nil, s.DetectErr
	}
	boxes := make([]models.BoundingBox, len(s.Boxes))
	copy(boxes, s.Boxes)
	return boxes, nil
}

func (s *Static) Index(ctx context.Context, crop []byte, label string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.IndexCalls++
	if s.IndexErr != nil {
		return "", s.IndexErr
	}
	if s.indexed == nil {
		s.indexed = make(map[string]string)
	}
	s.nextID++
	id := fmt.Sprintf("static-face-%d", s.nextID)
	s.indexed[id] = label
	return id, nil
}

func (s *Static) Match(ctx context.Context, probe []byte, limit int) ([]Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MatchCalls++
	if s.MatchErr != nil {
		return nil, s.MatchErr
	}
	matches := make([]Match, len(s.Matches))
	copy(matches, s.Matches)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Static) Deindex(ctx context.Context, externalFaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexed, externalFaceID)
	return nil
}

// Indexed returns the label recorded for an external id, if any.
func (s *Static) Indexed(externalFaceID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	label, ok := s.indexed[externalFaceID]
	return label, ok
}
