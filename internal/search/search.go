// Package search resolves a probe image to the photos a matched identity
// appears in. Only named, explicitly indexed faces are reachable from this
// path; unindexed faces have no external id and therefore cannot match.
package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/Tapedynamics/privacyguard/internal/config"
	"github.com/Tapedynamics/privacyguard/internal/models"
	"github.com/Tapedynamics/privacyguard/internal/provider"
)

type Store interface {
	GetFacesByExternalIDs(ctx context.Context, externalIDs []string) ([]models.Face, error)
	GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error)
}

// Result is one matched photo, carrying the best-scoring face that matched.
type Result struct {
	PhotoID    uuid.UUID `json:"photo_id"`
	StorageKey string    `json:"-"`
	FaceID     uuid.UUID `json:"face_id"`
	Name       string    `json:"name,omitempty"`
	Score      float32   `json:"score"`
}

type Searcher struct {
	db       Store
	provider provider.Provider
	cfg      config.SearchConfig
}

func NewSearcher(db Store, p provider.Provider, cfg config.SearchConfig) *Searcher {
	return &Searcher{db: db, provider: p, cfg: cfg}
}

// Search matches a probe image against the indexed collection and returns
// the distinct photos containing matched faces, best score first. A probe
// matching nothing (including before anything has been indexed) returns
// an empty result, not an error.
func (s *Searcher) Search(ctx context.Context, probe []byte) ([]Result, error) {
	matches, err := s.provider.Match(ctx, probe, s.cfg.Limit)
	if err != nil {
		return nil, fmt.Errorf("match probe: %w", err)
	}
	if len(matches) == 0 {
		return []Result{}, nil
	}

	scores := make(map[string]float32, len(matches))
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ExternalFaceID)
		if m.Score > scores[m.ExternalFaceID] {
			scores[m.ExternalFaceID] = m.Score
		}
	}

	faces, err := s.db.GetFacesByExternalIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve matched faces: %w", err)
	}

	// Deduplicate by photo, keeping the best-scoring face. A person
	// appearing twice in the same photo surfaces it once.
	best := make(map[uuid.UUID]Result)
	for _, face := range faces {
		if face.ExternalFaceID == nil {
			continue
		}
		if s.cfg.ExcludeRejected && face.ConsentStatus == models.ConsentStatusRejected {
			continue
		}
		score := scores[*face.ExternalFaceID]
		cur, ok := best[face.PhotoID]
		if ok && cur.Score >= score {
			continue
		}
		r := Result{PhotoID: face.PhotoID, FaceID: face.ID, Score: score}
		if face.Name != nil {
			r.Name = *face.Name
		}
		best[face.PhotoID] = r
	}

	results := make([]Result, 0, len(best))
	for photoID, r := range best {
		photo, err := s.db.GetPhoto(ctx, photoID)
		if err != nil {
			return nil, fmt.Errorf("resolve photo %s: %w", photoID, err)
		}
		if photo == nil {
			continue
		}
		r.StorageKey = photo.StorageKey
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].PhotoID.String() < results[j].PhotoID.String()
	})
	return results, nil
}
