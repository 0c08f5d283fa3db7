package deepface

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/google/uuid"

	"github.com/Tapedynamics/privacyguard/internal/config"
	"github.com/Tapedynamics/privacyguard/internal/models"
	"github.com/Tapedynamics/privacyguard/internal/observability"
	"github.com/Tapedynamics/privacyguard/internal/provider"
	"github.com/Tapedynamics/privacyguard/internal/storage"
)

// EmbeddingIndex persists and searches face embeddings for one collection.
// Implemented by storage.PostgresStore on pgvector.
type EmbeddingIndex interface {
	AddFaceEmbedding(ctx context.Context, externalID, collection, label string, embedding []float32) error
	DeleteFaceEmbedding(ctx context.Context, externalID string) error
	SearchFaceEmbeddings(ctx context.Context, collection string, embedding []float32, threshold float64, limit int) ([]storage.EmbeddingMatch, error)
}

// Provider implements provider.Provider against a DeepFace-compatible HTTP
// endpoint for face location and embeddings, with the identity collection
// held in the pgvector-backed embedding index. The collection exists lazily:
// it is just a label on the first indexed row.
type Provider struct {
	client     *Client
	index      EmbeddingIndex
	collection string
	threshold  float64
}

var _ provider.Provider = (*Provider)(nil)
var _ provider.Deindexer = (*Provider)(nil)

func NewProvider(cfg config.ProviderConfig, index EmbeddingIndex, matchThreshold float64) *Provider {
	return &Provider{
		client:     NewClient(cfg),
		index:      index,
		collection: cfg.Collection,
		threshold:  matchThreshold,
	}
}

// Detect returns one normalized bounding box per face found in the image.
func (p *Provider) Detect(ctx context.Context, img []byte) ([]models.BoundingBox, error) {
	start := time.Now()
	defer func() {
		observability.ProviderRequestDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	}()

	cfgImg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("decode image dimensions: %w", err)
	}
	if cfgImg.Width == 0 || cfgImg.Height == 0 {
		return nil, fmt.Errorf("image has zero dimensions")
	}

	resp, err := p.client.Represent(ctx, img)
	if err != nil {
		return nil, err
	}

	boxes := make([]models.BoundingBox, 0, len(resp.Results))
	for _, r := range resp.Results {
		box := models.BoundingBox{
			Left:   float64(r.FacialArea.X) / float64(cfgImg.Width),
			Top:    float64(r.FacialArea.Y) / float64(cfgImg.Height),
			Width:  float64(r.FacialArea.W) / float64(cfgImg.Width),
			Height: float64(r.FacialArea.H) / float64(cfgImg.Height),
		}
		boxes = append(boxes, clampBox(box))
	}
	return boxes, nil
}

// Index extracts the crop's embedding and stores it under a fresh external
// id labelled with the person's name.
func (p *Provider) Index(ctx context.Context, crop []byte, label string) (string, error) {
	start := time.Now()
	defer func() {
		observability.ProviderRequestDuration.WithLabelValues("index").Observe(time.Since(start).Seconds())
	}()

	resp, err := p.client.Represent(ctx, crop)
	if err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", provider.ErrNoFace
	}

	externalID := uuid.New().String()
	if err := p.index.AddFaceEmbedding(ctx, externalID, p.collection, label, resp.Results[0].Embedding); err != nil {
		return "", fmt.Errorf("store embedding: %w", err)
	}
	return externalID, nil
}

// Match embeds the probe and searches the collection. A probe without a
// face, or a collection with nothing indexed yet, yields no matches rather
// than an error.
func (p *Provider) Match(ctx context.Context, probe []byte, limit int) ([]provider.Match, error) {
	start := time.Now()
	defer func() {
		observability.ProviderRequestDuration.WithLabelValues("match").Observe(time.Since(start).Seconds())
	}()

	resp, err := p.client.Represent(ctx, probe)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}

	found, err := p.index.SearchFaceEmbeddings(ctx, p.collection, resp.Results[0].Embedding, p.threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("search embeddings: %w", err)
	}

	matches := make([]provider.Match, 0, len(found))
	for _, m := range found {
		matches = append(matches, provider.Match{
			ExternalFaceID: m.ExternalFaceID,
			Label:          m.Label,
			Score:          m.Score,
		})
	}
	return matches, nil
}

// Deindex removes a previously indexed face from the collection.
func (p *Provider) Deindex(ctx context.Context, externalFaceID string) error {
	return p.index.DeleteFaceEmbedding(ctx, externalFaceID)
}

func clampBox(b models.BoundingBox) models.BoundingBox {
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}
	b.Left = clamp(b.Left)
	b.Top = clamp(b.Top)
	b.Width = clamp(b.Width)
	b.Height = clamp(b.Height)
	if b.Left+b.Width > 1 {
		b.Width = 1 - b.Left
	}
	if b.Top+b.Height > 1 {
		b.Height = 1 - b.Top
	}
	return b
}
