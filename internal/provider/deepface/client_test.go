package deepface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Tapedynamics/privacyguard/internal/config"
	"github.com/Tapedynamics/privacyguard/internal/provider"
)

func newTestClient(url string) *Client {
	return NewClient(config.ProviderConfig{
		BaseURL:  url,
		Model:    "Facenet512",
		Detector: "retinaface",
	})
}

func TestRepresentDecodesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/represent" {
			t.Errorf("path = %s, want /represent", r.URL.Path)
		}
		var req RepresentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "Facenet512" {
			t.Errorf("model = %s, want Facenet512", req.Model)
		}

		resp := RepresentResponse{Results: []RepresentResult{{
			Embedding: []float32{0.1, 0.2, 0.3},
		}}}
		resp.Results[0].FacialArea.X = 10
		resp.Results[0].FacialArea.Y = 20
		resp.Results[0].FacialArea.W = 30
		resp.Results[0].FacialArea.H = 40
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	out, err := newTestClient(srv.URL).Represent(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Represent: %v", err)
	}
	if len(out.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(out.Results))
	}
	if out.Results[0].FacialArea.W != 30 {
		t.Errorf("facial area w = %d, want 30", out.Results[0].FacialArea.W)
	}
	if len(out.Results[0].Embedding) != 3 {
		t.Errorf("embedding length = %d, want 3", len(out.Results[0].Embedding))
	}
}

func TestRepresentErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"throttled", http.StatusTooManyRequests, true},
		{"upstream error", http.StatusBadGateway, true},
		{"internal error", http.StatusInternalServerError, true},
		{"bad request", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Represent(context.Background(), []byte("img"))
			if err == nil {
				t.Fatalf("status %d produced no error", tt.status)
			}
			if got := provider.IsTransient(err); got != tt.transient {
				t.Errorf("IsTransient = %v for status %d, want %v", got, tt.status, tt.transient)
			}
		})
	}
}

func TestRepresentConnectionErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	_, err := newTestClient(srv.URL).Represent(context.Background(), []byte("img"))
	if err == nil {
		t.Fatal("expected a connection error")
	}
	if !provider.IsTransient(err) {
		t.Errorf("connection failure not transient: %v", err)
	}
}
