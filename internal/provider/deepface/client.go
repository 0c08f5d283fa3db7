package deepface

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/Tapedynamics/privacyguard/internal/config"
	"github.com/Tapedynamics/privacyguard/internal/provider"
)

// Client talks to a DeepFace-compatible HTTP API.
type Client struct {
	baseURL  string
	model    string
	detector string
	http     *http.Client
}

func NewClient(cfg config.ProviderConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		model:    cfg.Model,
		detector: cfg.Detector,
		http:     &http.Client{Timeout: timeout},
	}
}

// Represent runs detection + embedding extraction for every face in the
// image. Throttling, timeouts and upstream 5xx come back as transient
// errors so the job retry policy can back off.
func (c *Client) Represent(ctx context.Context, image []byte) (*RepresentResponse, error) {
	reqBody := RepresentRequest{
		Img:      base64.StdEncoding.EncodeToString(image),
		Model:    c.model,
		Detector: c.detector,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal represent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/represent", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build represent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, provider.Transientf("represent request timed out: %w", err)
		}
		return nil, provider.Transientf("represent request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Transientf("read represent response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, provider.Transientf("represent throttled (429)")
	case resp.StatusCode >= 500:
		return nil, provider.Transientf("represent upstream error (%d)", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("represent failed (%d): %s", resp.StatusCode, truncate(body, 200))
	}

	var out RepresentResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode represent response: %w", err)
	}
	return &out, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
