package models

import (
	"errors"
	"testing"
)

func TestBoundingBoxValidate(t *testing.T) {
	tests := []struct {
		name    string
		box     BoundingBox
		wantErr bool
	}{
		{"full image", BoundingBox{0, 0, 1, 1}, false},
		{"interior box", BoundingBox{0.25, 0.25, 0.5, 0.5}, false},
		{"touching right edge", BoundingBox{0.5, 0, 0.5, 1}, false},
		{"zero area", BoundingBox{0.5, 0.5, 0, 0}, false},
		{"negative left", BoundingBox{-0.1, 0, 0.5, 0.5}, true},
		{"negative height", BoundingBox{0, 0, 0.5, -0.5}, true},
		{"width above one", BoundingBox{0, 0, 1.1, 0.5}, true},
		{"overflows right", BoundingBox{0.6, 0, 0.5, 0.5}, true},
		{"overflows bottom", BoundingBox{0, 0.6, 0.5, 0.5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.box.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("Validate(%+v) = nil, want error", tt.box)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate(%+v) = %v, want nil", tt.box, err)
			}
			if tt.wantErr && err != nil && !errors.Is(err, ErrInvalidBoundingBox) {
				t.Errorf("error %v does not wrap ErrInvalidBoundingBox", err)
			}
		})
	}
}

func TestBoundingBoxDenormalize(t *testing.T) {
	box := BoundingBox{Left: 0.25, Top: 0.5, Width: 0.5, Height: 0.25}
	x0, y0, x1, y1 := box.Denormalize(200, 100)
	if x0 != 50 || y0 != 50 || x1 != 150 || y1 != 75 {
		t.Errorf("Denormalize = (%d,%d,%d,%d), want (50,50,150,75)", x0, y0, x1, y1)
	}
}

func TestBoundingBoxDenormalizeClamps(t *testing.T) {
	box := BoundingBox{Left: 0.9, Top: 0.9, Width: 0.2, Height: 0.2}
	x0, y0, x1, y1 := box.Denormalize(100, 100)
	if x1 > 100 || y1 > 100 {
		t.Errorf("Denormalize did not clamp: (%d,%d,%d,%d)", x0, y0, x1, y1)
	}
}

func TestParseConsentStatus(t *testing.T) {
	for _, valid := range []string{"pending", "approved", "rejected"} {
		if _, err := ParseConsentStatus(valid); err != nil {
			t.Errorf("ParseConsentStatus(%q) = %v, want nil", valid, err)
		}
	}

	for _, invalid := range []string{"", "maybe", "Approved", "APPROVED"} {
		_, err := ParseConsentStatus(invalid)
		if err == nil {
			t.Errorf("ParseConsentStatus(%q) = nil, want error", invalid)
			continue
		}
		if !errors.Is(err, ErrInvalidConsentStatus) {
			t.Errorf("error %v does not wrap ErrInvalidConsentStatus", err)
		}
	}
}

func TestJobStatusTerminal(t *testing.T) {
	terminal := map[JobStatus]bool{
		JobStatusQueued:         false,
		JobStatusRunning:        false,
		JobStatusFailedRetry:    false,
		JobStatusSucceeded:      true,
		JobStatusFailedTerminal: true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}
