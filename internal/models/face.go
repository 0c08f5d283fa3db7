package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ConsentStatus string

const (
	ConsentStatusPending  ConsentStatus = "pending"
	ConsentStatusApproved ConsentStatus = "approved"
	ConsentStatusRejected ConsentStatus = "rejected"
)

var ErrInvalidConsentStatus = errors.New("invalid consent status")

// ParseConsentStatus validates a consent status literal. Any of the three
// enumerated values is accepted from any current state; anything else is a
// validation error and is never retried.
func ParseConsentStatus(s string) (ConsentStatus, error) {
	switch ConsentStatus(s) {
	case ConsentStatusPending, ConsentStatusApproved, ConsentStatusRejected:
		return ConsentStatus(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidConsentStatus, s)
}

// BoundingBox is a face region in normalized fractions of the image
// dimensions, so it survives resizing of the underlying image.
type BoundingBox struct {
	Left   float64 `json:"left" db:"bbox_left"`
	Top    float64 `json:"top" db:"bbox_top"`
	Width  float64 `json:"width" db:"bbox_width"`
	Height float64 `json:"height" db:"bbox_height"`
}

var ErrInvalidBoundingBox = errors.New("invalid bounding box")

// Validate enforces left, top, width, height in [0,1] with
// left+width <= 1 and top+height <= 1.
func (b BoundingBox) Validate() error {
	if b.Left < 0 || b.Top < 0 || b.Width < 0 || b.Height < 0 {
		return fmt.Errorf("%w: negative component", ErrInvalidBoundingBox)
	}
	if b.Left > 1 || b.Top > 1 || b.Width > 1 || b.Height > 1 {
		return fmt.Errorf("%w: component above 1", ErrInvalidBoundingBox)
	}
	if b.Left+b.Width > 1 || b.Top+b.Height > 1 {
		return fmt.Errorf("%w: box exceeds image bounds", ErrInvalidBoundingBox)
	}
	return nil
}

// Denormalize maps the box onto pixel coordinates of a w×h image,
// clamped to the image rectangle.
func (b BoundingBox) Denormalize(w, h int) (x0, y0, x1, y1 int) {
	x0 = int(b.Left * float64(w))
	y0 = int(b.Top * float64(h))
	x1 = int((b.Left + b.Width) * float64(w))
	y1 = int((b.Top + b.Height) * float64(h))
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > w {
		x1 = w
	}
	if y1 > h {
		y1 = h
	}
	return x0, y0, x1, y1
}

type Face struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	PhotoID        uuid.UUID     `json:"photo_id" db:"photo_id"`
	BBox           BoundingBox   `json:"bbox"`
	Name           *string       `json:"name,omitempty" db:"name"`
	ConsentStatus  ConsentStatus `json:"consent_status" db:"consent_status"`
	ExternalFaceID *string       `json:"external_face_id,omitempty" db:"external_face_id"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}
