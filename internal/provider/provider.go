package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/Tapedynamics/privacyguard/internal/models"
)

// Match is one candidate identity returned by Match, best first.
type Match struct {
	ExternalFaceID string
	Label          string
	Score          float32
}

// Provider is the external face capability: locate faces in an image, index
// a named face crop into the collection, and match a probe image against the
// collection. All calls may block for a network round-trip; callers must not
// hold data-layer locks across them.
type Provider interface {
	Detect(ctx context.Context, image []byte) ([]models.BoundingBox, error)
	Index(ctx context.Context, crop []byte, label string) (string, error)
	Match(ctx context.Context, probe []byte, limit int) ([]Match, error)
}

// Deindexer is implemented by providers that can remove a previously indexed
// face. Used on explicit re-index so the prior external id is never silently
// orphaned.
type Deindexer interface {
	Deindex(ctx context.Context, externalFaceID string) error
}

// ErrNoFace indicates the provider found no usable face in the input. This
// is a validation-class outcome, never retried.
var ErrNoFace = errors.New("no face found in image")

// transientError marks provider failures worth retrying (throttling,
// timeouts, upstream unavailability).
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Transientf is Transient over a formatted error.
func Transientf(format string, args ...interface{}) error {
	return &transientError{err: fmt.Errorf(format, args...)}
}

// IsTransient reports whether err represents a provider failure that the
// retry policy should re-attempt with backoff.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
