package storage

import "errors"

// ErrNotFound is returned when a single-row lookup or update targets a row
// that doesn't exist.
var ErrNotFound = errors.New("not found")
