// Package engine implements the embedded record store: in-memory collections
// with background JSON persistence.
package engine

import (
	"errors"

	"github.com/celerix-dev/celerix-staffing/pkg/recordstore"
)

var (
	// ErrNotFound aliases the contract sentinel so callers of the engine can
	// match it with errors.Is without importing recordstore.
	ErrNotFound = recordstore.ErrNotFound
	// ErrMissingID is returned by Restore when the record carries no id.
	ErrMissingID = errors.New("record has no id")
)
