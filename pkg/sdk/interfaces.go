package sdk

import (
	"context"

	"github.com/celerix-dev/celerix-staffing/pkg/recordstore"
)

// ErrNotFound is returned when no record matches a lookup, whatever the backend.
var ErrNotFound = recordstore.ErrNotFound

// Backend is a record store opened by Open. Every backend supports Restore so
// that any two can be used as migration source and target.
type Backend interface {
	recordstore.Store
	recordstore.Restorer
	// Close flushes pending writes and releases connections.
	Close() error
}

// Pinger is implemented by backends that live on the other side of a network link.
type Pinger interface {
	Ping(ctx context.Context) error
}
