package room

import (
	"context"
	"errors"
)

// Errors a Store reports. Implementations may wrap them.
var (
	ErrNoDocument       = errors.New("room document not found")
	ErrDocumentExists   = errors.New("room document already exists")
	ErrRevisionConflict = errors.New("room document revision conflict")
)

// Snapshot is a room as stored at one revision. Readers must not mutate Room.
type Snapshot struct {
	Room     *Room
	Revision uint64
}

// Store persists room documents and pushes every change to subscribers.
type Store interface {
	// Create inserts a new room, failing with ErrDocumentExists on a code collision.
	Create(ctx context.Context, r *Room) (Snapshot, error)

	// Get returns the latest snapshot or ErrNoDocument.
	Get(ctx context.Context, code string) (Snapshot, error)

	// Apply writes r only if the stored revision still equals revision,
	// otherwise it fails with ErrRevisionConflict.
	Apply(ctx context.Context, code string, revision uint64, r *Room) (Snapshot, error)

	// Subscribe delivers the current snapshot and then one per change until
	// ctx is done, when the channel is closed.
	Subscribe(ctx context.Context, code string) (<-chan Snapshot, error)

	// Query returns every room matched by match.
	Query(ctx context.Context, match func(*Room) bool) ([]Snapshot, error)
}
