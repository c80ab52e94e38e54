// Package store holds the room document stores: in-process memory, NATS
// JetStream key-value and Redis.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/Seednode/buzzbox/internal/room"
)

// Aliases for the errors every store reports.
var (
	ErrNotFound = room.ErrNoDocument
	ErrExists   = room.ErrDocumentExists
	ErrConflict = room.ErrRevisionConflict
)

// SubscriberBuffer is the snapshot backlog kept per subscriber. A slow reader
// skips intermediate snapshots but always receives the latest one.
const SubscriberBuffer = 4

type entry struct {
	room *room.Room
	rev  uint64
	subs map[chan room.Snapshot]struct{}
}

// Memory stores rooms in process.
type Memory struct {
	rooms map[string]*entry
	mu    sync.RWMutex
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		rooms: make(map[string]*entry),
	}
}

func (m *Memory) Create(ctx context.Context, r *room.Room) (room.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rooms[r.Code]; exists {
		return room.Snapshot{}, fmt.Errorf("%w: %s", ErrExists, r.Code)
	}

	e := &entry{
		room: r.Clone(),
		rev:  1,
		subs: make(map[chan room.Snapshot]struct{}),
	}
	m.rooms[r.Code] = e

	return room.Snapshot{Room: e.room.Clone(), Revision: e.rev}, nil
}

func (m *Memory) Get(ctx context.Context, code string) (room.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.rooms[code]
	if !ok {
		return room.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	return room.Snapshot{Room: e.room.Clone(), Revision: e.rev}, nil
}

func (m *Memory) Apply(ctx context.Context, code string, revision uint64, r *room.Room) (room.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.rooms[code]
	if !ok {
		return room.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	if e.rev != revision {
		return room.Snapshot{}, fmt.Errorf("%w: %s at %d, have %d", ErrConflict, code, e.rev, revision)
	}

	e.room = r.Clone()
	e.rev++

	pushed := room.Snapshot{Room: e.room.Clone(), Revision: e.rev}
	for ch := range e.subs {
		offer(ch, pushed)
	}

	return room.Snapshot{Room: e.room.Clone(), Revision: e.rev}, nil
}

func (m *Memory) Subscribe(ctx context.Context, code string) (<-chan room.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.rooms[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
	}

	ch := make(chan room.Snapshot, SubscriberBuffer)
	ch <- room.Snapshot{Room: e.room.Clone(), Revision: e.rev}
	e.subs[ch] = struct{}{}

	go func() {
		<-ctx.Done()

		m.mu.Lock()
		defer m.mu.Unlock()

		delete(e.subs, ch)
		close(ch)
	}()

	return ch, nil
}

func (m *Memory) Query(ctx context.Context, match func(*room.Room) bool) ([]room.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []room.Snapshot
	for _, e := range m.rooms {
		if match(e.room) {
			out = append(out, room.Snapshot{Room: e.room.Clone(), Revision: e.rev})
		}
	}
	return out, nil
}

// offer sends snap without blocking, dropping the oldest queued snapshot
// when the subscriber is behind. Callers must be the only sender on ch.
func offer(ch chan room.Snapshot, snap room.Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}

		select {
		case <-ch:
		default:
		}
	}
}
