package store

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/Seednode/buzzbox/internal/room"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// FakeKeyValue is an in-memory bucket covering the calls the NATS store makes.
type FakeKeyValue struct {
	jetstream.KeyValue // Embed to satisfy interface

	mu       sync.Mutex
	seq      uint64
	data     map[string]*FakeKeyValueEntry
	watchers map[string][]*FakeKeyWatcher
	trace    []string
}

func NewFakeKeyValue() *FakeKeyValue {
	return &FakeKeyValue{
		data:     make(map[string]*FakeKeyValueEntry),
		watchers: make(map[string][]*FakeKeyWatcher),
	}
}

func (f *FakeKeyValue) put(key string, value []byte) uint64 {
	f.seq++
	e := &FakeKeyValueEntry{key: key, value: value, revision: f.seq}
	f.data[key] = e
	for _, w := range f.watchers[key] {
		w.push(e)
	}
	return f.seq
}

func (f *FakeKeyValue) Create(ctx context.Context, key string, value []byte, opts ...jetstream.KVCreateOpt) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.trace = append(f.trace, "Create")
	if _, ok := f.data[key]; ok {
		return 0, jetstream.ErrKeyExists
	}
	return f.put(key, value), nil
}

func (f *FakeKeyValue) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.trace = append(f.trace, "Update")
	e, ok := f.data[key]
	if !ok || e.revision != revision {
		return 0, jetstream.ErrKeyExists
	}
	return f.put(key, value), nil
}

func (f *FakeKeyValue) Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.trace = append(f.trace, "Get")
	e, ok := f.data[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return e, nil
}

func (f *FakeKeyValue) Keys(ctx context.Context, opts ...jetstream.WatchOpt) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.trace = append(f.trace, "Keys")
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil, jetstream.ErrNoKeysFound
	}
	return keys, nil
}

func (f *FakeKeyValue) Watch(ctx context.Context, key string, opts ...jetstream.WatchOpt) (jetstream.KeyWatcher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.trace = append(f.trace, "Watch")
	w := &FakeKeyWatcher{updates: make(chan jetstream.KeyValueEntry, 64)}
	if e, ok := f.data[key]; ok {
		w.push(e)
	}
	w.push(nil)
	f.watchers[key] = append(f.watchers[key], w)
	return w, nil
}

type FakeKeyWatcher struct {
	jetstream.KeyWatcher

	updates chan jetstream.KeyValueEntry
}

func (w *FakeKeyWatcher) push(e jetstream.KeyValueEntry) {
	select {
	case w.updates <- e:
	default:
	}
}

func (w *FakeKeyWatcher) Updates() <-chan jetstream.KeyValueEntry { return w.updates }
func (w *FakeKeyWatcher) Stop() error                             { return nil }

type FakeKeyValueEntry struct {
	jetstream.KeyValueEntry

	key      string
	value    []byte
	revision uint64
}

func (f *FakeKeyValueEntry) Key() string                     { return f.key }
func (f *FakeKeyValueEntry) Value() []byte                   { return f.value }
func (f *FakeKeyValueEntry) Revision() uint64                { return f.revision }
func (f *FakeKeyValueEntry) Operation() jetstream.KeyValueOp { return jetstream.KeyValuePut }

func newTestNATS(t *testing.T) (*NATS, *FakeKeyValue) {
	t.Helper()

	kv := NewFakeKeyValue()
	return NewNATS(kv, slog.New(slog.NewTextHandler(io.Discard, nil))), kv
}

func TestNATS(t *testing.T) {
	testStoreContract(t, func(t *testing.T) room.Store {
		s, _ := newTestNATS(t)
		return s
	})
}

func TestNATSKeysArePrefixed(t *testing.T) {
	ctx := context.Background()
	s, kv := newTestNATS(t)

	_, err := s.Create(ctx, testRoom("ROOM01", "host"))
	require.NoError(t, err)
	_, err = kv.Create(ctx, "other.key", []byte(`{}`))
	require.NoError(t, err)

	assert.Contains(t, kv.data, "room.ROOM01")

	snaps, err := s.Query(ctx, func(*room.Room) bool { return true })
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "ROOM01", snaps[0].Room.Code)
}

func TestNATSQueryEmptyBucket(t *testing.T) {
	s, _ := newTestNATS(t)

	snaps, err := s.Query(context.Background(), func(*room.Room) bool { return true })
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestServiceOverNATS(t *testing.T) {
	ctx := context.Background()
	s, kv := newTestNATS(t)

	cfg := room.DefaultConfig()
	cfg.TickInterval = 0
	svc, err := room.NewService(cfg, s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer svc.Shutdown()

	r, err := svc.CreateRoom(ctx, "host")
	require.NoError(t, err)
	p, err := svc.AddPlayer(ctx, r.Code, "Ann", "")
	require.NoError(t, err)

	_, _, err = svc.ToggleMain(ctx, r.Code)
	require.NoError(t, err)

	res, err := svc.AttemptBuzz(ctx, r.Code, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rank)

	_, err = svc.AttemptBuzz(ctx, r.Code, p.ID)
	assert.True(t, room.IsBuzzRejected(err))

	assert.Contains(t, kv.trace, "Update")
}
