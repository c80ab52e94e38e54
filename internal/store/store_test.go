package store

import (
	"context"
	"testing"
	"time"

	"github.com/Seednode/buzzbox/internal/room"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2026, 2, 14, 20, 30, 0, 0, time.UTC)

func testRoom(code, host string) *room.Room {
	r := room.New(code, host, 30, created)
	r.Teams = []string{"Red"}
	r.Players["p1"] = &room.Player{
		ID:     "p1",
		Name:   "Ann",
		Team:   "Red",
		Code:   "K7M3",
		Score:  decimal.RequireFromString("1.5"),
		Active: true,
		Order:  1,
	}
	r.PlayerSeq = 1
	return r
}

func nextSnapshot(t *testing.T, ch <-chan room.Snapshot, match func(room.Snapshot) bool) room.Snapshot {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-ch:
			require.True(t, ok, "subscription closed")
			if match(snap) {
				return snap
			}
		case <-timeout:
			require.FailNow(t, "no matching snapshot")
		}
	}
}

// testStoreContract checks the behaviour every room.Store must share.
func testStoreContract(t *testing.T, open func(t *testing.T) room.Store) {
	t.Run("create and get", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		snap, err := s.Create(ctx, testRoom("ROOM01", "host"))
		require.NoError(t, err)
		assert.NotZero(t, snap.Revision)

		got, err := s.Get(ctx, "ROOM01")
		require.NoError(t, err)
		assert.Equal(t, snap.Revision, got.Revision)
		assert.Equal(t, "host", got.Room.HostID)
		assert.Equal(t, room.StateLobby, got.Room.State)
		assert.True(t, got.Room.CreatedAt.Equal(created))
		assert.Equal(t, []string{"Red"}, got.Room.Teams)
		require.Contains(t, got.Room.Players, "p1")
		assert.True(t, got.Room.Players["p1"].Score.Equal(decimal.RequireFromString("1.5")))
		assert.Equal(t, "K7M3", got.Room.Players["p1"].Code)
	})

	t.Run("create collision", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		_, err := s.Create(ctx, testRoom("ROOM01", "host"))
		require.NoError(t, err)

		_, err = s.Create(ctx, testRoom("ROOM01", "other"))
		assert.ErrorIs(t, err, room.ErrDocumentExists)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := open(t).Get(context.Background(), "NOPE42")
		assert.ErrorIs(t, err, room.ErrNoDocument)
	})

	t.Run("apply checks revision", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		snap, err := s.Create(ctx, testRoom("ROOM01", "host"))
		require.NoError(t, err)

		next := snap.Room.Clone()
		next.Timer = 12
		written, err := s.Apply(ctx, "ROOM01", snap.Revision, next)
		require.NoError(t, err)
		assert.Greater(t, written.Revision, snap.Revision)
		assert.Equal(t, 12, written.Room.Timer)

		stale := snap.Room.Clone()
		stale.Timer = 7
		_, err = s.Apply(ctx, "ROOM01", snap.Revision, stale)
		assert.ErrorIs(t, err, room.ErrRevisionConflict)

		got, err := s.Get(ctx, "ROOM01")
		require.NoError(t, err)
		assert.Equal(t, 12, got.Room.Timer)
		assert.Equal(t, written.Revision, got.Revision)
	})

	t.Run("subscribe streams changes", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		s := open(t)

		snap, err := s.Create(ctx, testRoom("ROOM01", "host"))
		require.NoError(t, err)

		ch, err := s.Subscribe(ctx, "ROOM01")
		require.NoError(t, err)

		first := nextSnapshot(t, ch, func(room.Snapshot) bool { return true })
		assert.Equal(t, snap.Revision, first.Revision)

		next := snap.Room.Clone()
		next.State = room.StateBuzzerOpen
		written, err := s.Apply(ctx, "ROOM01", snap.Revision, next)
		require.NoError(t, err)

		got := nextSnapshot(t, ch, func(s room.Snapshot) bool { return s.Revision == written.Revision })
		assert.True(t, got.Room.BuzzerOpen())

		cancel()
		require.Eventually(t, func() bool {
			for {
				select {
				case _, ok := <-ch:
					if !ok {
						return true
					}
				default:
					return false
				}
			}
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("query", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		_, err := s.Create(ctx, testRoom("ROOM01", "alice"))
		require.NoError(t, err)
		_, err = s.Create(ctx, testRoom("ROOM02", "bob"))
		require.NoError(t, err)

		snaps, err := s.Query(ctx, func(r *room.Room) bool { return r.HostID == "alice" })
		require.NoError(t, err)
		require.Len(t, snaps, 1)
		assert.Equal(t, "ROOM01", snaps[0].Room.Code)
		assert.NotZero(t, snaps[0].Revision)
	})
}

func TestOfferKeepsLatest(t *testing.T) {
	ch := make(chan room.Snapshot, 2)

	for rev := uint64(1); rev <= 5; rev++ {
		offer(ch, room.Snapshot{Revision: rev})
	}

	assert.Equal(t, uint64(4), (<-ch).Revision)
	assert.Equal(t, uint64(5), (<-ch).Revision)
}

func TestCodec(t *testing.T) {
	data, err := encode(testRoom("ROOM01", "host"), 9)
	require.NoError(t, err)

	doc, err := decode(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), doc.Revision)
	assert.Equal(t, "ROOM01", doc.Room.Code)

	_, err = decode([]byte(`{"revision":1}`))
	assert.Error(t, err)

	_, err = decode([]byte(`not json`))
	assert.Error(t, err)

	doc, err = decode([]byte(`{"room":{"code":"ROOM02"}}`))
	require.NoError(t, err)
	assert.NotNil(t, doc.Room.Players)
}
