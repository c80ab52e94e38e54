package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePlayer(t *testing.T) {
	r := newTestRoom(t)
	require.NoError(t, r.AddTeam("Red"))
	p, err := r.AddPlayer("p1", "Ann", "Red", fixedCodes("Q1W2"))
	require.NoError(t, err)

	id, err := r.ResolvePlayer(" q1w2 ")
	require.NoError(t, err)
	assert.Equal(t, Identity{
		RoomCode: "ABCDEF",
		PlayerID: p.ID,
		Name:     "Ann",
		Team:     "Red",
		Active:   true,
	}, id)

	_, err = r.ResolvePlayer("ZZZZ")
	requireReason(t, err, ErrNotFound, ReasonInvalidPlayerCode)

	_, err = r.ResolvePlayer("  ")
	requireReason(t, err, ErrNotFound, ReasonInvalidPlayerCode)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "AB12", NormalizeCode("  ab12\n"))
	assert.Empty(t, NormalizeCode(" "))
}

func TestCodeGenerator(t *testing.T) {
	codes, err := NewCodeGenerator()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)

		for range 50 {
			room := codes.Room()
			player := codes.Player()

			assert.Len(t, room, RoomCodeLength)
			assert.Len(t, player, PlayerCodeLength)
			for _, c := range room + player {
				assert.Contains(t, CodeAlphabet, string(c))
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "code generator did not return")
	}
}

func TestShortCodeLengths(t *testing.T) {
	for _, length := range []int{2, 4, 6, 8, 12} {
		next, err := shortCode(length)
		require.NoError(t, err)

		got := make(chan string, 1)
		go func() { got <- next() }()

		select {
		case code := <-got:
			assert.Len(t, code, length)
		case <-time.After(5 * time.Second):
			require.FailNow(t, "no code", "length %d", length)
		}
	}
}
