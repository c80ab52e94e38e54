package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordBuzz(t *testing.T) {
	r := newTestRoom(t)
	players := addPlayers(t, r, "ann", "bob", "cat")

	_, err := r.RecordBuzz(players[0].ID, epoch)
	requireReason(t, err, ErrPreconditionFailed, ReasonBuzzerClosed)

	_, err = r.ToggleMain()
	require.NoError(t, err)

	first, err := r.RecordBuzz(players[1].ID, epoch)
	require.NoError(t, err)
	second, err := r.RecordBuzz(players[0].ID, epoch)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, "bob", first.Name)
	assert.Equal(t, UnassignedTeam, first.Team)
	assert.Equal(t, 1, r.BuzzRank(players[1].ID))
	assert.Equal(t, 2, r.BuzzRank(players[0].ID))
	assert.Equal(t, 0, r.BuzzRank(players[2].ID))

	winner, ok := r.Winner()
	require.True(t, ok)
	assert.Equal(t, players[1].ID, winner.PlayerID)

	_, err = r.RecordBuzz(players[1].ID, epoch)
	requireReason(t, err, ErrPreconditionFailed, ReasonDuplicateBuzz)
	assert.Len(t, r.Buzzes, 2)
	assertInvariants(t, r)
}

func TestRecordBuzzRejections(t *testing.T) {
	r := newTestRoom(t)
	players := addPlayers(t, r, "ann", "bob")
	players[1].Active = false

	_, err := r.ToggleMain()
	require.NoError(t, err)

	_, err = r.RecordBuzz(players[1].ID, epoch)
	requireReason(t, err, ErrPreconditionFailed, ReasonPlayerInactive)
	assert.True(t, IsBuzzRejected(err))

	_, err = r.RecordBuzz("nobody", epoch)
	requireReason(t, err, ErrNotFound, ReasonPlayerNotFound)
	assert.False(t, IsBuzzRejected(err))

	r.Timer = 0
	_, err = r.RecordBuzz(players[0].ID, epoch)
	requireReason(t, err, ErrPreconditionFailed, ReasonTimerExpired)

	assert.Empty(t, r.Buzzes)
	assert.Zero(t, r.BuzzSeq)
}

func TestBuzzSeqSurvivesReset(t *testing.T) {
	r := newTestRoom(t)
	players := addPlayers(t, r, "ann")

	_, err := r.ToggleMain()
	require.NoError(t, err)
	_, err = r.RecordBuzz(players[0].ID, epoch)
	require.NoError(t, err)

	_, err = r.ToggleMain()
	require.NoError(t, err)
	_, err = r.ToggleMain()
	require.NoError(t, err)

	ev, err := r.RecordBuzz(players[0].ID, epoch)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), ev.Seq)
	assert.Equal(t, 1, r.BuzzRank(players[0].ID))
}

func TestWinnerEmpty(t *testing.T) {
	_, ok := newTestRoom(t).Winner()
	assert.False(t, ok)
}
