package room

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjustScoreRoundTrip(t *testing.T) {
	r := newTestRoom(t)
	p := addPlayers(t, r, "ann")[0]
	half := decimal.RequireFromString("0.5")

	score, err := r.AdjustScore(p.ID, half)
	require.NoError(t, err)
	assert.Equal(t, "0.5", score.String())

	score, err = r.AdjustScore(p.ID, half.Neg())
	require.NoError(t, err)
	assert.True(t, score.IsZero())

	score, err = r.AdjustScore(p.ID, decimal.RequireFromString("-1.5"))
	require.NoError(t, err)
	assert.Equal(t, "-1.5", score.String(), "scores have no floor")
}

func TestAdjustScoreCommutes(t *testing.T) {
	deltas := []decimal.Decimal{
		decimal.RequireFromString("0.5"),
		decimal.RequireFromString("-2"),
		decimal.RequireFromString("0.1"),
	}

	apply := func(order []int) decimal.Decimal {
		r := newTestRoom(t)
		p := addPlayers(t, r, "ann")[0]
		for _, i := range order {
			_, err := r.AdjustScore(p.ID, deltas[i])
			require.NoError(t, err)
		}
		return r.Players[p.ID].Score
	}

	forward := apply([]int{0, 1, 2})
	reverse := apply([]int{2, 1, 0})

	assert.True(t, forward.Equal(reverse), "%s != %s", forward, reverse)
	assert.Equal(t, "-1.4", forward.String())
}

func TestAdjustScoreErrors(t *testing.T) {
	r := newTestRoom(t)
	p := addPlayers(t, r, "ann")[0]

	_, err := r.AdjustScore(p.ID, decimal.Zero)
	assert.ErrorIs(t, err, errUnchanged)

	_, err = r.AdjustScore("nobody", decimal.NewFromInt(1))
	requireReason(t, err, ErrNotFound, ReasonPlayerNotFound)
}

func TestSetScore(t *testing.T) {
	r := newTestRoom(t)
	p := addPlayers(t, r, "ann")[0]
	seven := decimal.NewFromInt(7)

	require.NoError(t, r.SetScore(p.ID, seven))
	assert.True(t, r.Players[p.ID].Score.Equal(seven))
	assert.ErrorIs(t, r.SetScore(p.ID, decimal.RequireFromString("7.0")), errUnchanged)
	requireReason(t, r.SetScore("nobody", seven), ErrNotFound, ReasonPlayerNotFound)
}
