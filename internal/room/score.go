package room

import (
	"github.com/shopspring/decimal"
)

// AdjustScore adds delta to a player's score. There is no floor or ceiling.
func (r *Room) AdjustScore(playerID string, delta decimal.Decimal) (decimal.Decimal, error) {
	if err := r.writable(); err != nil {
		return decimal.Zero, err
	}

	p, ok := r.Players[playerID]
	if !ok {
		return decimal.Zero, notFound(ReasonPlayerNotFound)
	}
	if delta.IsZero() {
		return p.Score, errUnchanged
	}

	p.Score = p.Score.Add(delta)
	return p.Score, nil
}

// SetScore overwrites a player's score. Used for host corrections.
func (r *Room) SetScore(playerID string, score decimal.Decimal) error {
	if err := r.writable(); err != nil {
		return err
	}

	p, ok := r.Players[playerID]
	if !ok {
		return notFound(ReasonPlayerNotFound)
	}
	if p.Score.Equal(score) {
		return errUnchanged
	}

	p.Score = score
	return nil
}
