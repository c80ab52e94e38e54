package room

import (
	"time"
)

// RecordBuzz appends a buzz for playerID with the next room sequence number.
// Rejections leave the room untouched.
func (r *Room) RecordBuzz(playerID string, now time.Time) (BuzzEvent, error) {
	if r.State == StateClosed {
		return BuzzEvent{}, precondition(ReasonRoomClosed)
	}

	p, ok := r.Players[playerID]
	if !ok {
		return BuzzEvent{}, notFound(ReasonPlayerNotFound)
	}

	switch {
	case r.Timer <= 0:
		return BuzzEvent{}, precondition(ReasonTimerExpired)
	case !r.BuzzerOpen():
		return BuzzEvent{}, precondition(ReasonBuzzerClosed)
	case !p.Active:
		return BuzzEvent{}, precondition(ReasonPlayerInactive)
	case r.BuzzRank(playerID) > 0:
		return BuzzEvent{}, precondition(ReasonDuplicateBuzz)
	}

	r.BuzzSeq++
	ev := BuzzEvent{
		PlayerID: p.ID,
		Name:     p.Name,
		Team:     p.Team,
		Seq:      r.BuzzSeq,
		At:       now,
	}
	r.Buzzes = append(r.Buzzes, ev)
	return ev, nil
}

// BuzzRank is the 1-based arrival position of playerID in the current window,
// or 0 if the player has not buzzed. Buzzes are kept in sequence order.
func (r *Room) BuzzRank(playerID string) int {
	for i, b := range r.Buzzes {
		if b.PlayerID == playerID {
			return i + 1
		}
	}
	return 0
}

// Winner returns the first buzz of the window.
func (r *Room) Winner() (BuzzEvent, bool) {
	if len(r.Buzzes) == 0 {
		return BuzzEvent{}, false
	}
	return r.Buzzes[0], true
}
