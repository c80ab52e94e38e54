package room

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// errUnchanged marks a transition that leaves the room as it was; nothing is written.
var errUnchanged = errors.New("room unchanged")

type event string

const (
	evOpen     event = "open"
	evReset    event = "reset"
	evExpire   event = "expire"
	evActivate event = "activate"
	evClose    event = "close"
)

// transitions is the complete state table. A missing entry is an illegal move.
var transitions = map[State]map[event]State{
	StateLobby: {
		evOpen:     StateBuzzerOpen,
		evReset:    StateLobby,
		evActivate: StateRoundIdle,
		evClose:    StateClosed,
	},
	StateRoundIdle: {
		evOpen:     StateBuzzerOpen,
		evReset:    StateRoundIdle,
		evActivate: StateRoundIdle,
		evClose:    StateClosed,
	},
	StateBuzzerOpen: {
		evReset:    StateRoundIdle,
		evExpire:   StateRoundIdle,
		evActivate: StateRoundIdle,
		evClose:    StateClosed,
	},
}

func (r *Room) fire(ev event) error {
	next, ok := transitions[r.State][ev]
	if !ok {
		if r.State == StateClosed {
			return precondition(ReasonRoomClosed)
		}
		return fmt.Errorf("%w: no %s transition from %s", ErrPreconditionFailed, ev, r.State)
	}
	r.State = next
	return nil
}

func (r *Room) writable() error {
	if r.State == StateClosed {
		return precondition(ReasonRoomClosed)
	}
	return nil
}

// Toggle is the outcome of the main button.
type Toggle string

const (
	ToggleOpened Toggle = "opened"
	ToggleReset  Toggle = "reset"
)

// ToggleMain resets a dirty room and opens a clean one.
func (r *Room) ToggleMain() (Toggle, error) {
	if err := r.writable(); err != nil {
		return "", err
	}

	if r.Dirty() {
		if err := r.fire(evReset); err != nil {
			return "", err
		}
		r.Timer = r.InitialTimer
		r.Buzzes = []BuzzEvent{}
		return ToggleReset, nil
	}

	if r.Timer <= 0 {
		return "", precondition(ReasonTimerExpired)
	}
	if err := r.fire(evOpen); err != nil {
		return "", err
	}
	return ToggleOpened, nil
}

// Tick counts the timer down by one second while the buzzer is open. The
// buzzer closes in the same step the timer reaches zero.
func (r *Room) Tick() error {
	if r.State != StateBuzzerOpen || r.Timer <= 0 {
		return errUnchanged
	}

	r.Timer--
	if r.Timer == 0 {
		return r.fire(evExpire)
	}
	return nil
}

// ActivateRound recomputes the active set for round id and rearms its timer.
func (r *Room) ActivateRound(id int) error {
	if err := r.writable(); err != nil {
		return err
	}

	rd, ok := r.FindRound(id)
	if !ok {
		return notFound(ReasonRoundNotFound)
	}

	if err := r.fire(evActivate); err != nil {
		return err
	}
	r.applyCutoff(rd.Qualifiers)
	r.Round = rd.ID
	r.Timer = rd.Timer
	r.InitialTimer = rd.Timer
	r.Buzzes = []BuzzEvent{}
	return nil
}

// AddRound appends the next sequential round.
func (r *Room) AddRound(timer, qualifiers int) (Round, error) {
	if err := r.writable(); err != nil {
		return Round{}, err
	}
	if err := validateRound(timer, qualifiers); err != nil {
		return Round{}, err
	}

	id := 1
	for _, rd := range r.Rounds {
		id = max(id, rd.ID+1)
	}

	rd := Round{ID: id, Label: roundLabel(id), Timer: timer, Qualifiers: qualifiers}
	r.Rounds = append(r.Rounds, rd)
	return rd, nil
}

// EditRound changes a round's parameters. The running round keeps its timer
// and active set until it is activated again.
func (r *Room) EditRound(id, timer, qualifiers int) error {
	if err := r.writable(); err != nil {
		return err
	}
	if err := validateRound(timer, qualifiers); err != nil {
		return err
	}

	for i := range r.Rounds {
		if r.Rounds[i].ID == id {
			if r.Rounds[i].Timer == timer && r.Rounds[i].Qualifiers == qualifiers {
				return errUnchanged
			}
			r.Rounds[i].Timer = timer
			r.Rounds[i].Qualifiers = qualifiers
			return nil
		}
	}
	return notFound(ReasonRoundNotFound)
}

// AddTeam inserts a team name. Adding an existing name is a no-op.
func (r *Room) AddTeam(name string) error {
	if err := r.writable(); err != nil {
		return err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return validation(ReasonEmptyName)
	}
	if r.hasTeam(name) {
		return errUnchanged
	}

	r.Teams = append(r.Teams, name)
	return nil
}

// AddPlayer creates an active player with a zero score and a join code unique
// within the room.
func (r *Room) AddPlayer(id, name, team string, nextCode func() string) (*Player, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validation(ReasonEmptyName)
	}

	team = strings.TrimSpace(team)
	switch {
	case team == "" || team == UnassignedTeam:
		team = UnassignedTeam
	case !r.hasTeam(team):
		return nil, validation(ReasonUnknownTeam)
	}

	code, err := r.uniquePlayerCode(nextCode)
	if err != nil {
		return nil, err
	}

	r.PlayerSeq++
	p := &Player{
		ID:     id,
		Name:   name,
		Team:   team,
		Code:   code,
		Active: true,
		Order:  r.PlayerSeq,
	}
	r.Players[id] = p
	return p, nil
}

// ResetBuzzes clears the buzz list, leaving the timer and buzzer alone.
func (r *Room) ResetBuzzes() error {
	if err := r.writable(); err != nil {
		return err
	}
	if len(r.Buzzes) == 0 {
		return errUnchanged
	}
	r.Buzzes = []BuzzEvent{}
	return nil
}

// Close ends the game. Closing twice is a no-op.
func (r *Room) Close() error {
	if r.State == StateClosed {
		return errUnchanged
	}
	return r.fire(evClose)
}

func (r *Room) hasTeam(name string) bool {
	for _, t := range r.Teams {
		if t == name {
			return true
		}
	}
	return false
}

func validateRound(timer, qualifiers int) error {
	if timer < 1 || timer > MaxTimer {
		return validation(ReasonInvalidTimer)
	}
	if qualifiers < 1 {
		return validation(ReasonInvalidQualifiers)
	}
	return nil
}

func roundLabel(id int) string {
	return "Round " + strconv.Itoa(id)
}
