/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package room holds the authoritative game room model and the state machine
// that mutates it: buzzer window, round timer, qualifier cutoffs and scores.
package room

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// State is the explicit lifecycle state of a room.
type State string

const (
	StateLobby      State = "lobby"
	StateRoundIdle  State = "round_idle"
	StateBuzzerOpen State = "buzzer_open"
	StateClosed     State = "closed"
)

// Status is the coarse lifecycle status shown to readers.
type Status string

const (
	StatusLobby  Status = "lobby"
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

const (
	// UnassignedTeam is the team of a player added without one.
	UnassignedTeam = "Unassigned"

	// NoCutoff is a qualifier count larger than any room, keeping every player active.
	NoCutoff = 1<<31 - 1

	// MaxTimer bounds a round timer, in seconds.
	MaxTimer = 3600
)

// Round is one configured phase of a game.
type Round struct {
	ID         int    `json:"id"`
	Label      string `json:"label"`
	Timer      int    `json:"timer"`
	Qualifiers int    `json:"qualifiers"`
}

// Player is a contestant. Order records creation order and breaks score ties.
type Player struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Team   string          `json:"team"`
	Code   string          `json:"code"`
	Score  decimal.Decimal `json:"score"`
	Active bool            `json:"active"`
	Order  int             `json:"order"`
}

// BuzzEvent is one accepted buzz. Seq is assigned by the room, never by a client.
type BuzzEvent struct {
	PlayerID string    `json:"playerId"`
	Name     string    `json:"name"`
	Team     string    `json:"team"`
	Seq      uint64    `json:"seq"`
	At       time.Time `json:"at"`
}

// Room is the whole game document. It is only mutated through its transition
// methods, applied by Service against a freshly read snapshot.
type Room struct {
	Code         string             `json:"code"`
	HostID       string             `json:"hostId"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
	State        State              `json:"state"`
	Round        int                `json:"round"`
	Timer        int                `json:"timer"`
	InitialTimer int                `json:"initialTimer"`
	Rounds       []Round            `json:"rounds"`
	Teams        []string           `json:"teams"`
	Players      map[string]*Player `json:"players"`
	Buzzes       []BuzzEvent        `json:"buzzes"`
	BuzzSeq      uint64             `json:"buzzSeq"`
	PlayerSeq    int                `json:"playerSeq"`
}

// New returns a room in the lobby with a single round that keeps everyone.
func New(code, hostID string, timer int, now time.Time) *Room {
	return &Room{
		Code:         code,
		HostID:       hostID,
		CreatedAt:    now,
		UpdatedAt:    now,
		State:        StateLobby,
		Round:        1,
		Timer:        timer,
		InitialTimer: timer,
		Rounds:       []Round{{ID: 1, Label: roundLabel(1), Timer: timer, Qualifiers: NoCutoff}},
		Teams:        []string{},
		Players:      make(map[string]*Player),
		Buzzes:       []BuzzEvent{},
	}
}

// BuzzerOpen reports whether players may currently buzz.
func (r *Room) BuzzerOpen() bool {
	return r.State == StateBuzzerOpen
}

// Status maps the explicit state onto lobby/active/closed.
func (r *Room) Status() Status {
	switch r.State {
	case StateLobby:
		return StatusLobby
	case StateClosed:
		return StatusClosed
	default:
		return StatusActive
	}
}

// Dirty reports whether the main button should reset rather than open: the
// buzzer is open, or the timer has moved away from its initial value.
func (r *Room) Dirty() bool {
	return r.BuzzerOpen() || r.Timer != r.InitialTimer
}

// FindRound returns the round with the given id.
func (r *Room) FindRound(id int) (Round, bool) {
	for _, rd := range r.Rounds {
		if rd.ID == id {
			return rd, true
		}
	}
	return Round{}, false
}

// OrderedPlayers returns players in creation order.
func (r *Room) OrderedPlayers() []*Player {
	players := make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		players = append(players, p)
	}
	slices.SortFunc(players, func(a, b *Player) int {
		return a.Order - b.Order
	})
	return players
}

// Clone returns a deep copy safe to mutate.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Rounds = slices.Clone(r.Rounds)
	c.Teams = slices.Clone(r.Teams)
	c.Buzzes = slices.Clone(r.Buzzes)
	if c.Rounds == nil {
		c.Rounds = []Round{}
	}
	if c.Teams == nil {
		c.Teams = []string{}
	}
	if c.Buzzes == nil {
		c.Buzzes = []BuzzEvent{}
	}
	c.Players = make(map[string]*Player, len(r.Players))
	for id, p := range r.Players {
		cp := *p
		c.Players[id] = &cp
	}
	return &c
}
