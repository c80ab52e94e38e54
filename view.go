package main

import (
	"fmt"
	"time"

	"github.com/Seednode/buzzbox/internal/room"
)

// roomView is the JSON shape of a room pushed to hosts and players. Join
// codes are only filled in for the host.
type roomView struct {
	Code         string       `json:"code"`
	Status       room.Status  `json:"status"`
	State        room.State   `json:"state"`
	Round        int          `json:"round"`
	RoundLabel   string       `json:"round_label,omitempty"`
	Qualifiers   int          `json:"qualifiers,omitempty"`
	Timer        int          `json:"timer"`
	InitialTimer int          `json:"initial_timer"`
	Clock        string       `json:"clock"`
	BuzzerOpen   bool         `json:"buzzer_open"`
	Dirty        bool         `json:"dirty"`
	Rounds       []roundView  `json:"rounds"`
	Teams        []string     `json:"teams"`
	Players      []playerView `json:"players"`
	Buzzes       []buzzView   `json:"buzzes"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// roundView leaves Qualifiers out for rounds without a cutoff.
type roundView struct {
	ID         int    `json:"id"`
	Label      string `json:"label"`
	Timer      int    `json:"timer"`
	Qualifiers int    `json:"qualifiers,omitempty"`
}

type playerView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Team   string `json:"team"`
	Code   string `json:"code,omitempty"`
	Score  string `json:"score"`
	Active bool   `json:"active"`
	Rank   int    `json:"rank"`
}

type buzzView struct {
	Rank     int       `json:"rank"`
	PlayerID string    `json:"player_id"`
	Name     string    `json:"name"`
	Team     string    `json:"team"`
	Seq      uint64    `json:"seq"`
	At       time.Time `json:"at"`
}

func newRoomView(r *room.Room, host bool) roomView {
	v := roomView{
		Code:         r.Code,
		Status:       r.Status(),
		State:        r.State,
		Round:        r.Round,
		Timer:        r.Timer,
		InitialTimer: r.InitialTimer,
		Clock:        formatClock(r.Timer),
		BuzzerOpen:   r.BuzzerOpen(),
		Dirty:        r.Dirty(),
		Rounds:       make([]roundView, 0, len(r.Rounds)),
		Teams:        r.Teams,
		Players:      make([]playerView, 0, len(r.Players)),
		Buzzes:       make([]buzzView, 0, len(r.Buzzes)),
		UpdatedAt:    r.UpdatedAt,
	}

	if rd, ok := r.FindRound(r.Round); ok {
		v.RoundLabel = rd.Label
		if rd.Qualifiers != room.NoCutoff {
			v.Qualifiers = rd.Qualifiers
		}
	}

	for _, rd := range r.Rounds {
		v.Rounds = append(v.Rounds, newRoundView(rd))
	}

	for _, s := range r.Leaderboard() {
		pv := playerView{
			ID:     s.Player.ID,
			Name:   s.Player.Name,
			Team:   s.Player.Team,
			Score:  s.Player.Score.String(),
			Active: s.Player.Active,
			Rank:   s.Rank,
		}
		if host {
			pv.Code = s.Player.Code
		}
		v.Players = append(v.Players, pv)
	}

	for i, b := range r.Buzzes {
		v.Buzzes = append(v.Buzzes, buzzView{
			Rank:     i + 1,
			PlayerID: b.PlayerID,
			Name:     b.Name,
			Team:     b.Team,
			Seq:      b.Seq,
			At:       b.At,
		})
	}

	return v
}

func newRoundView(rd room.Round) roundView {
	rv := roundView{ID: rd.ID, Label: rd.Label, Timer: rd.Timer}
	if rd.Qualifiers != room.NoCutoff {
		rv.Qualifiers = rd.Qualifiers
	}
	return rv
}

// formatClock renders a countdown as m:ss.
func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
