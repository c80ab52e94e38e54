package room

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func scored(scores ...string) []*Player {
	players := make([]*Player, len(scores))
	for i, s := range scores {
		players[i] = &Player{
			ID:    string(rune('a' + i)),
			Score: decimal.RequireFromString(s),
			Order: i + 1,
		}
	}
	return players
}

func ids(players []*Player) []string {
	out := make([]string, len(players))
	for i, p := range players {
		out[i] = p.ID
	}
	return out
}

func TestRank(t *testing.T) {
	players := scored("3", "10", "8", "8", "-1.5", "8.5")

	got := ids(Rank(players))

	if diff := cmp.Diff([]string{"b", "f", "c", "d", "a", "e"}, got); diff != "" {
		t.Errorf("Rank() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "a", players[0].ID, "input order is kept")
}

func TestQualify(t *testing.T) {
	tests := []struct {
		name   string
		scores []string
		n      int
		want   map[string]bool
	}{
		{
			name:   "ties broken by creation order",
			scores: []string{"10", "8", "8", "3"},
			n:      2,
			want:   map[string]bool{"a": true, "b": true},
		},
		{
			name:   "cutoff above player count",
			scores: []string{"1", "2"},
			n:      NoCutoff,
			want:   map[string]bool{"a": true, "b": true},
		},
		{
			name:   "fractional scores",
			scores: []string{"0.5", "1", "0.75"},
			n:      1,
			want:   map[string]bool{"b": true},
		},
		{
			name:   "no players",
			scores: nil,
			n:      3,
			want:   map[string]bool{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Qualify(scored(tt.scores...), tt.n)

			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Qualify() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLeaderboard(t *testing.T) {
	r := newTestRoom(t)
	players := addPlayers(t, r, "ann", "bob", "cat")
	players[1].Score = decimal.NewFromInt(4)
	players[2].Score = decimal.NewFromInt(4)

	board := r.Leaderboard()

	assert.Len(t, board, 3)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, "bob", board[0].Player.Name)
	assert.Equal(t, "cat", board[1].Player.Name)
	assert.Equal(t, "ann", board[2].Player.Name)
	assert.Equal(t, 3, board[2].Rank)
}
