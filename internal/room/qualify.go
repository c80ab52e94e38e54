package room

import (
	"slices"
)

// Standing is one line of the leaderboard.
type Standing struct {
	Rank   int     `json:"rank"`
	Player *Player `json:"player"`
}

// Rank orders players by score descending, breaking ties by creation order.
// The input slice is not modified.
func Rank(players []*Player) []*Player {
	ranked := slices.Clone(players)
	slices.SortStableFunc(ranked, func(a, b *Player) int {
		if c := b.Score.Cmp(a.Score); c != 0 {
			return c
		}
		return a.Order - b.Order
	})
	return ranked
}

// Qualify returns the ids of the top n players by Rank. Everyone qualifies
// when n is at least the number of players.
func Qualify(players []*Player, n int) map[string]bool {
	qualified := make(map[string]bool, min(max(n, 0), len(players)))
	for i, p := range Rank(players) {
		if i >= n {
			break
		}
		qualified[p.ID] = true
	}
	return qualified
}

// Leaderboard ranks every player in the room.
func (r *Room) Leaderboard() []Standing {
	ranked := Rank(r.OrderedPlayers())
	standings := make([]Standing, len(ranked))
	for i, p := range ranked {
		standings[i] = Standing{Rank: i + 1, Player: p}
	}
	return standings
}

// applyCutoff writes the active flag of every player for a qualifier count.
func (r *Room) applyCutoff(n int) {
	qualified := Qualify(r.OrderedPlayers(), n)
	for id, p := range r.Players {
		p.Active = qualified[id]
	}
}
