package room

// Identity is a player admitted to a room through a join code.
type Identity struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Team     string `json:"team"`
	Active   bool   `json:"active"`
}

// ResolvePlayer finds the player holding code in this room. Codes compare
// after trimming and case folding.
func (r *Room) ResolvePlayer(code string) (Identity, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Identity{}, notFound(ReasonInvalidPlayerCode)
	}

	for _, p := range r.Players {
		if NormalizeCode(p.Code) == code {
			return Identity{
				RoomCode: r.Code,
				PlayerID: p.ID,
				Name:     p.Name,
				Team:     p.Team,
				Active:   p.Active,
			}, nil
		}
	}

	return Identity{}, notFound(ReasonInvalidPlayerCode)
}
