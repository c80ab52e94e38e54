package store

import (
	"encoding/json"
	"fmt"

	"github.com/Seednode/buzzbox/internal/room"
)

// document is the wire form of a room in remote stores. Revision is only
// filled in by stores that do not track revisions themselves.
type document struct {
	Revision uint64     `json:"revision,omitempty"`
	Room     *room.Room `json:"room"`
}

func encode(r *room.Room, revision uint64) ([]byte, error) {
	data, err := json.Marshal(document{Revision: revision, Room: r})
	if err != nil {
		return nil, fmt.Errorf("encode room %s: %w", r.Code, err)
	}
	return data, nil
}

func decode(data []byte) (document, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("decode room: %w", err)
	}
	if doc.Room == nil {
		return document{}, fmt.Errorf("decode room: empty document")
	}
	if doc.Room.Players == nil {
		doc.Room.Players = make(map[string]*room.Player)
	}
	return doc, nil
}
