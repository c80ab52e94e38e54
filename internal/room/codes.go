package room

import (
	"fmt"
	"strings"

	nanoid "github.com/jaevor/go-nanoid"
)

const (
	// CodeAlphabet excludes glyphs that are easy to misread (0/O, 1/I).
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	RoomCodeLength   = 6
	PlayerCodeLength = 4

	// maxCodeAttempts bounds collision retries for a single generated code.
	maxCodeAttempts = 64

	// minDrawLength is the id length drawn from nanoid.CustomASCII, which
	// never returns for lengths below 5.
	minDrawLength = 8
)

// CodeGenerator produces room and player join codes.
type CodeGenerator struct {
	Room   func() string
	Player func() string
}

// NewCodeGenerator returns a generator backed by crypto-random nanoids.
func NewCodeGenerator() (*CodeGenerator, error) {
	roomCode, err := shortCode(RoomCodeLength)
	if err != nil {
		return nil, fmt.Errorf("room code generator: %w", err)
	}

	playerCode, err := shortCode(PlayerCodeLength)
	if err != nil {
		return nil, fmt.Errorf("player code generator: %w", err)
	}

	return &CodeGenerator{Room: roomCode, Player: playerCode}, nil
}

// shortCode returns a generator of length-character codes, drawn as prefixes
// of longer nanoids when length is below minDrawLength.
func shortCode(length int) (func() string, error) {
	next, err := nanoid.CustomASCII(CodeAlphabet, max(length, minDrawLength))
	if err != nil {
		return nil, err
	}

	return func() string {
		return next()[:length]
	}, nil
}

// NormalizeCode trims and upper-cases a user-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// uniquePlayerCode draws codes until one is unused in r.
func (r *Room) uniquePlayerCode(next func() string) (string, error) {
	used := make(map[string]bool, len(r.Players))
	for _, p := range r.Players {
		used[p.Code] = true
	}

	for range maxCodeAttempts {
		code := NormalizeCode(next())
		if !used[code] {
			return code, nil
		}
	}

	return "", &Error{Kind: ErrConcurrencyConflict, Reason: ReasonCodesExhausted}
}
