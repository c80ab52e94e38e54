package room

import (
	"context"
	"errors"
)

// Subscribe streams snapshots of a room, starting with the current one. The
// channel closes when ctx is done.
func (s *Service) Subscribe(ctx context.Context, code string) (<-chan Snapshot, error) {
	code = NormalizeCode(code)

	if _, err := s.store.Get(ctx, code); err != nil {
		return nil, s.storeErr("subscribe", err)
	}

	ch, err := s.store.Subscribe(ctx, code)
	if err != nil {
		return nil, s.storeErr("subscribe", err)
	}
	return ch, nil
}

// ResolveJoinCode maps a room code and a player code to a player. An unknown
// room and an unknown player code in a known room are both NotFound, told
// apart by their Reason.
func (s *Service) ResolveJoinCode(ctx context.Context, roomCode, playerCode string) (Identity, error) {
	roomCode = NormalizeCode(roomCode)
	if roomCode == "" {
		return Identity{}, &Error{Kind: ErrNotFound, Reason: ReasonRoomNotFound, Op: "resolve"}
	}

	snap, err := s.store.Get(ctx, roomCode)
	if err != nil {
		return Identity{}, s.storeErr("resolve", err)
	}

	id, err := snap.Room.ResolvePlayer(playerCode)
	if err != nil {
		return Identity{}, withOp("resolve", err)
	}
	return id, nil
}

// PlayerUpdate is one snapshot seen by an admitted player, with their
// identity resolved again against it.
type PlayerUpdate struct {
	Identity Identity
	Room     *Room
	Err      error
}

// FollowPlayer resolves a join code and then re-resolves it on every change
// to the room, so eliminations and room closure reach the player.
func (s *Service) FollowPlayer(ctx context.Context, roomCode, playerCode string) (<-chan PlayerUpdate, error) {
	if _, err := s.ResolveJoinCode(ctx, roomCode, playerCode); err != nil {
		return nil, err
	}

	snaps, err := s.Subscribe(ctx, roomCode)
	if err != nil {
		return nil, err
	}

	out := make(chan PlayerUpdate, 1)
	go func() {
		defer close(out)

		for snap := range snaps {
			u := PlayerUpdate{Room: snap.Room}
			u.Identity, u.Err = snap.Room.ResolvePlayer(playerCode)
			if u.Err == nil && snap.Room.State == StateClosed {
				u.Err = &Error{Kind: ErrPreconditionFailed, Reason: ReasonRoomClosed, Op: "follow"}
			}

			select {
			case out <- u:
			case <-ctx.Done():
				return
			}

			if errors.Is(u.Err, ErrNotFound) {
				return
			}
		}
	}()

	return out, nil
}
