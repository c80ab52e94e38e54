package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Seednode/buzzbox/internal/room"
	"github.com/redis/go-redis/v9"
)

// Redis stores each room as one JSON value carrying its revision. Apply runs
// in a WATCH transaction and publishes the new document on the room channel.
type Redis struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedis wraps client. Keys are namespaced by prefix.
func NewRedis(client *redis.Client, prefix string, logger *slog.Logger) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// OpenRedis connects to addr and checks the connection.
func OpenRedis(ctx context.Context, addr, prefix string, logger *slog.Logger) (*Redis, func(), error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logger.Info("STORE: using Redis", "addr", addr, "prefix", prefix)

	return NewRedis(client, prefix, logger), func() { _ = client.Close() }, nil
}

func (s *Redis) key(code string) string {
	return s.prefix + "room:" + code
}

func (s *Redis) channel(code string) string {
	return s.prefix + "room:" + code + ":changes"
}

func (s *Redis) Create(ctx context.Context, r *room.Room) (room.Snapshot, error) {
	data, err := encode(r, 1)
	if err != nil {
		return room.Snapshot{}, err
	}

	ok, err := s.client.SetNX(ctx, s.key(r.Code), data, 0).Result()
	if err != nil {
		return room.Snapshot{}, fmt.Errorf("failed to create room %s: %w", r.Code, err)
	}
	if !ok {
		return room.Snapshot{}, fmt.Errorf("%w: %s", ErrExists, r.Code)
	}

	return room.Snapshot{Room: r.Clone(), Revision: 1}, nil
}

func (s *Redis) Get(ctx context.Context, code string) (room.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return room.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	if err != nil {
		return room.Snapshot{}, fmt.Errorf("failed to get room %s: %w", code, err)
	}

	doc, err := decode(data)
	if err != nil {
		return room.Snapshot{}, err
	}
	return room.Snapshot{Room: doc.Room, Revision: doc.Revision}, nil
}

func (s *Redis) Apply(ctx context.Context, code string, revision uint64, r *room.Room) (room.Snapshot, error) {
	key := s.key(code)

	data, err := encode(r, revision+1)
	if err != nil {
		return room.Snapshot{}, err
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrNotFound, code)
		}
		if err != nil {
			return err
		}

		doc, err := decode(current)
		if err != nil {
			return err
		}
		if doc.Revision != revision {
			return fmt.Errorf("%w: %s at %d, have %d", ErrConflict, code, doc.Revision, revision)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.Publish(ctx, s.channel(code), data)
			return nil
		})
		return err
	}, key)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		return room.Snapshot{}, fmt.Errorf("%w: %s changed during write", ErrConflict, code)
	case err != nil:
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
			return room.Snapshot{}, err
		}
		return room.Snapshot{}, fmt.Errorf("failed to update room %s: %w", code, err)
	}

	return room.Snapshot{Room: r.Clone(), Revision: revision + 1}, nil
}

func (s *Redis) Subscribe(ctx context.Context, code string) (<-chan room.Snapshot, error) {
	ps := s.client.Subscribe(ctx, s.channel(code))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to room %s: %w", code, err)
	}

	current, err := s.Get(ctx, code)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan room.Snapshot, SubscriberBuffer)
	out <- current

	go func() {
		defer close(out)
		defer func() {
			_ = ps.Close()
		}()

		last := current.Revision
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				doc, err := decode([]byte(msg.Payload))
				if err != nil {
					s.logger.Warn("STORE: skipping undecodable room", "channel", msg.Channel, "error", err)
					continue
				}
				if doc.Revision <= last {
					continue
				}
				last = doc.Revision
				offer(out, room.Snapshot{Room: doc.Room, Revision: doc.Revision})
			}
		}
	}()

	return out, nil
}

func (s *Redis) Query(ctx context.Context, match func(*room.Room) bool) ([]room.Snapshot, error) {
	var out []room.Snapshot

	iter := s.client.Scan(ctx, 0, s.prefix+"room:*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}

		doc, err := decode(data)
		if err != nil {
			s.logger.Warn("STORE: skipping undecodable room", "key", iter.Val(), "error", err)
			continue
		}
		if match(doc.Room) {
			out = append(out, room.Snapshot{Room: doc.Room, Revision: doc.Revision})
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return out, nil
}
