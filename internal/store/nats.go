package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Seednode/buzzbox/internal/room"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const natsKeyPrefix = "room."

// NATS stores rooms in a JetStream key-value bucket. The entry revision is the
// document revision, so Apply is a compare-and-swap on the key.
type NATS struct {
	kv     jetstream.KeyValue
	logger *slog.Logger
}

// NewNATS wraps an existing bucket.
func NewNATS(kv jetstream.KeyValue, logger *slog.Logger) *NATS {
	return &NATS{kv: kv, logger: logger}
}

// OpenNATS connects to url and creates or binds bucket. The returned func
// closes the connection.
func OpenNATS(ctx context.Context, url, bucket string, logger *slog.Logger) (*NATS, func(), error) {
	nc, err := nats.Connect(url, nats.Name("buzzbox"), nats.RetryOnFailedConnect(true))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to initialize JetStream: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "buzzbox rooms",
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to bind bucket %s: %w", bucket, err)
	}

	logger.Info("STORE: using NATS bucket", "url", url, "bucket", bucket)

	return NewNATS(kv, logger), nc.Close, nil
}

func (n *NATS) Create(ctx context.Context, r *room.Room) (room.Snapshot, error) {
	data, err := encode(r, 0)
	if err != nil {
		return room.Snapshot{}, err
	}

	rev, err := n.kv.Create(ctx, natsKeyPrefix+r.Code, data)
	if errors.Is(err, jetstream.ErrKeyExists) {
		return room.Snapshot{}, fmt.Errorf("%w: %s", ErrExists, r.Code)
	}
	if err != nil {
		return room.Snapshot{}, fmt.Errorf("failed to create room %s: %w", r.Code, err)
	}

	return room.Snapshot{Room: r.Clone(), Revision: rev}, nil
}

func (n *NATS) Get(ctx context.Context, code string) (room.Snapshot, error) {
	entry, err := n.kv.Get(ctx, natsKeyPrefix+code)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return room.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	if err != nil {
		return room.Snapshot{}, fmt.Errorf("failed to get room %s: %w", code, err)
	}

	return snapshotOf(entry)
}

func (n *NATS) Apply(ctx context.Context, code string, revision uint64, r *room.Room) (room.Snapshot, error) {
	data, err := encode(r, 0)
	if err != nil {
		return room.Snapshot{}, err
	}

	rev, err := n.kv.Update(ctx, natsKeyPrefix+code, data, revision)
	if errors.Is(err, jetstream.ErrKeyExists) {
		return room.Snapshot{}, fmt.Errorf("%w: %s at %d", ErrConflict, code, revision)
	}
	if err != nil {
		return room.Snapshot{}, fmt.Errorf("failed to update room %s: %w", code, err)
	}

	return room.Snapshot{Room: r.Clone(), Revision: rev}, nil
}

func (n *NATS) Subscribe(ctx context.Context, code string) (<-chan room.Snapshot, error) {
	watcher, err := n.kv.Watch(ctx, natsKeyPrefix+code)
	if err != nil {
		return nil, fmt.Errorf("failed to watch room %s: %w", code, err)
	}

	out := make(chan room.Snapshot, SubscriberBuffer)
	go func() {
		defer close(out)
		defer func() {
			_ = watcher.Stop()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				// A nil entry marks the end of the initial values.
				if entry == nil || entry.Operation() != jetstream.KeyValuePut {
					continue
				}

				snap, err := snapshotOf(entry)
				if err != nil {
					n.logger.Warn("STORE: skipping undecodable room", "key", entry.Key(), "error", err)
					continue
				}
				offer(out, snap)
			}
		}
	}()

	return out, nil
}

func (n *NATS) Query(ctx context.Context, match func(*room.Room) bool) ([]room.Snapshot, error) {
	keys, err := n.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	var out []room.Snapshot
	for _, key := range keys {
		if !strings.HasPrefix(key, natsKeyPrefix) {
			continue
		}

		entry, err := n.kv.Get(ctx, key)
		if err != nil {
			continue
		}

		snap, err := snapshotOf(entry)
		if err != nil {
			n.logger.Warn("STORE: skipping undecodable room", "key", key, "error", err)
			continue
		}
		if match(snap.Room) {
			out = append(out, snap)
		}
	}
	return out, nil
}

func snapshotOf(entry jetstream.KeyValueEntry) (room.Snapshot, error) {
	doc, err := decode(entry.Value())
	if err != nil {
		return room.Snapshot{}, err
	}
	return room.Snapshot{Room: doc.Room, Revision: entry.Revision()}, nil
}
