/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	opCreate        = "create_room"
	opToggle        = "toggle_main"
	opTick          = "tick"
	opActivateRound = "activate_round"
	opAddRound      = "add_round"
	opEditRound     = "edit_round"
	opAddTeam       = "add_team"
	opAddPlayer     = "add_player"
	opAdjustScore   = "adjust_score"
	opSetScore      = "set_score"
	opResetBuzzes   = "reset_buzzes"
	opBuzz          = "attempt_buzz"
	opClose         = "close_room"
)

// Service is the single writer of room documents. Every command reads a fresh
// snapshot, runs one transition on a copy and writes it back conditioned on
// the snapshot's revision.
type Service struct {
	cfg    Config
	store  Store
	logger *slog.Logger
	obs    Observer
	codes  *CodeGenerator
	now    func() time.Time
	newID  func() string

	locks keyedMutex

	tickMu  sync.Mutex
	tickers map[string]*ticker
	tickWG  sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// Option customizes a Service.
type Option func(*Service)

// WithObserver reports counters to o.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.obs = o
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithCodes replaces the join code generator.
func WithCodes(c *CodeGenerator) Option {
	return func(s *Service) {
		s.codes = c
	}
}

// WithIDs replaces the player id generator.
func WithIDs(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

// NewService returns a Service writing through store.
func NewService(cfg Config, store Store, logger *slog.Logger, opts ...Option) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("room store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		obs:     nopObserver{},
		now:     time.Now,
		newID:   uuid.NewString,
		tickers: make(map[string]*ticker),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.codes == nil {
		codes, err := NewCodeGenerator()
		if err != nil {
			cancel()
			return nil, err
		}
		s.codes = codes
	}

	return s, nil
}

// Shutdown stops every tick task and waits for them to exit.
func (s *Service) Shutdown() {
	s.cancel()
	s.tickWG.Wait()
}

// CreateRoom opens a new room in the lobby for hostID.
func (s *Service) CreateRoom(ctx context.Context, hostID string) (*Room, error) {
	hostID = strings.TrimSpace(hostID)
	if hostID == "" {
		err := withOp(opCreate, validation(ReasonMissingHost))
		s.obs.Transition(opCreate, err)
		return nil, err
	}

	for range maxCodeAttempts {
		code := NormalizeCode(s.codes.Room())

		snap, err := s.store.Create(ctx, New(code, hostID, s.cfg.DefaultTimer, s.now()))
		if errors.Is(err, ErrDocumentExists) {
			s.logger.Debug("ROOMS: room code collision", "room", code)
			continue
		}
		if err != nil {
			s.obs.Transition(opCreate, err)
			return nil, fmt.Errorf("%s: %w", opCreate, err)
		}

		s.logger.Info("ROOMS: created room", "room", code, "host", hostID)
		s.obs.Transition(opCreate, nil)
		return snap.Room.Clone(), nil
	}

	err := &Error{Kind: ErrConcurrencyConflict, Reason: ReasonCodesExhausted, Op: opCreate}
	s.obs.Transition(opCreate, err)
	return nil, err
}

// Get returns the latest state of a room.
func (s *Service) Get(ctx context.Context, code string) (*Room, error) {
	snap, err := s.store.Get(ctx, NormalizeCode(code))
	if err != nil {
		return nil, s.storeErr("get_room", err)
	}
	return snap.Room.Clone(), nil
}

// ListRooms returns the rooms owned by hostID, newest first.
func (s *Service) ListRooms(ctx context.Context, hostID string) ([]*Room, error) {
	snaps, err := s.store.Query(ctx, func(r *Room) bool {
		return r.HostID == hostID
	})
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	rooms := make([]*Room, 0, len(snaps))
	for _, snap := range snaps {
		rooms = append(rooms, snap.Room.Clone())
	}
	slices.SortFunc(rooms, func(a, b *Room) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return rooms, nil
}

// ToggleMain is the host's single buzzer button: reset when dirty, open when clean.
func (s *Service) ToggleMain(ctx context.Context, code string) (Toggle, *Room, error) {
	var toggle Toggle
	r, err := s.apply(ctx, opToggle, code, func(r *Room) error {
		var err error
		toggle, err = r.ToggleMain()
		return err
	})
	if err != nil {
		return "", nil, err
	}

	s.logger.Debug("ROOMS: main button", "room", r.Code, "result", toggle, "timer", r.Timer)
	return toggle, r, nil
}

// Tick advances the round timer by one step. It does nothing unless the buzzer is open.
func (s *Service) Tick(ctx context.Context, code string) (*Room, error) {
	return s.apply(ctx, opTick, code, func(r *Room) error {
		return r.Tick()
	})
}

// ActivateRound applies the round's qualifier cutoff and rearms its timer.
func (s *Service) ActivateRound(ctx context.Context, code string, roundID int) (*Room, error) {
	r, err := s.apply(ctx, opActivateRound, code, func(r *Room) error {
		return r.ActivateRound(roundID)
	})
	if err != nil {
		return nil, err
	}

	active := 0
	for _, p := range r.Players {
		if p.Active {
			active++
		}
	}
	s.logger.Info("ROOMS: activated round", "room", r.Code, "round", roundID, "active", active, "players", len(r.Players))
	return r, nil
}

// AddRound appends a round with the next id.
func (s *Service) AddRound(ctx context.Context, code string, timer, qualifiers int) (Round, error) {
	var rd Round
	_, err := s.apply(ctx, opAddRound, code, func(r *Room) error {
		var err error
		rd, err = r.AddRound(timer, qualifiers)
		return err
	})
	return rd, err
}

// EditRound changes a round's timer and qualifier count.
func (s *Service) EditRound(ctx context.Context, code string, roundID, timer, qualifiers int) (*Room, error) {
	return s.apply(ctx, opEditRound, code, func(r *Room) error {
		return r.EditRound(roundID, timer, qualifiers)
	})
}

// AddTeam inserts a team name into the room's team set.
func (s *Service) AddTeam(ctx context.Context, code, name string) (*Room, error) {
	return s.apply(ctx, opAddTeam, code, func(r *Room) error {
		return r.AddTeam(name)
	})
}

// AddPlayer creates a player with a fresh join code.
func (s *Service) AddPlayer(ctx context.Context, code, name, team string) (*Player, error) {
	var added Player
	id := s.newID()
	r, err := s.apply(ctx, opAddPlayer, code, func(r *Room) error {
		p, err := r.AddPlayer(id, name, team, s.codes.Player)
		if err != nil {
			return err
		}
		added = *p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ROOMS: player added", "room", r.Code, "player", added.Name, "team", added.Team)
	return &added, nil
}

// AdjustScore adds delta to a player's score and returns the new score.
func (s *Service) AdjustScore(ctx context.Context, code, playerID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var score decimal.Decimal
	_, err := s.apply(ctx, opAdjustScore, code, func(r *Room) error {
		var err error
		score, err = r.AdjustScore(playerID, delta)
		return err
	})
	return score, err
}

// SetScore overwrites a player's score.
func (s *Service) SetScore(ctx context.Context, code, playerID string, score decimal.Decimal) (*Room, error) {
	return s.apply(ctx, opSetScore, code, func(r *Room) error {
		return r.SetScore(playerID, score)
	})
}

// ResetBuzzes clears the buzz list without touching the timer.
func (s *Service) ResetBuzzes(ctx context.Context, code string) (*Room, error) {
	return s.apply(ctx, opResetBuzzes, code, func(r *Room) error {
		return r.ResetBuzzes()
	})
}

// CloseRoom ends the game and stops its timer.
func (s *Service) CloseRoom(ctx context.Context, code string) (*Room, error) {
	r, err := s.apply(ctx, opClose, code, func(r *Room) error {
		return r.Close()
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ROOMS: closed room", "room", r.Code)
	return r, nil
}

// BuzzResult is an accepted buzz and its 1-based arrival rank.
type BuzzResult struct {
	Event BuzzEvent `json:"event"`
	Rank  int       `json:"rank"`
}

// AttemptBuzz records a buzz for playerID. Rejections are PreconditionFailed
// errors carrying the specific reason.
func (s *Service) AttemptBuzz(ctx context.Context, code, playerID string) (BuzzResult, error) {
	var res BuzzResult
	_, err := s.apply(ctx, opBuzz, code, func(r *Room) error {
		ev, err := r.RecordBuzz(playerID, s.now())
		if err != nil {
			return err
		}
		res = BuzzResult{Event: ev, Rank: r.BuzzRank(playerID)}
		return nil
	})
	s.obs.Buzz(err)
	if err != nil {
		s.logger.Debug("ROOMS: buzz rejected", "room", code, "player", playerID, "reason", ReasonOf(err))
		return BuzzResult{}, err
	}

	s.logger.Debug("ROOMS: buzz accepted", "room", code, "player", playerID, "seq", res.Event.Seq, "rank", res.Rank)
	return res, nil
}

// CloseIdle closes every open room not written since cutoff.
func (s *Service) CloseIdle(ctx context.Context, cutoff time.Time) (int, error) {
	snaps, err := s.store.Query(ctx, func(r *Room) bool {
		return r.State != StateClosed && r.UpdatedAt.Before(cutoff)
	})
	if err != nil {
		return 0, fmt.Errorf("query idle rooms: %w", err)
	}

	closed := 0
	for _, snap := range snaps {
		if _, err := s.CloseRoom(ctx, snap.Room.Code); err != nil {
			s.logger.Warn("ROOMS: failed to close idle room", "room", snap.Room.Code, "error", err)
			continue
		}
		closed++
	}
	return closed, nil
}

// apply runs fn against a fresh copy of the room and writes it back,
// retrying on lost races up to the configured bound. Transitions of one
// room are also serialized within this process.
func (s *Service) apply(ctx context.Context, op, code string, fn func(*Room) error) (*Room, error) {
	code = NormalizeCode(code)

	unlock := s.locks.lock(code)
	defer unlock()

	// A caller cancelled while waiting for the lock, such as a stopped tick
	// task, leaves the room alone.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		snap, err := s.store.Get(ctx, code)
		if err != nil {
			err = s.storeErr(op, err)
			s.obs.Transition(op, err)
			return nil, err
		}

		next := snap.Room.Clone()
		if err := fn(next); err != nil {
			if errors.Is(err, errUnchanged) {
				s.obs.Transition(op, nil)
				return next, nil
			}
			err = withOp(op, err)
			s.obs.Transition(op, err)
			return nil, err
		}
		next.UpdatedAt = s.now()

		written, err := s.store.Apply(ctx, code, snap.Revision, next)
		if err == nil {
			s.syncTicker(op, written.Room)
			s.obs.Transition(op, nil)
			return written.Room.Clone(), nil
		}

		if !errors.Is(err, ErrRevisionConflict) {
			err = s.storeErr(op, err)
			s.obs.Transition(op, err)
			return nil, err
		}

		s.obs.Retry(op)
		if attempt >= s.cfg.MaxRetries {
			err := &Error{Kind: ErrConcurrencyConflict, Reason: ReasonRetriesExhausted, Op: op}
			s.logger.Warn("ROOMS: giving up after write conflicts", "room", code, "op", op, "attempts", attempt)
			s.obs.Transition(op, err)
			return nil, err
		}
		s.logger.Debug("ROOMS: write conflict, retrying", "room", code, "op", op, "attempt", attempt)
	}
}

func (s *Service) storeErr(op string, err error) error {
	if errors.Is(err, ErrNoDocument) {
		return &Error{Kind: ErrNotFound, Reason: ReasonRoomNotFound, Op: op}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
