package room

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type ticker struct {
	cancel context.CancelFunc
}

// syncTicker makes the tick task of a room follow its committed state. Only
// the process that opened the buzzer starts one; any write that leaves the
// buzzer closed stops it. Called with the room lock held.
func (s *Service) syncTicker(op string, r *Room) {
	if !r.BuzzerOpen() {
		s.stopTicker(r.Code)
		return
	}
	if op == opToggle {
		s.startTicker(r.Code)
	}
}

// ResumeTimers starts tick tasks for rooms stored with their buzzer open,
// such as rooms left running by a previous process on a shared store. It
// returns the number of tasks started.
func (s *Service) ResumeTimers(ctx context.Context) (int, error) {
	if s.cfg.TickInterval <= 0 {
		return 0, nil
	}

	snaps, err := s.store.Query(ctx, func(r *Room) bool {
		return r.BuzzerOpen()
	})
	if err != nil {
		return 0, fmt.Errorf("resume timers: %w", err)
	}

	started := 0
	for _, snap := range snaps {
		if s.ticking(snap.Room.Code) {
			continue
		}
		s.startTicker(snap.Room.Code)
		started++
	}
	return started, nil
}

func (s *Service) startTicker(code string) {
	if s.cfg.TickInterval <= 0 {
		return
	}

	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	if _, ok := s.tickers[code]; ok {
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	t := &ticker{cancel: cancel}
	s.tickers[code] = t

	s.tickWG.Add(1)
	s.obs.TickerStarted()
	go func() {
		defer s.tickWG.Done()
		defer s.obs.TickerStopped()
		defer s.forgetTicker(code, t)

		s.runTicker(ctx, code)
	}()
}

func (s *Service) stopTicker(code string) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if t, ok := s.tickers[code]; ok {
		t.cancel()
		delete(s.tickers, code)
	}
}

func (s *Service) forgetTicker(code string, t *ticker) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	t.cancel()
	if s.tickers[code] == t {
		delete(s.tickers, code)
	}
}

// ticking reports whether a tick task is running for code.
func (s *Service) ticking(code string) bool {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	_, ok := s.tickers[NormalizeCode(code)]
	return ok
}

func (s *Service) runTicker(ctx context.Context, code string) {
	tk := time.NewTicker(s.cfg.TickInterval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
		}

		r, err := s.Tick(ctx, code)
		switch {
		case err == nil && r.BuzzerOpen():
			continue
		case err == nil:
			s.logger.Debug("ROOMS: timer stopped", "room", code, "timer", r.Timer)
			return
		case ctx.Err() != nil:
			return
		case errors.Is(err, ErrConcurrencyConflict):
			s.logger.Warn("ROOMS: tick lost to concurrent writes", "room", code, "error", err)
		default:
			s.logger.Error("ROOMS: tick failed", "room", code, "error", err)
			return
		}
	}
}
