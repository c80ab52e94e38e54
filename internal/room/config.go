package room

import (
	"errors"
	"time"
)

// Config is the startup configuration of a Service.
type Config struct {
	// DefaultTimer is the round 1 timer of new rooms, in seconds.
	DefaultTimer int

	// MaxRetries bounds attempts of a transition that keeps losing write races.
	MaxRetries int

	// TickInterval drives the round timer. Zero disables the tick task and
	// leaves Tick to the caller.
	TickInterval time.Duration
}

// DefaultConfig matches the settings of the original buzzer game.
func DefaultConfig() Config {
	return Config{
		DefaultTimer: 30,
		MaxRetries:   5,
		TickInterval: time.Second,
	}
}

func (c Config) validate() error {
	if c.DefaultTimer < 1 || c.DefaultTimer > MaxTimer {
		return errors.New("default timer must be between 1 and 3600 seconds")
	}
	if c.MaxRetries < 1 {
		return errors.New("max retries must be at least 1")
	}
	if c.TickInterval < 0 {
		return errors.New("tick interval must not be negative")
	}
	return nil
}
