package room

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Service wraps exactly one of these.
var (
	ErrValidation          = errors.New("validation rejected")
	ErrPreconditionFailed  = errors.New("precondition failed")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrNotFound            = errors.New("not found")
)

// Reason is the specific cause carried by an *Error.
type Reason string

const (
	ReasonBuzzerClosed      Reason = "buzzer closed"
	ReasonTimerExpired      Reason = "timer expired"
	ReasonPlayerInactive    Reason = "player inactive"
	ReasonDuplicateBuzz     Reason = "duplicate buzz"
	ReasonRoomClosed        Reason = "room closed"
	ReasonRoomNotFound      Reason = "room not found"
	ReasonInvalidPlayerCode Reason = "invalid player code"
	ReasonPlayerNotFound    Reason = "player not found"
	ReasonRoundNotFound     Reason = "round not found"
	ReasonEmptyName         Reason = "empty name"
	ReasonUnknownTeam       Reason = "unknown team"
	ReasonInvalidTimer      Reason = "invalid timer"
	ReasonInvalidQualifiers Reason = "invalid qualifiers"
	ReasonCodesExhausted    Reason = "codes exhausted"
	ReasonRetriesExhausted  Reason = "retries exhausted"
	ReasonMissingHost       Reason = "missing host"
)

// Error is a classified core error.
type Error struct {
	Kind   error
	Reason Reason
	Op     string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func validation(reason Reason) error {
	return &Error{Kind: ErrValidation, Reason: reason}
}

func precondition(reason Reason) error {
	return &Error{Kind: ErrPreconditionFailed, Reason: reason}
}

func notFound(reason Reason) error {
	return &Error{Kind: ErrNotFound, Reason: reason}
}

// ReasonOf extracts the Reason of err, or "" if err is not an *Error.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// IsBuzzRejected reports whether err is a rejected buzz attempt.
func IsBuzzRejected(err error) bool {
	if !errors.Is(err, ErrPreconditionFailed) {
		return false
	}
	switch ReasonOf(err) {
	case ReasonBuzzerClosed, ReasonTimerExpired, ReasonPlayerInactive, ReasonDuplicateBuzz, ReasonRoomClosed:
		return true
	}
	return false
}

// withOp stamps the operation name on a classified error.
func withOp(op string, err error) error {
	var e *Error
	if errors.As(err, &e) && e.Op == "" {
		c := *e
		c.Op = op
		return &c
	}
	return err
}
