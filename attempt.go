package studo

import (
	"fmt"
	"time"
)

// AttemptStatus is the lifecycle position of an AuthAttempt.
type AttemptStatus int

const (
	NotStarted AttemptStatus = iota
	InFlight
	Succeeded
	Failed
)

func (s AttemptStatus) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InFlight:
		return "in_flight"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("attempt_status(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s AttemptStatus) Terminal() bool {
	return s == Succeeded || s == Failed
}

// AttemptKind says which sub-flow produced an attempt.
type AttemptKind string

const (
	KindSignIn        AttemptKind = "sign_in"
	KindOAuth         AttemptKind = "oauth"
	KindResetRequest  AttemptKind = "reset_request"
	KindResetComplete AttemptKind = "reset_complete"
)

// transitions lists the allowed forward moves. A retry is a new attempt,
// never a move out of a terminal status.
var transitions = map[AttemptStatus][]AttemptStatus{
	NotStarted: {InFlight, Failed},
	InFlight:   {Succeeded, Failed},
}

// TransitionError is returned when an attempt is moved backwards or out of a
// terminal status.
type TransitionError struct {
	From AttemptStatus
	To   AttemptStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("no transition from %s to %s", e.From, e.To)
}

// AuthAttempt is one in-flight or resolved authentication operation.
type AuthAttempt struct {
	ID         string
	Kind       AttemptKind
	Status     AttemptStatus
	SessionID  string
	Err        *FlowError
	StartedAt  time.Time
	ResolvedAt time.Time
}

// ErrorMessage is the user-visible failure reason, or "".
func (a AuthAttempt) ErrorMessage() string {
	if a.Status != Failed || a.Err == nil {
		return ""
	}
	return a.Err.Message
}

// advance returns a copy of a moved to status to. Validation failures go
// straight from NotStarted to Failed.
func (a AuthAttempt) advance(to AttemptStatus, at time.Time) (AuthAttempt, error) {
	for _, allowed := range transitions[a.Status] {
		if allowed == to {
			a.Status = to
			if to.Terminal() {
				a.ResolvedAt = at
			}
			return a, nil
		}
	}
	return a, &TransitionError{From: a.Status, To: to}
}

func (a AuthAttempt) succeed(sessionID string, at time.Time) (AuthAttempt, error) {
	next, err := a.advance(Succeeded, at)
	if err != nil {
		return a, err
	}
	next.SessionID = sessionID
	return next, nil
}

func (a AuthAttempt) fail(ferr *FlowError, at time.Time) (AuthAttempt, error) {
	next, err := a.advance(Failed, at)
	if err != nil {
		return a, err
	}
	next.Err = ferr
	return next, nil
}

// FlowState is what a presenter renders for one flow.
type FlowState struct {
	Attempt      AuthAttempt
	ResetPending bool
	// Redirect is set once an OAuth redirect has been dispatched.
	Redirect *RedirectHandle
	// Version increases with every change.
	Version uint64
}

// Status is shorthand for Attempt.Status.
func (s FlowState) Status() AttemptStatus { return s.Attempt.Status }

// ErrorMessage is shorthand for Attempt.ErrorMessage.
func (s FlowState) ErrorMessage() string { return s.Attempt.ErrorMessage() }
