package sink

import (
	"errors"
	"fmt"
)

// Phase names the step of a produce call that failed.
type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhaseAction   Phase = "action"
	PhaseTeardown Phase = "teardown"
	PhasePublish  Phase = "publish"
)

// Error is returned by every Sink on failure. Err is the primary failure.
// Secondary holds teardown failures that happened while unwinding from it.
type Error struct {
	Phase     Phase
	Ref       string
	Err       error
	Secondary error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Phase, e.Ref, e.Err)
	if e.Secondary != nil {
		msg += fmt.Sprintf(" (also: %v)", e.Secondary)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Secondary == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Secondary}
}

// PhaseOf reports the phase of the first *Error in err's chain.
func PhaseOf(err error) (Phase, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Phase, true
	}
	return "", false
}

// Teardown closes each closer in order, always attempting all of them. It
// returns the first close error and any later ones joined as secondary.
func Teardown(closers ...func() error) (first, rest error) {
	for _, c := range closers {
		err := c()
		if err == nil {
			continue
		}
		if first == nil {
			first = err
		} else {
			rest = errors.Join(rest, err)
		}
	}
	return first, rest
}

// Settle combines the outcome of the action with the teardown outcome. The
// action failure wins; teardown failures then become secondary.
func Settle(ref string, actionErr, closeErr, closeRest error) error {
	switch {
	case actionErr != nil:
		return &Error{Phase: PhaseAction, Ref: ref, Err: actionErr, Secondary: errors.Join(closeErr, closeRest)}
	case closeErr != nil:
		return &Error{Phase: PhaseTeardown, Ref: ref, Err: closeErr, Secondary: closeRest}
	default:
		return nil
	}
}
