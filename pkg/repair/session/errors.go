package session

import (
	"errors"
	"fmt"
)

var (
	// ErrTurnInFlight is returned when a turn is already running.
	ErrTurnInFlight = errors.New("session: turn in flight")

	// ErrNotActive is returned when turns are requested outside the Active phase.
	ErrNotActive = errors.New("session: not active")

	// ErrNoSource is returned when the camera has no live feed.
	ErrNoSource = errors.New("session: camera source not ready")

	// ErrEmptyInput is returned when a turn carries no audio, text or frame request.
	ErrEmptyInput = errors.New("session: empty turn input")

	// ErrConflictingInput is returned when a turn carries more than one input.
	ErrConflictingInput = errors.New("session: turn input must be exactly one of audio, text or frame")

	// ErrNoIncompleteStep is returned by ConfirmStep when every step is done.
	ErrNoIncompleteStep = errors.New("session: no incomplete step")

	// ErrInvalidTransition is returned for phase changes the state machine
	// does not allow.
	ErrInvalidTransition = errors.New("session: invalid phase transition")

	errCancelled = errors.New("session: turn cancelled")
)

// StageError reports which pipeline stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}
