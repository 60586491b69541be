package session

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/midas/pkg/core/voice"
	"github.com/vango-go/midas/pkg/repair/camera"
	"github.com/vango-go/midas/pkg/repair/checklist"
)

// InputKind names what started a turn.
type InputKind string

const (
	InputSpoken    InputKind = "spoken"
	InputTyped     InputKind = "typed"
	InputFrameOnly InputKind = "frame"
)

// TurnInput is exactly one of spoken audio, typed text or a frame-only scan.
type TurnInput struct {
	Audio     *voice.Audio
	Text      string
	FrameOnly bool
}

// Spoken returns an audio turn input.
func Spoken(audio voice.Audio) TurnInput { return TurnInput{Audio: &audio} }

// Typed returns a text turn input.
func Typed(text string) TurnInput { return TurnInput{Text: text} }

// FrameOnly returns a scan turn input that sends only the camera frame.
func FrameOnly() TurnInput { return TurnInput{FrameOnly: true} }

func (in TurnInput) kind() (InputKind, error) {
	var kinds []InputKind
	if in.Audio != nil {
		kinds = append(kinds, InputSpoken)
	}
	if in.Text != "" {
		kinds = append(kinds, InputTyped)
	}
	if in.FrameOnly {
		kinds = append(kinds, InputFrameOnly)
	}
	switch {
	case len(kinds) > 1:
		return "", ErrConflictingInput
	case len(kinds) == 0:
		return "", ErrEmptyInput
	}
	if kinds[0] == InputTyped && strings.TrimSpace(in.Text) == "" {
		return "", ErrEmptyInput
	}
	if kinds[0] == InputSpoken && len(in.Audio.Data) == 0 {
		return "", ErrEmptyInput
	}
	return kinds[0], nil
}

// Outcome is how a turn settled.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Result describes a settled turn.
type Result struct {
	Outcome       Outcome
	UserText      string
	AssistantText string
	Step          *checklist.Step // the step this turn added, if any
	Spoken        bool            // playback started
	Err           error           // set when Outcome is OutcomeFailed
}

// Turn is a running or settled turn.
type Turn struct {
	ID     string
	Kind   InputKind
	done   chan struct{}
	result Result
}

func newTurn(kind InputKind) *Turn {
	return &Turn{ID: uuid.NewString(), Kind: kind, done: make(chan struct{})}
}

// Done is closed when the turn settles.
func (t *Turn) Done() <-chan struct{} { return t.done }

// Outcome returns the settled result. Before Done is closed it returns the
// zero Result.
func (t *Turn) Outcome() Result {
	select {
	case <-t.done:
		return t.result
	default:
		return Result{}
	}
}

// Wait blocks until the turn settles or ctx ends.
func (t *Turn) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (t *Turn) settle(r Result) {
	t.result = r
	close(t.done)
}

// TurnReport is passed to Hooks.OnTurn once per settled turn.
type TurnReport struct {
	SessionID string
	TurnID    string
	Kind      InputKind
	Outcome   Outcome
	Err       error
	Duration  time.Duration
	Frame     *camera.Frame
	StepAdded bool
	Spoken    bool
}

// StartTurn begins a turn and returns without waiting for it. It fails fast
// with ErrTurnInFlight or ErrNotActive, and reports input problems
// (ErrEmptyInput, ErrConflictingInput, ErrNoSource) before any state
// changes.
func (s *Session) StartTurn(in TurnInput) (*Turn, error) {
	return s.begin(in, nil)
}

// ConfirmStep marks the last incomplete step completed and asks for the
// next one with a synthetic user record.
func (s *Session) ConfirmStep() (*Turn, error) {
	return s.begin(Typed(s.cfg.ConfirmText), func() error {
		idx := checklist.LastIncomplete(s.steps)
		if idx < 0 {
			return ErrNoIncompleteStep
		}
		steps := append([]checklist.Step(nil), s.steps...)
		steps[idx].Completed = true
		s.steps = steps
		return nil
	})
}

// begin validates and commits the start of a turn under the lock. prepare
// runs last, still under the lock, and may veto the turn.
func (s *Session) begin(in TurnInput, prepare func() error) (*Turn, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	if s.phase != PhaseActive {
		s.mu.Unlock()
		return nil, ErrNotActive
	}
	kind, err := in.kind()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !s.camera.Ready() {
		s.mu.Unlock()
		return nil, ErrNoSource
	}
	if prepare != nil {
		if err := prepare(); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}

	tok := s.tok
	prior := s.historyLocked()
	userText := strings.TrimSpace(in.Text)
	if userText != "" {
		s.appendLocked(SpeakerUser, userText)
	}
	s.inFlight = true
	s.turns++
	turn := newTurn(kind)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if userText != "" && s.speech != nil {
		s.speech.Update(userText)
	}
	s.logger.Debug("turn started", "session_id", snap.ID, "turn_id", turn.ID, "kind", string(kind))
	s.emitChange(snap)

	go s.runTurn(snap.ID, tok, turn, in, userText, prior)
	return turn, nil
}
