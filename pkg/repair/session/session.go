// Package session implements the repair session state machine and the turn
// pipeline it drives.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/midas/pkg/core"
	"github.com/vango-go/midas/pkg/core/audio/playback"
	"github.com/vango-go/midas/pkg/core/types"
	"github.com/vango-go/midas/pkg/core/voice"
	"github.com/vango-go/midas/pkg/repair/camera"
	"github.com/vango-go/midas/pkg/repair/checklist"
	"github.com/vango-go/midas/pkg/repair/speechctx"
)

// Phase is the coarse lifecycle state of a session.
type Phase string

const (
	PhaseAwaitingPermissions Phase = "awaiting_permissions"
	PhaseReady               Phase = "ready"
	PhaseActive              Phase = "active"
	PhaseComplete            Phase = "complete"
)

// Speaker tags a transcript record.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Record is one transcript entry. Records are never modified once appended.
type Record struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	DefaultRevealMin   = 40 * time.Millisecond
	DefaultRevealMax   = 110 * time.Millisecond
	DefaultConfirmText = "step complete, request next"

	// DefaultSystemPrompt keeps replies short enough to be spoken and asks
	// for one step per exchange.
	DefaultSystemPrompt = `You are MIDAS, a friendly AR-powered repair assistant. You help users diagnose and repair broken technology through a live camera feed and voice conversation.

You can see images of devices the user points their camera at. You can diagnose damage on any technology: phones, laptops, mice, keyboards, monitors, headphones, game controllers, cables, chargers, circuit boards, and more.

Guidelines:
- Respond conversationally in 2-4 sentences. Your reply is read aloud, so keep it natural and concise.
- Identify the device and any visible damage. If the user described a problem, factor that in.
- Walk through a repair one step at a time across exchanges. Start each instruction with "Step N:".
- Warn about safety hazards when relevant (batteries, soldering, ESD).
- If the image does not show a device, say you don't see one and ask the user to point the camera at the item.
- If you cannot see any damage, say so and ask the user to describe the issue or show a different angle.
- Do not respond with JSON. Respond in plain, spoken English.`
)

// Config tunes a session.
type Config struct {
	Model        string // "provider/model", passed through to the chat provider
	SystemPrompt string
	MaxTokens    int
	Temperature  *float64

	// RevealMin and RevealMax bound the random per-word reveal delay.
	RevealMin time.Duration
	RevealMax time.Duration

	// ConfirmText is the user record appended by ConfirmStep.
	ConfirmText string

	// FailureText renders the synthetic assistant record for a failed turn.
	FailureText func(err error) string
}

// Hooks observe the session. Each hook is called outside the session lock
// and must not block for long.
type Hooks struct {
	// OnChange receives a snapshot after every visible state change.
	// Deliveries are serialized and arrive in Version order; a snapshot
	// overtaken by a newer one before delivery is skipped.
	OnChange func(Snapshot)

	// OnTurn receives a report once per settled turn.
	OnTurn func(TurnReport)

	// OnEnd receives the final snapshot when a session moves to Complete.
	OnEnd func(Snapshot)

	// OnReset receives the first snapshot of the session that replaced a
	// reset one.
	OnReset func(Snapshot)
}

// Dependencies wires a session to its collaborators. Chat and Camera are
// required.
type Dependencies struct {
	Chat          core.ChatProvider
	Camera        camera.Source
	Voice         *voice.Pipeline
	Player        playback.Player
	Extractor     *checklist.Extractor
	SpeechContext *speechctx.Context
	Hooks         Hooks
	Logger        *slog.Logger
	Config        Config

	// Context bounds every collaborator call. Close cancels it.
	Context context.Context
	Now     func() time.Time
	Rand    *rand.Rand
}

// Session is a repair session. All methods are safe for concurrent use.
type Session struct {
	chat      core.ChatProvider
	camera    camera.Source
	voice     *voice.Pipeline
	player    playback.Player
	extractor *checklist.Extractor
	speech    *speechctx.Context
	hooks     Hooks
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	randMu sync.Mutex
	rng    *rand.Rand

	mu         sync.Mutex
	id         string
	phase      Phase
	granted    bool
	transcript []Record
	steps      []checklist.Step
	draft      string
	speaking   bool
	inFlight   bool
	tok        *token
	turns      int
	startedAt  time.Time
	endedAt    time.Time
	playGen    uint64
	version    uint64

	// emitMu guards the OnChange delivery queue. Whichever caller finds the
	// queue idle delivers until it drains, so hooks see snapshots in
	// version order and never run concurrently.
	emitMu   sync.Mutex
	emitting bool
	pending  []Snapshot
	lastEmit uint64

	// playMu orders handle replacement against End and Reset. Lock order is
	// playMu before mu.
	playMu sync.Mutex
	handle playback.Handle
}

// New creates a session in the AwaitingPermissions phase.
func New(deps Dependencies) (*Session, error) {
	if deps.Chat == nil {
		return nil, fmt.Errorf("chat provider is required")
	}
	if deps.Camera == nil {
		return nil, fmt.Errorf("camera source is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Extractor == nil {
		deps.Extractor = checklist.NewExtractor()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if deps.Context == nil {
		deps.Context = context.Background()
	}
	cfg := deps.Config
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.RevealMax <= 0 {
		cfg.RevealMin, cfg.RevealMax = DefaultRevealMin, DefaultRevealMax
	}
	if cfg.RevealMin < 0 || cfg.RevealMin > cfg.RevealMax {
		cfg.RevealMin = cfg.RevealMax
	}
	if strings.TrimSpace(cfg.ConfirmText) == "" {
		cfg.ConfirmText = DefaultConfirmText
	}
	if cfg.FailureText == nil {
		cfg.FailureText = DefaultFailureText
	}

	ctx, cancel := context.WithCancel(deps.Context)
	return &Session{
		chat:      deps.Chat,
		camera:    deps.Camera,
		voice:     deps.Voice,
		player:    deps.Player,
		extractor: deps.Extractor,
		speech:    deps.SpeechContext,
		hooks:     deps.Hooks,
		logger:    deps.Logger,
		cfg:       cfg,
		now:       deps.Now,
		ctx:       ctx,
		cancel:    cancel,
		rng:       deps.Rand,
		id:        uuid.NewString(),
		phase:     PhaseAwaitingPermissions,
		tok:       newToken(),
	}, nil
}

// DefaultFailureText phrases a failed turn for the user.
func DefaultFailureText(err error) string {
	var se *StageError
	switch {
	case errors.As(err, &se) && se.Stage == stageCapture:
		return "I couldn't get a frame from the camera. Check that the camera is pointed at the device and try again."
	case core.IsRetryable(err):
		return "The assistant service is busy right now. Please try again in a moment."
	default:
		return "I couldn't process that request. Please try again."
	}
}

// ID returns the current session identifier. Reset assigns a new one.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// GrantPermissions records that camera and microphone access were granted.
func (s *Session) GrantPermissions() error {
	s.mu.Lock()
	switch s.phase {
	case PhaseAwaitingPermissions:
		s.phase = PhaseReady
		s.granted = true
	case PhaseReady:
		s.mu.Unlock()
		return nil
	default:
		phase := s.phase
		s.mu.Unlock()
		return fmt.Errorf("%w: grant permissions from %s", ErrInvalidTransition, phase)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emitChange(snap)
	return nil
}

// Start moves a Ready session to Active.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.phase != PhaseReady {
		phase := s.phase
		s.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, phase)
	}
	s.phase = PhaseActive
	s.startedAt = s.now()
	s.endedAt = time.Time{}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("repair session started", "session_id", snap.ID)
	s.emitChange(snap)
	return nil
}

// EndSession moves an Active session to Complete. Any turn still running is
// abandoned and its result discarded.
func (s *Session) EndSession() error {
	s.mu.Lock()
	if s.phase != PhaseActive {
		phase := s.phase
		s.mu.Unlock()
		return fmt.Errorf("%w: end from %s", ErrInvalidTransition, phase)
	}
	s.invalidateLocked()
	s.phase = PhaseComplete
	s.endedAt = s.now()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.stopPlayback()
	s.logger.Info("repair session ended",
		"session_id", snap.ID,
		"turns", snap.Turns,
		"steps", len(snap.Checklist),
		"completed_steps", checklist.CompletedCount(snap.Checklist),
	)
	s.emitChange(snap)
	if s.hooks.OnEnd != nil {
		s.hooks.OnEnd(snap)
	}
	return nil
}

// ResetSession clears the transcript and checklist and abandons any running
// turn. It is accepted from every phase and lands in Ready, or stays in
// AwaitingPermissions if permissions were never granted.
func (s *Session) ResetSession() {
	s.mu.Lock()
	s.invalidateLocked()
	s.transcript = nil
	s.steps = nil
	s.turns = 0
	s.startedAt = time.Time{}
	s.endedAt = time.Time{}
	s.id = uuid.NewString()
	if s.granted {
		s.phase = PhaseReady
	} else {
		s.phase = PhaseAwaitingPermissions
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.stopPlayback()
	if s.speech != nil {
		s.speech.Reset()
	}
	s.logger.Info("repair session reset", "session_id", snap.ID, "phase", string(snap.Phase))
	s.emitChange(snap)
	if s.hooks.OnReset != nil {
		s.hooks.OnReset(snap)
	}
}

// Close abandons any running turn, stops playback and cancels the context
// passed to collaborators. The session must not be used afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	s.invalidateLocked()
	s.mu.Unlock()
	s.stopPlayback()
	s.cancel()
}

// invalidateLocked retires the current token and clears per-turn state.
func (s *Session) invalidateLocked() {
	s.tok.cancel()
	s.tok = newToken()
	s.inFlight = false
	s.draft = ""
	s.speaking = false
	s.playGen++
}

func (s *Session) stopPlayback() {
	s.playMu.Lock()
	defer s.playMu.Unlock()
	if s.handle != nil {
		s.handle.Stop()
		s.handle = nil
	}
}

// emitChange queues snap for OnChange. A snapshot no newer than the last one
// queued is dropped. If no delivery is running the caller becomes the
// deliverer and drains the queue, including snapshots queued by other
// goroutines while it was inside the hook.
func (s *Session) emitChange(snap Snapshot) {
	if s.hooks.OnChange == nil {
		return
	}
	s.emitMu.Lock()
	if snap.Version <= s.lastEmit {
		s.emitMu.Unlock()
		return
	}
	s.lastEmit = snap.Version
	s.pending = append(s.pending, snap)
	if s.emitting {
		s.emitMu.Unlock()
		return
	}
	s.emitting = true
	s.emitMu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			s.emitMu.Lock()
			s.emitting = false
			s.pending = nil
			s.emitMu.Unlock()
			panic(p)
		}
	}()
	for {
		s.emitMu.Lock()
		if len(s.pending) == 0 {
			s.emitting = false
			s.emitMu.Unlock()
			return
		}
		next := s.pending[0]
		s.pending = s.pending[1:]
		s.emitMu.Unlock()

		s.hooks.OnChange(next)
	}
}

func (s *Session) revealDelay() time.Duration {
	lo, hi := s.cfg.RevealMin, s.cfg.RevealMax
	if hi <= lo {
		return lo
	}
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return lo + time.Duration(s.rng.Int64N(int64(hi-lo)+1))
}

// historyLocked converts the transcript to chat messages.
func (s *Session) historyLocked() []types.Message {
	out := make([]types.Message, 0, len(s.transcript)+1)
	for _, r := range s.transcript {
		role := types.RoleUser
		if r.Speaker == SpeakerAssistant {
			role = types.RoleAssistant
		}
		out = append(out, types.Message{Role: role, Content: r.Text})
	}
	return out
}

func (s *Session) appendLocked(speaker Speaker, text string) {
	s.transcript = append(s.transcript, Record{Speaker: speaker, Text: text, Timestamp: s.now()})
}
