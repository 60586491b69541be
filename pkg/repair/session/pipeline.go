package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vango-go/midas/pkg/core/audio/playback"
	"github.com/vango-go/midas/pkg/core/types"
	"github.com/vango-go/midas/pkg/core/voice/tts"
	"github.com/vango-go/midas/pkg/repair/camera"
)

const (
	stageTranscribe = "transcribe"
	stageCapture    = "capture"
	stageChat       = "chat"
	stageReveal     = "reveal"
	stageSynthesize = "synthesize"
	stagePlayback   = "playback"
)

// turnRun carries one turn through the pipeline. Every stage that touches
// session state first checks that tok is still the session's token.
type turnRun struct {
	s         *Session
	tok       *token
	turn      *Turn
	logger    *slog.Logger
	sessionID string
	in        TurnInput
	prior     []types.Message
	userText  string
	frame     *camera.Frame
	result    Result
}

func (s *Session) runTurn(sessionID string, tok *token, turn *Turn, in TurnInput, userText string, prior []types.Message) {
	r := &turnRun{
		s:         s,
		tok:       tok,
		turn:      turn,
		logger:    s.logger.With("session_id", sessionID, "turn_id", turn.ID),
		sessionID: sessionID,
		in:        in,
		prior:     prior,
		userText:  userText,
	}
	start := s.now()

	err := r.executeSafely(s.ctx)
	r.finish(err, start)
}

func (r *turnRun) executeSafely(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("turn panic: %v", p)
		}
	}()
	return r.execute(ctx)
}

func (r *turnRun) current() bool {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.tok == r.tok
}

func (r *turnRun) execute(ctx context.Context) error {
	s := r.s

	if r.in.Audio != nil {
		r.transcribe(ctx)
		if !r.current() {
			return errCancelled
		}
	}

	frame, err := s.camera.CaptureFrame(ctx)
	if err != nil {
		return stageErr(stageCapture, err)
	}
	if !r.current() {
		return errCancelled
	}
	r.frame = &frame

	reply, err := r.chat(ctx, frame)
	if err != nil {
		return stageErr(stageChat, err)
	}
	if !r.current() {
		return errCancelled
	}

	syn, err := r.speak(ctx, reply)
	if err != nil {
		return err
	}
	if err := r.commit(reply); err != nil {
		return err
	}
	r.play(syn)
	return nil
}

// transcribe appends the recognised text as the user record. Failures are
// not fatal: a turn with no recognised speech still sends the frame.
func (r *turnRun) transcribe(ctx context.Context) {
	s := r.s
	text, err := s.voice.Transcribe(ctx, *r.in.Audio)
	if err != nil {
		r.logger.Warn("transcription failed, continuing without text", "stage", stageTranscribe, "error", err)
		return
	}
	if text == "" {
		return
	}

	s.mu.Lock()
	if s.tok != r.tok {
		s.mu.Unlock()
		return
	}
	s.appendLocked(SpeakerUser, text)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	r.userText = text
	if s.speech != nil {
		s.speech.Update(text)
	}
	s.emitChange(snap)
}

func (r *turnRun) chat(ctx context.Context, frame camera.Frame) (string, error) {
	s := r.s
	msgs := r.prior
	if r.userText != "" {
		msgs = append(msgs, types.Message{Role: types.RoleUser, Content: r.userText})
	}
	msgs = types.AttachImage(msgs, types.Image(frame.Data, frame.MediaType))

	resp, err := s.chat.Chat(ctx, &types.ChatRequest{
		Model:       s.cfg.Model,
		System:      s.cfg.SystemPrompt,
		Messages:    msgs,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		return "", err
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return "", errors.New("empty reply")
	}
	return strings.TrimSpace(resp.Text), nil
}

// speak reveals the reply into the draft while speech is synthesized. Both
// settle before it returns. Synthesis failure leaves the turn text-only.
func (r *turnRun) speak(ctx context.Context, reply string) (*tts.Synthesis, error) {
	s := r.s
	var (
		g   errgroup.Group
		syn *tts.Synthesis
	)
	g.Go(func() error {
		return r.reveal(ctx, reply)
	})
	if s.voice.CanSpeak() {
		g.Go(func() error {
			out, err := s.voice.Synthesize(ctx, reply)
			if err != nil {
				r.logger.Warn("speech synthesis failed, reply is text only", "stage", stageSynthesize, "error", err)
				return nil
			}
			syn = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return syn, nil
}

var revealWord = regexp.MustCompile(`\S+\s*`)

func (r *turnRun) reveal(ctx context.Context, reply string) error {
	s := r.s
	for _, word := range revealWord.FindAllString(reply, -1) {
		if !r.tok.sleep(ctx, s.revealDelay()) {
			if ctx.Err() != nil && r.current() {
				return stageErr(stageReveal, ctx.Err())
			}
			return errCancelled
		}
		s.mu.Lock()
		if s.tok != r.tok {
			s.mu.Unlock()
			return errCancelled
		}
		s.draft += word
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.emitChange(snap)
	}
	return nil
}

// commit appends the assistant record and runs the step extractor.
func (r *turnRun) commit(reply string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tok != r.tok {
		return errCancelled
	}
	s.appendLocked(SpeakerAssistant, reply)
	if steps, added := s.extractor.Apply(s.steps, reply); added {
		s.steps = steps
		step := steps[len(steps)-1]
		r.result.Step = &step
	}
	s.draft = ""
	r.result.AssistantText = reply
	return nil
}

// play stops the previous handle before starting the new one.
func (r *turnRun) play(syn *tts.Synthesis) {
	s := r.s
	if syn.Empty() || s.player == nil {
		return
	}
	h, err := s.player.Prepare(playback.Clip{Audio: syn.Audio, Format: syn.Format, SampleRate: syn.SampleRate})
	if err != nil {
		r.logger.Warn("playback prepare failed", "stage", stagePlayback, "error", err)
		return
	}

	s.playMu.Lock()
	defer s.playMu.Unlock()

	s.mu.Lock()
	if s.tok != r.tok {
		s.mu.Unlock()
		h.Stop()
		return
	}
	s.playGen++
	gen := s.playGen
	s.speaking = true
	s.mu.Unlock()

	if s.handle != nil {
		s.handle.Stop()
		s.handle = nil
	}
	if err := h.Start(func() { s.playbackDone(gen) }); err != nil {
		r.logger.Warn("playback start failed", "stage", stagePlayback, "error", err)
		s.playbackDone(gen)
		return
	}
	s.handle = h
	r.result.Spoken = true
}

// playbackDone clears the speaking flag unless a newer playback replaced
// this one.
func (s *Session) playbackDone(gen uint64) {
	s.mu.Lock()
	if s.playGen != gen || !s.speaking {
		s.mu.Unlock()
		return
	}
	s.speaking = false
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emitChange(snap)
}

// finish settles the turn. A failure on a current token becomes exactly one
// synthetic assistant record; inFlight is cleared only while the token is
// current, since End and Reset already cleared it otherwise.
func (r *turnRun) finish(err error, start time.Time) {
	s := r.s
	res := r.result
	res.UserText = r.userText
	res.Outcome = OutcomeCompleted

	s.mu.Lock()
	current := s.tok == r.tok
	switch {
	case err == nil:
	case errors.Is(err, errCancelled) || !current:
		res = Result{Outcome: OutcomeCancelled, UserText: r.userText}
	default:
		res.Outcome = OutcomeFailed
		res.Err = err
		res.AssistantText = s.cfg.FailureText(err)
		s.appendLocked(SpeakerAssistant, res.AssistantText)
		s.draft = ""
	}
	if current {
		s.inFlight = false
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	switch res.Outcome {
	case OutcomeFailed:
		r.logger.Error("turn failed", "error", err)
	case OutcomeCancelled:
		r.logger.Info("turn cancelled")
	default:
		r.logger.Debug("turn completed", "step_added", res.Step != nil, "spoken", res.Spoken)
	}
	if current {
		s.emitChange(snap)
	}
	r.report(res, start)
	r.turn.settle(res)
}

func (r *turnRun) report(res Result, start time.Time) {
	s := r.s
	if s.hooks.OnTurn == nil {
		return
	}
	s.hooks.OnTurn(TurnReport{
		SessionID: r.sessionID,
		TurnID:    r.turn.ID,
		Kind:      r.turn.Kind,
		Outcome:   res.Outcome,
		Err:       res.Err,
		Duration:  s.now().Sub(start),
		Frame:     r.frame,
		StepAdded: res.Step != nil,
		Spoken:    res.Spoken,
	})
}
