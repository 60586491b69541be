package history

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/midas/pkg/repair/checklist"
	"github.com/vango-go/midas/pkg/repair/overlay"
	"github.com/vango-go/midas/pkg/repair/session"
)

// FaultSource reports the strongest detection seen during a session.
// overlay.Window implements it.
type FaultSource interface {
	Top() (overlay.Annotation, bool)
	ResetTop()
}

// Recorder saves a Record when a session ends with a non-empty checklist.
type Recorder struct {
	Store       Store
	Faults      FaultSource
	DeviceID    string
	DeviceModel string
	UserID      string
	Timeout     time.Duration
	Logger      *slog.Logger
}

// Build converts a final snapshot into a Record. It reports false when the
// session produced no steps.
func (r *Recorder) Build(snap session.Snapshot) (Record, bool) {
	if len(snap.Checklist) == 0 {
		return Record{}, false
	}
	completed := checklist.CompletedCount(snap.Checklist)
	rec := Record{
		ID:             uuid.NewString(),
		SessionID:      snap.ID,
		DeviceID:       r.DeviceID,
		DeviceModel:    r.DeviceModel,
		Steps:          snap.Checklist,
		CompletedSteps: completed,
		Success:        completed == len(snap.Checklist),
		UserID:         r.UserID,
		CreatedAt:      snap.EndedAt,
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if r.Faults != nil {
		if top, ok := r.Faults.Top(); ok {
			rec.Fault = top.Label
			rec.Confidence = int(math.Round(min(max(top.Confidence, 0), 1) * 1000))
		}
	}
	return rec, true
}

// OnReset is a session.Hooks.OnReset callback. Detections from an abandoned
// session must not be attributed to the next one.
func (r *Recorder) OnReset(snap session.Snapshot) {
	if r.Faults != nil {
		r.Faults.ResetTop()
	}
}

// OnEnd is a session.Hooks.OnEnd callback.
func (r *Recorder) OnEnd(snap session.Snapshot) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rec, ok := r.Build(snap)
	if r.Faults != nil {
		r.Faults.ResetTop()
	}
	if !ok {
		logger.Debug("session ended without steps, nothing recorded", "session_id", snap.ID)
		return
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := r.Store.Save(ctx, rec); err != nil {
		logger.Error("failed to record repair", "session_id", snap.ID, "error", err)
		return
	}
	logger.Info("repair recorded",
		"session_id", snap.ID,
		"repair_id", rec.ID,
		"steps", len(rec.Steps),
		"success", rec.Success,
	)
}
