package session

import (
	"time"

	"github.com/vango-go/midas/pkg/repair/checklist"
)

// Snapshot is a copy of the session's visible state. Version increases with
// every change, so a consumer can discard a snapshot older than one it has
// already seen.
type Snapshot struct {
	Version    uint64           `json:"version"`
	ID         string           `json:"id"`
	Phase      Phase            `json:"phase"`
	Transcript []Record         `json:"transcript"`
	Checklist  []checklist.Step `json:"checklist"`
	Draft      string           `json:"draft,omitempty"`
	Speaking   bool             `json:"speaking"`
	InFlight   bool             `json:"in_flight"`
	Turns      int              `json:"turns"`
	StartedAt  time.Time        `json:"started_at,omitzero"`
	EndedAt    time.Time        `json:"ended_at,omitzero"`
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// snapshotLocked records a state change and returns the new state.
func (s *Session) snapshotLocked() Snapshot {
	s.version++
	return s.viewLocked()
}

func (s *Session) viewLocked() Snapshot {
	return Snapshot{
		Version:    s.version,
		ID:         s.id,
		Phase:      s.phase,
		Transcript: append([]Record{}, s.transcript...),
		Checklist:  append([]checklist.Step{}, s.steps...),
		Draft:      s.draft,
		Speaking:   s.speaking,
		InFlight:   s.inFlight,
		Turns:      s.turns,
		StartedAt:  s.startedAt,
		EndedAt:    s.endedAt,
	}
}
