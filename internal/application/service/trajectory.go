package service

import (
	"sync"
	"time"

	"github.com/aiplusall/researchbench/internal/types"
	"github.com/aiplusall/researchbench/internal/types/interfaces"
)

// Trajectory is the per-tree append-only audit log. One recorder is owned
// by each tree's construction and flushed into the emitted record at
// completion; entries are never rewritten.
type Trajectory struct {
	mu      sync.Mutex
	entries []types.TrajectoryEntry
}

// NewTrajectory creates an empty recorder.
func NewTrajectory() interfaces.TrajectoryRecorder {
	return &Trajectory{}
}

// Record appends one entry, stamping the time if the caller did not.
func (t *Trajectory) Record(entry types.TrajectoryEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	t.mu.Lock()
	t.entries = append(t.entries, entry)
	t.mu.Unlock()
}

// Entries returns a copy of the recorded log in append order.
func (t *Trajectory) Entries() []types.TrajectoryEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	entries := make([]types.TrajectoryEntry, len(t.entries))
	copy(entries, t.entries)
	return entries
}
