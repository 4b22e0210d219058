package orchestrator

import "sync"

// TrainingGuard is the process-wide training state cell. At most one
// training run may be active system-wide, regardless of model type: all
// types compete for the same bounded compute.
type TrainingGuard struct {
	mu      sync.Mutex
	running bool
}

// NewTrainingGuard creates a guard in the idle state
func NewTrainingGuard() *TrainingGuard {
	return &TrainingGuard{}
}

// TryBegin atomically transitions idle -> running. It returns false, with
// no state change, if a run is already active.
func (g *TrainingGuard) TryBegin() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return false
	}
	g.running = true
	return true
}

// End unconditionally resets the guard to idle
func (g *TrainingGuard) End() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = false
}

// Active reports whether a training run is in progress
func (g *TrainingGuard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}
