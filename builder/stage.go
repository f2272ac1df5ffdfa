package builder

import "sync"

// Stage groups strategies so that independently added strategies still run
// in a sensible order.
type Stage int

const (
	// StagePreCreation runs before any instance exists: key remapping,
	// singleton lookup, policy discovery.
	StagePreCreation Stage = iota
	// StageCreation allocates the instance.
	StageCreation
	// StageInitialization populates the instance: properties, method calls.
	StageInitialization
	// StagePostInitialization sees the fully populated instance: wrapping,
	// lifecycle notification.
	StagePostInitialization

	stageCount
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StagePreCreation:
		return "pre-creation"
	case StageCreation:
		return "creation"
	case StageInitialization:
		return "initialization"
	case StagePostInitialization:
		return "post-initialization"
	}
	return "unknown"
}

// StagedChain collects strategies per stage and flattens them into a Chain.
type StagedChain struct {
	mu     sync.Mutex
	stages [stageCount][]Strategy
}

// NewStagedChain creates an empty StagedChain.
func NewStagedChain() *StagedChain {
	return &StagedChain{}
}

// Add appends s to stage. Unknown stages are clamped to the nearest valid one.
func (sc *StagedChain) Add(stage Stage, s Strategy) {
	if s == nil {
		return
	}
	if stage < StagePreCreation {
		stage = StagePreCreation
	}
	if stage >= stageCount {
		stage = StagePostInitialization
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.stages[stage] = append(sc.stages[stage], s)
}

// Chain returns a new Chain with every stage in order.
func (sc *StagedChain) Chain() *Chain {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	c := NewChain()
	for _, strategies := range sc.stages {
		c.Add(strategies...)
	}
	return c
}
