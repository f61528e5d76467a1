package tuning

import (
	"time"
)

// TrialState is the terminal state of a trial.
type TrialState string

// Trial states.
const (
	TrialComplete TrialState = "complete"
	TrialFailed   TrialState = "failed"
)

// TrialResult is the immutable record of one evaluated configuration.
type TrialResult struct {
	Number   int           `json:"number"`
	Config   Configuration `json:"params"`
	Score    float64       `json:"score"`
	State    TrialState    `json:"state"`
	Err      string        `json:"error,omitempty"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration_ns"`
}

// ProgressUpdate reports the state of a running study after each trial.
type ProgressUpdate struct {
	StudyID     string
	Trial       int
	TotalTrials int
	Phase       string
	Score       float64
	State       TrialState
	BestTrial   int
	BestScore   float64
	BestConfig  Configuration
}

// Phases reported in ProgressUpdate.
const (
	PhaseStartup      = "startup"
	PhaseOptimization = "optimization"
)
