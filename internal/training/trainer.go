package training

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/tradecrew/tradecrew/internal/metrics"
)

// TrainerAgentID identifies the trainer in logs and registry records.
const TrainerAgentID = "trainer_agent"

// TrainerConfig holds retraining trigger policy
type TrainerConfig struct {
	MinOutcomes        int // outcome-labeled records required to trigger a run
	FailureStreakPause int // consecutive failures that pause triggering
}

// DefaultTrainerConfig returns the production trigger policy
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		MinOutcomes:        500,
		FailureStreakPause: 3,
	}
}

func (c TrainerConfig) withDefaults() TrainerConfig {
	defaults := DefaultTrainerConfig()
	if c.MinOutcomes <= 0 {
		c.MinOutcomes = defaults.MinOutcomes
	}
	if c.FailureStreakPause <= 0 {
		c.FailureStreakPause = defaults.FailureStreakPause
	}
	return c
}

// trainingState is the mutable run control state guarded by the mutex
type trainingState struct {
	running       bool
	failureStreak int
}

// TrainerAgent gates autonomous retraining: threshold trigger, single
// active run, and failure-streak pause.
type TrainerAgent struct {
	mu    sync.Mutex
	state trainingState
	cfg   TrainerConfig
	log   zerolog.Logger
}

// NewTrainerAgent creates a trainer agent
func NewTrainerAgent(cfg TrainerConfig, log zerolog.Logger) *TrainerAgent {
	return &TrainerAgent{
		cfg: cfg.withDefaults(),
		log: log.With().Str("component", TrainerAgentID).Logger(),
	}
}

// ShouldTrigger reports whether a retraining run should start for the
// given outcome-labeled record count. Triggering pauses while the
// failure streak is at or above the pause threshold.
func (t *TrainerAgent) ShouldTrigger(outcomeRecordCount int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.failureStreak >= t.cfg.FailureStreakPause {
		return false
	}
	return outcomeRecordCount >= t.cfg.MinOutcomes
}

// BeginRun acquires the run lock; it returns false when a run is
// already active.
func (t *TrainerAgent) BeginRun() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.running {
		return false
	}
	t.state.running = true
	return true
}

// CompleteRun releases the run lock and updates the failure streak
func (t *TrainerAgent) CompleteRun(succeeded bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.running = false
	status := "succeeded"
	if succeeded {
		t.state.failureStreak = 0
	} else {
		t.state.failureStreak++
		status = "failed"
	}
	metrics.TrainingRuns.WithLabelValues(TrainerAgentID, status).Inc()
	metrics.TrainingFailureStreak.WithLabelValues(TrainerAgentID).Set(float64(t.state.failureStreak))

	t.log.Info().
		Bool("succeeded", succeeded).
		Int("failure_streak", t.state.failureStreak).
		Msg("Training run completed")
}

// ResetFailureStreak clears the failure streak, typically after a
// successful promotion.
func (t *TrainerAgent) ResetFailureStreak() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.failureStreak = 0
	metrics.TrainingFailureStreak.WithLabelValues(TrainerAgentID).Set(0)
}

// FailureStreak returns the current consecutive failure count
func (t *TrainerAgent) FailureStreak() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.failureStreak
}

// Running reports whether a run is currently active
func (t *TrainerAgent) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.running
}
