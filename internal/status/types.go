// Package status records the outcome of reconciliation runs for operators.
// The record is observational only; runs never resume from it.
package status

import (
	"time"

	"github.com/memberhub/roster-sync/internal/reconcile"
)

// RunPhase is the lifecycle phase of a recorded run.
type RunPhase string

const (
	// RunPhaseRunning means the run is in progress.
	RunPhaseRunning RunPhase = "Running"
	// RunPhaseCompleted means every eligible tenant was attempted.
	RunPhaseCompleted RunPhase = "Completed"
	// RunPhaseAborted means the run stopped on a fatal failure.
	RunPhaseAborted RunPhase = "Aborted"
)

// Trigger says what started a run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerStartup  Trigger = "startup"
	TriggerManual   Trigger = "manual"
)

// RunStatus is the persisted record of one run.
type RunStatus struct {
	RunID   string   `json:"runId"`
	Trigger Trigger  `json:"trigger"`
	Phase   RunPhase `json:"phase"`
	// Message carries the abort reason, empty otherwise.
	Message     string                   `json:"message,omitempty"`
	StartedAt   time.Time                `json:"startedAt"`
	FinishedAt  *time.Time               `json:"finishedAt,omitempty"`
	Deactivated int64                    `json:"deactivated"`
	Records     reconcile.RecordCounts   `json:"records"`
	Tenants     []reconcile.TenantResult `json:"tenants,omitempty"`
}

// Running creates the record persisted when a run starts.
func Running(runID string, trigger Trigger, startedAt time.Time) *RunStatus {
	return &RunStatus{
		RunID:     runID,
		Trigger:   trigger,
		Phase:     RunPhaseRunning,
		StartedAt: startedAt,
	}
}

// Finish fills s from the orchestrator's result and error.
func (s *RunStatus) Finish(result *reconcile.Result, runErr error, finishedAt time.Time) {
	s.FinishedAt = &finishedAt
	s.Phase = RunPhaseCompleted
	if result != nil {
		s.Deactivated = result.Deactivated
		s.Records = result.Records()
		s.Tenants = result.Tenants
		if result.Aborted() {
			s.Phase = RunPhaseAborted
		}
	}
	if runErr != nil {
		s.Phase = RunPhaseAborted
		s.Message = runErr.Error()
	}
}

// TenantCounts returns how many tenants succeeded and failed.
func (s *RunStatus) TenantCounts() (succeeded, failed int) {
	for _, t := range s.Tenants {
		if t.Succeeded {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// Duration is the run's wall time, zero while running.
func (s *RunStatus) Duration() time.Duration {
	if s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
