package reconcile

import (
	"time"
)

// Phase is a state of the orchestrator.
type Phase string

// Orchestrator phases. A run moves Idle -> Deactivating -> PerTenantLoop ->
// Idle, or Idle -> Deactivating -> Aborted on a fatal failure.
const (
	PhaseIdle          Phase = "Idle"
	PhaseDeactivating  Phase = "Deactivating"
	PhasePerTenantLoop Phase = "PerTenantLoop"
	PhaseAborted       Phase = "Aborted"
)

// Run result values recorded in metrics and events.
const (
	ResultCompleted = "completed"
	ResultAborted   = "aborted"
)

// Tenant failure stages.
const (
	StageCredential = "credential"
	StageFetch      = "fetch"
	StageCancelled  = "cancelled"
)

// Abort reasons.
const (
	ReasonAuthenticationFailed = "AuthenticationFailed"
	ReasonCredentialsFailed    = "CredentialsFailed"
	ReasonDeactivateFailed     = "DeactivateFailed"
	ReasonEnumerateFailed      = "EnumerateFailed"
	ReasonCancelled            = "Cancelled"
)

// Error is a fatal run failure.
type Error struct {
	Err     error
	Message string
	// Phase is the phase the run was in when it aborted.
	Phase  Phase
	Reason string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RecordCounts tallies what happened to the records of a roster.
type RecordCounts struct {
	Fetched    int `json:"fetched"`
	Upserted   int `json:"upserted"`
	Duplicates int `json:"duplicates"`
	Invalid    int `json:"invalid"`
	Failed     int `json:"failed"`
}

func (c *RecordCounts) add(o RecordCounts) {
	c.Fetched += o.Fetched
	c.Upserted += o.Upserted
	c.Duplicates += o.Duplicates
	c.Invalid += o.Invalid
	c.Failed += o.Failed
}

// TenantResult is the outcome of one tenant within a run.
type TenantResult struct {
	TenantID   string        `json:"tenantId"`
	TenantName string        `json:"tenantName"`
	Succeeded  bool          `json:"succeeded"`
	Stage      string        `json:"stage,omitempty"`
	Error      string        `json:"error,omitempty"`
	Records    RecordCounts  `json:"records"`
	Duration   time.Duration `json:"duration"`
}

// Result summarises a run. It is returned for aborted runs too, carrying
// whatever completed before the abort.
type Result struct {
	RunID       string         `json:"runId"`
	Phase       Phase          `json:"phase"`
	StartedAt   time.Time      `json:"startedAt"`
	FinishedAt  time.Time      `json:"finishedAt"`
	Deactivated int64          `json:"deactivated"`
	Tenants     []TenantResult `json:"tenants"`
}

// Aborted reports whether the run ended in PhaseAborted.
func (r *Result) Aborted() bool {
	return r.Phase == PhaseAborted
}

// TenantCounts returns how many tenants succeeded and failed.
func (r *Result) TenantCounts() (succeeded, failed int) {
	for _, t := range r.Tenants {
		if t.Succeeded {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// Records sums the record counts of every tenant.
func (r *Result) Records() RecordCounts {
	var total RecordCounts
	for _, t := range r.Tenants {
		total.add(t.Records)
	}
	return total
}

// Duration is the wall time of the run.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
