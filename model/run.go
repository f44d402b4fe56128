package model

import (
	"time"

	"github.com/pkg/errors"
)

// RunStatus is the lifecycle state of a test run. Runs move from pending
// to running to exactly one terminal state; there are no transitions out
// of a terminal state.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// ParseRunStatus validates and converts a status string.
func ParseRunStatus(val string) (RunStatus, error) {
	status := RunStatus(val)
	switch status {
	case RunPending, RunRunning, RunCompleted, RunFailed, RunCancelled:
		return status, nil
	default:
		return "", errors.Errorf("unknown run status '%s'", val)
	}
}

// IsTerminal reports whether the status permits no further transitions.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// TestRun is one execution of a suite's full configuration list against
// one client. Only the orchestrator mutates a run, and never after it
// reaches a terminal status.
type TestRun struct {
	ID                      string       `bson:"_id" json:"id" yaml:"id"`
	SuiteID                 string       `bson:"suite_id" json:"suite_id" yaml:"suite_id"`
	SuiteName               string       `bson:"suite_name" json:"suite_name" yaml:"suite_name"`
	StartedAt               time.Time    `bson:"started_at" json:"started_at" yaml:"started_at"`
	CompletedAt             time.Time    `bson:"completed_at,omitempty" json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	ClientID                string       `bson:"client_id" json:"client_id" yaml:"client_id"`
	ClientType              ClientType   `bson:"client_type" json:"client_type" yaml:"client_type"`
	Status                  RunStatus    `bson:"status" json:"status" yaml:"status"`
	TotalConfigurations     int          `bson:"total_configurations" json:"total_configurations" yaml:"total_configurations"`
	CompletedConfigurations int          `bson:"completed_configurations" json:"completed_configurations" yaml:"completed_configurations"`
	Results                 []TestResult `bson:"-" json:"results,omitempty" yaml:"results,omitempty"`
}

// NewTestRun creates a pending run for the given suite and client.
func NewTestRun(id string, suite *TestSuiteDefinition, clientID string, clientType ClientType) *TestRun {
	return &TestRun{
		ID:                  id,
		SuiteID:             suite.ID,
		SuiteName:           suite.Name,
		ClientID:            clientID,
		ClientType:          clientType,
		Status:              RunPending,
		TotalConfigurations: suite.TotalTestCount(),
	}
}

// Start transitions the run from pending to running and records the
// start time.
func (r *TestRun) Start(now time.Time) error {
	if r.Status != RunPending {
		return errors.Errorf("cannot start run %s in status '%s'", r.ID, r.Status)
	}
	r.Status = RunRunning
	r.StartedAt = now
	return nil
}

// Complete transitions the run to completed; valid only while running.
func (r *TestRun) Complete(now time.Time) error { return r.finish(RunCompleted, now) }

// Cancel transitions the run to cancelled; valid only while running.
func (r *TestRun) Cancel(now time.Time) error { return r.finish(RunCancelled, now) }

// Fail transitions the run to failed; valid only while running. A failed
// run reflects an orchestration-level failure, never a single
// configuration's failure, which is recorded as a result with errors.
func (r *TestRun) Fail(now time.Time) error { return r.finish(RunFailed, now) }

func (r *TestRun) finish(status RunStatus, now time.Time) error {
	if r.Status != RunRunning {
		return errors.Errorf("cannot transition run %s from '%s' to '%s'", r.ID, r.Status, status)
	}
	r.Status = status
	r.CompletedAt = now
	return nil
}

// AppendResult records one configuration's measurement and advances the
// completion counter.
func (r *TestRun) AppendResult(result TestResult) error {
	if r.Status != RunRunning {
		return errors.Errorf("cannot append results to run %s in status '%s'", r.ID, r.Status)
	}
	r.Results = append(r.Results, result)
	r.CompletedConfigurations++
	return nil
}

// ProgressPercent reports completion as a percentage of the total
// configuration count.
func (r *TestRun) ProgressPercent() float64 {
	if r.TotalConfigurations == 0 {
		return 0
	}
	return float64(r.CompletedConfigurations) / float64(r.TotalConfigurations) * 100
}

// ElapsedTime is the wall-clock duration of the run, using the current
// time while the run is still in flight.
func (r *TestRun) ElapsedTime() time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	end := r.CompletedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(r.StartedAt)
}

// SuccessfulResults filters the run's results to those without errors.
func (r *TestRun) SuccessfulResults() []TestResult {
	out := []TestResult{}
	for _, result := range r.Results {
		if result.IsSuccess() {
			out = append(out, result)
		}
	}
	return out
}
