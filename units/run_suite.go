// Package units contains the amboy jobs the service runs on its shared
// queue.
package units

import (
	"context"
	"fmt"

	"github.com/mongodb/amboy"
	"github.com/mongodb/amboy/dependency"
	"github.com/mongodb/amboy/job"
	"github.com/mongodb/amboy/registry"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

const runSuiteJobName = "run-test-suite"

// RunExecutor executes a previously created run to completion. The
// orchestrator implements this; the indirection keeps job definitions
// free of orchestration dependencies.
type RunExecutor interface {
	ExecuteRun(ctx context.Context, runID string) error
}

func init() {
	registry.AddJobType(runSuiteJobName, func() amboy.Job { return makeRunSuiteJob() })
}

type runSuiteJob struct {
	RunID    string `bson:"run_id" json:"run_id" yaml:"run_id"`
	job.Base `bson:"metadata" json:"metadata" yaml:"metadata"`

	executor RunExecutor
}

func makeRunSuiteJob() *runSuiteJob {
	j := &runSuiteJob{
		Base: job.Base{
			JobType: amboy.JobType{
				Name:    runSuiteJobName,
				Version: 1,
			},
		},
	}
	j.SetDependency(dependency.NewAlways())
	return j
}

// NewRunSuiteJob creates a job that drives the given run through the
// executor on the local queue.
func NewRunSuiteJob(executor RunExecutor, runID string) amboy.Job {
	j := makeRunSuiteJob()
	j.executor = executor
	j.RunID = runID
	j.SetID(fmt.Sprintf("%s.%s", runSuiteJobName, runID))
	return j
}

func (j *runSuiteJob) Run(ctx context.Context) {
	defer j.MarkComplete()

	if j.executor == nil {
		j.AddError(errors.New("no run executor is attached to the job"))
		return
	}

	grip.Info(message.Fields{
		"message": "starting test run execution",
		"job_id":  j.ID(),
		"run_id":  j.RunID,
	})

	if err := j.executor.ExecuteRun(ctx, j.RunID); err != nil {
		j.AddError(errors.Wrapf(err, "problem executing run '%s'", j.RunID))
		grip.Error(message.WrapError(err, message.Fields{
			"message": "test run execution failed",
			"job_id":  j.ID(),
			"run_id":  j.RunID,
		}))
	}
}
