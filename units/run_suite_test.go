package units

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockExecutor struct {
	executed []string
	err      error
}

func (m *mockExecutor) ExecuteRun(_ context.Context, runID string) error {
	m.executed = append(m.executed, runID)
	return m.err
}

func TestRunSuiteJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t.Run("ExecutesRun", func(t *testing.T) {
		executor := &mockExecutor{}
		j := NewRunSuiteJob(executor, "run_abc123")
		assert.Equal(t, "run-test-suite.run_abc123", j.ID())

		j.Run(ctx)
		assert.NoError(t, j.Error())
		assert.Equal(t, []string{"run_abc123"}, executor.executed)
		assert.True(t, j.Status().Completed)
	})

	t.Run("PropagatesExecutorError", func(t *testing.T) {
		executor := &mockExecutor{err: errors.New("client disconnected")}
		j := NewRunSuiteJob(executor, "run_abc123")

		j.Run(ctx)
		require.Error(t, j.Error())
		assert.Contains(t, j.Error().Error(), "client disconnected")
	})

	t.Run("FailsWithoutExecutor", func(t *testing.T) {
		j := makeRunSuiteJob()
		j.RunID = "run_abc123"

		j.Run(ctx)
		assert.Error(t, j.Error())
	})
}
