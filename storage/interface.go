/*
Package storage provides persistence for the latency harness: suites,
runs, results, and baselines behind one interface with file-based and
mongodb-backed implementations. The orchestrator and REST layers depend
only on the Storage interface.
*/
package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	laurel "github.com/unamentis/laurel"
	"github.com/unamentis/laurel/model"
)

// ErrNotFound distinguishes "unknown id" from every other failure;
// callers must not treat an unknown suite, run, or baseline as empty.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether the error (or its cause) is ErrNotFound.
func IsNotFound(err error) bool { return errors.Cause(err) == ErrNotFound }

// RunFilter narrows ListRuns.
type RunFilter struct {
	Status  model.RunStatus
	SuiteID string
	Limit   int
	Offset  int
}

// Storage is the persistence boundary for harness data.
type Storage interface {
	ListSuites(context.Context) ([]model.TestSuiteDefinition, error)
	GetSuite(ctx context.Context, id string) (*model.TestSuiteDefinition, error)
	SaveSuite(context.Context, *model.TestSuiteDefinition) error
	DeleteSuite(ctx context.Context, id string) error

	// ListRuns returns the filtered page of runs, most recently started
	// first, along with the total matching count. Runs returned from
	// listings do not include their results.
	ListRuns(context.Context, RunFilter) ([]model.TestRun, int, error)
	// GetRun returns the run with its results populated.
	GetRun(ctx context.Context, id string) (*model.TestRun, error)
	SaveRun(context.Context, *model.TestRun) error
	UpdateRunStatus(ctx context.Context, id string, status model.RunStatus, completedConfigurations int, completedAt time.Time) error
	DeleteRun(ctx context.Context, id string) error

	SaveResult(ctx context.Context, runID string, result model.TestResult) error
	GetResults(ctx context.Context, runID, configID string, limit int) ([]model.TestResult, error)

	ListBaselines(context.Context) ([]model.PerformanceBaseline, error)
	GetBaseline(ctx context.Context, id string) (*model.PerformanceBaseline, error)
	// SaveBaseline persists the baseline; when the baseline is active,
	// every other baseline is deactivated in the same operation.
	SaveBaseline(context.Context, *model.PerformanceBaseline) error
	DeleteBaseline(ctx context.Context, id string) error
	// GetActiveBaseline returns the active baseline, falling back to
	// the most recently created one, or ErrNotFound when none exist.
	GetActiveBaseline(context.Context) (*model.PerformanceBaseline, error)
}

// NewStorage constructs the backend selected by the environment's
// configuration.
func NewStorage(ctx context.Context, env laurel.Environment) (Storage, error) {
	conf := env.GetConf()

	switch conf.StorageType {
	case laurel.StorageFile:
		s, err := NewFileStorage(conf.DataDir)
		return s, errors.Wrap(err, "problem initializing file storage")
	case laurel.StorageMongo:
		db := env.GetDB()
		if db == nil {
			return nil, errors.New("environment has no database connection")
		}
		return NewMongoStorage(db), nil
	default:
		return nil, errors.Errorf("unknown storage type '%s'", conf.StorageType)
	}
}
