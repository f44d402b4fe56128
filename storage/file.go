package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"github.com/unamentis/laurel/model"
)

const (
	suitesDir    = "suites"
	runsDir      = "runs"
	baselinesDir = "baselines"
)

// FileStorage persists harness data as one JSON document per entity
// under the data directory. Results live inside their run's document.
// All state is held in memory and written through on every mutation, so
// a single process owns the data directory at a time.
type FileStorage struct {
	mu        sync.RWMutex
	dir       string
	suites    map[string]model.TestSuiteDefinition
	runs      map[string]model.TestRun
	baselines map[string]model.PerformanceBaseline
}

// NewFileStorage creates the directory layout if needed and loads every
// existing document into memory. Documents that fail to parse are
// logged and skipped rather than failing startup.
func NewFileStorage(dir string) (*FileStorage, error) {
	if dir == "" {
		return nil, errors.New("data directory is not specified")
	}

	s := &FileStorage{
		dir:       dir,
		suites:    map[string]model.TestSuiteDefinition{},
		runs:      map[string]model.TestRun{},
		baselines: map[string]model.PerformanceBaseline{},
	}

	for _, sub := range []string{suitesDir, runsDir, baselinesDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, errors.Wrapf(err, "problem creating directory '%s'", sub)
		}
	}

	if err := loadDir(filepath.Join(dir, suitesDir), func(doc []byte) error {
		suite := model.TestSuiteDefinition{}
		if err := json.Unmarshal(doc, &suite); err != nil {
			return err
		}
		s.suites[suite.ID] = suite
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "problem loading suites")
	}

	if err := loadDir(filepath.Join(dir, runsDir), func(doc []byte) error {
		run := model.TestRun{}
		if err := json.Unmarshal(doc, &run); err != nil {
			return err
		}
		s.runs[run.ID] = run
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "problem loading runs")
	}

	if err := loadDir(filepath.Join(dir, baselinesDir), func(doc []byte) error {
		baseline := model.PerformanceBaseline{}
		if err := json.Unmarshal(doc, &baseline); err != nil {
			return err
		}
		s.baselines[baseline.ID] = baseline
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "problem loading baselines")
	}

	return s, nil
}

func loadDir(dir string, load func([]byte) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.WithStack(err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		doc, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "problem reading '%s'", path)
		}
		if err := load(doc); err != nil {
			grip.Warning(message.WrapError(err, message.Fields{
				"message": "skipping unparsable document",
				"path":    path,
			}))
		}
	}
	return nil
}

func validateID(id string) error {
	if id == "" {
		return errors.New("id is not specified")
	}
	if strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return errors.Errorf("invalid id '%s'", id)
	}
	return nil
}

// writeDoc must be called with the write lock held.
func (s *FileStorage) writeDoc(sub, id string, doc interface{}) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "problem marshalling document")
	}
	path := filepath.Join(s.dir, sub, id+".json")
	return errors.Wrapf(os.WriteFile(path, data, 0644), "problem writing '%s'", path)
}

func (s *FileStorage) removeDoc(sub, id string) error {
	path := filepath.Join(s.dir, sub, id+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "problem removing '%s'", path)
	}
	return nil
}

////////////////////////////////////////////////////////////////////////
//
// Suites

func (s *FileStorage) ListSuites(_ context.Context) ([]model.TestSuiteDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.TestSuiteDefinition, 0, len(s.suites))
	for _, suite := range s.suites {
		out = append(out, suite)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *FileStorage) GetSuite(_ context.Context, id string) (*model.TestSuiteDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suite, ok := s.suites[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "suite '%s'", id)
	}
	return &suite, nil
}

func (s *FileStorage) SaveSuite(_ context.Context, suite *model.TestSuiteDefinition) error {
	if err := validateID(suite.ID); err != nil {
		return errors.WithStack(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeDoc(suitesDir, suite.ID, suite); err != nil {
		return errors.WithStack(err)
	}
	s.suites[suite.ID] = *suite
	return nil
}

func (s *FileStorage) DeleteSuite(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.suites[id]; !ok {
		return errors.Wrapf(ErrNotFound, "suite '%s'", id)
	}
	if err := s.removeDoc(suitesDir, id); err != nil {
		return errors.WithStack(err)
	}
	delete(s.suites, id)
	return nil
}

////////////////////////////////////////////////////////////////////////
//
// Runs

func (s *FileStorage) ListRuns(_ context.Context, filter RunFilter) ([]model.TestRun, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []model.TestRun{}
	for _, run := range s.runs {
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		if filter.SuiteID != "" && run.SuiteID != filter.SuiteID {
			continue
		}
		run.Results = nil
		matched = append(matched, run)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= total {
			return []model.TestRun{}, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *FileStorage) GetRun(_ context.Context, id string) (*model.TestRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "run '%s'", id)
	}
	run.Results = append([]model.TestResult{}, run.Results...)
	return &run, nil
}

func (s *FileStorage) SaveRun(_ context.Context, run *model.TestRun) error {
	if err := validateID(run.ID); err != nil {
		return errors.WithStack(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeDoc(runsDir, run.ID, run); err != nil {
		return errors.WithStack(err)
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *FileStorage) UpdateRunStatus(_ context.Context, id string, status model.RunStatus, completedConfigurations int, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "run '%s'", id)
	}

	run.Status = status
	run.CompletedConfigurations = completedConfigurations
	if !completedAt.IsZero() {
		run.CompletedAt = completedAt
	}
	if err := s.writeDoc(runsDir, id, &run); err != nil {
		return errors.WithStack(err)
	}
	s.runs[id] = run
	return nil
}

func (s *FileStorage) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return errors.Wrapf(ErrNotFound, "run '%s'", id)
	}
	if err := s.removeDoc(runsDir, id); err != nil {
		return errors.WithStack(err)
	}
	delete(s.runs, id)
	return nil
}

////////////////////////////////////////////////////////////////////////
//
// Results

func (s *FileStorage) SaveResult(_ context.Context, runID string, result model.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "run '%s'", runID)
	}

	replaced := false
	for idx := range run.Results {
		if run.Results[idx].ID == result.ID {
			run.Results[idx] = result
			replaced = true
			break
		}
	}
	if !replaced {
		run.Results = append(run.Results, result)
	}

	if err := s.writeDoc(runsDir, runID, &run); err != nil {
		return errors.WithStack(err)
	}
	s.runs[runID] = run
	return nil
}

func (s *FileStorage) GetResults(_ context.Context, runID, configID string, limit int) ([]model.TestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "run '%s'", runID)
	}

	out := []model.TestResult{}
	for _, result := range run.Results {
		if configID != "" && result.ConfigID != configID {
			continue
		}
		out = append(out, result)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

////////////////////////////////////////////////////////////////////////
//
// Baselines

func (s *FileStorage) ListBaselines(_ context.Context) ([]model.PerformanceBaseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.PerformanceBaseline, 0, len(s.baselines))
	for _, baseline := range s.baselines {
		out = append(out, baseline)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *FileStorage) GetBaseline(_ context.Context, id string) (*model.PerformanceBaseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	baseline, ok := s.baselines[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "baseline '%s'", id)
	}
	return &baseline, nil
}

func (s *FileStorage) SaveBaseline(_ context.Context, baseline *model.PerformanceBaseline) error {
	if err := validateID(baseline.ID); err != nil {
		return errors.WithStack(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	catcher := grip.NewBasicCatcher()
	if baseline.IsActive {
		for id, other := range s.baselines {
			if id == baseline.ID || !other.IsActive {
				continue
			}
			other.IsActive = false
			catcher.Add(s.writeDoc(baselinesDir, id, &other))
			s.baselines[id] = other
		}
	}
	catcher.Add(s.writeDoc(baselinesDir, baseline.ID, baseline))
	if catcher.HasErrors() {
		return errors.Wrap(catcher.Resolve(), "problem writing baselines")
	}
	s.baselines[baseline.ID] = *baseline
	return nil
}

func (s *FileStorage) DeleteBaseline(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.baselines[id]; !ok {
		return errors.Wrapf(ErrNotFound, "baseline '%s'", id)
	}
	if err := s.removeDoc(baselinesDir, id); err != nil {
		return errors.WithStack(err)
	}
	delete(s.baselines, id)
	return nil
}

func (s *FileStorage) GetActiveBaseline(_ context.Context) (*model.PerformanceBaseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *model.PerformanceBaseline
	for id := range s.baselines {
		baseline := s.baselines[id]
		if baseline.IsActive {
			return &baseline, nil
		}
		if newest == nil || baseline.CreatedAt.After(newest.CreatedAt) {
			newest = &baseline
		}
	}
	if newest == nil {
		return nil, errors.Wrap(ErrNotFound, "no baselines exist")
	}
	return newest, nil
}
