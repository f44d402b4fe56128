package harness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	laurel "github.com/unamentis/laurel"
	"github.com/unamentis/laurel/model"
	"github.com/unamentis/laurel/storage"
	"github.com/unamentis/laurel/units"
)

// Orchestrator owns run execution: it resolves a client for a suite,
// creates and persists the run, and drives the expanded configuration
// list sequentially against that client on the environment's queue.
type Orchestrator struct {
	env             laurel.Environment
	storage         storage.Storage
	registry        *ClientRegistry
	transport       ClientTransport
	bus             *EventBus
	dispatchTimeout time.Duration

	mu     sync.Mutex
	active map[string]*runHandle
}

// runHandle carries the cooperative cancellation flag for one in-flight
// run. Cancellation takes effect at configuration boundaries; an
// in-flight dispatch is abandoned and its result discarded.
type runHandle struct {
	mu        sync.Mutex
	cancelled bool
}

func (h *runHandle) cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelled = true
}

func (h *runHandle) isCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// NewOrchestrator wires the orchestrator to its collaborators. The
// dispatch timeout comes from the environment's configuration.
func NewOrchestrator(env laurel.Environment, store storage.Storage, registry *ClientRegistry, transport ClientTransport, bus *EventBus) *Orchestrator {
	return &Orchestrator{
		env:             env,
		storage:         store,
		registry:        registry,
		transport:       transport,
		bus:             bus,
		dispatchTimeout: env.GetConf().DispatchTimeout,
		active:          map[string]*runHandle{},
	}
}

// Registry exposes the client registry for the REST layer.
func (o *Orchestrator) Registry() *ClientRegistry { return o.registry }

// Events exposes the event bus for the REST layer.
func (o *Orchestrator) Events() *EventBus { return o.bus }

// StartSweeper periodically marks clients that missed their heartbeat
// window as disconnected, until the context is done.
func (o *Orchestrator) StartSweeper(ctx context.Context) {
	interval := o.env.GetConf().ClientTTL / 3
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		timer := time.NewTicker(interval)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-timer.C:
				if swept := o.registry.Sweep(now); swept > 0 {
					grip.Info(message.Fields{
						"message": "swept stale clients",
						"count":   swept,
					})
				}
			}
		}
	}()
}

// StartRun creates a run for the suite, claims a client, and enqueues
// the execution job. When clientID is empty the registry picks a
// connected idle client whose capabilities cover the suite's parameter
// space, restricted to clientType when one is given. Naming a client
// takes precedence over the type filter and skips the capability
// check. StartRun fails fast when no client can be claimed.
func (o *Orchestrator) StartRun(ctx context.Context, suiteID, clientID string, clientType model.ClientType) (*model.TestRun, error) {
	suite, err := o.storage.GetSuite(ctx, suiteID)
	if err != nil {
		return nil, errors.Wrapf(err, "problem finding suite '%s'", suiteID)
	}
	if err = suite.Validate(); err != nil {
		return nil, errors.Wrapf(err, "suite '%s' is invalid", suiteID)
	}

	var client *model.ClientStatus
	if clientID != "" {
		client, err = o.registry.Claim(clientID, "")
	} else {
		client, err = o.registry.ClaimCapable(suite.ParameterSpace, clientType, "")
	}
	if err != nil {
		return nil, errors.Wrap(err, "could not claim a client for the run")
	}

	run := model.NewTestRun(
		fmt.Sprintf("run_%s", uuid.New().String()[0:8]),
		suite, client.ClientID, client.ClientType)
	if err = run.Start(time.Now()); err != nil {
		o.registry.MarkIdle(client.ClientID)
		return nil, errors.WithStack(err)
	}
	if err = o.storage.SaveRun(ctx, run); err != nil {
		o.registry.MarkIdle(client.ClientID)
		return nil, errors.Wrapf(err, "problem persisting run '%s'", run.ID)
	}

	o.mu.Lock()
	o.active[run.ID] = &runHandle{}
	o.mu.Unlock()

	if err = o.env.GetQueue().Put(ctx, units.NewRunSuiteJob(o, run.ID)); err != nil {
		o.finishRun(ctx, run, (*model.TestRun).Fail)
		o.release(run.ID)
		return nil, errors.Wrapf(err, "problem enqueueing run '%s'", run.ID)
	}

	grip.Info(message.Fields{
		"message":   "started test run",
		"run_id":    run.ID,
		"suite_id":  suite.ID,
		"client_id": client.ClientID,
		"total":     run.TotalConfigurations,
	})
	return run, nil
}

// CancelRun requests cooperative cancellation of an active run. The run
// finishes its in-flight dispatch, discards that result, and records the
// cancelled status.
func (o *Orchestrator) CancelRun(runID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	handle, ok := o.active[runID]
	if !ok {
		return errors.Errorf("run '%s' is not active", runID)
	}
	handle.cancel()
	return nil
}

func (o *Orchestrator) handleFor(runID string) *runHandle {
	o.mu.Lock()
	defer o.mu.Unlock()

	handle, ok := o.active[runID]
	if !ok {
		handle = &runHandle{}
		o.active[runID] = handle
	}
	return handle
}

func (o *Orchestrator) release(runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, runID)
}

// ExecuteRun drives a started run through every remaining configuration
// in the suite's expansion order. It implements units.RunExecutor and
// runs on the environment's queue.
func (o *Orchestrator) ExecuteRun(ctx context.Context, runID string) error {
	handle := o.handleFor(runID)
	defer o.release(runID)

	run, err := o.storage.GetRun(ctx, runID)
	if err != nil {
		return errors.Wrapf(err, "problem finding run '%s'", runID)
	}
	if run.Status != model.RunRunning {
		return errors.Errorf("run '%s' is in status '%s', not running", runID, run.Status)
	}
	defer o.registry.MarkIdle(run.ClientID)

	suite, err := o.storage.GetSuite(ctx, run.SuiteID)
	if err != nil {
		o.finishRun(ctx, run, (*model.TestRun).Fail)
		return errors.Wrapf(err, "problem finding suite '%s' for run '%s'", run.SuiteID, runID)
	}

	configs := suite.ExpandConfigurations()
	for idx := run.CompletedConfigurations; idx < len(configs); idx++ {
		cfg := configs[idx]

		if handle.isCancelled() {
			o.finishRun(ctx, run, (*model.TestRun).Cancel)
			return nil
		}
		if !o.registry.IsConnected(run.ClientID) {
			o.finishRun(ctx, run, (*model.TestRun).Fail)
			return errors.Errorf("client '%s' disconnected during run '%s'", run.ClientID, runID)
		}

		o.registry.MarkBusy(run.ClientID, cfg.ID)
		result := o.dispatch(ctx, run, cfg)

		// a cancellation that arrived during the dispatch abandons the
		// in-flight measurement
		if handle.isCancelled() {
			o.finishRun(ctx, run, (*model.TestRun).Cancel)
			return nil
		}

		if err = run.AppendResult(*result); err != nil {
			o.finishRun(ctx, run, (*model.TestRun).Fail)
			return errors.WithStack(err)
		}
		if err = o.persistResult(ctx, run, result); err != nil {
			o.finishRun(ctx, run, (*model.TestRun).Fail)
			return errors.Wrapf(err, "problem persisting result for run '%s'", runID)
		}

		o.bus.Publish(Event{Type: EventTestProgress, RunID: run.ID, Payload: ProgressPayload{
			ConfigID:        cfg.ID,
			Completed:       run.CompletedConfigurations,
			Total:           run.TotalConfigurations,
			ProgressPercent: run.ProgressPercent(),
		}})
		o.bus.Publish(Event{Type: EventTestResult, RunID: run.ID, Payload: *result})
	}

	o.finishRun(ctx, run, (*model.TestRun).Complete)
	return nil
}

// dispatch executes one configuration against the run's client and
// always produces a result: dispatch errors, including timeouts, become
// failed results so the run keeps going.
func (o *Orchestrator) dispatch(ctx context.Context, run *model.TestRun, cfg model.TestConfiguration) *model.TestResult {
	client, err := o.registry.Get(run.ClientID)
	if err != nil {
		return failedResult(run, cfg, err)
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, o.dispatchTimeout)
	defer cancel()

	result, err := o.transport.Dispatch(dispatchCtx, client, cfg)
	if err != nil {
		if errors.Cause(err) == context.DeadlineExceeded || dispatchCtx.Err() == context.DeadlineExceeded {
			err = errors.Wrapf(err, "dispatch timed out after %s", o.dispatchTimeout)
		}
		grip.Warning(message.WrapError(err, message.Fields{
			"message":   "configuration dispatch failed",
			"run_id":    run.ID,
			"config_id": cfg.ID,
			"client_id": run.ClientID,
		}))
		return failedResult(run, cfg, err)
	}

	stampResult(result, run, cfg)
	result.ApplyNetworkProjections(cfg)
	return result
}

// failedResult records a configuration that produced no measurement.
func failedResult(run *model.TestRun, cfg model.TestConfiguration, err error) *model.TestResult {
	result := &model.TestResult{Errors: []string{err.Error()}}
	stampResult(result, run, cfg)
	return result
}

// stampResult fills in the identity fields the client is not trusted to
// set.
func stampResult(result *model.TestResult, run *model.TestRun, cfg model.TestConfiguration) {
	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	result.ConfigID = cfg.ConfigID()
	result.ScenarioName = cfg.ScenarioName
	result.Repetition = cfg.Repetition
	result.ClientType = run.ClientType
	result.Network = cfg.Network
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}
}

func (o *Orchestrator) persistResult(ctx context.Context, run *model.TestRun, result *model.TestResult) error {
	catcher := grip.NewBasicCatcher()
	catcher.Add(o.storage.SaveResult(ctx, run.ID, *result))
	catcher.Add(o.storage.UpdateRunStatus(ctx, run.ID, run.Status, run.CompletedConfigurations, time.Time{}))
	return catcher.Resolve()
}

// finishRun applies the terminal transition, persists it, releases the
// client, and publishes the completion event.
func (o *Orchestrator) finishRun(ctx context.Context, run *model.TestRun, transition func(*model.TestRun, time.Time) error) {
	if err := transition(run, time.Now()); err != nil {
		grip.Error(message.WrapError(err, message.Fields{
			"message": "invalid terminal transition",
			"run_id":  run.ID,
		}))
		return
	}

	grip.Error(message.WrapError(
		o.storage.UpdateRunStatus(ctx, run.ID, run.Status, run.CompletedConfigurations, run.CompletedAt),
		message.Fields{
			"message": "problem persisting terminal run status",
			"run_id":  run.ID,
			"status":  run.Status,
		}))

	o.registry.MarkIdle(run.ClientID)
	o.bus.Publish(Event{Type: EventRunComplete, RunID: run.ID, Payload: map[string]interface{}{
		"status":    run.Status,
		"completed": run.CompletedConfigurations,
		"total":     run.TotalConfigurations,
	}})

	grip.Info(message.Fields{
		"message":   "test run finished",
		"run_id":    run.ID,
		"status":    run.Status,
		"completed": run.CompletedConfigurations,
		"total":     run.TotalConfigurations,
		"elapsed":   run.ElapsedTime().String(),
	})
}
