package harness

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mongodb/amboy"
	"github.com/mongodb/amboy/queue"
	"github.com/stretchr/testify/suite"
	laurel "github.com/unamentis/laurel"
	"github.com/unamentis/laurel/model"
	"github.com/unamentis/laurel/storage"
	"go.mongodb.org/mongo-driver/mongo"
)

type mockEnv struct {
	conf  *laurel.Configuration
	queue amboy.Queue
	ctx   context.Context
}

func (e *mockEnv) GetConf() *laurel.Configuration { return e.conf }
func (e *mockEnv) GetQueue() amboy.Queue          { return e.queue }
func (e *mockEnv) GetClient() *mongo.Client       { return nil }
func (e *mockEnv) GetDB() *mongo.Database         { return nil }
func (e *mockEnv) Context() (context.Context, context.CancelFunc) {
	return context.WithCancel(e.ctx)
}
func (e *mockEnv) Close(_ context.Context) error { return nil }

// mockTransport routes every dispatch through a test-provided function
// that also receives the 1-based call number.
type mockTransport struct {
	mu       sync.Mutex
	calls    int
	dispatch func(call int, ctx context.Context, cfg model.TestConfiguration) (*model.TestResult, error)
}

func (t *mockTransport) Dispatch(ctx context.Context, _ *model.ClientStatus, cfg model.TestConfiguration) (*model.TestResult, error) {
	t.mu.Lock()
	t.calls++
	call := t.calls
	fn := t.dispatch
	t.mu.Unlock()
	return fn(call, ctx, cfg)
}

func okResult(latency float64) *model.TestResult {
	return &model.TestResult{E2ELatencyMS: latency, LLMTTFBMS: latency / 4, TTSTTFBMS: latency / 4}
}

// repetitionSuite is a single-configuration suite with the given number
// of repetitions, so the expansion has exactly reps entries.
func repetitionSuite(id string, reps int) *model.TestSuiteDefinition {
	return &model.TestSuiteDefinition{
		ID:   id,
		Name: "Repetitions",
		Scenarios: []model.TestScenario{
			{ID: "s1", Name: "Short", Type: model.ScenarioTextInput, Repetitions: reps, UserUtteranceText: "hi"},
		},
		NetworkProfiles: []model.NetworkProfile{model.NetworkLocalhost},
		ParameterSpace: model.ParameterSpace{
			STTConfigs: []model.STTTestConfig{{Provider: "deepgram"}},
			LLMConfigs: []model.LLMTestConfig{{Provider: "anthropic", Model: "claude-3-5-haiku-20241022"}},
			TTSConfigs: []model.TTSTestConfig{{Provider: "chatterbox"}},
		},
	}
}

type OrchestratorSuite struct {
	ctx       context.Context
	cancel    context.CancelFunc
	env       *mockEnv
	storage   storage.Storage
	registry  *ClientRegistry
	transport *mockTransport
	orch      *Orchestrator
	suite.Suite
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 30*time.Second)

	conf := &laurel.Configuration{
		StorageType:     laurel.StorageFile,
		DataDir:         s.T().TempDir(),
		NumWorkers:      2,
		DispatchTimeout: 100 * time.Millisecond,
		ClientTTL:       time.Minute,
		EventBuffer:     64,
	}
	s.Require().NoError(conf.Validate())

	q := queue.NewLocalLimitedSize(conf.NumWorkers, 64)
	s.Require().NoError(q.Start(s.ctx))
	s.env = &mockEnv{conf: conf, queue: q, ctx: s.ctx}

	var err error
	s.storage, err = storage.NewStorage(s.ctx, s.env)
	s.Require().NoError(err)

	s.registry = NewClientRegistry(conf.ClientTTL)
	s.transport = &mockTransport{
		dispatch: func(_ int, _ context.Context, _ model.TestConfiguration) (*model.TestResult, error) {
			return okResult(100), nil
		},
	}
	s.orch = NewOrchestrator(s.env, s.storage, s.registry, s.transport, NewEventBus(conf.EventBuffer))
}

func (s *OrchestratorSuite) TearDownTest() {
	s.cancel()
}

func (s *OrchestratorSuite) registerClient(id string) {
	s.Require().NoError(s.registry.Register(capableClient(id)))
}

func (s *OrchestratorSuite) waitForRun(runID string) *model.TestRun {
	s.Require().True(amboy.WaitInterval(s.ctx, s.env.queue, 10*time.Millisecond))
	run, err := s.storage.GetRun(s.ctx, runID)
	s.Require().NoError(err)
	return run
}

func (s *OrchestratorSuite) TestRunCompletesAndPublishesEvents() {
	def := model.QuickValidationSuite()
	s.Require().NoError(s.storage.SaveSuite(s.ctx, def))
	s.registerClient("c1")

	events, unsubscribe := s.orch.Events().Subscribe()
	defer unsubscribe()

	run, err := s.orch.StartRun(s.ctx, def.ID, "", "")
	s.Require().NoError(err)
	s.Equal(model.RunRunning, run.Status)

	finished := s.waitForRun(run.ID)
	s.Equal(model.RunCompleted, finished.Status)
	s.Equal(def.TotalTestCount(), finished.CompletedConfigurations)
	s.Require().Len(finished.Results, def.TotalTestCount())

	result := finished.Results[0]
	s.Equal("deepgram_anthropic_claude-3-5-haiku-20241022_chatterbox", result.ConfigID)
	s.Len(result.NetworkProjections, len(model.NetworkProfiles()))
	s.True(result.IsSuccess())

	client, err := s.registry.Get("c1")
	s.Require().NoError(err)
	s.False(client.IsRunningTest)

	// one progress and one result event per configuration, plus the
	// completion event
	collected := map[EventType]int{}
	for i := 0; i < 2*def.TotalTestCount()+1; i++ {
		event := <-events
		s.Equal(run.ID, event.RunID)
		collected[event.Type]++
	}
	s.Equal(def.TotalTestCount(), collected[EventTestProgress])
	s.Equal(def.TotalTestCount(), collected[EventTestResult])
	s.Equal(1, collected[EventRunComplete])
}

func (s *OrchestratorSuite) TestCancellationDiscardsInFlightResult() {
	def := repetitionSuite("cancellation", 10)
	s.Require().NoError(s.storage.SaveSuite(s.ctx, def))
	s.registerClient("c1")

	runIDs := make(chan string, 1)
	s.transport.dispatch = func(call int, _ context.Context, _ model.TestConfiguration) (*model.TestResult, error) {
		if call == 4 {
			s.Require().NoError(s.orch.CancelRun(<-runIDs))
		}
		return okResult(100), nil
	}

	run, err := s.orch.StartRun(s.ctx, def.ID, "", "")
	s.Require().NoError(err)
	runIDs <- run.ID

	finished := s.waitForRun(run.ID)
	s.Equal(model.RunCancelled, finished.Status)
	s.Equal(3, finished.CompletedConfigurations)
	s.Len(finished.Results, 3)

	// the run is no longer active, so a second cancel fails
	s.Error(s.orch.CancelRun(run.ID))
}

func (s *OrchestratorSuite) TestDispatchTimeoutBecomesFailedResult() {
	def := model.QuickValidationSuite()
	s.Require().NoError(s.storage.SaveSuite(s.ctx, def))
	s.registerClient("c1")

	s.transport.dispatch = func(call int, ctx context.Context, _ model.TestConfiguration) (*model.TestResult, error) {
		if call == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return okResult(100), nil
	}

	run, err := s.orch.StartRun(s.ctx, def.ID, "", "")
	s.Require().NoError(err)

	finished := s.waitForRun(run.ID)
	s.Equal(model.RunCompleted, finished.Status)
	s.Require().Len(finished.Results, def.TotalTestCount())
	s.False(finished.Results[0].IsSuccess())
	s.Contains(finished.Results[0].Errors[0], "timed out")
	s.True(finished.Results[1].IsSuccess())
}

func (s *OrchestratorSuite) TestStartRunFailsFastWithoutCapableClient() {
	def := model.QuickValidationSuite()
	s.Require().NoError(s.storage.SaveSuite(s.ctx, def))

	_, err := s.orch.StartRun(s.ctx, def.ID, "", "")
	s.Require().Error(err)
	s.Contains(err.Error(), "claim")

	runs, total, err := s.storage.ListRuns(s.ctx, storage.RunFilter{})
	s.Require().NoError(err)
	s.Zero(total)
	s.Empty(runs)
}

func (s *OrchestratorSuite) TestStartRunUnknownSuite() {
	_, err := s.orch.StartRun(s.ctx, "missing", "", "")
	s.Require().Error(err)
	s.True(storage.IsNotFound(err))
}

func (s *OrchestratorSuite) TestExplicitClientSkipsCapabilityCheck() {
	def := model.QuickValidationSuite()
	s.Require().NoError(s.storage.SaveSuite(s.ctx, def))

	limited := capableClient("limited")
	limited.Capabilities = model.ClientCapabilities{}
	s.Require().NoError(s.registry.Register(limited))

	run, err := s.orch.StartRun(s.ctx, def.ID, "limited", "")
	s.Require().NoError(err)

	finished := s.waitForRun(run.ID)
	s.Equal(model.RunCompleted, finished.Status)
}

func (s *OrchestratorSuite) TestStartRunRestrictsClientType() {
	def := model.QuickValidationSuite()
	s.Require().NoError(s.storage.SaveSuite(s.ctx, def))
	s.registerClient("sim")

	device := capableClient("device")
	device.ClientType = model.ClientIOSDevice
	s.Require().NoError(s.registry.Register(device))

	run, err := s.orch.StartRun(s.ctx, def.ID, "", model.ClientIOSDevice)
	s.Require().NoError(err)
	s.Equal("device", run.ClientID)
	s.Equal(model.ClientIOSDevice, run.ClientType)
	s.Equal(model.RunCompleted, s.waitForRun(run.ID).Status)

	// no web client is registered
	_, err = s.orch.StartRun(s.ctx, def.ID, "", model.ClientWeb)
	s.Require().Error(err)
	s.Contains(err.Error(), "claim")
}

func (s *OrchestratorSuite) TestClientDisconnectFailsRun() {
	def := repetitionSuite("disconnection", 5)
	s.Require().NoError(s.storage.SaveSuite(s.ctx, def))
	s.registerClient("c1")

	s.transport.dispatch = func(call int, _ context.Context, _ model.TestConfiguration) (*model.TestResult, error) {
		if call == 1 {
			s.registry.Sweep(time.Now().Add(2 * time.Minute))
		}
		return okResult(100), nil
	}

	run, err := s.orch.StartRun(s.ctx, def.ID, "", "")
	s.Require().NoError(err)

	finished := s.waitForRun(run.ID)
	s.Equal(model.RunFailed, finished.Status)
	s.Equal(1, finished.CompletedConfigurations)
}
