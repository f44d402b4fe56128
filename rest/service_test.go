package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/evergreen-ci/gimlet"
	"github.com/gorilla/mux"
	"github.com/mongodb/amboy"
	"github.com/stretchr/testify/suite"
	laurel "github.com/unamentis/laurel"
	"github.com/unamentis/laurel/analysis"
	"github.com/unamentis/laurel/harness"
	"github.com/unamentis/laurel/model"
	"github.com/unamentis/laurel/storage"
)

type RouteSuite struct {
	ctx     context.Context
	cancel  context.CancelFunc
	env     laurel.Environment
	store   storage.Storage
	orch    *harness.Orchestrator
	service *Service
	client  *httptest.Server
	suite.Suite
}

func TestRouteSuite(t *testing.T) {
	suite.Run(t, new(RouteSuite))
}

func (s *RouteSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 30*time.Second)

	conf := &laurel.Configuration{
		StorageType:     laurel.StorageFile,
		DataDir:         s.T().TempDir(),
		NumWorkers:      2,
		DispatchTimeout: 10 * time.Second,
		ClientTTL:       time.Minute,
		ExportBucket:    s.T().TempDir(),
	}

	var err error
	s.env, err = laurel.NewEnvironment(s.ctx, conf)
	s.Require().NoError(err)
	s.store, err = storage.NewStorage(s.ctx, s.env)
	s.Require().NoError(err)

	// a stub test client that answers every dispatched configuration
	// with a fixed measurement
	s.client = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := model.TestResult{E2ELatencyMS: 420, LLMTTFBMS: 100, TTSTTFBMS: 80}
		gimlet.WriteJSON(w, &result)
	}))

	registry := harness.NewClientRegistry(conf.ClientTTL)
	s.orch = harness.NewOrchestrator(s.env, s.store, registry, harness.NewHTTPTransport(), harness.NewEventBus(64))

	s.service = &Service{
		Port:         3000,
		Environment:  s.env,
		Storage:      s.store,
		Orchestrator: s.orch,
	}
	s.Require().NoError(s.service.Validate())
}

func (s *RouteSuite) TearDownTest() {
	s.client.Close()
	s.Require().NoError(s.env.Close(s.ctx))
	s.cancel()
}

func (s *RouteSuite) jsonRequest(method, url string, payload interface{}) *http.Request {
	body := &bytes.Buffer{}
	s.Require().NoError(json.NewEncoder(body).Encode(payload))
	req := httptest.NewRequest(method, url, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (s *RouteSuite) registerClient(id string) {
	status := model.ClientStatus{
		ClientID:   id,
		ClientType: model.ClientIOSSimulator,
		Endpoint:   s.client.URL,
		Capabilities: model.ClientCapabilities{
			SupportedSTTProviders: []string{"deepgram"},
			SupportedLLMProviders: []string{"anthropic"},
			SupportedTTSProviders: []string{"chatterbox"},
		},
	}

	handler := makeClientHeartbeat(s.orch.Registry()).Factory()
	s.Require().NoError(handler.Parse(s.ctx, s.jsonRequest(http.MethodPost, "/clients/heartbeat", status)))
	resp := handler.Run(s.ctx)
	s.Require().Equal(http.StatusOK, resp.Status())
}

func (s *RouteSuite) TestSuiteCreateGetAndDelete() {
	def := model.QuickValidationSuite()
	def.ID = "custom"
	def.Name = "Custom"

	create := makeCreateSuite(s.store).Factory()
	s.Require().NoError(create.Parse(s.ctx, s.jsonRequest(http.MethodPost, "/suites", def)))
	s.Equal(http.StatusCreated, create.Run(s.ctx).Status())

	get := makeGetSuite(s.store).Factory()
	get.(*suiteGetHandler).id = "custom"
	s.Equal(http.StatusOK, get.Run(s.ctx).Status())

	missing := makeGetSuite(s.store).Factory()
	missing.(*suiteGetHandler).id = "ghost"
	s.Equal(http.StatusNotFound, missing.Run(s.ctx).Status())

	list := makeListSuites(s.store).Factory()
	resp := list.Run(s.ctx)
	s.Require().Equal(http.StatusOK, resp.Status())
	suites, ok := resp.Data().([]model.TestSuiteDefinition)
	s.Require().True(ok)
	s.Len(suites, 1)

	del := makeDeleteSuite(s.store).Factory()
	del.(*suiteDeleteHandler).id = "custom"
	s.Equal(http.StatusOK, del.Run(s.ctx).Status())
	s.Equal(http.StatusNotFound, del.Run(s.ctx).Status())
}

func (s *RouteSuite) TestSuiteBuiltinProtection() {
	create := makeCreateSuite(s.store).Factory()
	s.Error(create.Parse(s.ctx, s.jsonRequest(http.MethodPost, "/suites", model.QuickValidationSuite())))

	del := makeDeleteSuite(s.store).Factory()
	req := httptest.NewRequest(http.MethodDelete, "/suites/"+model.SuiteQuickValidation, nil)
	req = mux.SetURLVars(req, map[string]string{"id": model.SuiteQuickValidation})
	s.Error(del.Parse(s.ctx, req))
}

func (s *RouteSuite) TestStartRunRequiresSuiteAndClient() {
	start := makeStartRun(s.orch).Factory()
	s.Error(start.Parse(s.ctx, s.jsonRequest(http.MethodPost, "/runs", map[string]string{})))

	start = makeStartRun(s.orch).Factory()
	s.Error(start.Parse(s.ctx, s.jsonRequest(http.MethodPost, "/runs",
		map[string]string{"suite_id": model.SuiteQuickValidation, "client_type": "toaster"})))

	s.Require().NoError(s.store.SaveSuite(s.ctx, model.QuickValidationSuite()))
	start = makeStartRun(s.orch).Factory()
	s.Require().NoError(start.Parse(s.ctx, s.jsonRequest(http.MethodPost, "/runs",
		map[string]string{"suite_id": model.SuiteQuickValidation})))

	// no client is registered yet
	s.NotEqual(http.StatusCreated, start.Run(s.ctx).Status())
}

func (s *RouteSuite) TestStartRunHonorsClientTypeRestriction() {
	s.Require().NoError(s.store.SaveSuite(s.ctx, model.QuickValidationSuite()))
	s.registerClient("sim-1")

	// the only registered client is a simulator
	start := makeStartRun(s.orch).Factory()
	s.Require().NoError(start.Parse(s.ctx, s.jsonRequest(http.MethodPost, "/runs",
		map[string]string{"suite_id": model.SuiteQuickValidation, "client_type": string(model.ClientIOSDevice)})))
	s.NotEqual(http.StatusCreated, start.Run(s.ctx).Status())

	start = makeStartRun(s.orch).Factory()
	s.Require().NoError(start.Parse(s.ctx, s.jsonRequest(http.MethodPost, "/runs",
		map[string]string{"suite_id": model.SuiteQuickValidation, "client_type": string(model.ClientIOSSimulator)})))
	resp := start.Run(s.ctx)
	s.Require().Equal(http.StatusCreated, resp.Status())

	run, ok := resp.Data().(*model.TestRun)
	s.Require().True(ok)
	s.Equal("sim-1", run.ClientID)
	s.Require().True(amboy.WaitInterval(s.ctx, s.env.GetQueue(), 10*time.Millisecond))
}

func (s *RouteSuite) TestRunLifecycleOverHTTPTransport() {
	s.Require().NoError(s.store.SaveSuite(s.ctx, model.QuickValidationSuite()))
	s.registerClient("sim-1")

	start := makeStartRun(s.orch).Factory()
	s.Require().NoError(start.Parse(s.ctx, s.jsonRequest(http.MethodPost, "/runs",
		map[string]string{"suite_id": model.SuiteQuickValidation})))
	resp := start.Run(s.ctx)
	s.Require().Equal(http.StatusCreated, resp.Status())

	run, ok := resp.Data().(*model.TestRun)
	s.Require().True(ok)
	s.Require().True(amboy.WaitInterval(s.ctx, s.env.GetQueue(), 10*time.Millisecond))

	get := makeGetRun(s.store).Factory()
	get.(*runGetHandler).id = run.ID
	getResp := get.Run(s.ctx)
	s.Require().Equal(http.StatusOK, getResp.Status())

	finished, ok := getResp.Data().(*model.TestRun)
	s.Require().True(ok)
	s.Equal(model.RunCompleted, finished.Status)
	s.Len(finished.Results, model.QuickValidationSuite().TotalTestCount())

	analyze := makeAnalyzeRun(s.store).Factory()
	analyze.(*runAnalysisHandler).id = run.ID
	analyzeResp := analyze.Run(s.ctx)
	s.Require().Equal(http.StatusOK, analyzeResp.Status())

	report, ok := analyzeResp.Data().(*analysis.Report)
	s.Require().True(ok)
	s.Equal(finished.TotalConfigurations, report.Summary.TotalCount)
	s.Require().Len(report.Rankings, 1)
	s.Equal(420.0, report.Rankings[0].MedianE2EMS)

	results := makeGetRunResults(s.store).Factory()
	results.(*runResultsHandler).id = run.ID
	resultsResp := results.Run(s.ctx)
	s.Require().Equal(http.StatusOK, resultsResp.Status())
}

func (s *RouteSuite) TestListRunsParsesFilters() {
	list := makeListRuns(s.store).Factory()
	req := httptest.NewRequest(http.MethodGet, "/runs?status=completed&limit=5&offset=0", nil)
	s.Require().NoError(list.Parse(s.ctx, req))
	s.Equal(http.StatusOK, list.Run(s.ctx).Status())

	bad := makeListRuns(s.store).Factory()
	req = httptest.NewRequest(http.MethodGet, "/runs?status=paused", nil)
	s.Error(bad.Parse(s.ctx, req))

	badLimit := makeListRuns(s.store).Factory()
	req = httptest.NewRequest(http.MethodGet, "/runs?limit=nope", nil)
	s.Error(badLimit.Parse(s.ctx, req))
}

func (s *RouteSuite) TestCancelInactiveRunConflicts() {
	cancel := makeCancelRun(s.orch).Factory()
	cancel.(*runCancelHandler).id = "ghost"
	s.Equal(http.StatusConflict, cancel.Run(s.ctx).Status())
}

func (s *RouteSuite) TestBaselineRoutes() {
	_, err := s.store.GetActiveBaseline(s.ctx)
	s.Require().True(storage.IsNotFound(err))

	// seed a completed run directly
	run := model.NewTestRun("run_seed", model.QuickValidationSuite(), "sim-1", model.ClientIOSSimulator)
	s.Require().NoError(run.Start(time.Now()))
	s.Require().NoError(run.AppendResult(model.TestResult{ID: "r1", ConfigID: "a_b_c_d", E2ELatencyMS: 400}))
	s.Require().NoError(run.Complete(time.Now()))
	s.Require().NoError(s.store.SaveRun(s.ctx, run))
	s.Require().NoError(s.store.SaveResult(s.ctx, run.ID, run.Results[0]))

	create := makeCreateBaseline(s.store).Factory()
	s.Require().NoError(create.Parse(s.ctx, s.jsonRequest(http.MethodPost, "/baselines",
		map[string]interface{}{"name": "nightly", "run_id": run.ID, "activate": true})))
	resp := create.Run(s.ctx)
	s.Require().Equal(http.StatusCreated, resp.Status())

	baseline, ok := resp.Data().(*model.PerformanceBaseline)
	s.Require().True(ok)
	s.True(baseline.IsActive)

	check := makeCheckBaseline(s.store).Factory()
	check.(*baselineCheckHandler).runID = run.ID
	checkResp := check.Run(s.ctx)
	s.Require().Equal(http.StatusOK, checkResp.Status())

	report, ok := checkResp.Data().(*analysis.BaselineReport)
	s.Require().True(ok)
	s.False(report.HasRegressions)

	del := makeDeleteBaseline(s.store).Factory()
	del.(*baselineDeleteHandler).id = baseline.ID
	s.Equal(http.StatusOK, del.Run(s.ctx).Status())
}

func (s *RouteSuite) TestExportParseValidation() {
	conf := s.env.GetConf()

	export := makeExportRun(s.store, conf).Factory()
	req := httptest.NewRequest(http.MethodGet, "/runs/r1/export?format=xml", nil)
	s.Error(export.Parse(s.ctx, req))

	export = makeExportRun(s.store, conf).Factory()
	req = httptest.NewRequest(http.MethodGet, "/runs/r1/export?format=csv", nil)
	s.NoError(export.Parse(s.ctx, req))
}
