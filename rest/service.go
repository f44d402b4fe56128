package rest

import (
	"context"

	"github.com/evergreen-ci/gimlet"
	"github.com/mongodb/amboy"
	"github.com/pkg/errors"
	laurel "github.com/unamentis/laurel"
	"github.com/unamentis/laurel/harness"
	"github.com/unamentis/laurel/storage"
)

type Service struct {
	Port         int
	Prefix       string
	Environment  laurel.Environment
	Storage      storage.Storage
	Orchestrator *harness.Orchestrator

	// internal settings
	queue amboy.Queue
	app   *gimlet.APIApp
}

func (s *Service) Validate() error {
	if s.Environment == nil {
		return errors.New("must specify an environment")
	}
	if s.Storage == nil {
		return errors.New("must specify a storage backend")
	}
	if s.Orchestrator == nil {
		return errors.New("must specify an orchestrator")
	}

	if s.queue == nil {
		s.queue = s.Environment.GetQueue()
		if s.queue == nil {
			return errors.New("no queue defined")
		}
	}

	if s.app == nil {
		s.app = gimlet.NewApp()
	}

	if s.Port == 0 {
		s.Port = 3000
	}

	if err := s.app.SetPort(s.Port); err != nil {
		return errors.WithStack(err)
	}

	if s.Prefix != "" {
		s.app.SetPrefix(s.Prefix)
	}

	return nil
}

func (s *Service) Start(ctx context.Context) error {
	if s.queue == nil || s.app == nil {
		return errors.New("application is not valid")
	}

	s.addRoutes()
	s.Orchestrator.StartSweeper(ctx)

	if err := s.app.Resolve(); err != nil {
		return errors.Wrap(err, "problem resolving routes")
	}

	return s.app.Run(ctx)
}

func (s *Service) addRoutes() {
	conf := s.Environment.GetConf()

	s.app.AddRoute("/status").Version(1).Get().RouteHandler(makeGetStatus(s.queue))

	s.app.AddRoute("/suites").Version(1).Get().RouteHandler(makeListSuites(s.Storage))
	s.app.AddRoute("/suites").Version(1).Post().RouteHandler(makeCreateSuite(s.Storage))
	s.app.AddRoute("/suites/{id}").Version(1).Get().RouteHandler(makeGetSuite(s.Storage))
	s.app.AddRoute("/suites/{id}").Version(1).Delete().RouteHandler(makeDeleteSuite(s.Storage))

	s.app.AddRoute("/runs").Version(1).Get().RouteHandler(makeListRuns(s.Storage))
	s.app.AddRoute("/runs").Version(1).Post().RouteHandler(makeStartRun(s.Orchestrator))
	s.app.AddRoute("/runs/compare").Version(1).Get().RouteHandler(makeCompareRuns(s.Storage))
	s.app.AddRoute("/runs/{id}").Version(1).Get().RouteHandler(makeGetRun(s.Storage))
	s.app.AddRoute("/runs/{id}/results").Version(1).Get().RouteHandler(makeGetRunResults(s.Storage))
	s.app.AddRoute("/runs/{id}/cancel").Version(1).Post().RouteHandler(makeCancelRun(s.Orchestrator))
	s.app.AddRoute("/runs/{id}/analysis").Version(1).Get().RouteHandler(makeAnalyzeRun(s.Storage))
	s.app.AddRoute("/runs/{id}/export").Version(1).Get().RouteHandler(makeExportRun(s.Storage, conf))
	s.app.AddRoute("/runs/{id}/baseline_check").Version(1).Get().RouteHandler(makeCheckBaseline(s.Storage))

	s.app.AddRoute("/baselines").Version(1).Get().RouteHandler(makeListBaselines(s.Storage))
	s.app.AddRoute("/baselines").Version(1).Post().RouteHandler(makeCreateBaseline(s.Storage))
	s.app.AddRoute("/baselines/{id}").Version(1).Get().RouteHandler(makeGetBaseline(s.Storage))
	s.app.AddRoute("/baselines/{id}").Version(1).Delete().RouteHandler(makeDeleteBaseline(s.Storage))

	s.app.AddRoute("/clients").Version(1).Get().RouteHandler(makeListClients(s.Orchestrator.Registry()))
	s.app.AddRoute("/clients/heartbeat").Version(1).Post().RouteHandler(makeClientHeartbeat(s.Orchestrator.Registry()))
}
