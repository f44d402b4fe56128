package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/evergreen-ci/gimlet"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"github.com/unamentis/laurel/analysis"
	"github.com/unamentis/laurel/harness"
	"github.com/unamentis/laurel/model"
	"github.com/unamentis/laurel/storage"
)

func parseCount(vals map[string][]string, key string) (int, error) {
	raw, ok := vals[key]
	if !ok || len(raw) == 0 || raw[0] == "" {
		return 0, nil
	}
	count, err := strconv.Atoi(raw[0])
	if err != nil || count < 0 {
		return 0, errors.Errorf("invalid value '%s' for '%s'", raw[0], key)
	}
	return count, nil
}

///////////////////////////////////////////////////////////////////////////////
//
// POST /runs

type runStartHandler struct {
	suiteID    string
	clientID   string
	clientType model.ClientType
	orch       *harness.Orchestrator
}

func makeStartRun(orch *harness.Orchestrator) gimlet.RouteHandler {
	return &runStartHandler{orch: orch}
}

func (h *runStartHandler) Factory() gimlet.RouteHandler {
	return &runStartHandler{orch: h.orch}
}

// Parse decodes the suite to run and the optional client id or type
// restriction. An explicit client id takes precedence over the type.
func (h *runStartHandler) Parse(_ context.Context, r *http.Request) error {
	payload := struct {
		SuiteID    string `json:"suite_id"`
		ClientID   string `json:"client_id"`
		ClientType string `json:"client_type"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return errors.Wrap(err, "problem decoding run request")
	}
	if payload.SuiteID == "" {
		return errors.New("must specify a suite_id")
	}
	if payload.ClientType != "" {
		if err := model.ClientType(payload.ClientType).Validate(); err != nil {
			return errors.WithStack(err)
		}
	}
	h.suiteID = payload.SuiteID
	h.clientID = payload.ClientID
	h.clientType = model.ClientType(payload.ClientType)
	return nil
}

func (h *runStartHandler) Run(ctx context.Context) gimlet.Responder {
	run, err := h.orch.StartRun(ctx, h.suiteID, h.clientID, h.clientType)
	if err != nil {
		err = errors.Wrapf(err, "problem starting run for suite '%s'", h.suiteID)
		grip.Error(message.WrapError(err, message.Fields{
			"request":   gimlet.GetRequestID(ctx),
			"method":    "POST",
			"route":     "/runs",
			"suite_id":  h.suiteID,
			"client_id": h.clientID,
		}))
		return notFoundResponder(err)
	}

	resp := gimlet.NewJSONResponse(run)
	if err := resp.SetStatus(http.StatusCreated); err != nil {
		return gimlet.MakeJSONErrorResponder(err)
	}
	return resp
}

///////////////////////////////////////////////////////////////////////////////
//
// GET /runs

type runListHandler struct {
	filter storage.RunFilter
	store  storage.Storage
}

func makeListRuns(store storage.Storage) gimlet.RouteHandler {
	return &runListHandler{store: store}
}

func (h *runListHandler) Factory() gimlet.RouteHandler {
	return &runListHandler{store: h.store}
}

// Parse reads the optional status, suite, and pagination filters.
func (h *runListHandler) Parse(_ context.Context, r *http.Request) error {
	vals := r.URL.Query()
	h.filter = storage.RunFilter{SuiteID: vals.Get("suite_id")}

	if raw := vals.Get("status"); raw != "" {
		status, err := model.ParseRunStatus(raw)
		if err != nil {
			return errors.WithStack(err)
		}
		h.filter.Status = status
	}

	var err error
	if h.filter.Limit, err = parseCount(vals, "limit"); err != nil {
		return errors.WithStack(err)
	}
	if h.filter.Offset, err = parseCount(vals, "offset"); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (h *runListHandler) Run(ctx context.Context) gimlet.Responder {
	runs, total, err := h.store.ListRuns(ctx, h.filter)
	if err != nil {
		err = errors.Wrap(err, "problem listing runs")
		grip.Error(message.WrapError(err, message.Fields{
			"request": gimlet.GetRequestID(ctx),
			"method":  "GET",
			"route":   "/runs",
		}))
		return gimlet.MakeJSONErrorResponder(err)
	}

	return gimlet.NewJSONResponse(struct {
		Runs  []model.TestRun `json:"runs"`
		Total int             `json:"total"`
	}{Runs: runs, Total: total})
}

///////////////////////////////////////////////////////////////////////////////
//
// GET /runs/{id}

type runGetHandler struct {
	id    string
	store storage.Storage
}

func makeGetRun(store storage.Storage) gimlet.RouteHandler {
	return &runGetHandler{store: store}
}

func (h *runGetHandler) Factory() gimlet.RouteHandler {
	return &runGetHandler{store: h.store}
}

func (h *runGetHandler) Parse(_ context.Context, r *http.Request) error {
	h.id = gimlet.GetVars(r)["id"]
	return nil
}

func (h *runGetHandler) Run(ctx context.Context) gimlet.Responder {
	run, err := h.store.GetRun(ctx, h.id)
	if err != nil {
		return notFoundResponder(errors.Wrapf(err, "problem getting run '%s'", h.id))
	}
	return gimlet.NewJSONResponse(run)
}

///////////////////////////////////////////////////////////////////////////////
//
// GET /runs/{id}/results

type runResultsHandler struct {
	id       string
	configID string
	limit    int
	store    storage.Storage
}

func makeGetRunResults(store storage.Storage) gimlet.RouteHandler {
	return &runResultsHandler{store: store}
}

func (h *runResultsHandler) Factory() gimlet.RouteHandler {
	return &runResultsHandler{store: h.store}
}

func (h *runResultsHandler) Parse(_ context.Context, r *http.Request) error {
	h.id = gimlet.GetVars(r)["id"]
	vals := r.URL.Query()
	h.configID = vals.Get("config_id")

	var err error
	h.limit, err = parseCount(vals, "limit")
	return errors.WithStack(err)
}

func (h *runResultsHandler) Run(ctx context.Context) gimlet.Responder {
	results, err := h.store.GetResults(ctx, h.id, h.configID, h.limit)
	if err != nil {
		return notFoundResponder(errors.Wrapf(err, "problem getting results for run '%s'", h.id))
	}
	return gimlet.NewJSONResponse(results)
}

///////////////////////////////////////////////////////////////////////////////
//
// POST /runs/{id}/cancel

type runCancelHandler struct {
	id   string
	orch *harness.Orchestrator
}

func makeCancelRun(orch *harness.Orchestrator) gimlet.RouteHandler {
	return &runCancelHandler{orch: orch}
}

func (h *runCancelHandler) Factory() gimlet.RouteHandler {
	return &runCancelHandler{orch: h.orch}
}

func (h *runCancelHandler) Parse(_ context.Context, r *http.Request) error {
	h.id = gimlet.GetVars(r)["id"]
	return nil
}

func (h *runCancelHandler) Run(ctx context.Context) gimlet.Responder {
	if err := h.orch.CancelRun(h.id); err != nil {
		err = errors.Wrapf(err, "problem cancelling run '%s'", h.id)
		grip.Error(message.WrapError(err, message.Fields{
			"request": gimlet.GetRequestID(ctx),
			"method":  "POST",
			"route":   "/runs/{id}/cancel",
			"id":      h.id,
		}))
		return gimlet.MakeJSONErrorResponder(gimlet.ErrorResponse{
			StatusCode: http.StatusConflict,
			Message:    err.Error(),
		})
	}
	return gimlet.NewJSONResponse(struct {
		ID        string `json:"id"`
		Cancelled bool   `json:"cancellation_requested"`
	}{ID: h.id, Cancelled: true})
}

///////////////////////////////////////////////////////////////////////////////
//
// GET /runs/compare

type runCompareHandler struct {
	baseID      string
	candidateID string
	store       storage.Storage
}

func makeCompareRuns(store storage.Storage) gimlet.RouteHandler {
	return &runCompareHandler{store: store}
}

func (h *runCompareHandler) Factory() gimlet.RouteHandler {
	return &runCompareHandler{store: h.store}
}

func (h *runCompareHandler) Parse(_ context.Context, r *http.Request) error {
	vals := r.URL.Query()
	h.baseID = vals.Get("base")
	h.candidateID = vals.Get("candidate")
	if h.baseID == "" || h.candidateID == "" {
		return errors.New("must specify both base and candidate run ids")
	}
	return nil
}

func (h *runCompareHandler) Run(ctx context.Context) gimlet.Responder {
	base, err := h.store.GetRun(ctx, h.baseID)
	if err != nil {
		return notFoundResponder(errors.Wrapf(err, "problem getting base run '%s'", h.baseID))
	}
	candidate, err := h.store.GetRun(ctx, h.candidateID)
	if err != nil {
		return notFoundResponder(errors.Wrapf(err, "problem getting candidate run '%s'", h.candidateID))
	}
	return gimlet.NewJSONResponse(analysis.CompareRuns(base, candidate))
}
