package rest

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/evergreen-ci/gimlet"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"github.com/unamentis/laurel/analysis"
	"github.com/unamentis/laurel/model"
	"github.com/unamentis/laurel/storage"
)

///////////////////////////////////////////////////////////////////////////////
//
// GET /baselines

type baselineListHandler struct {
	store storage.Storage
}

func makeListBaselines(store storage.Storage) gimlet.RouteHandler {
	return &baselineListHandler{store: store}
}

func (h *baselineListHandler) Factory() gimlet.RouteHandler {
	return &baselineListHandler{store: h.store}
}

func (h *baselineListHandler) Parse(_ context.Context, _ *http.Request) error { return nil }

func (h *baselineListHandler) Run(ctx context.Context) gimlet.Responder {
	baselines, err := h.store.ListBaselines(ctx)
	if err != nil {
		err = errors.Wrap(err, "problem listing baselines")
		grip.Error(message.WrapError(err, message.Fields{
			"request": gimlet.GetRequestID(ctx),
			"method":  "GET",
			"route":   "/baselines",
		}))
		return gimlet.MakeJSONErrorResponder(err)
	}
	return gimlet.NewJSONResponse(baselines)
}

///////////////////////////////////////////////////////////////////////////////
//
// POST /baselines

type baselineCreateHandler struct {
	name        string
	description string
	runID       string
	activate    bool
	store       storage.Storage
}

func makeCreateBaseline(store storage.Storage) gimlet.RouteHandler {
	return &baselineCreateHandler{store: store}
}

func (h *baselineCreateHandler) Factory() gimlet.RouteHandler {
	return &baselineCreateHandler{store: h.store}
}

func (h *baselineCreateHandler) Parse(_ context.Context, r *http.Request) error {
	payload := struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		RunID       string `json:"run_id"`
		Activate    bool   `json:"activate"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return errors.Wrap(err, "problem decoding baseline request")
	}
	if payload.Name == "" {
		return errors.New("must specify a baseline name")
	}
	if payload.RunID == "" {
		return errors.New("must specify a run_id")
	}

	h.name = payload.Name
	h.description = payload.Description
	h.runID = payload.RunID
	h.activate = payload.Activate
	return nil
}

func (h *baselineCreateHandler) Run(ctx context.Context) gimlet.Responder {
	run, err := h.store.GetRun(ctx, h.runID)
	if err != nil {
		return notFoundResponder(errors.Wrapf(err, "problem getting run '%s'", h.runID))
	}

	baseline, err := analysis.CreateBaseline(h.name, h.description, run, h.activate)
	if err != nil {
		return gimlet.MakeJSONErrorResponder(gimlet.ErrorResponse{
			StatusCode: http.StatusBadRequest,
			Message:    err.Error(),
		})
	}

	if err = h.store.SaveBaseline(ctx, baseline); err != nil {
		err = errors.Wrapf(err, "problem saving baseline '%s'", baseline.ID)
		grip.Error(message.WrapError(err, message.Fields{
			"request": gimlet.GetRequestID(ctx),
			"method":  "POST",
			"route":   "/baselines",
			"run_id":  h.runID,
		}))
		return gimlet.MakeJSONErrorResponder(err)
	}

	resp := gimlet.NewJSONResponse(baseline)
	if err := resp.SetStatus(http.StatusCreated); err != nil {
		return gimlet.MakeJSONErrorResponder(err)
	}
	return resp
}

///////////////////////////////////////////////////////////////////////////////
//
// GET /baselines/{id}

type baselineGetHandler struct {
	id    string
	store storage.Storage
}

func makeGetBaseline(store storage.Storage) gimlet.RouteHandler {
	return &baselineGetHandler{store: store}
}

func (h *baselineGetHandler) Factory() gimlet.RouteHandler {
	return &baselineGetHandler{store: h.store}
}

func (h *baselineGetHandler) Parse(_ context.Context, r *http.Request) error {
	h.id = gimlet.GetVars(r)["id"]
	return nil
}

func (h *baselineGetHandler) Run(ctx context.Context) gimlet.Responder {
	baseline, err := h.store.GetBaseline(ctx, h.id)
	if err != nil {
		return notFoundResponder(errors.Wrapf(err, "problem getting baseline '%s'", h.id))
	}
	return gimlet.NewJSONResponse(baseline)
}

///////////////////////////////////////////////////////////////////////////////
//
// DELETE /baselines/{id}

type baselineDeleteHandler struct {
	id    string
	store storage.Storage
}

func makeDeleteBaseline(store storage.Storage) gimlet.RouteHandler {
	return &baselineDeleteHandler{store: store}
}

func (h *baselineDeleteHandler) Factory() gimlet.RouteHandler {
	return &baselineDeleteHandler{store: h.store}
}

func (h *baselineDeleteHandler) Parse(_ context.Context, r *http.Request) error {
	h.id = gimlet.GetVars(r)["id"]
	return nil
}

func (h *baselineDeleteHandler) Run(ctx context.Context) gimlet.Responder {
	if err := h.store.DeleteBaseline(ctx, h.id); err != nil {
		return notFoundResponder(errors.Wrapf(err, "problem deleting baseline '%s'", h.id))
	}
	return gimlet.NewJSONResponse(struct {
		ID      string `json:"id"`
		Deleted bool   `json:"deleted"`
	}{ID: h.id, Deleted: true})
}

///////////////////////////////////////////////////////////////////////////////
//
// GET /runs/{id}/baseline_check

type baselineCheckHandler struct {
	runID      string
	baselineID string
	store      storage.Storage
}

func makeCheckBaseline(store storage.Storage) gimlet.RouteHandler {
	return &baselineCheckHandler{store: store}
}

func (h *baselineCheckHandler) Factory() gimlet.RouteHandler {
	return &baselineCheckHandler{store: h.store}
}

func (h *baselineCheckHandler) Parse(_ context.Context, r *http.Request) error {
	h.runID = gimlet.GetVars(r)["id"]
	h.baselineID = r.URL.Query().Get("baseline")
	return nil
}

// Run checks the run against the named baseline, defaulting to the
// active one.
func (h *baselineCheckHandler) Run(ctx context.Context) gimlet.Responder {
	run, err := h.store.GetRun(ctx, h.runID)
	if err != nil {
		return notFoundResponder(errors.Wrapf(err, "problem getting run '%s'", h.runID))
	}

	baseline, err := func() (*model.PerformanceBaseline, error) {
		if h.baselineID != "" {
			return h.store.GetBaseline(ctx, h.baselineID)
		}
		return h.store.GetActiveBaseline(ctx)
	}()
	if err != nil {
		return notFoundResponder(errors.Wrap(err, "problem resolving baseline"))
	}

	return gimlet.NewJSONResponse(analysis.CheckBaseline(baseline, run))
}
