package rest

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/evergreen-ci/gimlet"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"github.com/unamentis/laurel/model"
	"github.com/unamentis/laurel/storage"
)

func notFoundResponder(err error) gimlet.Responder {
	if storage.IsNotFound(err) {
		return gimlet.MakeJSONErrorResponder(gimlet.ErrorResponse{
			StatusCode: http.StatusNotFound,
			Message:    err.Error(),
		})
	}
	return gimlet.MakeJSONErrorResponder(err)
}

///////////////////////////////////////////////////////////////////////////////
//
// GET /suites

type suiteListHandler struct {
	store storage.Storage
}

func makeListSuites(store storage.Storage) gimlet.RouteHandler {
	return &suiteListHandler{store: store}
}

func (h *suiteListHandler) Factory() gimlet.RouteHandler {
	return &suiteListHandler{store: h.store}
}

func (h *suiteListHandler) Parse(_ context.Context, _ *http.Request) error { return nil }

func (h *suiteListHandler) Run(ctx context.Context) gimlet.Responder {
	suites, err := h.store.ListSuites(ctx)
	if err != nil {
		err = errors.Wrap(err, "problem listing suites")
		grip.Error(message.WrapError(err, message.Fields{
			"request": gimlet.GetRequestID(ctx),
			"method":  "GET",
			"route":   "/suites",
		}))
		return gimlet.MakeJSONErrorResponder(err)
	}
	return gimlet.NewJSONResponse(suites)
}

///////////////////////////////////////////////////////////////////////////////
//
// POST /suites

type suiteCreateHandler struct {
	suite *model.TestSuiteDefinition
	store storage.Storage
}

func makeCreateSuite(store storage.Storage) gimlet.RouteHandler {
	return &suiteCreateHandler{store: store}
}

func (h *suiteCreateHandler) Factory() gimlet.RouteHandler {
	return &suiteCreateHandler{store: h.store}
}

// Parse decodes and validates the suite definition from the request
// body.
func (h *suiteCreateHandler) Parse(_ context.Context, r *http.Request) error {
	h.suite = &model.TestSuiteDefinition{}
	if err := json.NewDecoder(r.Body).Decode(h.suite); err != nil {
		return errors.Wrap(err, "problem decoding suite definition")
	}
	if model.IsBuiltinSuite(h.suite.ID) {
		return errors.Errorf("suite id '%s' is reserved for a built-in suite", h.suite.ID)
	}
	return errors.Wrap(h.suite.Validate(), "invalid suite definition")
}

func (h *suiteCreateHandler) Run(ctx context.Context) gimlet.Responder {
	if err := h.store.SaveSuite(ctx, h.suite); err != nil {
		err = errors.Wrapf(err, "problem saving suite '%s'", h.suite.ID)
		grip.Error(message.WrapError(err, message.Fields{
			"request": gimlet.GetRequestID(ctx),
			"method":  "POST",
			"route":   "/suites",
			"id":      h.suite.ID,
		}))
		return gimlet.MakeJSONErrorResponder(err)
	}

	resp := gimlet.NewJSONResponse(h.suite)
	if err := resp.SetStatus(http.StatusCreated); err != nil {
		return gimlet.MakeJSONErrorResponder(err)
	}
	return resp
}

///////////////////////////////////////////////////////////////////////////////
//
// GET /suites/{id}

type suiteGetHandler struct {
	id    string
	store storage.Storage
}

func makeGetSuite(store storage.Storage) gimlet.RouteHandler {
	return &suiteGetHandler{store: store}
}

func (h *suiteGetHandler) Factory() gimlet.RouteHandler {
	return &suiteGetHandler{store: h.store}
}

func (h *suiteGetHandler) Parse(_ context.Context, r *http.Request) error {
	h.id = gimlet.GetVars(r)["id"]
	return nil
}

func (h *suiteGetHandler) Run(ctx context.Context) gimlet.Responder {
	suite, err := h.store.GetSuite(ctx, h.id)
	if err != nil {
		return notFoundResponder(errors.Wrapf(err, "problem getting suite '%s'", h.id))
	}
	return gimlet.NewJSONResponse(suite)
}

///////////////////////////////////////////////////////////////////////////////
//
// DELETE /suites/{id}

type suiteDeleteHandler struct {
	id    string
	store storage.Storage
}

func makeDeleteSuite(store storage.Storage) gimlet.RouteHandler {
	return &suiteDeleteHandler{store: store}
}

func (h *suiteDeleteHandler) Factory() gimlet.RouteHandler {
	return &suiteDeleteHandler{store: h.store}
}

// Parse rejects deletion of the built-in suites.
func (h *suiteDeleteHandler) Parse(_ context.Context, r *http.Request) error {
	h.id = gimlet.GetVars(r)["id"]
	if model.IsBuiltinSuite(h.id) {
		return errors.Errorf("cannot delete built-in suite '%s'", h.id)
	}
	return nil
}

func (h *suiteDeleteHandler) Run(ctx context.Context) gimlet.Responder {
	if err := h.store.DeleteSuite(ctx, h.id); err != nil {
		return notFoundResponder(errors.Wrapf(err, "problem deleting suite '%s'", h.id))
	}
	return gimlet.NewJSONResponse(struct {
		ID      string `json:"id"`
		Deleted bool   `json:"deleted"`
	}{ID: h.id, Deleted: true})
}
