package rest

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/evergreen-ci/gimlet"
	"github.com/pkg/errors"
	"github.com/unamentis/laurel/harness"
	"github.com/unamentis/laurel/model"
)

///////////////////////////////////////////////////////////////////////////////
//
// GET /clients

type clientListHandler struct {
	registry *harness.ClientRegistry
}

func makeListClients(registry *harness.ClientRegistry) gimlet.RouteHandler {
	return &clientListHandler{registry: registry}
}

func (h *clientListHandler) Factory() gimlet.RouteHandler {
	return &clientListHandler{registry: h.registry}
}

func (h *clientListHandler) Parse(_ context.Context, _ *http.Request) error { return nil }

func (h *clientListHandler) Run(_ context.Context) gimlet.Responder {
	return gimlet.NewJSONResponse(h.registry.List())
}

///////////////////////////////////////////////////////////////////////////////
//
// POST /clients/heartbeat

// clientHeartbeatHandler doubles as registration: the first heartbeat
// from an unknown client registers it with the capabilities and
// endpoint in the payload.
type clientHeartbeatHandler struct {
	status   model.ClientStatus
	registry *harness.ClientRegistry
}

func makeClientHeartbeat(registry *harness.ClientRegistry) gimlet.RouteHandler {
	return &clientHeartbeatHandler{registry: registry}
}

func (h *clientHeartbeatHandler) Factory() gimlet.RouteHandler {
	return &clientHeartbeatHandler{registry: h.registry}
}

func (h *clientHeartbeatHandler) Parse(_ context.Context, r *http.Request) error {
	h.status = model.ClientStatus{}
	if err := json.NewDecoder(r.Body).Decode(&h.status); err != nil {
		return errors.Wrap(err, "problem decoding client status")
	}
	if h.status.ClientID == "" {
		return errors.New("must specify a client_id")
	}
	return errors.Wrap(h.status.ClientType.Validate(), "invalid client type")
}

func (h *clientHeartbeatHandler) Run(_ context.Context) gimlet.Responder {
	if err := h.registry.Heartbeat(h.status.ClientID); err != nil {
		if err := h.registry.Register(h.status); err != nil {
			return gimlet.MakeJSONErrorResponder(errors.Wrap(err, "problem registering client"))
		}
	}

	client, err := h.registry.Get(h.status.ClientID)
	if err != nil {
		return gimlet.MakeJSONErrorResponder(errors.WithStack(err))
	}
	return gimlet.NewJSONResponse(client)
}
