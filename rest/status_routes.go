package rest

import (
	"context"
	"net/http"

	"github.com/evergreen-ci/gimlet"
	"github.com/mongodb/amboy"
	laurel "github.com/unamentis/laurel"
)

///////////////////////////////////////////////////////////////////////////////
//
// GET /status

type statusHandler struct {
	queue amboy.Queue
}

func makeGetStatus(queue amboy.Queue) gimlet.RouteHandler {
	return &statusHandler{queue: queue}
}

func (h *statusHandler) Factory() gimlet.RouteHandler {
	return &statusHandler{queue: h.queue}
}

func (h *statusHandler) Parse(_ context.Context, _ *http.Request) error { return nil }

func (h *statusHandler) Run(ctx context.Context) gimlet.Responder {
	return gimlet.NewJSONResponse(struct {
		Revision   string           `json:"revision"`
		QueueStats amboy.QueueStats `json:"queue_stats"`
	}{
		Revision:   laurel.BuildRevision,
		QueueStats: h.queue.Stats(ctx),
	})
}
