package rest

import (
	"bytes"
	"context"
	"net/http"

	"github.com/evergreen-ci/gimlet"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	laurel "github.com/unamentis/laurel"
	"github.com/unamentis/laurel/analysis"
	"github.com/unamentis/laurel/model"
	"github.com/unamentis/laurel/storage"
)

///////////////////////////////////////////////////////////////////////////////
//
// GET /runs/{id}/analysis

type runAnalysisHandler struct {
	id         string
	baselineID string
	store      storage.Storage
}

func makeAnalyzeRun(store storage.Storage) gimlet.RouteHandler {
	return &runAnalysisHandler{store: store}
}

func (h *runAnalysisHandler) Factory() gimlet.RouteHandler {
	return &runAnalysisHandler{store: h.store}
}

func (h *runAnalysisHandler) Parse(_ context.Context, r *http.Request) error {
	h.id = gimlet.GetVars(r)["id"]
	h.baselineID = r.URL.Query().Get("baseline")
	return nil
}

// Run analyzes the run against the named baseline, or against the
// active baseline when none is named. A missing active baseline is not
// an error; the report simply has no comparison.
func (h *runAnalysisHandler) Run(ctx context.Context) gimlet.Responder {
	run, err := h.store.GetRun(ctx, h.id)
	if err != nil {
		return notFoundResponder(errors.Wrapf(err, "problem getting run '%s'", h.id))
	}

	var baseline *model.PerformanceBaseline
	if h.baselineID != "" {
		baseline, err = h.store.GetBaseline(ctx, h.baselineID)
		if err != nil {
			return notFoundResponder(errors.Wrapf(err, "problem getting baseline '%s'", h.baselineID))
		}
	} else {
		baseline, err = h.store.GetActiveBaseline(ctx)
		if err != nil && !storage.IsNotFound(err) {
			return gimlet.MakeJSONErrorResponder(errors.Wrap(err, "problem getting active baseline"))
		}
	}

	return gimlet.NewJSONResponse(analysis.AnalyzeRun(run, baseline))
}

///////////////////////////////////////////////////////////////////////////////
//
// GET /runs/{id}/export

type runExportHandler struct {
	id      string
	format  string
	archive bool
	store   storage.Storage
	conf    *laurel.Configuration
}

func makeExportRun(store storage.Storage, conf *laurel.Configuration) gimlet.RouteHandler {
	return &runExportHandler{store: store, conf: conf}
}

func (h *runExportHandler) Factory() gimlet.RouteHandler {
	return &runExportHandler{store: h.store, conf: h.conf}
}

func (h *runExportHandler) Parse(_ context.Context, r *http.Request) error {
	h.id = gimlet.GetVars(r)["id"]
	vals := r.URL.Query()

	h.format = vals.Get("format")
	if h.format == "" {
		h.format = "json"
	}
	if h.format != "json" && h.format != "csv" {
		return errors.Errorf("unknown export format '%s'", h.format)
	}

	h.archive = vals.Get("archive") == "true"
	if h.archive && h.conf.ExportBucket == "" {
		return errors.New("no export bucket is configured")
	}
	return nil
}

func (h *runExportHandler) Run(ctx context.Context) gimlet.Responder {
	run, err := h.store.GetRun(ctx, h.id)
	if err != nil {
		return notFoundResponder(errors.Wrapf(err, "problem getting run '%s'", h.id))
	}

	if h.archive {
		keys, err := analysis.ArchiveRun(ctx, h.conf.ExportBucket, h.conf.ExportBucketPrefix, run)
		if err != nil {
			err = errors.Wrapf(err, "problem archiving run '%s'", h.id)
			grip.Error(message.WrapError(err, message.Fields{
				"request": gimlet.GetRequestID(ctx),
				"method":  "GET",
				"route":   "/runs/{id}/export",
				"id":      h.id,
				"bucket":  h.conf.ExportBucket,
			}))
			return gimlet.MakeJSONErrorResponder(err)
		}
		return gimlet.NewJSONResponse(struct {
			Bucket string   `json:"bucket"`
			Keys   []string `json:"keys"`
		}{Bucket: h.conf.ExportBucket, Keys: keys})
	}

	if h.format == "csv" {
		buf := &bytes.Buffer{}
		if err := analysis.WriteCSV(buf, run.Results); err != nil {
			return gimlet.MakeJSONErrorResponder(errors.WithStack(err))
		}
		return gimlet.NewTextResponse(buf.String())
	}
	return gimlet.NewJSONResponse(run)
}
