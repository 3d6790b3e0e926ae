package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-traffic/internal/export"
	"github.com/joeblew999/plat-traffic/internal/logger"
	"github.com/joeblew999/plat-traffic/internal/service"
)

// RegisterExports registers the CSV export routes.
func (h *APIHandler) RegisterExports(api huma.API) {
	huma.Get(api, "/api/v1/sessions/{session}/export", h.GetExport, huma.OperationTags(tag))
	huma.Post(api, "/api/v1/sessions/{session}/export/save", h.SaveExport, huma.OperationTags(tag))
	huma.Get(api, "/api/v1/exports", h.GetExports, huma.OperationTags(tag))
}

type ExportOutput struct {
	Status             int
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	ETag               string `header:"ETag"`
	Body               []byte
}

// GetExport serves the current results as a CSV download. An empty result set
// answers 204 with no body.
func (h *APIHandler) GetExport(ctx context.Context, input *SessionInput) (*ExportOutput, error) {
	x, err := h.session(input.Session)
	if err != nil {
		return nil, err
	}
	b, ok := export.NewBlob(x.Results())
	if !ok {
		h.svc.Metrics.Exports.WithLabelValues("empty").Inc()
		return &ExportOutput{Status: http.StatusNoContent}, nil
	}
	return &ExportOutput{
		Status:             http.StatusOK,
		ContentType:        b.ContentType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", b.Filename),
		ETag:               quote(etagOf(b.Data)),
		Body:               b.Data,
	}, nil
}

type SavedExportBody struct {
	Saved   bool   `json:"saved" doc:"False when there were no results to export"`
	Session string `json:"session" doc:"Session the export was taken from"`
	Name    string `json:"name,omitempty" doc:"File name" example:"traffic_studies.csv"`
	Rows    int    `json:"rows" doc:"Number of studies written"`
}

type SaveExportOutput struct {
	Body SavedExportBody
}

// SaveExport writes the current results into the export store. Nothing is
// written for an empty result set.
func (h *APIHandler) SaveExport(ctx context.Context, input *SessionInput) (*SaveExportOutput, error) {
	x, err := h.session(input.Session)
	if err != nil {
		return nil, err
	}
	b, ok := export.NewBlob(x.Results())
	if !ok {
		h.svc.Metrics.Exports.WithLabelValues("empty").Inc()
		return &SaveExportOutput{Body: SavedExportBody{Session: x.ID()}}, nil
	}
	if err := h.svc.Exports.Save(logger.WithSession(ctx, x.ID()), b); err != nil {
		h.svc.Metrics.Exports.WithLabelValues("failed").Inc()
		return nil, huma.Error500InternalServerError("save export", err)
	}
	h.svc.Metrics.Exports.WithLabelValues("saved").Inc()
	return &SaveExportOutput{Body: SavedExportBody{
		Saved: true, Session: x.ID(), Name: b.Filename, Rows: b.Rows,
	}}, nil
}

func (h *APIHandler) GetExports(ctx context.Context, input *struct{}) (*struct{ Body []service.ExportFile }, error) {
	files, err := h.svc.Exports.List()
	if err != nil {
		return nil, huma.Error500InternalServerError("list exports", err)
	}
	return &struct{ Body []service.ExportFile }{Body: files}, nil
}
