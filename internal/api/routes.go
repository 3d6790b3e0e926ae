// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-traffic/internal/explorer"
	"github.com/joeblew999/plat-traffic/internal/observability"
	"github.com/joeblew999/plat-traffic/internal/service"
)

const tag = "explorer"

// Services holds the service dependencies for API handlers.
type Services struct {
	Registry *service.Registry
	Sessions *service.Sessions
	Exports  *service.ExportStore
	Metrics  *observability.Metrics
}

// Types

type SessionInput struct {
	Session string `path:"session" doc:"Session ID" example:"3f1c2a9e-4b7d-4e0a-9c55-0d6f1b2e8a71"`
}

type HealthBody struct {
	Status   string `json:"status" doc:"Health status" example:"ok"`
	Version  string `json:"version" doc:"API version" example:"1.0.0"`
	Sessions int    `json:"sessions" doc:"Live explorer sessions"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	if svc.Metrics == nil {
		svc.Metrics = observability.NewMetrics(nil)
	}
	return &APIHandler{svc: svc}
}

// RegisterRoutes registers every REST route on api.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterCatalog registers the read-only layout routes.
func (h *APIHandler) RegisterCatalog(api huma.API) {
	huma.Get(api, "/api/v1/basemaps", h.GetBaseMaps, huma.OperationTags(tag))
	huma.Get(api, "/api/v1/overlays", h.GetOverlays, huma.OperationTags(tag))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{
		Status:   "ok",
		Version:  "1.0.0",
		Sessions: h.svc.Sessions.Len(),
	}}, nil
}

func (h *APIHandler) GetBaseMaps(ctx context.Context, input *struct{}) (*struct{ Body []explorer.BaseMap }, error) {
	return &struct{ Body []explorer.BaseMap }{Body: h.svc.Registry.BaseMaps()}, nil
}

func (h *APIHandler) GetOverlays(ctx context.Context, input *struct{}) (*struct{ Body []explorer.OverlaySpec }, error) {
	overlays := h.svc.Registry.Overlays()
	if overlays == nil {
		overlays = []explorer.OverlaySpec{}
	}
	return &struct{ Body []explorer.OverlaySpec }{Body: overlays}, nil
}

// session looks a session up or fails with 404.
func (h *APIHandler) session(id string) (*explorer.Explorer, error) {
	x, ok := h.svc.Sessions.Get(id)
	if !ok {
		return nil, huma.Error404NotFound("session not found")
	}
	return x, nil
}

// statusError maps explorer errors onto HTTP errors.
func statusError(err error) error {
	switch {
	case errors.Is(err, explorer.ErrUnknownOverlay),
		errors.Is(err, explorer.ErrUnknownBaseMap),
		errors.Is(err, explorer.ErrNotSelectable):
		return huma.Error404NotFound(err.Error())
	}
	return huma.Error500InternalServerError("internal error", err)
}
