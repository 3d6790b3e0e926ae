package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/conditional"

	"github.com/joeblew999/plat-traffic/internal/explorer"
	"github.com/joeblew999/plat-traffic/internal/logger"
)

// RegisterSessions registers the explorer session routes.
func (h *APIHandler) RegisterSessions(api huma.API) {
	huma.Post(api, "/api/v1/sessions", h.CreateSession, huma.OperationTags(tag), created)
	huma.Get(api, "/api/v1/sessions/{session}", h.GetSession, huma.OperationTags(tag))
	huma.Delete(api, "/api/v1/sessions/{session}", h.DeleteSession, huma.OperationTags(tag), noContent)

	huma.Put(api, "/api/v1/sessions/{session}/overlays/{overlay}", h.PutOverlay, huma.OperationTags(tag))
	huma.Put(api, "/api/v1/sessions/{session}/basemap", h.PutBaseMap, huma.OperationTags(tag))

	huma.Post(api, "/api/v1/sessions/{session}/filter", h.Filter, huma.OperationTags(tag))
	huma.Post(api, "/api/v1/sessions/{session}/reset", h.Reset, huma.OperationTags(tag))

	huma.Put(api, "/api/v1/sessions/{session}/selection", h.PutSelection, huma.OperationTags(tag))
	huma.Delete(api, "/api/v1/sessions/{session}/selection", h.DeleteSelection, huma.OperationTags(tag), noContent)
	huma.Get(api, "/api/v1/sessions/{session}/detail", h.GetDetail, huma.OperationTags(tag))

	huma.Get(api, "/api/v1/sessions/{session}/scene", h.GetScene, huma.OperationTags(tag))
}

func created(o *huma.Operation)   { o.DefaultStatus = http.StatusCreated }
func noContent(o *huma.Operation) { o.DefaultStatus = http.StatusNoContent }

type SessionOutput struct {
	Body SessionBody
}

func (h *APIHandler) CreateSession(ctx context.Context, input *struct{}) (*SessionOutput, error) {
	x := h.svc.Sessions.Create(ctx, true)
	return &SessionOutput{Body: sessionBody(x.Snapshot())}, nil
}

func (h *APIHandler) GetSession(ctx context.Context, input *SessionInput) (*SessionOutput, error) {
	x, err := h.session(input.Session)
	if err != nil {
		return nil, err
	}
	return &SessionOutput{Body: sessionBody(x.Snapshot())}, nil
}

func (h *APIHandler) DeleteSession(ctx context.Context, input *SessionInput) (*struct{}, error) {
	if !h.svc.Sessions.Delete(input.Session) {
		return nil, huma.Error404NotFound("session not found")
	}
	return &struct{}{}, nil
}

type OverlayInput struct {
	SessionInput
	Overlay string `path:"overlay" doc:"Overlay name" example:"mv_points_snapped"`
	Body    struct {
		Enabled bool `json:"enabled" doc:"Whether the overlay is drawn"`
	}
}

func (h *APIHandler) PutOverlay(ctx context.Context, input *OverlayInput) (*struct{ Body explorer.OverlayStatus }, error) {
	if _, ok := h.svc.Registry.Overlay(input.Overlay); !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("overlay %q: %s", input.Overlay, explorer.ErrUnknownOverlay))
	}
	x, err := h.session(input.Session)
	if err != nil {
		return nil, err
	}
	st, err := x.SetOverlayEnabled(logger.WithSession(ctx, x.ID()), input.Overlay, input.Body.Enabled)
	if err != nil {
		return nil, statusError(err)
	}
	return &struct{ Body explorer.OverlayStatus }{Body: st}, nil
}

type BaseMapInput struct {
	SessionInput
	Body struct {
		Key string `json:"key" minLength:"1" doc:"Base map key" example:"imagery"`
	}
}

func (h *APIHandler) PutBaseMap(ctx context.Context, input *BaseMapInput) (*struct{ Body explorer.BaseMap }, error) {
	x, err := h.session(input.Session)
	if err != nil {
		return nil, err
	}
	b, err := x.SetBaseMap(input.Body.Key)
	if err != nil {
		return nil, statusError(err)
	}
	return &struct{ Body explorer.BaseMap }{Body: b}, nil
}

// FilterInput carries the raw control values. Years that are not integers
// fall back to their defaults; an unknown direction means All.
type FilterInput struct {
	SessionInput
	Body struct {
		StartYear string `json:"startYear,omitempty" doc:"First study year" example:"2021"`
		EndYear   string `json:"endYear,omitempty" doc:"Last study year" example:"2022"`
		Direction string `json:"direction,omitempty" doc:"All, Northbound, Southbound, Eastbound or Westbound" example:"Northbound"`
	}
}

func (h *APIHandler) Filter(ctx context.Context, input *FilterInput) (*SessionOutput, error) {
	x, err := h.session(input.Session)
	if err != nil {
		return nil, err
	}
	c := explorer.ParseCriteria(input.Body.StartYear, input.Body.EndYear, input.Body.Direction)
	x.RunFilter(logger.WithSession(ctx, x.ID()), c)
	return &SessionOutput{Body: sessionBody(x.Snapshot())}, nil
}

func (h *APIHandler) Reset(ctx context.Context, input *SessionInput) (*SessionOutput, error) {
	x, err := h.session(input.Session)
	if err != nil {
		return nil, err
	}
	x.Reset()
	return &SessionOutput{Body: sessionBody(x.Snapshot())}, nil
}

type SelectionInput struct {
	SessionInput
	Body struct {
		Key string `json:"key" minLength:"1" doc:"Marker key of a study in the current results" example:"S1"`
	}
}

func (h *APIHandler) PutSelection(ctx context.Context, input *SelectionInput) (*struct{ Body DetailBody }, error) {
	x, err := h.session(input.Session)
	if err != nil {
		return nil, err
	}
	d, err := x.Select(input.Body.Key)
	if err != nil {
		return nil, statusError(err)
	}
	return &struct{ Body DetailBody }{Body: detailBody(d)}, nil
}

func (h *APIHandler) DeleteSelection(ctx context.Context, input *SessionInput) (*struct{}, error) {
	x, err := h.session(input.Session)
	if err != nil {
		return nil, err
	}
	x.ClearSelection()
	return &struct{}{}, nil
}

func (h *APIHandler) GetDetail(ctx context.Context, input *SessionInput) (*struct{ Body DetailBody }, error) {
	x, err := h.session(input.Session)
	if err != nil {
		return nil, err
	}
	return &struct{ Body DetailBody }{Body: detailBody(x.Detail())}, nil
}

type SceneInput struct {
	SessionInput
	conditional.Params
}

type SceneOutput struct {
	ETag string `header:"ETag"`
	Body explorer.Scene
}

func (h *APIHandler) GetScene(ctx context.Context, input *SceneInput) (*SceneOutput, error) {
	x, err := h.session(input.Session)
	if err != nil {
		return nil, err
	}
	scene := x.Scene()
	data, err := json.Marshal(scene)
	if err != nil {
		return nil, huma.Error500InternalServerError("encode scene", err)
	}
	etag := etagOf(data)
	if input.HasConditionalParams() {
		if err := input.PreconditionFailed(etag, time.Time{}); err != nil {
			return nil, err
		}
	}
	return &SceneOutput{ETag: quote(etag), Body: scene}, nil
}

// etagOf is the unquoted entity tag of a response body.
func etagOf(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

func quote(etag string) string { return `"` + etag + `"` }
