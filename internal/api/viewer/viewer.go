// Package viewer serves the Datastar endpoints of the viewer page. Every
// handler reads the session id from the "sessionid" signal, applies one user
// event to the session and streams the changed fragments and signals back.
package viewer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-traffic/internal/explorer"
	"github.com/joeblew999/plat-traffic/internal/export"
	"github.com/joeblew999/plat-traffic/internal/feature"
	"github.com/joeblew999/plat-traffic/internal/humastar"
	"github.com/joeblew999/plat-traffic/internal/logger"
	"github.com/joeblew999/plat-traffic/internal/observability"
	"github.com/joeblew999/plat-traffic/internal/service"
	"github.com/joeblew999/plat-traffic/internal/templates"
)

const tag = "viewer"

// MessageExpired is shown when the page refers to a session that is gone.
const MessageExpired = "Session expired. Reload the page."

// Handler serves the viewer's Datastar endpoints.
type Handler struct {
	humastar.Handler
	sessions *service.Sessions
	exports  export.Saver
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// New creates a viewer handler. Exports made from the page are handed to saver.
func New(sessions *service.Sessions, saver export.Saver, renderer *templates.Renderer, metrics *observability.Metrics, log *slog.Logger) *Handler {
	if metrics == nil {
		metrics = observability.NewMetrics(nil)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		Handler:  humastar.Handler{Renderer: renderer},
		sessions: sessions,
		exports:  saver,
		metrics:  metrics,
		logger:   log,
	}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Post(api, "/api/v1/viewer/filter", h.Filter, huma.OperationTags(tag))
	huma.Post(api, "/api/v1/viewer/reset", h.Reset, huma.OperationTags(tag))
	huma.Post(api, "/api/v1/viewer/close", h.Close, huma.OperationTags(tag))
	huma.Post(api, "/api/v1/viewer/basemap", h.BaseMap, huma.OperationTags(tag))
	huma.Post(api, "/api/v1/viewer/export", h.Export, huma.OperationTags(tag))
	huma.Post(api, "/api/v1/viewer/overlays/{overlay}", h.Overlay, huma.OperationTags(tag))
	huma.Post(api, "/api/v1/viewer/select/{key}", h.Select, huma.OperationTags(tag))
	huma.Get(api, "/api/v1/viewer/events", h.Events, huma.OperationTags(tag))
}

// session resolves the "sessionid" signal.
func (h *Handler) session(signals humastar.Signals) (*explorer.Explorer, bool) {
	return h.sessions.Get(signals.String("sessionid"))
}

// withSession parses the signals, resolves the session and streams fn. A
// missing session is reported to the page instead of failing the request.
func (h *Handler) withSession(input *humastar.SignalsInput, fn func(sse humastar.SSE, x *explorer.Explorer, signals humastar.Signals)) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	x, ok := h.session(signals)
	return h.Stream(func(sse humastar.SSE) {
		if !ok {
			sse.Error(MessageExpired)
			return
		}
		fn(sse, x, signals)
	}), nil
}

func (h *Handler) Filter(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	return h.withSession(input, func(sse humastar.SSE, x *explorer.Explorer, signals humastar.Signals) {
		c := explorer.ParseCriteria(signals.Text("startyear"), signals.Text("endyear"), signals.String("direction"))

		loading := explorer.QueryState{Status: explorer.StatusLoading}
		sse.Patch(h.renderFilterStatus(loading), "#filter-status")
		sse.Signals(controlSignals(explorer.ControlsFor(loading)))

		x.RunFilter(logger.WithSession(ctx, x.ID()), c)
		h.patchSession(sse, x)
	})
}

func (h *Handler) Reset(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	return h.withSession(input, func(sse humastar.SSE, x *explorer.Explorer, _ humastar.Signals) {
		x.Reset()
		h.patchSession(sse, x)
	})
}

func (h *Handler) Close(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	return h.withSession(input, func(sse humastar.SSE, x *explorer.Explorer, _ humastar.Signals) {
		x.ClearSelection()
		sse.Patch(h.renderDetail(nil), "#detail-panel")
	})
}

func (h *Handler) BaseMap(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	return h.withSession(input, func(sse humastar.SSE, x *explorer.Explorer, signals humastar.Signals) {
		if _, err := x.SetBaseMap(signals.String("basemap")); err != nil {
			sse.Error(err.Error())
			sse.Signals(map[string]any{"basemap": x.BaseMap().Key})
			return
		}
		sse.DispatchCustomEvent("scene-changed", map[string]any{"session": x.ID()})
	})
}

type OverlayInput struct {
	Overlay string `path:"overlay" doc:"Overlay name" example:"mv_points_snapped"`
	humastar.SignalsInput
}

// Overlay applies the checkbox signal of an overlay, or flips the overlay
// when the page sent none.
func (h *Handler) Overlay(ctx context.Context, input *OverlayInput) (*huma.StreamResponse, error) {
	return h.withSession(&input.SignalsInput, func(sse humastar.SSE, x *explorer.Explorer, signals humastar.Signals) {
		key := overlaySignal(input.Overlay)
		enabled := signals.Bool(key)
		if !signals.Has(key) {
			for _, st := range x.Overlays() {
				if st.Name == input.Overlay {
					enabled = !st.Enabled
				}
			}
		}
		if _, err := x.SetOverlayEnabled(logger.WithSession(ctx, x.ID()), input.Overlay, enabled); err != nil {
			sse.Error(err.Error())
			return
		}
		h.patchOverlays(sse, x)
		sse.DispatchCustomEvent("scene-changed", map[string]any{"session": x.ID()})
	})
}

type SelectInput struct {
	Key string `path:"key" doc:"Marker key of a study in the current results" example:"S1"`
	humastar.SignalsInput
}

func (h *Handler) Select(ctx context.Context, input *SelectInput) (*huma.StreamResponse, error) {
	return h.withSession(&input.SignalsInput, func(sse humastar.SSE, x *explorer.Explorer, _ humastar.Signals) {
		d, err := x.Select(input.Key)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		sse.Patch(h.renderDetail(d), "#detail-panel")
	})
}

// Export saves the current results and points the page at the download.
func (h *Handler) Export(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	return h.withSession(input, func(sse humastar.SSE, x *explorer.Explorer, _ humastar.Signals) {
		ctx := logger.WithSession(ctx, x.ID())
		b, out := export.Export(ctx, x.Results(), h.exports, h.logger)
		h.metrics.Exports.WithLabelValues(string(out)).Inc()
		if !out.Attempted() {
			return
		}
		sse.Success(fmt.Sprintf("Exported %d studies", b.Rows))
		sse.DispatchCustomEvent("export-ready", map[string]any{
			"href": "/api/v1/sessions/" + x.ID() + "/export",
		})
	})
}

type EventsInput struct {
	Session string `query:"session" required:"true" doc:"Session to follow"`
}

// Events streams the session's state to the page whenever it changes, so
// changes made through the REST API or a slow filter show up too.
func (h *Handler) Events(ctx context.Context, input *EventsInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		x, ok := h.sessions.Get(input.Session)
		if !ok {
			sse.Error(MessageExpired)
			return
		}
		bus := h.sessions.Bus()
		ch := bus.Subscribe(input.Session)
		defer bus.Unsubscribe(ch)

		sse.Patch(h.renderBaseMapOptions(x), "#basemap-select")
		h.patchSession(sse, x)

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				if ev.Resource == service.ResourceSession {
					sse.Error(MessageExpired)
					return
				}
				h.patchSession(sse, x)
			}
		}
	}), nil
}

// patchSession pushes every panel of the session plus the control signals.
func (h *Handler) patchSession(sse humastar.SSE, x *explorer.Explorer) {
	snap := x.Snapshot()
	sse.Patch(h.renderFilterStatus(snap.Query), "#filter-status")
	sse.Patch(h.renderDetail(snap.Detail), "#detail-panel")
	h.patchOverlays(sse, x)

	signals := controlSignals(snap.Controls)
	signals["startyear"] = strconv.Itoa(snap.Criteria.StartYear)
	signals["endyear"] = strconv.Itoa(snap.Criteria.EndYear)
	signals["direction"] = string(snap.Criteria.Direction)
	signals["basemap"] = snap.BaseMap.Key
	signals["error"] = ""
	sse.Signals(signals)
	sse.DispatchCustomEvent("scene-changed", map[string]any{"session": x.ID()})
}

func (h *Handler) patchOverlays(sse humastar.SSE, x *explorer.Explorer) {
	overlays := x.Overlays()
	items := make([]any, len(overlays))
	signals := map[string]any{}
	for i, st := range overlays {
		items[i] = st
		signals[overlaySignal(st.Name)] = st.Enabled
	}
	sse.Patch(h.RenderList("layer-status", items, "No overlays", "The layer registry has no overlays."), "#layer-status")
	sse.Signals(signals)
}

func controlSignals(c explorer.Controls) map[string]any {
	return map[string]any{
		"filterdisabled": c.FilterDisabled,
		"resetdisabled":  c.ResetDisabled,
		"exportdisabled": c.ExportDisabled,
	}
}

func overlaySignal(name string) string { return "overlay_" + name }

// FilterStatus is the data of the filter-status fragment.
type FilterStatus struct {
	Status string
	Notice string
}

func (h *Handler) renderFilterStatus(st explorer.QueryState) string {
	return h.Renderer.MustRender("filter-status", FilterStatus{Status: string(st.Status), Notice: st.Notice()})
}

func (h *Handler) renderDetail(d *explorer.Detail) string {
	return h.Renderer.MustRender("detail-panel", d)
}

func (h *Handler) renderBaseMapOptions(x *explorer.Explorer) string {
	return h.RenderSelect("", BaseMapOptions(x.Layout().BaseMaps, x.BaseMap().Key))
}

// BaseMapOptions lists the base maps as select options.
func BaseMapOptions(baseMaps []explorer.BaseMap, active string) []humastar.SelectOptionData {
	opts := make([]humastar.SelectOptionData, len(baseMaps))
	for i, b := range baseMaps {
		opts[i] = humastar.SelectOptionData{Value: b.Key, Label: b.Label, Selected: b.Key == active}
	}
	return opts
}

// DirectionOptions lists the travel directions as select options.
func DirectionOptions(active feature.Direction) []humastar.SelectOptionData {
	opts := make([]humastar.SelectOptionData, 0, len(feature.Directions))
	for _, d := range feature.Directions {
		opts = append(opts, humastar.SelectOptionData{Value: string(d), Label: string(d), Selected: d == active})
	}
	return opts
}
