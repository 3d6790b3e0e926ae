// Package explorer is the per-session state of the traffic study map: overlay
// caches, the filter query, the selection and the projections the map widget
// and the detail panel draw from.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/joeblew999/plat-traffic/internal/feature"
	"github.com/joeblew999/plat-traffic/internal/logger"
	"github.com/joeblew999/plat-traffic/internal/observability"
)

// Fetcher reads a feature collection from the backend.
type Fetcher interface {
	FetchFeatures(ctx context.Context, path string, params url.Values) ([]feature.Feature, error)
}

var (
	ErrUnknownOverlay = errors.New("unknown overlay")
	ErrUnknownBaseMap = errors.New("unknown base map")
)

// Resource names passed to Options.Notify.
const (
	ResourceOverlay   = "overlay"
	ResourceQuery     = "query"
	ResourceSelection = "selection"
	ResourceBaseMap   = "basemap"
)

// Options are the collaborators of an Explorer. Zero values are usable.
type Options struct {
	Clock   clockwork.Clock
	Logger  *slog.Logger
	Metrics *observability.Metrics
	// Notify is called after each state change with the resource that changed
	// and a short action verb.
	Notify func(resource, action string)
}

// Explorer is one session's view of the map.
type Explorer struct {
	id       string
	layout   Layout
	overlays []*Overlay
	byName   map[string]*Overlay
	engine   *Engine
	logger   *slog.Logger
	notify   func(resource, action string)

	mu      sync.Mutex
	baseMap string
}

// New creates an explorer. Overlays start unloaded; call Preload to fetch the
// ones enabled by default.
func New(id string, layout Layout, fetcher Fetcher, opts Options) *Explorer {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics(nil)
	}
	if opts.Notify == nil {
		opts.Notify = func(string, string) {}
	}
	log := opts.Logger

	x := &Explorer{
		id:      id,
		layout:  layout,
		byName:  make(map[string]*Overlay, len(layout.Overlays)),
		engine:  newEngine(fetcher, opts.Clock, log, opts.Metrics),
		logger:  log,
		notify:  opts.Notify,
		baseMap: layout.DefaultBaseMap,
	}
	for _, spec := range layout.Overlays {
		o := newOverlay(spec, fetcher, opts.Clock, log, opts.Metrics)
		x.overlays = append(x.overlays, o)
		x.byName[spec.Name] = o
	}
	return x
}

func (x *Explorer) ID() string { return x.id }

func (x *Explorer) Layout() Layout { return x.layout }

// Preload loads every overlay that is enabled, in parallel. A failing overlay
// only records its own error.
func (x *Explorer) Preload(ctx context.Context) {
	ctx = logger.WithSession(ctx, x.id)
	g, gctx := errgroup.WithContext(ctx)
	for _, o := range x.overlays {
		g.Go(func() error {
			o.ensure(gctx)
			return nil
		})
	}
	_ = g.Wait()
	x.notify(ResourceOverlay, "preloaded")
}

// SetOverlayEnabled toggles a named overlay, loading it on first enable.
func (x *Explorer) SetOverlayEnabled(ctx context.Context, name string, enabled bool) (OverlayStatus, error) {
	o, ok := x.byName[name]
	if !ok {
		return OverlayStatus{}, fmt.Errorf("overlay %q: %w", name, ErrUnknownOverlay)
	}
	st := o.SetEnabled(logger.WithSession(ctx, x.id), enabled)
	action := "disabled"
	if enabled {
		action = "enabled"
	}
	x.notify(ResourceOverlay, action)
	return st, nil
}

// Overlays returns the status of every overlay in registry order.
func (x *Explorer) Overlays() []OverlayStatus {
	out := make([]OverlayStatus, 0, len(x.overlays))
	for _, o := range x.overlays {
		out = append(out, o.Status())
	}
	return out
}

// SetBaseMap switches the active base map. Reset leaves it alone.
func (x *Explorer) SetBaseMap(key string) (BaseMap, error) {
	b, ok := x.layout.BaseMap(key)
	if !ok {
		return BaseMap{}, fmt.Errorf("base map %q: %w", key, ErrUnknownBaseMap)
	}
	x.mu.Lock()
	x.baseMap = key
	x.mu.Unlock()
	x.notify(ResourceBaseMap, "changed")
	return b, nil
}

// BaseMap returns the active base map.
func (x *Explorer) BaseMap() BaseMap {
	x.mu.Lock()
	key := x.baseMap
	x.mu.Unlock()
	b, _ := x.layout.BaseMap(key)
	return b
}

// RunFilter runs the study query for c.
func (x *Explorer) RunFilter(ctx context.Context, c Criteria) QueryState {
	ctx = logger.WithOperation(logger.WithSession(ctx, x.id), "filter")
	x.notify(ResourceQuery, "loading")
	st := x.engine.Run(ctx, c)
	x.notify(ResourceQuery, string(st.Status))
	return st
}

// Reset restores the filter and clears results, errors and the selection.
func (x *Explorer) Reset() {
	x.engine.Reset()
	x.logger.InfoContext(logger.WithSession(context.Background(), x.id), "filters reset")
	x.notify(ResourceQuery, "reset")
}

// Select opens the detail view for the study with the given marker key.
func (x *Explorer) Select(key string) (*Detail, error) {
	f, err := x.engine.Select(key)
	if err != nil {
		return nil, err
	}
	x.notify(ResourceSelection, "selected")
	return ProjectDetail(&f), nil
}

// ClearSelection closes the detail view.
func (x *Explorer) ClearSelection() {
	x.engine.ClearSelection()
	x.notify(ResourceSelection, "cleared")
}

// Detail returns the detail view of the selection, or nil.
func (x *Explorer) Detail() *Detail {
	st, _ := x.engine.State()
	return ProjectDetail(st.Selected)
}

// Query returns the current query state and criteria.
func (x *Explorer) Query() (QueryState, Criteria) {
	return x.engine.State()
}

// Results returns the current study results, empty unless the last query succeeded.
func (x *Explorer) Results() []feature.Feature {
	st, _ := x.engine.State()
	if st.Status != StatusSuccess {
		return nil
	}
	return st.Results
}

// Controls reports which controls are usable in the current state.
type Controls struct {
	FilterDisabled bool `json:"filterDisabled"`
	ResetDisabled  bool `json:"resetDisabled"`
	ExportDisabled bool `json:"exportDisabled"`
}

// ControlsFor derives the control state from a query state.
func ControlsFor(st QueryState) Controls {
	loading := st.Status == StatusLoading
	return Controls{
		FilterDisabled: loading,
		ResetDisabled:  loading,
		ExportDisabled: loading || len(st.Results) == 0,
	}
}

// Snapshot is a consistent read of the whole session.
type Snapshot struct {
	ID       string
	BaseMap  BaseMap
	Criteria Criteria
	Query    QueryState
	Overlays []OverlayStatus
	Detail   *Detail
	Controls Controls
}

func (x *Explorer) Snapshot() Snapshot {
	st, c := x.engine.State()
	return Snapshot{
		ID:       x.id,
		BaseMap:  x.BaseMap(),
		Criteria: c,
		Query:    st,
		Overlays: x.Overlays(),
		Detail:   ProjectDetail(st.Selected),
		Controls: ControlsFor(st),
	}
}

// Scene projects the session onto map layers: studies first, then each
// enabled overlay in registry order.
func (x *Explorer) Scene() Scene {
	s := Scene{
		BaseMap: x.BaseMap(),
		Center:  x.layout.Center,
		Zoom:    x.layout.Zoom,
	}
	s.Layers = append(s.Layers, studyLayer(x.Results(), x.layout.Primary))
	for _, o := range x.overlays {
		features, ok := o.visible()
		if !ok {
			continue
		}
		s.Layers = append(s.Layers, overlayLayer(o.spec, features))
	}
	return s
}
