package explorer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/joeblew999/plat-traffic/internal/backend"
	"github.com/joeblew999/plat-traffic/internal/feature"
	"github.com/joeblew999/plat-traffic/internal/observability"
)

// LoadState is the cache state of an overlay.
type LoadState int

const (
	Unloaded LoadState = iota
	Loading
	Loaded
)

func (s LoadState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "unloaded"
	}
}

// OverlayStatus is a read-only view of an overlay.
type OverlayStatus struct {
	Name     string     `json:"name" doc:"Overlay name" example:"mv_points_snapped"`
	Label    string     `json:"label" doc:"Display label" example:"Miovision Points"`
	Enabled  bool       `json:"enabled" doc:"Whether the overlay is drawn"`
	State    string     `json:"state" enum:"unloaded,loading,loaded" doc:"Cache state"`
	Count    int        `json:"count" doc:"Number of cached features"`
	Error    string     `json:"error,omitempty" doc:"Message of the last failed load"`
	LoadedAt *time.Time `json:"loadedAt,omitempty" doc:"When the cache was filled"`
}

// Overlay caches one overlay dataset for a session.
//
// A load starts only from Unloaded, so concurrent enables share one request and
// a loaded-but-empty overlay is never fetched again. A failed load goes back to
// Unloaded with the error kept, and the next enable retries it. Disabling only
// hides the overlay; cache and error stay as they are.
type Overlay struct {
	spec    OverlaySpec
	fetcher Fetcher
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	enabled  bool
	state    LoadState
	features []feature.Feature
	loadErr  string
	loadedAt time.Time
	done     chan struct{} // closed when the in-flight load finishes
}

func newOverlay(spec OverlaySpec, fetcher Fetcher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Overlay {
	return &Overlay{
		spec:    spec,
		fetcher: fetcher,
		clock:   clock,
		logger:  logger.With("overlay", spec.Name),
		metrics: metrics,
		enabled: spec.DefaultEnabled,
	}
}

func (o *Overlay) Name() string { return o.spec.Name }

func (o *Overlay) Spec() OverlaySpec { return o.spec }

// SetEnabled flips the overlay on or off. Enabling an unloaded overlay loads it
// before returning; enabling one that is already loading waits for that load.
func (o *Overlay) SetEnabled(ctx context.Context, enabled bool) OverlayStatus {
	o.mu.Lock()
	o.enabled = enabled
	o.mu.Unlock()

	if enabled {
		o.ensure(ctx)
	}
	return o.Status()
}

// ensure loads the overlay if it is enabled and unloaded.
func (o *Overlay) ensure(ctx context.Context) {
	o.mu.Lock()
	switch {
	case !o.enabled || o.state == Loaded:
		o.mu.Unlock()
		return
	case o.state == Loading:
		done := o.done
		o.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	o.state = Loading
	o.done = make(chan struct{})
	done := o.done
	o.mu.Unlock()

	o.logger.DebugContext(ctx, "overlay load started")
	features, err := o.fetcher.FetchFeatures(ctx, backend.OverlayPath(o.spec.Name), nil)

	o.mu.Lock()
	if err != nil {
		o.state = Unloaded
		o.loadErr = o.spec.ErrorMessage
	} else {
		o.state = Loaded
		o.features = features
		o.loadErr = ""
		o.loadedAt = o.clock.Now()
	}
	o.done = nil
	o.mu.Unlock()
	close(done)

	if err != nil {
		o.metrics.OverlayLoads.WithLabelValues(o.spec.Name, "error").Inc()
		o.logger.WarnContext(ctx, "overlay load failed", "err", err)
		return
	}
	o.metrics.OverlayLoads.WithLabelValues(o.spec.Name, "success").Inc()
	o.logger.InfoContext(ctx, "overlay loaded", "count", len(features))
}

// Status returns the current state of the overlay.
func (o *Overlay) Status() OverlayStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := OverlayStatus{
		Name:    o.spec.Name,
		Label:   o.spec.Label,
		Enabled: o.enabled,
		State:   o.state.String(),
		Count:   len(o.features),
		Error:   o.loadErr,
	}
	if o.state == Loaded {
		t := o.loadedAt
		st.LoadedAt = &t
	}
	return st
}

// visible returns the cached features when the overlay is enabled.
// The slice is replaced, never mutated, so it is safe to hand out.
func (o *Overlay) visible() ([]feature.Feature, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.enabled {
		return nil, false
	}
	return o.features, true
}
