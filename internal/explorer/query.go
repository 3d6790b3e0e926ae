package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/joeblew999/plat-traffic/internal/backend"
	"github.com/joeblew999/plat-traffic/internal/feature"
	"github.com/joeblew999/plat-traffic/internal/observability"
)

// Status is the state of the study query.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

const (
	MessageLoading = "Loading studies..."
	MessageEmpty   = "No studies match the current filters."
	MessageFailed  = "Failed to load studies."
)

// QueryState is the result lifecycle of the study query.
type QueryState struct {
	Status       Status
	Results      []feature.Feature // meaningful only in StatusSuccess
	ErrorMessage string            // meaningful only in StatusError
	HasRun       bool
	Selected     *feature.Feature
}

// Notice is the inline message shown next to the filter controls.
func (s QueryState) Notice() string {
	switch {
	case s.Status == StatusLoading:
		return MessageLoading
	case s.Status == StatusError:
		return s.ErrorMessage
	case s.HasRun && len(s.Results) == 0:
		return MessageEmpty
	}
	return ""
}

// FailureMessage turns a failed read into the message shown to the user.
func FailureMessage(err error) string {
	var se *backend.StatusError
	if errors.As(err, &se) {
		return fmt.Sprintf("Request failed with status %d", se.Code)
	}
	return MessageFailed
}

// ErrNotSelectable is returned when a key names no feature of the current results.
var ErrNotSelectable = errors.New("no study with that marker key in the current results")

// Engine owns the filter criteria and the query state.
//
// Every run takes a new token. A response is applied only if its token is still
// the latest; anything older is dropped. Reset takes a token too, so a response
// that lands after a reset cannot bring results back.
type Engine struct {
	fetcher Fetcher
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	criteria Criteria
	state    QueryState
	token    uint64
}

func newEngine(fetcher Fetcher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		fetcher:  fetcher,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		criteria: DefaultCriteria(),
		state:    QueryState{Status: StatusIdle},
	}
}

// Run issues the study query for c and returns the state once the response
// has been applied or discarded.
func (e *Engine) Run(ctx context.Context, c Criteria) QueryState {
	e.mu.Lock()
	e.token++
	tok := e.token
	e.criteria = c
	e.state = QueryState{Status: StatusLoading, HasRun: true}
	e.mu.Unlock()

	params := c.Params()
	e.logger.InfoContext(ctx, "query issued", "token", tok, "params", params.Encode())
	start := e.clock.Now()
	features, err := e.fetcher.FetchFeatures(ctx, backend.StudiesPath, params)
	elapsed := e.clock.Since(start)
	e.metrics.QueryDuration.Observe(elapsed.Seconds())

	e.mu.Lock()
	defer e.mu.Unlock()

	if tok != e.token {
		e.metrics.Queries.WithLabelValues("stale").Inc()
		e.logger.InfoContext(ctx, "query discarded as stale", "token", tok, "latest", e.token)
		return e.state
	}
	if err != nil {
		e.state = QueryState{Status: StatusError, ErrorMessage: FailureMessage(err), HasRun: true}
		e.metrics.Queries.WithLabelValues("error").Inc()
		e.logger.WarnContext(ctx, "query failed", "token", tok, "err", err)
		return e.state
	}
	if features == nil {
		features = []feature.Feature{}
	}
	e.state = QueryState{Status: StatusSuccess, Results: features, HasRun: true}
	e.metrics.Queries.WithLabelValues("success").Inc()
	e.metrics.QueryResults.Observe(float64(len(features)))
	e.logger.InfoContext(ctx, "query completed", "token", tok, "results", len(features), "elapsed", elapsed)
	return e.state
}

// Reset restores the default criteria and the idle state without touching the network.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.token++
	e.criteria = DefaultCriteria()
	e.state = QueryState{Status: StatusIdle}
}

// Select marks the result with the given marker key as selected.
func (e *Engine) Select(key string) (feature.Feature, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.state.Results {
		if MarkerKey(e.state.Results[i]) == key {
			f := e.state.Results[i]
			e.state.Selected = &f
			return f, nil
		}
	}
	return feature.Feature{}, fmt.Errorf("select %q: %w", key, ErrNotSelectable)
}

// ClearSelection closes the detail view.
func (e *Engine) ClearSelection() {
	e.mu.Lock()
	e.state.Selected = nil
	e.mu.Unlock()
}

// State returns the current query state and criteria.
func (e *Engine) State() (QueryState, Criteria) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.criteria
}
