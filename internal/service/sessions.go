package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"

	"github.com/joeblew999/plat-traffic/internal/explorer"
	"github.com/joeblew999/plat-traffic/internal/logger"
	"github.com/joeblew999/plat-traffic/internal/observability"
)

// SessionOptions configure a Sessions store.
type SessionOptions struct {
	MaxSessions int
	Clock       clockwork.Clock
	Logger      *slog.Logger
	Metrics     *observability.Metrics
	Bus         *EventBus
}

// Sessions keeps the most recently used explorer sessions in memory. The least
// recently used one is dropped once MaxSessions is exceeded.
type Sessions struct {
	cache    *lru.Cache[string, *explorer.Explorer]
	registry *Registry
	fetcher  explorer.Fetcher
	opts     SessionOptions
}

// NewSessions creates a session store whose explorers read through fetcher.
func NewSessions(registry *Registry, fetcher explorer.Fetcher, opts SessionOptions) (*Sessions, error) {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 256
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics(nil)
	}
	if opts.Bus == nil {
		opts.Bus = NewEventBus()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Sessions{registry: registry, fetcher: fetcher, opts: opts}
	cache, err := lru.NewWithEvict(opts.MaxSessions, s.onEvict)
	if err != nil {
		return nil, fmt.Errorf("session cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

func (s *Sessions) onEvict(id string, _ *explorer.Explorer) {
	s.opts.Metrics.SessionsActive.Set(float64(s.cache.Len()))
	s.opts.Logger.InfoContext(logger.WithSession(context.Background(), id), "session removed")
	s.opts.Bus.Publish(Event{Session: id, Resource: ResourceSession, Action: "removed"})
}

// Create starts a new session. Default overlays are loaded before returning
// when wait is set, in the background otherwise.
func (s *Sessions) Create(ctx context.Context, wait bool) *explorer.Explorer {
	id := uuid.NewString()
	x := explorer.New(id, s.registry.Layout(), s.fetcher, explorer.Options{
		Clock:   s.opts.Clock,
		Logger:  s.opts.Logger,
		Metrics: s.opts.Metrics,
		Notify: func(resource, action string) {
			s.opts.Bus.Publish(Event{Session: id, Resource: resource, Action: action})
		},
	})
	s.cache.Add(id, x)
	s.opts.Metrics.SessionsActive.Set(float64(s.cache.Len()))
	s.opts.Logger.InfoContext(logger.WithSession(ctx, id), "session created")

	if wait {
		x.Preload(ctx)
	} else {
		go x.Preload(context.WithoutCancel(ctx))
	}
	return x
}

// Get returns a session and marks it recently used.
func (s *Sessions) Get(id string) (*explorer.Explorer, bool) {
	return s.cache.Get(id)
}

// Delete drops a session. It reports whether the session existed.
func (s *Sessions) Delete(id string) bool {
	return s.cache.Remove(id)
}

func (s *Sessions) Len() int { return s.cache.Len() }

// Bus returns the bus session changes are published on.
func (s *Sessions) Bus() *EventBus { return s.opts.Bus }
