package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joeblew999/plat-traffic/internal/api"
	"github.com/joeblew999/plat-traffic/internal/api/viewer"
	"github.com/joeblew999/plat-traffic/internal/backend"
	"github.com/joeblew999/plat-traffic/internal/explorer"
	"github.com/joeblew999/plat-traffic/internal/humastar"
	"github.com/joeblew999/plat-traffic/internal/logger"
	"github.com/joeblew999/plat-traffic/internal/observability"
	"github.com/joeblew999/plat-traffic/internal/service"
	"github.com/joeblew999/plat-traffic/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host           string
	Port           string
	WebDir         string // Path to web/ directory for static files and templates
	BackendURL     string
	BackendTimeout time.Duration
	LayersPath     string // optional YAML layer registry
	MaxSessions    int
	ExportDir      string
	Logger         *slog.Logger
}

// Server is the traffic explorer HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	logger   *slog.Logger
	metrics  *observability.Metrics
	promReg  *prometheus.Registry
	registry *service.Registry
	sessions *service.Sessions
	exports  *service.ExportStore
	renderer *templates.Renderer
}

// New wires the backend client, session store and routes. Only an invalid
// layer registry or backend URL is an error.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-traffic API", "1.0.0")
	humaConfig.Info.Description = "Traffic study map explorer: filter studies, toggle overlays, inspect and export results."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)

	promReg := observability.NewRegistry()
	metrics := observability.NewMetrics(promReg)

	registry, err := service.NewRegistry(cfg.LayersPath)
	if err != nil {
		return nil, err
	}

	client, err := backend.New(cfg.BackendURL, backend.NewOutbound(cfg.BackendTimeout), cfg.Logger, metrics)
	if err != nil {
		return nil, err
	}

	sessions, err := service.NewSessions(registry, client, service.SessionOptions{
		MaxSessions: cfg.MaxSessions,
		Logger:      cfg.Logger,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, err
	}

	// Initialize template renderer for viewer SSE handlers
	var renderer *templates.Renderer
	if cfg.WebDir != "" {
		fragmentsDir := filepath.Join(cfg.WebDir, "templates", "fragments")
		if r, err := templates.New(fragmentsDir); err == nil {
			renderer = r
			cfg.Logger.Info("loaded fragment templates", "dir", fragmentsDir)
		} else {
			cfg.Logger.Warn("viewer disabled, fragment templates not loaded", "dir", fragmentsDir, "err", err)
		}
	}

	s := &Server{
		config:   cfg,
		mux:      mux,
		humaAPI:  humaAPI,
		logger:   cfg.Logger,
		metrics:  metrics,
		promReg:  promReg,
		registry: registry,
		sessions: sessions,
		exports:  service.NewExportStore(cfg.ExportDir),
		renderer: renderer,
	}
	s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Sessions returns the session store.
func (s *Server) Sessions() *service.Sessions {
	return s.sessions
}

// Exports returns the store saved exports are written to.
func (s *Server) Exports() *service.ExportStore {
	return s.exports
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, &api.Services{
		Registry: s.registry,
		Sessions: s.sessions,
		Exports:  s.exports,
		Metrics:  s.metrics,
	})
	api.NewInfoHandler(s.config.BackendURL, s.registry.Path(), s.exports.Dir()).RegisterRoutes(s.humaAPI)

	// Register viewer SSE routes using Huma + Datastar SDK
	if s.renderer != nil {
		viewer.New(s.sessions, s.exports, s.renderer, s.metrics, s.logger).RegisterRoutes(s.humaAPI)
	}

	s.mux.Handle("/metrics", observability.Handler(s.promReg))

	// Static files and pages
	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}

	s.mux.HandleFunc("/viewer", s.handleViewer)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.renderer != nil {
		http.Redirect(w, r, "/viewer", http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-traffic",
		"status":  "running",
	})
}

// PageData is what viewer.html renders from.
type PageData struct {
	SessionID  string
	Signals    string
	Status     viewer.FilterStatus
	Overlays   []explorer.OverlayStatus
	Detail     *explorer.Detail
	BaseMaps   []humastar.SelectOptionData
	Directions []humastar.SelectOptionData
}

// handleViewer starts a session and renders the page for it. Default overlays
// load in the background and reach the page over the events stream.
func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	if s.renderer == nil {
		http.Error(w, "viewer not available", http.StatusServiceUnavailable)
		return
	}
	x := s.sessions.Create(r.Context(), false)
	snap := x.Snapshot()

	signals := map[string]any{
		"sessionid":      x.ID(),
		"startyear":      strconv.Itoa(snap.Criteria.StartYear),
		"endyear":        strconv.Itoa(snap.Criteria.EndYear),
		"direction":      string(snap.Criteria.Direction),
		"basemap":        snap.BaseMap.Key,
		"filterdisabled": snap.Controls.FilterDisabled,
		"resetdisabled":  snap.Controls.ResetDisabled,
		"exportdisabled": snap.Controls.ExportDisabled,
		"error":          "",
		"success":        "",
	}
	for _, o := range snap.Overlays {
		signals["overlay_"+o.Name] = o.Enabled
	}
	data, err := json.Marshal(signals)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	page := PageData{
		SessionID:  x.ID(),
		Signals:    string(data),
		Status:     viewer.FilterStatus{Status: string(snap.Query.Status), Notice: snap.Query.Notice()},
		Overlays:   snap.Overlays,
		Detail:     snap.Detail,
		BaseMaps:   viewer.BaseMapOptions(x.Layout().BaseMaps, snap.BaseMap.Key),
		Directions: viewer.DirectionOptions(snap.Criteria.Direction),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	pagePath := filepath.Join(s.config.WebDir, "templates", "viewer.html")
	if err := s.renderer.Page(w, pagePath, page); err != nil {
		s.logger.ErrorContext(r.Context(), "render viewer", "err", err)
	}
}
