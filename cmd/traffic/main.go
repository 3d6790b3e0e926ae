package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-traffic/internal/logger"
	"github.com/joeblew999/plat-traffic/internal/server"
)

// Options defines all CLI flags and env vars for the traffic server.
// Flags: --host, --port, --backend-url, --backend-timeout, --web-dir, --layers,
// --max-sessions, --export-dir, --log-level, --log-console
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_BACKEND_URL, ...
type Options struct {
	Host           string `doc:"Host to bind to" default:"0.0.0.0"`
	Port           int    `doc:"Port to listen on" short:"p" default:"8086"`
	BackendURL     string `doc:"Base URL of the study backend" default:"http://127.0.0.1:8000"`
	BackendTimeout string `doc:"Timeout of one backend request" default:"30s"`
	WebDir         string `doc:"Path to web/ directory" default:"web"`
	Layers         string `doc:"YAML layer registry (built-in layers when empty)"`
	MaxSessions    int    `doc:"Explorer sessions kept in memory" default:"256"`
	ExportDir      string `doc:"Directory saved CSV exports are written to" default:".data/exports"`
	LogLevel       string `doc:"Log level: debug, info, warn, error" default:"info"`
	LogConsole     bool   `doc:"Human-readable console logs instead of JSON"`
}

func newLogger(opts *Options) *slog.Logger {
	zl := logger.Build(logger.Config{
		Level:     opts.LogLevel,
		Console:   opts.LogConsole,
		Component: "traffic",
	}, os.Stderr)
	return logger.NewSlog(&zl)
}

func backendTimeout(opts *Options) (time.Duration, error) {
	d, err := time.ParseDuration(opts.BackendTimeout)
	if err != nil {
		return 0, fmt.Errorf("backend timeout: %w", err)
	}
	return d, nil
}

func newServer(opts *Options, log *slog.Logger) (*server.Server, error) {
	timeout, err := backendTimeout(opts)
	if err != nil {
		return nil, err
	}
	return server.New(server.Config{
		Host:           opts.Host,
		Port:           fmt.Sprintf("%d", opts.Port),
		WebDir:         opts.WebDir,
		BackendURL:     opts.BackendURL,
		BackendTimeout: timeout,
		LayersPath:     opts.Layers,
		MaxSessions:    opts.MaxSessions,
		ExportDir:      opts.ExportDir,
		Logger:         log,
	})
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "err", err)
	os.Exit(1)
}

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		log := newLogger(opts)
		slog.SetDefault(log)

		var httpSrv *http.Server

		hooks.OnStart(func() {
			srv, err := newServer(opts, log)
			if err != nil {
				fatal(log, "server setup failed", err)
			}
			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			httpSrv = &http.Server{
				Addr:              addr,
				Handler:           srv,
				ReadHeaderTimeout: 10 * time.Second,
			}

			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-traffic server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Backend: %s\n", opts.BackendURL)
			fmt.Println()
			fmt.Printf("  Pages:   %s/viewer\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Println()

			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fatal(log, "server error", err)
			}
		})

		hooks.OnStop(func() {
			if httpSrv == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(ctx); err != nil {
				log.Warn("shutdown", "err", err)
			}
		})
	})

	cli.Root().Use = "traffic"
	cli.Root().Short = "Traffic study map explorer"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv, err := newServer(opts, logger.Discard())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	cli.Root().AddCommand(newExportCmd())

	cli.Run()
}
