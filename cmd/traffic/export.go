package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/joeblew999/plat-traffic/internal/backend"
	"github.com/joeblew999/plat-traffic/internal/explorer"
	"github.com/joeblew999/plat-traffic/internal/export"
	"github.com/joeblew999/plat-traffic/internal/service"
)

// exportFlags are the filter controls of a headless export.
type exportFlags struct {
	StartYear string
	EndYear   string
	Direction string
	Out       string
}

func newExportCmd() *cobra.Command {
	var f exportFlags
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Run one filter against the backend and write traffic_studies.csv",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			log := newLogger(opts)
			n, err := runExport(ctx, opts, f, log)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if n == 0 {
				fmt.Println(explorer.MessageEmpty)
				return
			}
			fmt.Printf("Wrote %d studies to %s/%s\n", n, f.Out, export.Filename)
		}),
	}
	cmd.Flags().StringVar(&f.StartYear, "start-year", "2020", "First study year")
	cmd.Flags().StringVar(&f.EndYear, "end-year", "2024", "Last study year")
	cmd.Flags().StringVar(&f.Direction, "direction", "All", "All, Northbound, Southbound, Eastbound or Westbound")
	cmd.Flags().StringVarP(&f.Out, "out", "o", ".", "Directory to write the CSV into")
	return cmd
}

// runExport filters once in a headless session and saves the results. It
// returns the number of studies written.
func runExport(ctx context.Context, opts *Options, f exportFlags, log *slog.Logger) (int, error) {
	registry, err := service.NewRegistry(opts.Layers)
	if err != nil {
		return 0, err
	}
	timeout, err := backendTimeout(opts)
	if err != nil {
		return 0, err
	}
	client, err := backend.New(opts.BackendURL, backend.NewOutbound(timeout), log, nil)
	if err != nil {
		return 0, err
	}

	x := explorer.New("headless", registry.Layout(), client, explorer.Options{Logger: log})
	st := x.RunFilter(ctx, explorer.ParseCriteria(f.StartYear, f.EndYear, f.Direction))
	if st.Status == explorer.StatusError {
		return 0, fmt.Errorf("%s", st.ErrorMessage)
	}

	b, out := export.Export(ctx, x.Results(), export.FileSaver{Dir: f.Out}, log)
	switch out {
	case export.OutcomeEmpty:
		return 0, nil
	case export.OutcomeFailed:
		return 0, fmt.Errorf("could not write %s to %s", b.Filename, f.Out)
	}
	return b.Rows, nil
}
