package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vinayprograms/renderkit/config"
	"github.com/vinayprograms/renderkit/manifest"
	"github.com/vinayprograms/renderkit/render"
	"github.com/vinayprograms/renderkit/scheduler"
	"github.com/vinayprograms/renderkit/shutdown"
	"github.com/vinayprograms/renderkit/telemetry"
)

type runOptions struct {
	out         string
	store       string
	concurrent  int
	rpm         int
	provider    string
	model       string
	placeholder bool
	natsURL     string
	events      string
	pages       pageSelection
}

func newRunCommand(g *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run MANIFEST",
		Args:  cobra.ExactArgs(1),
		Short: "Render every missing panel in a manifest",
		Long: `Render every panel in MANIFEST whose image is not already present.

MANIFEST is a JSON or YAML list of panels, or a directory of page-NNN.json
files with an optional cover.json rendered as page 0.
Pages run one after another and share one concurrency budget, so a throttle
on one page keeps the next page from starting at full speed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, g, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.out, "out", "o", "", "output directory for the file store")
	f.StringVar(&opts.store, "store", "", "artifact store: file, nats or memory")
	f.IntVar(&opts.concurrent, "concurrent", 0, "maximum concurrent render calls")
	f.IntVar(&opts.rpm, "rpm", 0, "maximum render calls per minute (-1 for unlimited)")
	f.StringVar(&opts.provider, "provider", "", "gemini, openai or mock")
	f.StringVar(&opts.model, "model", "", "provider model name")
	f.BoolVar(&opts.placeholder, "placeholder", false, "write a placeholder image for failed panels")
	f.StringVar(&opts.natsURL, "nats", "", "NATS URL for sharing throttles with other runs")
	f.StringVar(&opts.events, "events", "", "append job events to this JSONL file")
	opts.pages.register(f)

	return cmd
}

// apply folds command line flags into cfg.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if o.out != "" {
		cfg.Output.Dir = o.out
	}
	if o.store != "" {
		cfg.Output.Store = o.store
	}
	if f.Changed("concurrent") {
		if o.concurrent < 1 {
			return fmt.Errorf("--concurrent must be >= 1")
		}
		cfg.SetMaxConcurrent(o.concurrent)
	}
	if f.Changed("rpm") {
		cfg.Scheduler.MaxPerMinute = o.rpm
	}
	if o.provider != "" {
		cfg.Provider.Provider = o.provider
	}
	if o.model != "" {
		cfg.Provider.Model = o.model
		if o.provider == "" {
			if p := render.InferProvider(o.model); p != "" {
				cfg.Provider.Provider = p
			}
		}
	}
	if o.placeholder {
		cfg.Output.Placeholder = true
	}
	if o.natsURL != "" {
		cfg.Bus.URL = o.natsURL
	}
	if o.events != "" {
		cfg.Events.Protocol = "file"
		cfg.Events.Endpoint = o.events
	}
	cfg.ApplyDefaults()
	return cfg.Validate()
}

func runRender(cmd *cobra.Command, g *globalOptions, opts *runOptions, path string) error {
	cfg, log, err := g.load(cmd)
	if err != nil {
		return err
	}
	if err := opts.apply(cmd, cfg); err != nil {
		return err
	}

	entries, err := manifest.Load(path)
	if err != nil {
		return err
	}
	pages, err := opts.pages.apply(manifest.ByPage(manifest.Jobs(entries)))
	if err != nil {
		return err
	}

	runID := uuid.NewString()[:8]
	log = log.WithRunID(runID)

	coord := shutdown.NewCoordinator(shutdown.Config{
		OnSignal: func(sig os.Signal) {
			log.Warn("interrupted", map[string]interface{}{"signal": sig.String()})
		},
		OnProgress: func(hr shutdown.HandlerResult) {
			if hr.Err != nil {
				log.Warn("cleanup_failed", map[string]interface{}{"handler": hr.Name, "error": hr.Err.Error()})
			}
		},
	})
	coord.HandleSignals()
	defer coord.StopSignals()
	// Runs cleanup on early returns; a no-op after the explicit call below.
	defer coord.ShutdownWithTimeout()

	ctx := coord.Context()
	st, err := buildStack(ctx, cfg, log, runID, coord)
	if err != nil {
		return err
	}

	var total scheduler.Stats
	start := time.Now()
	for _, page := range pages {
		if ctx.Err() != nil {
			break
		}
		name := page.Name()
		stats := st.sched.RunNamed(ctx, name, page.Jobs)
		total.Add(stats)

		st.events.LogEvent(telemetry.EventBatchDone, map[string]interface{}{
			"batch":       name,
			"total":       stats.Total,
			"succeeded":   stats.Succeeded,
			"skipped":     stats.Skipped,
			"failed":      stats.Failed,
			"throttled":   stats.Throttled,
			"peak":        stats.PeakInFlight,
			"limit":       stats.FinalLimit,
			"duration_ms": stats.Duration.Milliseconds(),
		})
		log.Info("progress", map[string]interface{}{
			"completed": total.Completed(),
			"failed":    total.Failed,
			"limit":     stats.FinalLimit,
		})
	}
	total.Duration = time.Since(start)

	interrupted := ctx.Err() != nil
	if err := coord.ShutdownWithTimeout(); err != nil && err != shutdown.ErrAlreadyShutdown {
		log.Warn("shutdown_incomplete", map[string]interface{}{"error": err.Error()})
	}

	printSummary(cmd.OutOrStdout(), total, interrupted)
	if total.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrJobsFailed, total.Failed, total.Total)
	}
	if interrupted {
		return fmt.Errorf("%w: interrupted", ErrJobsFailed)
	}
	return nil
}

func printSummary(w io.Writer, s scheduler.Stats, interrupted bool) {
	fmt.Fprintf(w, "\nrendered %d, skipped %d, failed %d of %d (%d throttled attempts) in %s\n",
		s.Succeeded, s.Skipped, s.Failed, s.Total, s.Throttled, s.Duration.Round(time.Second))
	fmt.Fprintf(w, "peak concurrency %d, final limit %d\n", s.PeakInFlight, s.FinalLimit)
	if interrupted {
		fmt.Fprintln(w, "interrupted: rerun the same command to resume")
	}
	for _, r := range s.Results {
		if r.Outcome.Failed() {
			fmt.Fprintf(w, "  %s: %s", r.Artifact, r.Outcome)
			if r.Err != nil {
				fmt.Fprintf(w, ": %v", r.Err)
			}
			fmt.Fprintln(w)
		}
	}
}
