package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/vinayprograms/renderkit/admission"
	"github.com/vinayprograms/renderkit/artifact"
	"github.com/vinayprograms/renderkit/bus"
	"github.com/vinayprograms/renderkit/config"
	"github.com/vinayprograms/renderkit/credentials"
	"github.com/vinayprograms/renderkit/logging"
	"github.com/vinayprograms/renderkit/render"
	"github.com/vinayprograms/renderkit/scheduler"
	"github.com/vinayprograms/renderkit/shutdown"
	"github.com/vinayprograms/renderkit/telemetry"
)

// stack is everything a run needs. Cleanup is registered on the
// coordinator as each piece is built, so a partial stack still closes.
type stack struct {
	log    *logging.Logger
	bus    *bus.NATSBus
	store  artifact.Store
	events telemetry.Exporter
	sched  *scheduler.Scheduler
}

// openStore connects the bus when configured and opens the artifact store.
// The plan command needs nothing more.
func openStore(ctx context.Context, cfg *config.Config, coord *shutdown.Coordinator) (*stack, error) {
	st := &stack{}

	if cfg.Bus.Enabled() {
		nb, err := bus.NewNATSBus(cfg.Bus.NATS())
		if err != nil {
			return nil, err
		}
		st.bus = nb
		coord.RegisterFunc("nats", shutdown.PhaseConnections+5, func(context.Context) error {
			return nb.Close()
		})
	}

	switch cfg.Output.Store {
	case config.StoreMemory:
		st.store = artifact.NewMemoryStore()
	case config.StoreNATS:
		ns, err := artifact.NewNATSStore(ctx, artifact.NATSStoreConfig{
			Conn:        st.bus.Conn(),
			Bucket:      cfg.Output.Bucket,
			Description: "renderkit panels",
		})
		if err != nil {
			return nil, err
		}
		st.store = ns
		coord.RegisterFunc("object-store", shutdown.PhaseConnections, func(context.Context) error {
			return ns.Close()
		})
	default:
		fs, err := artifact.NewFileStore(cfg.Output.Dir)
		if err != nil {
			return nil, err
		}
		st.store = fs
	}
	return st, nil
}

// buildStack wires the renderer, budgets and scheduler on top of openStore.
func buildStack(ctx context.Context, cfg *config.Config, log *logging.Logger, runID string, coord *shutdown.Coordinator) (*stack, error) {
	st, err := openStore(ctx, cfg, coord)
	if err != nil {
		return nil, err
	}
	st.log = log

	if cfg.Telemetry.Enabled() {
		provider, err := telemetry.InitProvider(ctx, cfg.Telemetry)
		if err != nil {
			return nil, err
		}
		coord.RegisterFunc("tracing", shutdown.PhaseTelemetry, provider.Shutdown)
		log.Debug("tracing_enabled", map[string]interface{}{"endpoint": cfg.Telemetry.ResolveEndpoint()})
	}

	events, err := telemetry.NewExporter(cfg.Events.Protocol, cfg.Events.Endpoint, runID)
	if err != nil {
		return nil, err
	}
	st.events = events
	coord.RegisterFunc("events", shutdown.PhaseTelemetry, func(context.Context) error {
		return events.Close()
	})

	creds, credPath, err := credentials.Load()
	if err != nil {
		return nil, err
	}
	if credPath != "" {
		log.Debug("credentials_loaded", map[string]interface{}{"path": credPath})
	}
	pcfg := cfg.Provider
	pcfg.APIKey = creds.GetAPIKey(pcfg.Provider)

	renderer, err := render.New(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("renderer: %w", err)
	}
	registerCloser(coord, "renderer", shutdown.PhaseConnections, renderer)
	renderer = render.WithTracing(renderer, pcfg.Provider, pcfg.Model)

	admissionLog := log.WithComponent("admission")
	sc := cfg.SchedulerConfig()
	budget, bucket, policy, err := sc.Budgets(admission.WithOnChange(func(ch admission.Change) {
		admissionLog.LimitChanged(ch.Old, ch.New, ch.Reason)
		events.LogEvent(telemetry.EventLimitChanged, map[string]interface{}{
			"old":    ch.Old,
			"new":    ch.New,
			"reason": ch.Reason,
		})
	}))
	if err != nil {
		return nil, err
	}
	coord.RegisterFunc("rate-limiter", shutdown.PhaseBatch, func(context.Context) error {
		return bucket.Close()
	})

	deps := scheduler.Deps{
		Renderer: renderer,
		Sink:     st.store,
		Logger:   log.WithComponent("scheduler"),
		OnJobDone: func(r scheduler.JobResult, _ scheduler.Stats) {
			data := map[string]interface{}{
				"job":         r.Key.String(),
				"artifact":    r.Artifact,
				"outcome":     r.Outcome.String(),
				"attempts":    r.Attempts,
				"throttled":   r.Throttled,
				"duration_ms": r.Duration.Milliseconds(),
			}
			if r.Err != nil {
				data["error"] = r.Err.Error()
			}
			events.LogEvent(telemetry.EventJobDone, data)
		},
	}
	if cfg.Output.Placeholder {
		deps.Placeholder = scheduler.WritePlaceholder(st.store)
	}

	if st.bus != nil {
		bc, err := admission.NewBroadcaster(admission.BroadcastConfig{
			Bus:      st.bus,
			Budget:   budget,
			Subject:  cfg.Bus.Subject,
			Source:   runID,
			Provider: pcfg.Provider,
			Cooldown: cfg.Bus.Cooldown,
			OnNotice: func(n admission.ThrottleNotice) {
				admissionLog.Info("remote_throttle", map[string]interface{}{
					"source": n.Source,
					"reason": n.Reason,
					"limit":  budget.Limit(),
				})
			},
		})
		if err != nil {
			return nil, err
		}
		deps.Announcer = bc
		coord.RegisterFunc("broadcaster", shutdown.PhaseBatch, func(context.Context) error {
			return bc.Close()
		})
	}

	st.sched, err = scheduler.New(budget, bucket, policy, deps,
		scheduler.WithCallTimeout(sc.CallTimeout),
		scheduler.WithIncreaseEvery(sc.IncreaseEvery),
	)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// registerCloser closes v in the given phase if it holds resources.
func registerCloser(coord *shutdown.Coordinator, name string, phase int, v interface{}) {
	c, ok := v.(io.Closer)
	if !ok {
		return
	}
	coord.RegisterFunc(name, phase, func(context.Context) error {
		return c.Close()
	})
}
