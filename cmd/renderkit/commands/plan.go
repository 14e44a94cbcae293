package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/renderkit/artifact"
	"github.com/vinayprograms/renderkit/manifest"
	"github.com/vinayprograms/renderkit/shutdown"
)

func newPlanCommand(g *globalOptions) *cobra.Command {
	var out, natsURL, store string
	var sel pageSelection

	cmd := &cobra.Command{
		Use:   "plan MANIFEST",
		Args:  cobra.ExactArgs(1),
		Short: "List the jobs a run would execute",
		Long:  `List every job in MANIFEST and whether its image already exists. No provider is called.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.load(cmd)
			if err != nil {
				return err
			}
			if out != "" {
				cfg.Output.Dir = out
			}
			if store != "" {
				cfg.Output.Store = store
			}
			if natsURL != "" {
				cfg.Bus.URL = natsURL
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			entries, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			pages, err := sel.apply(manifest.ByPage(manifest.Jobs(entries)))
			if err != nil {
				return err
			}

			coord := shutdown.NewCoordinator(shutdown.DefaultConfig())
			defer coord.ShutdownWithTimeout()

			st, err := openStore(cmd.Context(), cfg, coord)
			if err != nil {
				return err
			}
			return printPlan(cmd.Context(), cmd.OutOrStdout(), pages, st.store)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&out, "out", "o", "", "output directory for the file store")
	f.StringVar(&store, "store", "", "artifact store: file, nats or memory")
	f.StringVar(&natsURL, "nats", "", "NATS URL for the nats store")
	sel.register(f)

	return cmd
}

func printPlan(ctx context.Context, w io.Writer, pages []manifest.Page, oracle artifact.Oracle) error {
	var total, present int
	for _, page := range pages {
		fmt.Fprintf(w, "%s\n", page.Name())
		for _, job := range page.Jobs {
			exists, err := anyExists(ctx, oracle, job.Artifacts())
			if err != nil {
				return fmt.Errorf("check %s: %w", job.Artifact, err)
			}
			mark := "  "
			if exists {
				mark = "✓ "
				present++
			}
			fmt.Fprintf(w, "  %s%s\n", mark, job.Artifact)
			total++
		}
	}
	fmt.Fprintf(w, "\n%d jobs, %d present, %d to render\n", total, present, total-present)
	return nil
}

func anyExists(ctx context.Context, oracle artifact.Oracle, ids []string) (bool, error) {
	for _, id := range ids {
		ok, err := oracle.Exists(ctx, id)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}
