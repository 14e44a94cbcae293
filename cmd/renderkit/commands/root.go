package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/renderkit/config"
	"github.com/vinayprograms/renderkit/logging"
)

// ErrJobsFailed is returned by run when at least one job failed.
var ErrJobsFailed = errors.New("jobs failed")

// Version is set at build time with -ldflags.
var Version = "dev"

type globalOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "renderkit",
		Short:         "Render image panels under adaptive rate limits",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (default: ./renderkit.toml if present)")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error")

	rootCmd.AddCommand(
		newRunCommand(g),
		newPlanCommand(g),
		newVersionCommand(),
	)

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("renderkit", Version)
		},
	}
}

// load reads the config file and sets up the console logger.
func (g *globalOptions) load(cmd *cobra.Command) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}

	log := logging.New()
	log.SetOutput(cmd.ErrOrStderr())
	log.SetLevel(logging.ParseLevel(cfg.Log.Level))
	return cfg, log, nil
}
