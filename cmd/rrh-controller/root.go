package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hcran/rrh-channel-controller/internal/agent"
	"github.com/hcran/rrh-channel-controller/internal/config"
	"github.com/hcran/rrh-channel-controller/internal/controller"
	"github.com/hcran/rrh-channel-controller/internal/logging"
	"github.com/hcran/rrh-channel-controller/internal/protocol"
)

const appName = "rrh-controller"

// globalOptions are shared by every subcommand.
type globalOptions struct {
	configFile  string
	development bool
	verbosity   int
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Poll cell agents for load and redistribute a shared channel pool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.InitSetupLogging(opts.development)
			logging.SetVerbosity(opts.verbosity)
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "Path to a yaml configuration file.")
	pf.BoolVar(&opts.development, "zap-devel", false, "Use development logging (console encoder, debug stack traces).")
	pf.IntVarP(&opts.verbosity, "v", "v", logging.DEFAULT, "Log verbosity; 4 enables debug and 5 trace output.")

	cmd.AddCommand(
		newRunCommand(opts),
		newSimulateCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// loadConfig reads the configuration from defaults, the config file, RRH_* variables and fs.
func (o *globalOptions) loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	v, err := config.NewViper(fs, o.configFile)
	if err != nil {
		return nil, err
	}
	return config.Load(v)
}

// system is a controller with its agents, not yet attached to a host.
type system struct {
	controller *controller.Controller
	agents     []*agent.CellAgent
}

// buildSystem creates the controller and one agent per cell. The host is both the
// transport and the timer source.
func buildSystem(ctx context.Context, cfg *config.Config, sender protocol.Sender, scheduler controller.Scheduler, recorders ...controller.Recorder) (*system, error) {
	c, err := controller.New(ctx, cfg.Controller, sender, scheduler,
		controller.WithRecorders(recorders...),
		controller.WithInstanceID(uuid.NewString()))
	if err != nil {
		return nil, fmt.Errorf("unable to create controller: %w", err)
	}
	if err := cfg.Agents.CheckCells(c.Topology()); err != nil {
		return nil, err
	}
	agents, err := agent.NewFleet(ctx, c.Topology().Cells(), cfg.Agents.GetAgentSpec, sender)
	if err != nil {
		return nil, fmt.Errorf("unable to create cell agents: %w", err)
	}
	return &system{controller: c, agents: agents}, nil
}
