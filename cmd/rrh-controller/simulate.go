package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/hcran/rrh-channel-controller/api/v1alpha1"
	"github.com/hcran/rrh-channel-controller/internal/config"
	"github.com/hcran/rrh-channel-controller/internal/events"
	"github.com/hcran/rrh-channel-controller/internal/sim"
)

type simulateOptions struct {
	duration time.Duration
	quiet    bool
}

func newSimulateCommand(opts *globalOptions) *cobra.Command {
	simOpts := &simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the controller and its cell agents in virtual time and print every completed round",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			ctx := ctrl.LoggerInto(cmd.Context(), ctrl.Log.WithName("sim"))
			return simulate(ctx, cfg, simOpts, cmd.OutOrStdout())
		},
	}
	config.AddFlags(cmd.Flags())
	cmd.Flags().DurationVar(&simOpts.duration, "duration", 10*time.Second, "Virtual time to simulate.")
	cmd.Flags().BoolVar(&simOpts.quiet, "quiet", false, "Print only the final allocation.")
	return cmd
}

// roundSummary is the yaml document printed for each completed round.
type roundSummary struct {
	Round      int64   `yaml:"round"`
	ElapsedSec float64 `yaml:"elapsedSeconds"`
	TotalLoad  int     `yaml:"totalLoad"`
	Loads      []int   `yaml:"loads,flow"`
	Channels   []int   `yaml:"channels,flow"`
	LatencyMs  float64 `yaml:"roundLatencyMs"`
}

func summarize(status *v1alpha1.AllocationStatus, duration time.Duration) roundSummary {
	s := roundSummary{
		Round:     status.Round,
		TotalLoad: status.TotalLoad,
		Channels:  status.Channels(),
		LatencyMs: float64(duration) / float64(time.Millisecond),
	}
	if !status.LastRoundTime.IsZero() {
		s.ElapsedSec = status.LastRoundTime.Sub(sim.Epoch).Seconds()
	}
	for _, c := range status.Cells {
		s.Loads = append(s.Loads, c.Load)
	}
	return s
}

func simulate(ctx context.Context, cfg *config.Config, opts *simulateOptions, out io.Writer) error {
	// every completed round must reach the output, so publishing blocks on a slow writer
	broadcaster := events.NewBroadcaster(0, 1024)
	rounds := broadcaster.Subscribe(events.RoundCompleted)

	s := sim.New(sim.WithLinkLatency(cfg.LinkLatency))
	sys, err := buildSystem(ctx, cfg, s, s, broadcaster)
	if err != nil {
		broadcaster.Close()
		return err
	}
	s.Attach(sys.controller, sys.agents...)

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	printed := make(chan error, 1)
	go func() {
		var encErr error
		for v := range rounds {
			e := v.(events.Event)
			if opts.quiet || encErr != nil {
				continue
			}
			encErr = enc.Encode(summarize(e.Status, e.Duration))
		}
		printed <- encErr
	}()

	runErr := s.Run(ctx, opts.duration)
	broadcaster.Close()
	if err := <-printed; err != nil {
		return fmt.Errorf("writing round summary: %w", err)
	}
	if runErr != nil {
		return runErr
	}

	final := sys.controller.Status()
	if err := enc.Encode(map[string]any{"final": summarize(final, 0)}); err != nil {
		return fmt.Errorf("writing final allocation: %w", err)
	}
	return enc.Close()
}
