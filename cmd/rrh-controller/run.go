package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"
	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/hcran/rrh-channel-controller/internal/config"
	"github.com/hcran/rrh-channel-controller/internal/logging"
	"github.com/hcran/rrh-channel-controller/internal/metrics"
	"github.com/hcran/rrh-channel-controller/internal/runtime"
)

func newRunCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the controller and its cell agents in real time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return run(ctrl.SetupSignalHandler(), cfg)
		},
	}
	config.AddFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	setupLog := ctrl.Log.WithName("setup")
	ctx = ctrl.LoggerInto(ctx, ctrl.Log.WithName("rrh"))
	setupLog.Info("Starting", "version", version.Info(), "build", version.BuildContext())

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollectors()
	if err := recorder.Register(registry); err != nil {
		return err
	}

	host := runtime.NewHost()
	sys, err := buildSystem(ctx, cfg, host, host, recorder)
	if err != nil {
		return err
	}
	host.Attach(sys.controller, sys.agents...)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		status, err := host.Status(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			setupLog.V(logging.DEBUG).Info("Failed to write status", "error", err)
		}
	})
	server := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		setupLog.Info("Serving metrics", "address", cfg.MetricsAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	hostCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	hostErr := make(chan error, 1)
	go func() { hostErr <- host.Run(hostCtx) }()

	select {
	case err = <-serverErr:
		cancel()
		<-hostErr
	case err = <-hostErr:
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		setupLog.Error(shutdownErr, "Failed to shut down metrics server")
	}
	return err
}
