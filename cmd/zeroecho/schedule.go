package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/zeroecho/internal/pipeline"
)

const shutdownTimeout = 10 * time.Second

func newScheduleCmd(root *rootOptions) *cobra.Command {
	var (
		spec        string
		metricsAddr string
		immediate   bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the full pipeline on a cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := root.services(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			if spec == "" {
				spec = svc.Config.Pipeline.Schedule
			}
			if metricsAddr == "" {
				metricsAddr = svc.Config.Pipeline.MetricsAddr
			}

			sched, err := pipeline.NewScheduler(svc.Orchestrator, spec, pipeline.RunRequest{
				BatchLimit: svc.Config.Pipeline.BatchLimit,
			}, svc.Logger)
			if err != nil {
				return err
			}

			var srv *http.Server
			if metricsAddr != "" {
				srv = serveMetrics(svc, metricsAddr)
			}

			sched.Start()
			if immediate {
				sched.RunOnce(ctx)
			}
			svc.Logger.Info("Waiting for scheduled runs", zap.String("schedule", spec))

			<-ctx.Done()
			sched.Stop()

			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					svc.Logger.Warn("Metrics server shutdown failed", zap.Error(err))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&spec, "cron", "", "Cron expression or descriptor (default from config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().BoolVar(&immediate, "now", false, "Run once immediately before waiting for the schedule")
	return cmd
}

func serveMetrics(svc *Services, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", svc.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if svc.Registry.Degraded() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("degraded\n"))
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			svc.Logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	svc.Logger.Info("Serving metrics", zap.String("addr", addr))
	return srv
}
