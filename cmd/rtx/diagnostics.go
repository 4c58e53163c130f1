package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jordigilh/rtx/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

type diagnosticsFlags struct {
	addr string
}

func newDiagnosticsCommand() *cobra.Command {
	var f diagnosticsFlags
	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Serve health and Prometheus metrics endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnostics(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&f.addr, "addr", ":9090", "address to serve /healthz and /metrics on")
	return cmd
}

func runDiagnostics(ctx context.Context, f diagnosticsFlags) error {
	log, err := newLogger()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	telemetry.NewMetrics(reg)

	srv := telemetry.NewServer(f.addr, reg, log)
	srv.StartAsync()
	log.Info("diagnostics server listening", "addr", f.addr)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error(err, "diagnostics server did not shut down cleanly")
	}
	return nil
}
