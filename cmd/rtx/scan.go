package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/jordigilh/rtx/internal/dependency"
	"github.com/jordigilh/rtx/internal/policy"
	"github.com/jordigilh/rtx/internal/report"
	"github.com/jordigilh/rtx/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

type scanFlags struct {
	input  string
	output string
	failOn string
}

func newScanCommand() *cobra.Command {
	var f scanFlags
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Evaluate a dependency working set and emit a trust report",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if f.input == "" {
				return errors.New("rtx scan: --input is required")
			}
			if _, err := parseFailOn(f.failOn); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&f.input, "input", "", "path to a JSON file of scanner-emitted dependency records")
	cmd.Flags().StringVar(&f.output, "output", "", "path to write the JSON report (defaults to stdout)")
	cmd.Flags().StringVar(&f.failOn, "fail-on", "medium", "minimum worst severity at which rtx exits with the report's exit code instead of 0 (low|medium|high|critical); low verdicts map to exit 0")
	return cmd
}

// parseFailOn validates --fail-on before any network call.
func parseFailOn(raw string) (policy.Severity, error) {
	switch raw {
	case "low", "medium", "high", "critical":
		return policy.ParseSeverity(raw), nil
	default:
		return 0, errors.Errorf("rtx: invalid --fail-on value %q", raw)
	}
}

func runScan(ctx context.Context, f scanFlags) error {
	deps, err := dependency.LoadDependencyFile(f.input)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	orch, err := buildOrchestrator(ctx, cfg, log, reg)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := telemetry.NewServer(cfg.MetricsAddr, reg, log)
		srv.StartAsync()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				log.Error(err, "metrics server did not shut down cleanly")
			}
		}()
	}

	b := dependency.NewBuilder()
	b.Add(deps...)
	workingSet := b.Build()

	r, err := orch.Run(ctx, workingSet)
	if err != nil {
		return errors.Wrap(err, "rtx scan: run pipeline")
	}
	log.Info("scan complete", "dependencies", len(workingSet), "exit_code", r.ExitCode)

	if err := writeReport(f.output, r); err != nil {
		return err
	}

	if err := notifySlack(ctx, cfg, r); err != nil {
		log.Error(err, "slack notification failed")
	}

	threshold, _ := parseFailOn(f.failOn)
	if worstSeverity(r) < threshold {
		return nil
	}
	if r.ExitCode > 0 {
		os.Exit(r.ExitCode)
	}
	return nil
}

// worstSeverity returns the highest verdict severity present in r.
func worstSeverity(r report.Report) policy.Severity {
	worst := policy.SeveritySafe
	for _, v := range r.Verdicts {
		if s := policy.ParseSeverity(v.Severity); s > worst {
			worst = s
		}
	}
	return worst
}

func writeReport(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "rtx: marshal report")
	}
	if path == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "rtx: write report")
	}
	return nil
}
