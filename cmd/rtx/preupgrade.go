package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jordigilh/rtx/internal/dependency"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

type preUpgradeFlags struct {
	baseline string
	proposed string
	output   string
}

func newPreUpgradeCommand() *cobra.Command {
	var f preUpgradeFlags
	cmd := &cobra.Command{
		Use:   "pre-upgrade",
		Short: "Compare trust posture before and after a proposed dependency change",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if f.baseline == "" || f.proposed == "" {
				return errors.New("rtx pre-upgrade: --baseline and --proposed are both required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreUpgrade(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&f.baseline, "baseline", "", "path to the current working set's dependency JSON")
	cmd.Flags().StringVar(&f.proposed, "proposed", "", "path to the proposed working set's dependency JSON")
	cmd.Flags().StringVar(&f.output, "output", "", "path to write the JSON diff view (defaults to stdout)")
	return cmd
}

func runPreUpgrade(ctx context.Context, f preUpgradeFlags) error {
	baselineDeps, err := loadWorkingSet(f.baseline)
	if err != nil {
		return err
	}
	proposedDeps, err := loadWorkingSet(f.proposed)
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
	orch, err := buildOrchestrator(ctx, cfg, log, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	diff, err := orch.RunPreUpgrade(ctx, baselineDeps, proposedDeps)
	if err != nil {
		return errors.Wrap(err, "rtx pre-upgrade: run pipeline")
	}

	return writeReport(f.output, diff)
}

func loadWorkingSet(path string) ([]dependency.Dependency, error) {
	deps, err := dependency.LoadDependencyFile(path)
	if err != nil {
		return nil, err
	}
	b := dependency.NewBuilder()
	b.Add(deps...)
	return b.Build(), nil
}
