package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-faster/errors"
	"github.com/jordigilh/rtx/internal/report"
	"github.com/spf13/cobra"
)

type reportFlags struct {
	input string
}

// newReportCommand re-renders a previously produced report.json, the
// thinnest possible external-rendering collaborator: table/HTML rendering
// itself is an explicit Non-goal, so this command only validates and
// pretty-prints what `rtx scan` already wrote.
func newReportCommand() *cobra.Command {
	var f reportFlags
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a previously generated report",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if f.input == "" {
				return errors.New("rtx report: --input is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(f)
		},
	}
	cmd.Flags().StringVar(&f.input, "input", "", "path to a report.json produced by rtx scan")
	return cmd
}

func runReport(f reportFlags) error {
	data, err := os.ReadFile(f.input)
	if err != nil {
		return errors.Wrap(err, "rtx report: read input")
	}
	var r report.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return errors.Wrap(err, "rtx report: parse input")
	}

	fmt.Printf("run %s: %d dependencies (%d safe, %d low, %d medium, %d high, %d critical) - exit %d\n",
		r.RunID, r.Summary.Total, r.Summary.Safe, r.Summary.Low, r.Summary.Medium, r.Summary.High, r.Summary.Critical, r.ExitCode)
	for _, v := range r.Verdicts {
		if v.Severity == "safe" {
			continue
		}
		fmt.Printf("  [%s] %s/%s@%s\n", v.Severity, v.Ecosystem, v.Name, v.Version)
		for _, reason := range v.Reasons {
			fmt.Printf("      - %s (%s)\n", reason.Signal, reason.Severity)
		}
	}
	return nil
}
