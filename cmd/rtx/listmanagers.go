package main

import (
	"fmt"

	"github.com/jordigilh/rtx/internal/dependency"
	"github.com/spf13/cobra"
)

func newListManagersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-managers",
		Short: "List the package ecosystems rtx understands",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, eco := range dependency.KnownEcosystems() {
				fmt.Fprintln(cmd.OutOrStdout(), eco)
			}
			return nil
		},
	}
}
