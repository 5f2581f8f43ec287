package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newModelsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the selectable models and the branch colors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, provider := range e.catalog.GetAllProviders() {
				models, err := e.catalog.ListProviderModels(provider)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\n", provider)
				for _, m := range models {
					marker := " "
					if m.ID == a.cfg.DefaultModel {
						marker = "*"
					}
					fmt.Fprintf(out, " %s %-12s %-16s %-6s %s\n", marker, m.ID, m.DisplayName, m.Speed, m.Description)
				}
			}
			fmt.Fprintf(out, "palette: %s\n", strings.Join(e.catalog.Colors(), " "))
			return nil
		},
	}
}
