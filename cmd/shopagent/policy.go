package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"shopagent/internal/policy"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect the policy table",
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the policy table file",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := policy.Load(cfg.Policy.Path)
		if err != nil {
			return err
		}
		fmt.Printf("%s: OK (%d engine categories, %d declared)\n",
			cfg.Policy.Path, len(table.Categories), len(table.DeclaredCategories()))
		for _, name := range table.DeclaredCategories() {
			if p, ok := table.Categories[name]; ok {
				fmt.Printf("  %-20s window=%dd cap=%.0f%% outcomes=%v\n",
					name, p.ReturnWindowDays, p.DiscountCapPercent, p.AllowedOutcomes)
			} else {
				fmt.Printf("  %-20s (decision-tree only)\n", name)
			}
		}
		return nil
	},
}

func init() {
	policyCmd.AddCommand(policyValidateCmd)
}
