package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"biosecure/internal/extract"
)

func newClassifyCmd() *cobra.Command {
	var policyPath string
	cmd := &cobra.Command{
		Use:   "classify <species>",
		Short: "Look a species up in the threat register",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := extract.LoadPolicy(policyPath)
			if err != nil {
				return err
			}
			species := strings.Join(args, " ")
			c, err := extract.NewTableClassifier(policy.Threats).Classify(cmd.Context(), species)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Species: %s\n", species)
			fmt.Fprintf(out, "Status:  %s\n", c.StatusNZ)
			fmt.Fprintf(out, "Threat:  %s\n", c.ThreatLevel)
			if len(c.Hosts) > 0 {
				fmt.Fprintf(out, "Hosts:   %s\n", strings.Join(c.Hosts, ", "))
			}
			if c.Impact != "" {
				fmt.Fprintf(out, "Impact:  %s\n", c.Impact)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&policyPath, "policy", "", "Policy YAML; default is the built-in register")
	return cmd
}
