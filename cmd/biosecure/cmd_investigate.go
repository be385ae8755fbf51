package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"biosecure/internal/gateway/app"
)

func newInvestigateCmd(flags *rootFlags) *cobra.Command {
	var (
		image    string
		location string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "investigate",
		Short: "Run one case end to end and print the report link",
		Long: `Investigate opens a case for --image (the configured default image when
omitted), geocodes --location and runs identification, threat analysis, risk
assessment and reporting.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			cf, err := a.Dispatcher().Investigate(ctx, image, location)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(cf)
			}
			fmt.Fprintf(out, "Case:    %s\n", cf.CaseID)
			fmt.Fprintf(out, "Species: %s\n", cf.Identification.CommonName)
			fmt.Fprintf(out, "Threat:  %s (%s)\n", cf.ThreatProfile.ThreatLevel, cf.ThreatProfile.StatusNZ)
			fmt.Fprintf(out, "Alert:   %s\n", cf.RiskAssessment.AlertLevel)
			fmt.Fprintf(out, "Report:  %s\n", cf.ReportURL)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&image, "image", "", "Image URI (gs://, s3:// or mem://); default is the configured image")
	f.StringVar(&location, "location", "", "Where the insect was found (required)")
	f.BoolVar(&asJSON, "json", false, "Print the whole case file as JSON")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}
