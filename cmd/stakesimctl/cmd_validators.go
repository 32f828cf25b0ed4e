package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"stakesim/pkg/stakesim"
)

func newValidatorsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "validators",
		Short: "Dump the initial validator population for a seed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if err := firstError(
				overrideFlag(cmd, "validators", flags.GetInt, &cfg.Simulation.NumValidators),
				overrideFlag(cmd, "honest-ratio", flags.GetFloat64, &cfg.Simulation.HonestRatio),
				overrideFlag(cmd, "seed", flags.GetInt64, &cfg.Run.Seed),
			); err != nil {
				return err
			}
			if jsonOutput(cmd) {
				format = "json"
			}
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported format: %s (valid: json, yaml)", format)
			}

			client, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			records, err := client.Validators(cmd.Context(), stakesim.ValidatorsRequest{Simulation: cfg.Simulation, Seed: cfg.Run.Seed})
			if err != nil {
				return err
			}
			if format == "json" {
				return writeJSON(cmd.OutOrStdout(), records)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(records); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().Int("validators", 0, "number of validators")
	cmd.Flags().Float64("honest-ratio", 0, "initial honest fraction in [0,1]")
	cmd.Flags().Int64("seed", 0, "population seed")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json|yaml")
	return cmd
}
