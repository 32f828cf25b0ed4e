package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stakesim/pkg/stakesim"
)

func newRunCmd() *cobra.Command {
	var repeat int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run episodes under a penalty controller",
		Long: `Run one or more episodes of the simulation, choosing alpha each round with
a built-in controller, and persist the trace.

Examples:
  stakesimctl run --validators 64 --rounds 200 --controller constant --alpha 2
  stakesimctl run --controller schedule --alphas 0,1,4 --episodes 5
  stakesimctl run --config stakesim.yaml --repeat 8 --workers 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if err := firstError(
				overrideFlag(cmd, "validators", flags.GetInt, &cfg.Simulation.NumValidators),
				overrideFlag(cmd, "honest-ratio", flags.GetFloat64, &cfg.Simulation.HonestRatio),
				overrideFlag(cmd, "initial-alpha", flags.GetFloat64, &cfg.Simulation.InitialAlpha),
				overrideFlag(cmd, "rounds", flags.GetInt, &cfg.Simulation.Rounds),
				overrideFlag(cmd, "rebalancer", flags.GetString, &cfg.Simulation.Rebalancer),
				overrideFlag(cmd, "seed", flags.GetInt64, &cfg.Run.Seed),
				overrideFlag(cmd, "episodes", flags.GetInt, &cfg.Run.Episodes),
				overrideFlag(cmd, "workers", flags.GetInt, &cfg.Run.Workers),
				overrideFlag(cmd, "controller", flags.GetString, &cfg.Run.Controller),
				overrideFlag(cmd, "run-id", flags.GetString, &cfg.Run.RunID),
				overrideFlag(cmd, "alpha", flags.GetFloat64, &cfg.Run.Params.Alpha),
				overrideFlag(cmd, "alphas", flags.GetFloat64Slice, &cfg.Run.Params.Alphas),
				overrideFlag(cmd, "target", flags.GetFloat64, &cfg.Run.Params.Target),
			); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if repeat <= 0 {
				return fmt.Errorf("--repeat must be positive, got %d", repeat)
			}
			if repeat > 1 && cfg.Run.RunID != "" {
				return fmt.Errorf("--run-id cannot be combined with --repeat")
			}

			client, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			params := cfg.Run.Params
			reqs := make([]stakesim.RunRequest, 0, repeat)
			for i := 0; i < repeat; i++ {
				reqs = append(reqs, stakesim.RunRequest{
					RunID:      cfg.Run.RunID,
					Simulation: cfg.Simulation,
					Seed:       cfg.Run.Seed + int64(i*cfg.Run.Episodes),
					Episodes:   cfg.Run.Episodes,
					Controller: cfg.Run.Controller,
					Params:     &params,
				})
			}
			summaries, err := client.RunBatch(cmd.Context(), stakesim.BatchRequest{Runs: reqs, Workers: cfg.Run.Workers})
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), summaries)
			}
			out := cmd.OutOrStdout()
			for _, s := range summaries {
				fmt.Fprintf(out, "run_id=%s rebalancer=%s mean_final_honest_proportion=%.4f mean_total_feedback=%.4f artifacts=%s\n",
					s.RunID, s.Rebalancer, s.MeanFinalHonestProportion, s.MeanTotalFeedback, s.ArtifactsDir)
				for _, e := range s.Episodes {
					fmt.Fprintf(out, "  episode=%d seed=%d rounds=%d termination=%s total_feedback=%.4f mean_alpha=%.4f final_honest_proportion=%.4f\n",
						e.Episode, e.Seed, e.Rounds, e.Termination, e.TotalFeedback, e.MeanAlpha, e.FinalHonestProportion)
				}
			}
			return nil
		},
	}

	cmd.Flags().Int("validators", 0, "number of validators")
	cmd.Flags().Float64("honest-ratio", 0, "initial honest fraction in [0,1]")
	cmd.Flags().Float64("initial-alpha", 0, "alpha reported before the first step")
	cmd.Flags().Int("rounds", 0, "round limit per episode")
	cmd.Flags().String("rebalancer", "", "strategy update: stake_weighted|logistic|declining_balance")
	cmd.Flags().Int64("seed", 0, "seed of the first episode")
	cmd.Flags().Int("episodes", 0, "episodes per run")
	cmd.Flags().Int("workers", 0, "concurrent runs when --repeat > 1")
	cmd.Flags().IntVar(&repeat, "repeat", 1, "independent runs to execute")
	cmd.Flags().String("controller", "", "controller: constant|schedule|ramp|proportional|uniform")
	cmd.Flags().String("run-id", "", "explicit run id")
	cmd.Flags().Float64("alpha", 0, "alpha for the constant controller, base for proportional")
	cmd.Flags().Float64Slice("alphas", nil, "alphas for the schedule controller")
	cmd.Flags().Float64("target", 0, "target honest proportion for the proportional controller")
	return cmd
}
