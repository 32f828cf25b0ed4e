package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stakesim/pkg/stakesim"
)

func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			items, err := client.Runs(cmd.Context(), stakesim.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), items)
			}
			for _, it := range items {
				fmt.Fprintf(cmd.OutOrStdout(), "run_id=%s created_at=%s controller=%s rebalancer=%s validators=%d episodes=%d seed=%d mean_final_honest_proportion=%.4f mean_total_feedback=%.4f\n",
					it.RunID, it.CreatedAtUTC, it.Controller, it.Rebalancer, it.NumValidators, it.Episodes, it.Seed, it.MeanFinalHonestProportion, it.MeanTotalFeedback)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

func newRoundsCmd() *cobra.Command {
	var (
		runID  string
		latest bool
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "rounds",
		Short: "Print the round trace of a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			rounds, err := client.Rounds(cmd.Context(), stakesim.RoundsRequest{RunID: runID, Latest: latest, Limit: limit})
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), rounds)
			}
			for _, r := range rounds {
				fmt.Fprintf(cmd.OutOrStdout(), "episode=%d round=%d alpha=%.4f honest_proportion=%.4f feedback=%.6f sum_of_balance=%.4f sum_of_effective_balance=%.4f flips=%d terminal=%t %s\n",
					r.Episode, r.Round, r.Alpha, r.HonestProportion, r.Feedback, r.SumOfBalance, r.SumOfEffectiveBalance, r.Flips, r.Terminal, r.Termination)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&latest, "latest", false, "use the most recent run")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rounds to print (0 for all)")
	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		runID  string
		latest bool
		out    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a run's artifacts to another directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			exported, err := client.Export(cmd.Context(), stakesim.ExportRequest{RunID: runID, Latest: latest, OutDir: out})
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), exported)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s dir=%s\n", exported.RunID, exported.Directory)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&latest, "latest", false, "use the most recent run")
	cmd.Flags().StringVar(&out, "out", "", "destination directory")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a run from the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Delete(cmd.Context(), runID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted run_id=%s\n", runID)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	return cmd
}
