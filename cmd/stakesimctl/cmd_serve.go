package main

import (
	"github.com/spf13/cobra"

	"stakesim/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve one simulation to an external controller over HTTP",
		Long: `Serve a single simulation over HTTP. The controller resets with
POST /v1/reset and advances with POST /v1/step {"alpha": x}.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if err := firstError(
				overrideFlag(cmd, "addr", flags.GetString, &cfg.Server.Addr),
				overrideFlag(cmd, "alpha-min", flags.GetFloat64, &cfg.Server.AlphaMin),
				overrideFlag(cmd, "alpha-max", flags.GetFloat64, &cfg.Server.AlphaMax),
				overrideFlag(cmd, "cors-origin", flags.GetStringSlice, &cfg.Server.CORSOrigins),
			); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			srv, err := server.New(server.Config{
				Simulation:  cfg.Simulation,
				Seed:        cfg.Run.Seed,
				AlphaMin:    cfg.Server.AlphaMin,
				AlphaMax:    cfg.Server.AlphaMax,
				CORSOrigins: cfg.Server.CORSOrigins,
				Logger:      newLogger(cmd, cfg),
			})
			if err != nil {
				return err
			}
			return srv.ListenAndServe(cmd.Context(), cfg.Server.Addr)
		},
	}

	cmd.Flags().String("addr", "", "listen address")
	cmd.Flags().Float64("alpha-min", 0, "smallest alpha accepted from the controller")
	cmd.Flags().Float64("alpha-max", 0, "largest alpha accepted from the controller")
	cmd.Flags().StringSlice("cors-origin", nil, "browser origins allowed to call the API")
	return cmd
}
