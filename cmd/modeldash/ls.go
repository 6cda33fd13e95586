package main

import (
	"errors"

	"github.com/spf13/cobra"

	"modeldash/internal/manager"
	"modeldash/internal/view"
)

func newLsCmd(opts *options) *cobra.Command {
	var color bool
	cmd := &cobra.Command{
		Use:          "ls [backend-url]",
		Short:        "Fetch both collections once and print them",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts, args, lookupEnv)
			if err != nil {
				return err
			}
			log, closeLog, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			defer closeLog()
			client, err := connect(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			mgr := manager.NewWithConfig(manager.ManagerConfig{
				Backend:    client,
				BackendURL: client.BaseURL(),
				Logger:     log,
			})
			st := mgr.Refresh(cmd.Context())

			t := view.Table{Out: cmd.OutOrStdout(), Color: color}
			t.Installed(mgr.Installed())
			t.Running(mgr.Running())
			t.Status(st)
			if !st.OK {
				return errors.New(st.Message)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&color, "color", false, "colorize table headers")
	return cmd
}
