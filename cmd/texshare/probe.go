package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirides/texshare/channel"
)

func newProbeCmd(opts *options) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Print the descriptor record of the channel without writing to it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ch, err := channel.OpenReadOnly(cfg.Channel.Name)
			if err != nil {
				return fmt.Errorf("open channel %q: %w", cfg.Channel.Name, err)
			}
			defer ch.Close()
			ch.Interval = cfg.Channel.Interval.Std()
			if wait {
				if _, err := ch.Poll(cmd.Context()); err != nil {
					return err
				}
			}
			r := ch.Read()
			fmt.Fprintf(cmd.OutOrStdout(), "channel=%s ready=%t pid=%d handle=%#x\n",
				cfg.Channel.Name, r.Ready, r.OwnerProcessID, r.Handle)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "poll until a descriptor is ready")
	return cmd
}
