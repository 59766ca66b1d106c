package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherchat/internal/services/prekey"
)

func prekeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prekeys",
		Short: "Manage one-time prekeys",
	}

	var count int
	publish := &cobra.Command{
		Use:   "publish",
		Short: "Generate prekeys and upload their bundles to the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRelay(); err != nil {
				return err
			}
			n, err := wire.PublishPrekeys(cmd.Context(), count)
			if err != nil {
				return err
			}
			fmt.Printf("Published %d prekey bundles\n", n)
			return nil
		},
	}
	publish.Flags().IntVar(&count, "count", prekey.DefaultBatch, "number of prekeys to generate")

	cmd.AddCommand(publish)
	return cmd
}
