package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the identity keys if missing and print them",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := wire.Sessions.GetOrCreateIdentity()
			if err != nil {
				return err
			}
			fp, err := wire.Sessions.Fingerprint()
			if err != nil {
				return err
			}
			fmt.Printf("Identity ready.\nDevice: %s\nFingerprint: %s\n", id.DeviceID, fp)
			return nil
		},
	}
}
