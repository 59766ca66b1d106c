package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Wipe the identity, prekeys, sessions and verification marks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.Sessions.ClearAll(); err != nil {
				return err
			}
			fmt.Println("Local key material removed")
			return nil
		},
	}
}
