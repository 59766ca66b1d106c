package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherchat/internal/domain"
)

func groupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage groups",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create <name> [member...]",
		Short: "Create a group; you are always a member",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRelay(); err != nil {
				return err
			}
			members := make([]domain.UserID, 0, len(args)-1)
			for _, m := range args[1:] {
				members = append(members, domain.UserID(m))
			}
			g, err := wire.Relay.CreateGroup(cmd.Context(), args[0], members)
			if err != nil {
				return err
			}
			fmt.Printf("Group %s created: %s\n", g.Name, g.ID)
			return nil
		},
	})
	return cmd
}
