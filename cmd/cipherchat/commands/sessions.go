package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// sessions [--expire-idle d]: list sessions, optionally dropping idle ones first.
func sessionsCmd() *cobra.Command {
	var idle time.Duration
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions with peer devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if idle > 0 {
				expired, err := wire.Sessions.ExpireIdle(idle)
				if err != nil {
					return err
				}
				for _, s := range expired {
					fmt.Printf("- %s %s (last used %s)\n", s.ID, s.State, s.LastUsedAt.Local().Format(time.RFC3339))
				}
			}
			all, err := wire.Sessions.Sessions()
			if err != nil {
				return err
			}
			if len(all) == 0 {
				fmt.Println("No sessions")
				return nil
			}
			for _, s := range all {
				fmt.Printf("%s %s (last used %s)\n", s.ID, s.State, s.LastUsedAt.Local().Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&idle, "expire-idle", 0, "first expire sessions idle for longer than this")
	return cmd
}
