package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cipherchat/internal/domain"
	"cipherchat/internal/services/delivery"
)

// listen [peer|group]: stay connected and print events until interrupted.
// With a conversation argument its history is printed first and inbound
// messages in it are marked read.
func listenCmd() *cobra.Command {
	var group bool
	cmd := &cobra.Command{
		Use:   "listen [peer|group]",
		Short: "Connect and print messages and status changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRelay(); err != nil {
				return err
			}
			ctx := cmd.Context()

			events, stop := wire.Delivery.Subscribe()
			defer stop()
			if err := wire.Connect(); err != nil {
				return err
			}

			if len(args) == 1 {
				hist, err := wire.Delivery.OpenConversation(ctx, target(args[0], group))
				if err != nil {
					return err
				}
				for _, m := range hist {
					printMessage(ctx, m)
				}
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-events:
					printEvent(ctx, ev)
				}
			}
		},
	}
	cmd.Flags().BoolVar(&group, "group", false, "treat the argument as a group id")
	return cmd
}

func printEvent(ctx context.Context, ev delivery.Event) {
	switch ev.Kind {
	case delivery.EventMessage:
		printMessage(ctx, ev.Message)
	case delivery.EventStatus:
		fmt.Printf("* %s %s\n", ev.Message.ID, ev.Message.Status)
	case delivery.EventConnection:
		fmt.Printf("* connection %s\n", ev.Connection)
	case delivery.EventError:
		fmt.Printf("! %v\n", ev.Err)
	}
}

func printMessage(ctx context.Context, m domain.Message) {
	env, err := wire.Delivery.Plaintext(ctx, m)
	if err != nil {
		fmt.Printf("[%s] %s: <undecryptable: %v>\n", m.CreatedAt.Local().Format(time.Kitchen), m.SenderID, err)
		return
	}
	fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format(time.Kitchen), m.SenderID, env.Content)
}
