package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherchat/internal/domain"
)

func target(to string, group bool) domain.Target {
	if group {
		return domain.Target{GroupID: to}
	}
	return domain.Target{UserID: domain.UserID(to)}
}

func printSent(m domain.Message) {
	fmt.Printf("%s %s\n", m.ID, m.Status)
}

// send <peer> <message>: encrypt and send a message to <peer>.
func sendCmd() *cobra.Command {
	var group bool
	cmd := &cobra.Command{
		Use:   "send <peer|group> <message>",
		Short: "Encrypt and send a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRelay(); err != nil {
				return err
			}
			m, err := wire.Delivery.SendText(cmd.Context(), target(args[0], group), args[1])
			if err != nil {
				if m.TempID != "" {
					fmt.Printf("%s %s\n", m.TempID, m.Status)
				}
				return err
			}
			printSent(m)
			return nil
		},
	}
	cmd.Flags().BoolVar(&group, "group", false, "treat the first argument as a group id")
	return cmd
}

// send-file <peer> <name> <url>: send a reference to an uploaded file.
func sendFileCmd() *cobra.Command {
	var (
		group bool
		size  int64
		mime  string
	)
	cmd := &cobra.Command{
		Use:   "send-file <peer|group> <name> <url>",
		Short: "Send a file reference",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRelay(); err != nil {
				return err
			}
			fd := domain.FileDescriptor{Name: args[1], URL: args[2], Size: size, MimeType: mime}
			m, err := wire.Delivery.SendFile(cmd.Context(), target(args[0], group), fd)
			if err != nil {
				return err
			}
			printSent(m)
			return nil
		},
	}
	cmd.Flags().BoolVar(&group, "group", false, "treat the first argument as a group id")
	cmd.Flags().Int64Var(&size, "size", 0, "file size in bytes")
	cmd.Flags().StringVar(&mime, "mime", "", "MIME type")
	return cmd
}
