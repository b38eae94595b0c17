package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/tyemirov/formrelay/pkg/attachments"
	"github.com/tyemirov/formrelay/pkg/client"
)

type EmailSender interface {
	SendEmail(context.Context, client.SendRequest) (client.RelayResponse, error)
}

type HealthChecker interface {
	Health(context.Context) (string, error)
}

type Dependencies struct {
	Sender           EmailSender
	HealthChecker    HealthChecker
	OperationTimeout time.Duration
	Output           io.Writer
}

func NewRootCommand(dependencies Dependencies) *cobra.Command {
	root := &cobra.Command{
		Use:           "formrelay-cli",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildSendCommand(dependencies))
	root.AddCommand(buildHealthCommand(dependencies))
	return root
}

func buildSendCommand(dependencies Dependencies) *cobra.Command {
	var (
		textInput      string
		recipientInput string
		fileInputs     []string
	)

	command := &cobra.Command{
		Use:   "send",
		Short: "Submit a form message to the relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dependencies.Sender == nil {
				return errors.New("relay client is not configured")
			}
			loadedAttachments, err := attachments.Load(fileInputs)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), operationTimeout(dependencies))
			defer cancel()

			reply, sendErr := dependencies.Sender.SendEmail(ctx, client.SendRequest{
				Text:          textInput,
				ReceiverEmail: recipientInput,
				Attachments:   loadedAttachments,
			})
			if sendErr != nil {
				return sendErr
			}

			_, writeErr := fmt.Fprintf(
				outputWriter(dependencies),
				"%s (%d attachment(s)): %s\n",
				reply.Message,
				len(loadedAttachments),
				reply.Response,
			)
			return writeErr
		},
	}

	command.Flags().StringVar(&textInput, "text", "", "Message body")
	command.Flags().StringVar(&recipientInput, "to", "", "Receiver email address")
	command.Flags().StringArrayVar(&fileInputs, "file", nil, "Attachment path, optionally path::content/type (repeatable)")

	markRequired(command, "to")

	return command
}

func buildHealthCommand(dependencies Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the relay is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dependencies.HealthChecker == nil {
				return errors.New("relay client is not configured")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), operationTimeout(dependencies))
			defer cancel()

			message, err := dependencies.HealthChecker.Health(ctx)
			if err != nil {
				return err
			}
			_, writeErr := fmt.Fprintln(outputWriter(dependencies), message)
			return writeErr
		},
	}
}

func operationTimeout(dependencies Dependencies) time.Duration {
	if dependencies.OperationTimeout <= 0 {
		return 30 * time.Second
	}
	return dependencies.OperationTimeout
}

func outputWriter(dependencies Dependencies) io.Writer {
	if dependencies.Output == nil {
		return io.Discard
	}
	return dependencies.Output
}

func markRequired(cmd *cobra.Command, name string) {
	_ = cmd.MarkFlagRequired(name)
}
