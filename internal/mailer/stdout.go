package mailer

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tyemirov/formrelay/internal/model"
)

const stdoutResponse = "250 Message written to stdout"

// StdoutTransport prints messages instead of sending them. Used for local
// development when no mail account is configured.
type StdoutTransport struct {
	writer io.Writer
}

func NewStdoutTransport() *StdoutTransport {
	return &StdoutTransport{writer: os.Stdout}
}

func NewStdoutTransportWithWriter(writer io.Writer) *StdoutTransport {
	return &StdoutTransport{writer: writer}
}

func (transport *StdoutTransport) Name() string {
	return "stdout"
}

func (transport *StdoutTransport) Send(_ context.Context, message model.MailMessage) (string, error) {
	if err := requireRecipient(message); err != nil {
		return "", err
	}

	var builder strings.Builder
	builder.WriteString("========================================\n")
	builder.WriteString(fmt.Sprintf("From: %s\n", message.Sender))
	builder.WriteString(fmt.Sprintf("To: %s\n", message.Recipient))
	builder.WriteString(fmt.Sprintf("Subject: %s\n", message.Subject))
	builder.WriteString("Body:\n")
	builder.WriteString(message.Body + "\n")

	if len(message.Attachments) > 0 {
		described := make([]string, 0, len(message.Attachments))
		for _, attachment := range message.Attachments {
			info, err := os.Stat(attachment.Path)
			if err != nil {
				return "", model.NewDeliveryError(model.KindMessageBuild, fmt.Errorf("stat attachment: %w", err))
			}
			described = append(described, fmt.Sprintf("%s (%s)", attachmentFilename(attachment), formatSize(info.Size())))
		}
		builder.WriteString(fmt.Sprintf("Attachments: %s\n", strings.Join(described, ", ")))
	}
	builder.WriteString("========================================\n")

	if _, err := fmt.Fprint(transport.writer, builder.String()); err != nil {
		return "", model.NewDeliveryError(model.KindTransportNetwork, err)
	}
	return stdoutResponse, nil
}

func formatSize(size int64) string {
	const (
		kilobyte = 1024
		megabyte = kilobyte * 1024
	)
	switch {
	case size >= megabyte:
		return fmt.Sprintf("%.1f MB", float64(size)/float64(megabyte))
	case size >= kilobyte:
		return fmt.Sprintf("%.1f KB", float64(size)/float64(kilobyte))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
