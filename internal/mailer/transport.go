// Package mailer delivers composed messages through a pluggable transport.
// Transports are built once at startup and shared by every request.
package mailer

import (
	"context"
	"errors"
	"strings"

	"github.com/tyemirov/formrelay/internal/model"
)

// ErrEmptyRecipient is returned when a message has no recipient address.
var ErrEmptyRecipient = errors.New("mailer: no recipients defined")

// Transport hands one message to a mail service and returns the service's
// textual response. Errors are wrapped in model.DeliveryError.
type Transport interface {
	Send(ctx context.Context, message model.MailMessage) (string, error)
	Name() string
}

func requireRecipient(message model.MailMessage) error {
	if strings.TrimSpace(message.Recipient) == "" {
		return model.NewDeliveryError(model.KindTransportRejected, ErrEmptyRecipient)
	}
	return nil
}
