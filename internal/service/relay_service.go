package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tyemirov/formrelay/internal/mailer"
	"github.com/tyemirov/formrelay/internal/model"
)

// RelayService turns one decoded submission into one outbound message.
type RelayService interface {
	// Relay sends the submission exactly once and always releases its staged files.
	Relay(ctx context.Context, submission model.Submission) model.RelayResult
}

// Cleaner releases staged uploads once a relay has finished with them.
type Cleaner interface {
	Remove(fileRefs []model.FileRef) error
}

type relayServiceImpl struct {
	senderAddress string
	transport     mailer.Transport
	cleaner       Cleaner
	logger        *slog.Logger
}

// NewRelayService wires a transport and a cleaner behind the relay contract.
func NewRelayService(senderAddress string, transport mailer.Transport, cleaner Cleaner, logger *slog.Logger) (RelayService, error) {
	if transport == nil {
		return nil, errors.New("service: transport is required")
	}
	if cleaner == nil {
		return nil, errors.New("service: cleaner is required")
	}
	if logger == nil {
		return nil, errors.New("service: logger is required")
	}
	return &relayServiceImpl{
		senderAddress: strings.TrimSpace(senderAddress),
		transport:     transport,
		cleaner:       cleaner,
		logger:        logger,
	}, nil
}

func (serviceInstance *relayServiceImpl) Relay(ctx context.Context, submission model.Submission) (result model.RelayResult) {
	defer serviceInstance.cleanup(submission.StagedFiles)

	message := model.NewMailMessage(serviceInstance.senderAddress, submission)
	transportResponse, sendErr := serviceInstance.send(ctx, message)
	if sendErr != nil {
		result = model.Failed(model.KindOf(sendErr), sendErr)
		serviceInstance.logger.Error(
			"relay_failed",
			"transport", serviceInstance.transport.Name(),
			"recipient", message.Recipient,
			"attachments", len(message.Attachments),
			"error_kind", result.ErrorKind,
			"error", sendErr,
		)
		return result
	}

	result = model.Delivered(transportResponse)
	serviceInstance.logger.Info(
		"relay_delivered",
		"transport", serviceInstance.transport.Name(),
		"recipient", message.Recipient,
		"attachments", len(message.Attachments),
		"response", transportResponse,
	)
	return result
}

// send isolates a panicking transport so that cleanup and the response still happen.
func (serviceInstance *relayServiceImpl) send(ctx context.Context, message model.MailMessage) (transportResponse string, sendErr error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			sendErr = model.NewDeliveryError(model.KindTransportNetwork, fmt.Errorf("transport panic: %v", recovered))
		}
	}()
	return serviceInstance.transport.Send(ctx, message)
}

func (serviceInstance *relayServiceImpl) cleanup(fileRefs []model.FileRef) {
	if len(fileRefs) == 0 {
		return
	}
	if err := serviceInstance.cleaner.Remove(fileRefs); err != nil {
		serviceInstance.logger.Warn(
			"staged_file_cleanup_failed",
			"error_kind", model.KindIOCleanup,
			"files", len(fileRefs),
			"error", err,
		)
	}
}
