package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/tyemirov/formrelay/internal/model"
)

// TLS modes accepted by SMTPConfig.TLSMode.
const (
	TLSModeStartTLS = "starttls"
	TLSModeImplicit = "tls"
	TLSModeNone     = "none"
)

const defaultConnectionTimeout = 30 * time.Second

// SMTPConfig describes the SMTP submission account.
type SMTPConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	TLSMode           string
	ConnectionTimeout time.Duration
}

// SMTPTransport submits each message over a fresh authenticated session.
type SMTPTransport struct {
	config SMTPConfig
	logger *slog.Logger
}

// NewSMTPTransport validates cfg. Credentials are not checked until Send.
func NewSMTPTransport(cfg SMTPConfig, logger *slog.Logger) (*SMTPTransport, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("mailer: smtp host is required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("mailer: invalid smtp port %d", cfg.Port)
	}
	if logger == nil {
		return nil, errors.New("mailer: logger is required")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.TLSMode)) {
	case "":
		cfg.TLSMode = TLSModeStartTLS
	case TLSModeStartTLS, TLSModeImplicit, TLSModeNone:
		cfg.TLSMode = strings.ToLower(strings.TrimSpace(cfg.TLSMode))
	default:
		return nil, fmt.Errorf("mailer: unsupported smtp tls mode %q", cfg.TLSMode)
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = defaultConnectionTimeout
	}
	return &SMTPTransport{config: cfg, logger: logger}, nil
}

// Name returns the transport name.
func (transport *SMTPTransport) Name() string {
	return "smtp"
}

// Send delivers message and returns the server's reply to the DATA command.
func (transport *SMTPTransport) Send(ctx context.Context, message model.MailMessage) (string, error) {
	if err := requireRecipient(message); err != nil {
		return "", err
	}
	payload, err := BuildMessage(message)
	if err != nil {
		return "", err
	}

	client, err := transport.dial(ctx)
	if err != nil {
		return "", model.NewDeliveryError(model.KindTransportNetwork, err)
	}
	defer client.Close()

	if transport.config.Username != "" || transport.config.Password != "" {
		authClient := sasl.NewPlainClient("", transport.config.Username, transport.config.Password)
		if err := client.Auth(authClient); err != nil {
			return "", model.NewDeliveryError(model.KindTransportAuth, fmt.Errorf("smtp auth: %w", err))
		}
	}

	if err := client.Mail(message.Sender, nil); err != nil {
		return "", classifyReplyError("smtp mail from", err)
	}
	if err := client.Rcpt(message.Recipient, nil); err != nil {
		return "", classifyReplyError("smtp rcpt to", err)
	}
	dataWriter, err := client.Data()
	if err != nil {
		return "", classifyReplyError("smtp data", err)
	}
	if _, err := dataWriter.Write(payload); err != nil {
		dataWriter.Close()
		return "", model.NewDeliveryError(model.KindTransportNetwork, fmt.Errorf("smtp write: %w", err))
	}
	dataResponse, err := dataWriter.CloseWithResponse()
	if err != nil {
		return "", classifyReplyError("smtp end of data", err)
	}
	if quitErr := client.Quit(); quitErr != nil {
		transport.logger.Debug("smtp_quit_failed", "error", quitErr)
	}

	return formatDataResponse(dataResponse), nil
}

func (transport *SMTPTransport) dial(ctx context.Context) (*smtp.Client, error) {
	address := net.JoinHostPort(transport.config.Host, strconv.Itoa(transport.config.Port))
	dialer := &net.Dialer{Timeout: transport.config.ConnectionTimeout}
	tlsConfig := &tls.Config{ServerName: transport.config.Host, MinVersion: tls.VersionTLS12}

	var (
		connection net.Conn
		err        error
	)
	if transport.config.TLSMode == TLSModeImplicit {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: tlsConfig}
		connection, err = tlsDialer.DialContext(ctx, "tcp", address)
	} else {
		connection, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", address, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = connection.SetDeadline(deadline)
	}

	if transport.config.TLSMode == TLSModeStartTLS {
		client, startErr := smtp.NewClientStartTLS(connection, tlsConfig)
		if startErr != nil {
			connection.Close()
			return nil, fmt.Errorf("smtp starttls %s: %w", address, startErr)
		}
		return client, nil
	}
	return smtp.NewClient(connection), nil
}

// classifyReplyError maps a server reply to a rejection and anything else
// (dropped connection, timeout) to a network failure.
func classifyReplyError(stage string, err error) error {
	var smtpError *smtp.SMTPError
	if errors.As(err, &smtpError) {
		return model.NewDeliveryError(model.KindTransportRejected, fmt.Errorf("%s: %w", stage, err))
	}
	return model.NewDeliveryError(model.KindTransportNetwork, fmt.Errorf("%s: %w", stage, err))
}

func formatDataResponse(response *smtp.DataResponse) string {
	if response == nil || strings.TrimSpace(response.StatusText) == "" {
		return "250 OK"
	}
	return "250 " + strings.TrimSpace(response.StatusText)
}
