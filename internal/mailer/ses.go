package mailer

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
	"github.com/tyemirov/formrelay/internal/model"
)

// SESConfig holds the AWS SES v2 settings. Empty keys fall back to the
// default AWS credential chain.
type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// SendEmailAPI is the subset of the SES v2 client used by SESTransport.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESTransport submits raw MIME messages through AWS SES v2.
type SESTransport struct {
	client SendEmailAPI
}

var credentialErrorCodes = map[string]struct{}{
	"InvalidClientTokenId":        {},
	"SignatureDoesNotMatch":       {},
	"UnrecognizedClientException": {},
	"AccessDeniedException":       {},
	"ExpiredTokenException":       {},
	"MissingAuthenticationToken":  {},
}

// NewSESTransport loads AWS configuration for cfg.Region.
func NewSESTransport(ctx context.Context, cfg SESConfig) (*SESTransport, error) {
	if cfg.Region == "" {
		return nil, errors.New("mailer: ses region is required")
	}
	options := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		options = append(options, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("mailer: load aws config: %w", err)
	}
	return NewSESTransportWithClient(sesv2.NewFromConfig(awsConfig)), nil
}

// NewSESTransportWithClient wraps an existing client.
func NewSESTransportWithClient(client SendEmailAPI) *SESTransport {
	return &SESTransport{client: client}
}

// Name returns the transport name.
func (transport *SESTransport) Name() string {
	return "ses"
}

// Send submits message as a raw MIME payload and returns the SES message id.
func (transport *SESTransport) Send(ctx context.Context, message model.MailMessage) (string, error) {
	if err := requireRecipient(message); err != nil {
		return "", err
	}
	payload, err := BuildMessage(message)
	if err != nil {
		return "", err
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(message.Sender),
		Destination: &types.Destination{
			ToAddresses: []string{message.Recipient},
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: payload},
		},
	}
	output, err := transport.client.SendEmail(ctx, input)
	if err != nil {
		return "", classifySESError(err)
	}
	return fmt.Sprintf("Message-ID %s", aws.ToString(output.MessageId)), nil
}

func classifySESError(err error) error {
	var apiError smithy.APIError
	if errors.As(err, &apiError) {
		if _, isCredentialError := credentialErrorCodes[apiError.ErrorCode()]; isCredentialError {
			return model.NewDeliveryError(model.KindTransportAuth, fmt.Errorf("ses send: %w", err))
		}
		return model.NewDeliveryError(model.KindTransportRejected, fmt.Errorf("ses send: %w", err))
	}
	var networkError net.Error
	if errors.As(err, &networkError) {
		return model.NewDeliveryError(model.KindTransportNetwork, fmt.Errorf("ses send: %w", err))
	}
	return model.NewDeliveryError(model.KindTransportRejected, fmt.Errorf("ses send: %w", err))
}
