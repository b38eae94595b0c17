package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tyemirov/formrelay/pkg/attachments"
)

const (
	defaultServerURL      = "http://localhost:5000"
	defaultTimeoutSeconds = 30
	sendEmailPath         = "/send-email"
	maxResponseBytes      = 1 << 20
)

// ErrRelayFailed marks a well-formed failure reply from the relay.
var ErrRelayFailed = errors.New("client: relay reported failure")

// Settings holds validated connection parameters.
type Settings struct {
	serverURL *url.URL
	timeout   time.Duration
}

// NewSettings validates serverURL and converts the timeout to a duration.
func NewSettings(serverURL string, timeoutSeconds int) (Settings, error) {
	trimmed := strings.TrimSpace(serverURL)
	if trimmed == "" {
		trimmed = defaultServerURL
	}
	parsedURL, err := url.Parse(trimmed)
	if err != nil {
		return Settings{}, fmt.Errorf("client: invalid server url %q: %w", serverURL, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return Settings{}, fmt.Errorf("client: server url %q must use http or https", serverURL)
	}
	if parsedURL.Host == "" {
		return Settings{}, fmt.Errorf("client: server url %q has no host", serverURL)
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}
	return Settings{serverURL: parsedURL, timeout: time.Duration(timeoutSeconds) * time.Second}, nil
}

// ServerURL returns the normalized base URL.
func (settings Settings) ServerURL() string {
	return strings.TrimRight(settings.serverURL.String(), "/")
}

// Timeout returns the per-request timeout.
func (settings Settings) Timeout() time.Duration {
	return settings.timeout
}

// SendRequest is one form submission.
type SendRequest struct {
	Text          string
	ReceiverEmail string
	Attachments   []attachments.Attachment
}

// RelayResponse mirrors the relay's JSON body.
type RelayResponse struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Response   string `json:"response,omitempty"`
	Error      string `json:"error,omitempty"`
}

// RelayClient talks to one relay instance.
type RelayClient struct {
	settings   Settings
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRelayClient creates a client bound to settings.
func NewRelayClient(logger *slog.Logger, settings Settings) (*RelayClient, error) {
	if logger == nil {
		return nil, errors.New("client: logger is required")
	}
	if settings.serverURL == nil {
		return nil, errors.New("client: settings are required")
	}
	return &RelayClient{
		settings:   settings,
		httpClient: &http.Client{Timeout: settings.timeout},
		logger:     logger,
	}, nil
}

// Health calls the probe endpoint and returns its message.
func (clientInstance *RelayClient) Health(ctx context.Context) (string, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, clientInstance.settings.ServerURL()+"/", nil)
	if err != nil {
		return "", err
	}
	reply, err := clientInstance.do(request)
	if err != nil {
		return "", err
	}
	if reply.StatusCode != http.StatusOK {
		return "", fmt.Errorf("client: health probe returned status %d", reply.StatusCode)
	}
	return reply.Message, nil
}

// SendEmail submits the form. A 500 reply is returned together with an error
// wrapping ErrRelayFailed.
func (clientInstance *RelayClient) SendEmail(ctx context.Context, sendRequest SendRequest) (RelayResponse, error) {
	bodyReader, bodyWriter := io.Pipe()
	formWriter := multipart.NewWriter(bodyWriter)
	go func() {
		bodyWriter.CloseWithError(writeForm(formWriter, sendRequest))
	}()

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, clientInstance.settings.ServerURL()+sendEmailPath, bodyReader)
	if err != nil {
		bodyReader.Close()
		return RelayResponse{}, err
	}
	request.Header.Set("Content-Type", formWriter.FormDataContentType())

	reply, err := clientInstance.do(request)
	if err != nil {
		bodyReader.CloseWithError(err)
		return RelayResponse{}, err
	}
	if reply.StatusCode != http.StatusOK {
		clientInstance.logger.Debug("relay_send_failed", "status", reply.StatusCode, "error", reply.Error)
		return reply, fmt.Errorf("%w: %s", ErrRelayFailed, reply.Error)
	}
	return reply, nil
}

func (clientInstance *RelayClient) do(request *http.Request) (RelayResponse, error) {
	response, err := clientInstance.httpClient.Do(request)
	if err != nil {
		return RelayResponse{}, fmt.Errorf("client: %s %s: %w", request.Method, request.URL.Path, err)
	}
	defer response.Body.Close()

	var reply RelayResponse
	if decodeErr := json.NewDecoder(io.LimitReader(response.Body, maxResponseBytes)).Decode(&reply); decodeErr != nil {
		return RelayResponse{}, fmt.Errorf("client: decode reply (status %d): %w", response.StatusCode, decodeErr)
	}
	reply.StatusCode = response.StatusCode
	return reply, nil
}

func writeForm(formWriter *multipart.Writer, sendRequest SendRequest) error {
	if err := formWriter.WriteField("text", sendRequest.Text); err != nil {
		return err
	}
	if err := formWriter.WriteField("receiverEmail", sendRequest.ReceiverEmail); err != nil {
		return err
	}
	for _, attachment := range sendRequest.Attachments {
		if err := writeFilePart(formWriter, attachment); err != nil {
			return err
		}
	}
	return formWriter.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeFilePart(formWriter *multipart.Writer, attachment attachments.Attachment) error {
	source, err := os.Open(attachment.Path)
	if err != nil {
		return fmt.Errorf("client: open %s: %w", attachment.Path, err)
	}
	defer source.Close()

	contentType := attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, quoteEscaper.Replace(attachment.Filename)))
	header.Set("Content-Type", contentType)
	part, err := formWriter.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, source); err != nil {
		return fmt.Errorf("client: stream %s: %w", attachment.Path, err)
	}
	return nil
}
