package command

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tyemirov/formrelay/pkg/client"
)

type stubClient struct {
	requests      []client.SendRequest
	err           error
	healthMessage string
	healthErr     error
}

func (clientInstance *stubClient) SendEmail(_ context.Context, request client.SendRequest) (client.RelayResponse, error) {
	clientInstance.requests = append(clientInstance.requests, request)
	if clientInstance.err != nil {
		return client.RelayResponse{}, clientInstance.err
	}
	return client.RelayResponse{
		StatusCode: 200,
		Message:    "Email sent Successfully",
		Response:   "250 2.0.0 OK",
	}, nil
}

func (clientInstance *stubClient) Health(context.Context) (string, error) {
	return clientInstance.healthMessage, clientInstance.healthErr
}

func TestSendCommandBuildsRequest(t *testing.T) {
	t.Parallel()

	attachmentPath := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(attachmentPath, []byte("hello"), 0o600); err != nil {
		t.Fatalf("write attachment: %v", err)
	}

	testCases := []struct {
		name                string
		args                []string
		expectedErr         string
		expectedText        string
		expectedAttachments int
	}{
		{
			name:         "text without files",
			args:         []string{"send", "--text", "Hello", "--to", "ops@example.com"},
			expectedText: "Hello",
		},
		{
			name:                "repeated files",
			args:                []string{"send", "--text", "See attached", "--to", "ops@example.com", "--file", attachmentPath, "--file", attachmentPath + "::text/markdown"},
			expectedText:        "See attached",
			expectedAttachments: 2,
		},
		{
			name:         "missing text is allowed",
			args:         []string{"send", "--to", "ops@example.com"},
			expectedText: "",
		},
		{
			name:        "missing recipient fails",
			args:        []string{"send", "--text", "Hello"},
			expectedErr: "required flag(s) \"to\" not set",
		},
		{
			name:        "missing file fails",
			args:        []string{"send", "--to", "ops@example.com", "--file", filepath.Join(t.TempDir(), "gone.txt")},
			expectedErr: "attachments: stat",
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			stub := &stubClient{}
			deps := Dependencies{
				Sender:           stub,
				OperationTimeout: 2 * time.Second,
				Output:           &bytes.Buffer{},
			}
			cmd := NewRootCommand(deps)
			cmd.SetArgs(testCase.args)

			err := cmd.Execute()
			if testCase.expectedErr != "" {
				if err == nil {
					t.Fatalf("expected error %q but got none", testCase.expectedErr)
				}
				if !strings.Contains(err.Error(), testCase.expectedErr) {
					t.Fatalf("expected error %q, got %q", testCase.expectedErr, err.Error())
				}
				if len(stub.requests) != 0 {
					t.Fatalf("expected no request on failure")
				}
				return
			}

			if err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}
			if len(stub.requests) != 1 {
				t.Fatalf("expected 1 request, got %d", len(stub.requests))
			}
			request := stub.requests[0]
			if request.ReceiverEmail != "ops@example.com" {
				t.Fatalf("unexpected recipient %q", request.ReceiverEmail)
			}
			if request.Text != testCase.expectedText {
				t.Fatalf("expected text %q, got %q", testCase.expectedText, request.Text)
			}
			if len(request.Attachments) != testCase.expectedAttachments {
				t.Fatalf("expected %d attachments, got %d", testCase.expectedAttachments, len(request.Attachments))
			}
			if testCase.expectedAttachments == 2 && request.Attachments[1].ContentType != "text/markdown" {
				t.Fatalf("expected explicit content type, got %q", request.Attachments[1].ContentType)
			}
		})
	}
}

func TestSendCommandHandlesClientError(t *testing.T) {
	t.Parallel()

	stub := &stubClient{
		err: fmt.Errorf("%w: 535 authentication failed", client.ErrRelayFailed),
	}
	deps := Dependencies{
		Sender:           stub,
		OperationTimeout: time.Second,
		Output:           &bytes.Buffer{},
	}
	cmd := NewRootCommand(deps)
	cmd.SetArgs([]string{"send", "--text", "Hello", "--to", "ops@example.com"})

	err := cmd.Execute()
	if err == nil {
		t.Fatalf("expected error but got none")
	}
	if !strings.Contains(err.Error(), "535 authentication failed") {
		t.Fatalf("expected relay error, got %v", err)
	}
	if len(stub.requests) != 1 {
		t.Fatalf("expected one request, got %d", len(stub.requests))
	}
}

func TestSendCommandFormatsOutput(t *testing.T) {
	t.Parallel()

	stub := &stubClient{}
	output := &bytes.Buffer{}
	cmd := NewRootCommand(Dependencies{
		Sender:           stub,
		OperationTimeout: time.Second,
		Output:           output,
	})
	cmd.SetArgs([]string{"send", "--text", "Hello", "--to", "ops@example.com"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !strings.Contains(output.String(), "Email sent Successfully") {
		t.Fatalf("expected output to contain message, got %s", output.String())
	}
	if !strings.Contains(output.String(), "250 2.0.0 OK") {
		t.Fatalf("expected output to contain transport response, got %s", output.String())
	}
}

func TestHealthCommand(t *testing.T) {
	t.Parallel()

	output := &bytes.Buffer{}
	cmd := NewRootCommand(Dependencies{
		HealthChecker: &stubClient{healthMessage: "Server running Successfully!"},
		Output:        output,
	})
	cmd.SetArgs([]string{"health"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if strings.TrimSpace(output.String()) != "Server running Successfully!" {
		t.Fatalf("unexpected output %q", output.String())
	}
}

func TestHealthCommandRequiresClient(t *testing.T) {
	t.Parallel()

	cmd := NewRootCommand(Dependencies{})
	cmd.SetArgs([]string{"health"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error without client")
	}
}
