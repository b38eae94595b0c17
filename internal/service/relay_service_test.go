package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/tyemirov/formrelay/internal/mailer"
	"github.com/tyemirov/formrelay/internal/model"
)

const testSenderAddress = "relay@example.com"

type stubTransport struct {
	response     string
	err          error
	panicValue   any
	sentMessages []model.MailMessage
}

func (transport *stubTransport) Name() string {
	return "stub"
}

func (transport *stubTransport) Send(_ context.Context, message model.MailMessage) (string, error) {
	transport.sentMessages = append(transport.sentMessages, message)
	if transport.panicValue != nil {
		panic(transport.panicValue)
	}
	if strings.TrimSpace(message.Recipient) == "" {
		return "", model.NewDeliveryError(model.KindTransportRejected, mailer.ErrEmptyRecipient)
	}
	if transport.err != nil {
		return "", transport.err
	}
	return transport.response, nil
}

type stubCleaner struct {
	removed [][]model.FileRef
	err     error
}

func (cleaner *stubCleaner) Remove(fileRefs []model.FileRef) error {
	cleaner.removed = append(cleaner.removed, fileRefs)
	return cleaner.err
}

func newTestRelayService(t *testing.T, transport mailer.Transport, cleaner Cleaner) RelayService {
	t.Helper()

	serviceInstance, err := NewRelayService(testSenderAddress, transport, cleaner, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new relay service: %v", err)
	}
	return serviceInstance
}

func stagedSubmission() model.Submission {
	return model.Submission{
		Text:            "Hello",
		ReceiverAddress: "owner@example.com",
		StagedFiles: []model.FileRef{
			{AbsolutePath: "/tmp/uploads/a/1.pdf", OriginalName: "invoice.pdf"},
			{AbsolutePath: "/tmp/uploads/a/2.png", OriginalName: "photo.png"},
		},
	}
}

func TestNewRelayServiceValidatesDependencies(t *testing.T) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := NewRelayService(testSenderAddress, nil, &stubCleaner{}, logger); err == nil {
		t.Fatalf("expected transport validation error")
	}
	if _, err := NewRelayService(testSenderAddress, &stubTransport{}, nil, logger); err == nil {
		t.Fatalf("expected cleaner validation error")
	}
	if _, err := NewRelayService(testSenderAddress, &stubTransport{}, &stubCleaner{}, nil); err == nil {
		t.Fatalf("expected logger validation error")
	}
}

func TestRelayOutcomes(t *testing.T) {
	t.Helper()

	testCases := []struct {
		name             string
		transport        *stubTransport
		submission       model.Submission
		expectedStatus   model.RelayStatus
		expectedKind     model.ErrorKind
		expectedResponse string
	}{
		{
			name:             "Delivered",
			transport:        &stubTransport{response: "250 2.0.0 OK"},
			submission:       stagedSubmission(),
			expectedStatus:   model.StatusDelivered,
			expectedKind:     model.KindNone,
			expectedResponse: "250 2.0.0 OK",
		},
		{
			name:           "AuthFailure",
			transport:      &stubTransport{err: model.NewDeliveryError(model.KindTransportAuth, errors.New("535 bad credentials"))},
			submission:     stagedSubmission(),
			expectedStatus: model.StatusFailed,
			expectedKind:   model.KindTransportAuth,
		},
		{
			name:           "EmptyRecipient",
			transport:      &stubTransport{response: "250 OK"},
			submission:     model.Submission{Text: "Hello"},
			expectedStatus: model.StatusFailed,
			expectedKind:   model.KindTransportRejected,
		},
		{
			name:           "TransportPanic",
			transport:      &stubTransport{panicValue: "boom"},
			submission:     stagedSubmission(),
			expectedStatus: model.StatusFailed,
			expectedKind:   model.KindTransportNetwork,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Helper()

			cleaner := &stubCleaner{}
			serviceInstance := newTestRelayService(t, testCase.transport, cleaner)

			result := serviceInstance.Relay(context.Background(), testCase.submission)
			if result.Status != testCase.expectedStatus {
				t.Fatalf("expected status %s, got %s", testCase.expectedStatus, result.Status)
			}
			if result.ErrorKind != testCase.expectedKind {
				t.Fatalf("expected kind %s, got %s", testCase.expectedKind, result.ErrorKind)
			}
			if result.TransportResponse != testCase.expectedResponse {
				t.Fatalf("expected response %q, got %q", testCase.expectedResponse, result.TransportResponse)
			}
			if result.Status == model.StatusFailed && result.ErrorDescription == "" {
				t.Fatalf("expected error description on failure")
			}
			if len(testCase.transport.sentMessages) != 1 {
				t.Fatalf("expected exactly one send attempt, got %d", len(testCase.transport.sentMessages))
			}
			if len(testCase.submission.StagedFiles) > 0 && len(cleaner.removed) != 1 {
				t.Fatalf("expected staged files to be removed once, got %d", len(cleaner.removed))
			}
		})
	}
}

func TestRelayComposesMessage(t *testing.T) {
	t.Helper()

	transport := &stubTransport{response: "250 OK"}
	serviceInstance := newTestRelayService(t, transport, &stubCleaner{})

	serviceInstance.Relay(context.Background(), stagedSubmission())

	message := transport.sentMessages[0]
	if message.Sender != testSenderAddress {
		t.Fatalf("unexpected sender %q", message.Sender)
	}
	if message.Subject != model.SubmissionSubject {
		t.Fatalf("unexpected subject %q", message.Subject)
	}
	if message.Body != "Hello" {
		t.Fatalf("unexpected body %q", message.Body)
	}
	if len(message.Attachments) != 2 || message.Attachments[0].Filename != "invoice.pdf" {
		t.Fatalf("unexpected attachments %+v", message.Attachments)
	}
}

func TestRelayCleanupFailureKeepsDeliveredOutcome(t *testing.T) {
	t.Helper()

	cleaner := &stubCleaner{err: errors.New("permission denied")}
	serviceInstance := newTestRelayService(t, &stubTransport{response: "250 OK"}, cleaner)

	result := serviceInstance.Relay(context.Background(), stagedSubmission())
	if !result.IsDelivered() {
		t.Fatalf("expected delivered outcome despite cleanup failure, got %+v", result)
	}
}

func TestRelaySkipsCleanupWithoutFiles(t *testing.T) {
	t.Helper()

	cleaner := &stubCleaner{}
	serviceInstance := newTestRelayService(t, &stubTransport{response: "250 OK"}, cleaner)

	serviceInstance.Relay(context.Background(), model.Submission{Text: "Hello", ReceiverAddress: "owner@example.com"})
	if len(cleaner.removed) != 0 {
		t.Fatalf("expected no cleanup call")
	}
}

func TestRelayIsNotDeduplicated(t *testing.T) {
	t.Helper()

	transport := &stubTransport{response: "250 OK"}
	serviceInstance := newTestRelayService(t, transport, &stubCleaner{})

	submission := model.Submission{Text: "Same", ReceiverAddress: "owner@example.com"}
	serviceInstance.Relay(context.Background(), submission)
	serviceInstance.Relay(context.Background(), submission)
	if len(transport.sentMessages) != 2 {
		t.Fatalf("expected two sends for two identical submissions, got %d", len(transport.sentMessages))
	}
}
