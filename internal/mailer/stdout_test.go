package mailer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tyemirov/formrelay/internal/model"
)

func TestStdoutTransportWritesMessage(t *testing.T) {
	t.Helper()

	var output bytes.Buffer
	transport := NewStdoutTransportWithWriter(&output)
	path := writeAttachment(t, "staged.txt", []byte("hello"))

	message := testMailMessage("owner@example.com")
	message.Attachments = []model.Attachment{{Path: path, Filename: "notes.txt"}}
	response, err := transport.Send(context.Background(), message)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if response != stdoutResponse {
		t.Fatalf("unexpected response %q", response)
	}
	printed := output.String()
	for _, expected := range []string{"To: owner@example.com", "Subject: New Form Submission", "Hello from the form", "notes.txt (5 B)"} {
		if !strings.Contains(printed, expected) {
			t.Fatalf("expected %q in output %q", expected, printed)
		}
	}
}

func TestStdoutTransportEmptyRecipient(t *testing.T) {
	t.Helper()

	var output bytes.Buffer
	transport := NewStdoutTransportWithWriter(&output)
	if _, err := transport.Send(context.Background(), testMailMessage("")); !errors.Is(err, ErrEmptyRecipient) {
		t.Fatalf("expected ErrEmptyRecipient, got %v", err)
	}
	if output.Len() != 0 {
		t.Fatalf("expected no output")
	}
}

func TestFormatSize(t *testing.T) {
	t.Helper()

	testCases := map[int64]string{
		12:              "12 B",
		2048:            "2.0 KB",
		3 * 1024 * 1024: "3.0 MB",
	}
	for size, expected := range testCases {
		if got := formatSize(size); got != expected {
			t.Fatalf("formatSize(%d) = %q, want %q", size, got, expected)
		}
	}
}
