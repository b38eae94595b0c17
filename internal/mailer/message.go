package mailer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/tyemirov/formrelay/internal/model"
)

const (
	boundaryPrefix    = "FormRelayBoundary-"
	base64LineLength  = 76
	messageIDHostname = "formrelay.local"
)

// BuildMessage renders message as RFC 5322 bytes. Attachments are read from
// disk here; an unreadable attachment fails with KindMessageBuild.
func BuildMessage(message model.MailMessage) ([]byte, error) {
	return buildMessageAt(message, time.Now())
}

func buildMessageAt(message model.MailMessage, now time.Time) ([]byte, error) {
	var buffer bytes.Buffer

	writeHeader(&buffer, "From", sanitizeHeaderValue(message.Sender))
	writeHeader(&buffer, "To", sanitizeHeaderValue(message.Recipient))
	writeHeader(&buffer, "Subject", encodeHeaderWord(sanitizeHeaderValue(message.Subject)))
	writeHeader(&buffer, "Date", now.Format(time.RFC1123Z))
	writeHeader(&buffer, "Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), messageIDHostname))
	writeHeader(&buffer, "MIME-Version", "1.0")

	if len(message.Attachments) == 0 {
		writeHeader(&buffer, "Content-Type", `text/plain; charset="utf-8"`)
		writeHeader(&buffer, "Content-Transfer-Encoding", "quoted-printable")
		buffer.WriteString("\r\n")
		if err := writeQuotedPrintable(&buffer, message.Body); err != nil {
			return nil, model.NewDeliveryError(model.KindMessageBuild, err)
		}
		return buffer.Bytes(), nil
	}

	multipartWriter := multipart.NewWriter(&buffer)
	if err := multipartWriter.SetBoundary(boundaryPrefix + uuid.NewString()); err != nil {
		return nil, model.NewDeliveryError(model.KindMessageBuild, err)
	}
	writeHeader(&buffer, "Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", multipartWriter.Boundary()))
	buffer.WriteString("\r\n")

	bodyHeader := make(textproto.MIMEHeader)
	bodyHeader.Set("Content-Type", `text/plain; charset="utf-8"`)
	bodyHeader.Set("Content-Transfer-Encoding", "quoted-printable")
	bodyPart, err := multipartWriter.CreatePart(bodyHeader)
	if err != nil {
		return nil, model.NewDeliveryError(model.KindMessageBuild, err)
	}
	if err := writeQuotedPrintable(bodyPart, message.Body); err != nil {
		return nil, model.NewDeliveryError(model.KindMessageBuild, err)
	}

	for _, attachment := range message.Attachments {
		payload, readErr := os.ReadFile(attachment.Path)
		if readErr != nil {
			return nil, model.NewDeliveryError(model.KindMessageBuild, fmt.Errorf("read attachment: %w", readErr))
		}
		filename := attachmentFilename(attachment)

		attachmentHeader := make(textproto.MIMEHeader)
		attachmentHeader.Set("Content-Type", mimetype.Detect(payload).String())
		attachmentHeader.Set("Content-Transfer-Encoding", "base64")
		attachmentHeader.Set("Content-Disposition", contentDisposition(filename))
		part, partErr := multipartWriter.CreatePart(attachmentHeader)
		if partErr != nil {
			return nil, model.NewDeliveryError(model.KindMessageBuild, partErr)
		}
		if _, writeErr := part.Write([]byte(encodeBase64WithLineBreaks(payload))); writeErr != nil {
			return nil, model.NewDeliveryError(model.KindMessageBuild, writeErr)
		}
	}

	if err := multipartWriter.Close(); err != nil {
		return nil, model.NewDeliveryError(model.KindMessageBuild, err)
	}
	return buffer.Bytes(), nil
}

func writeHeader(buffer *bytes.Buffer, name string, value string) {
	buffer.WriteString(name)
	buffer.WriteString(": ")
	buffer.WriteString(value)
	buffer.WriteString("\r\n")
}

func writeQuotedPrintable(destination io.Writer, body string) error {
	writer := quotedprintable.NewWriter(destination)
	if _, err := writer.Write([]byte(body)); err != nil {
		return err
	}
	return writer.Close()
}

func attachmentFilename(attachment model.Attachment) string {
	filename := sanitizeHeaderValue(attachment.Filename)
	if strings.TrimSpace(filename) == "" {
		filename = filepath.Base(attachment.Path)
	}
	return filename
}

func contentDisposition(filename string) string {
	if !isASCII(filename) {
		return fmt.Sprintf("attachment; filename=%q", mime.BEncoding.Encode("utf-8", filename))
	}
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(filename)
	return fmt.Sprintf("attachment; filename=\"%s\"", escaped)
}

func encodeHeaderWord(value string) string {
	if isASCII(value) {
		return value
	}
	return mime.QEncoding.Encode("utf-8", value)
}

// sanitizeHeaderValue strips control characters so caller input cannot
// inject extra header lines.
func sanitizeHeaderValue(value string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, value)
}

func isASCII(value string) bool {
	for index := 0; index < len(value); index++ {
		if value[index] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// encodeBase64WithLineBreaks wraps base64 output at 76 columns per RFC 2045.
func encodeBase64WithLineBreaks(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var builder strings.Builder
	for start := 0; start < len(encoded); start += base64LineLength {
		end := start + base64LineLength
		if end > len(encoded) {
			end = len(encoded)
		}
		builder.WriteString(encoded[start:end])
		builder.WriteString("\r\n")
	}
	return builder.String()
}
