package model

// SubmissionSubject is the subject line of every relayed message.
const SubmissionSubject = "New Form Submission"

// RelayStatus enumerations: "delivered" or "failed".
type RelayStatus string

const (
	StatusDelivered RelayStatus = "delivered"
	StatusFailed    RelayStatus = "failed"
)

// FileRef points at one staged upload. OriginalName is caller metadata only and
// never part of AbsolutePath.
type FileRef struct {
	AbsolutePath string
	OriginalName string
	ContentType  string
	Size         int64
}

// Submission is one decoded form request.
type Submission struct {
	Text            string
	ReceiverAddress string
	StagedFiles     []FileRef
}

// Attachment references a file on local storage. Transports read the bytes
// from Path; Filename falls back to the base name of Path.
type Attachment struct {
	Path     string
	Filename string
}

// MailMessage is handed to a transport once and discarded.
type MailMessage struct {
	Sender      string
	Recipient   string
	Subject     string
	Body        string
	Attachments []Attachment
}

// RelayResult is the tagged outcome of a single relay.
type RelayResult struct {
	Status            RelayStatus
	TransportResponse string
	ErrorDescription  string
	ErrorKind         ErrorKind
}

// Delivered builds a successful outcome.
func Delivered(transportResponse string) RelayResult {
	return RelayResult{
		Status:            StatusDelivered,
		TransportResponse: transportResponse,
		ErrorKind:         KindNone,
	}
}

// Failed builds a failed outcome carrying the error text.
func Failed(kind ErrorKind, err error) RelayResult {
	description := "unknown error"
	if err != nil {
		description = err.Error()
	}
	return RelayResult{
		Status:           StatusFailed,
		ErrorDescription: description,
		ErrorKind:        kind,
	}
}

// IsDelivered reports whether the transport accepted the message.
func (result RelayResult) IsDelivered() bool {
	return result.Status == StatusDelivered
}

// NewMailMessage maps a submission onto an outbound message from sender.
func NewMailMessage(sender string, submission Submission) MailMessage {
	var attachments []Attachment
	if len(submission.StagedFiles) > 0 {
		attachments = make([]Attachment, 0, len(submission.StagedFiles))
		for _, fileRef := range submission.StagedFiles {
			attachments = append(attachments, Attachment{
				Path:     fileRef.AbsolutePath,
				Filename: fileRef.OriginalName,
			})
		}
	}
	return MailMessage{
		Sender:      sender,
		Recipient:   submission.ReceiverAddress,
		Subject:     SubmissionSubject,
		Body:        submission.Text,
		Attachments: attachments,
	}
}
