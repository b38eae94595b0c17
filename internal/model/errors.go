package model

import "errors"

// ErrorKind is the closed set of failure categories used in diagnostics.
// Callers of the HTTP surface only ever see the error string.
type ErrorKind string

const (
	KindNone              ErrorKind = "none"
	KindTransportAuth     ErrorKind = "transport_auth"
	KindTransportNetwork  ErrorKind = "transport_network"
	KindTransportRejected ErrorKind = "transport_rejected"
	KindMessageBuild      ErrorKind = "message_build"
	KindIOCleanup         ErrorKind = "io_cleanup"
	KindStaging           ErrorKind = "staging"
)

// DeliveryError attaches an ErrorKind to a transport or build failure. The
// kind stays out of Error so callers receive only the underlying message.
type DeliveryError struct {
	Kind ErrorKind
	Err  error
}

// NewDeliveryError wraps err with kind. A nil err yields nil.
func NewDeliveryError(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &DeliveryError{Kind: kind, Err: err}
}

func (deliveryError *DeliveryError) Error() string {
	if deliveryError.Err == nil {
		return string(deliveryError.Kind)
	}
	return deliveryError.Err.Error()
}

func (deliveryError *DeliveryError) Unwrap() error {
	return deliveryError.Err
}

// KindOf extracts the ErrorKind carried by err, defaulting to a rejection.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var deliveryError *DeliveryError
	if errors.As(err, &deliveryError) {
		return deliveryError.Kind
	}
	return KindTransportRejected
}
