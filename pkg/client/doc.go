// Package client provides a typed HTTP client for the form relay service. It
// encodes submissions as multipart requests, streams attachments from disk and
// decodes the relay's JSON replies so integrators and the CLI share one path.
package client
