package attachments

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const specifierSeparator = "::"

// ErrMissingPath is returned for an empty specifier.
var ErrMissingPath = errors.New("attachments: path is required")

// Attachment is a local file queued for upload.
type Attachment struct {
	Path        string
	Filename    string
	ContentType string
	Size        int64
}

// Load resolves specifiers of the form "path" or "path::content/type".
func Load(specifiers []string) ([]Attachment, error) {
	loaded := make([]Attachment, 0, len(specifiers))
	for _, specifier := range specifiers {
		path, contentType := splitInput(specifier)
		if path == "" {
			return nil, ErrMissingPath
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("attachments: stat %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("attachments: %s is not a regular file", path)
		}
		if contentType == "" {
			detected, detectErr := mimetype.DetectFile(path)
			if detectErr != nil {
				return nil, fmt.Errorf("attachments: detect type of %s: %w", path, detectErr)
			}
			contentType = detected.String()
		}
		loaded = append(loaded, Attachment{
			Path:        path,
			Filename:    filepath.Base(path),
			ContentType: contentType,
			Size:        info.Size(),
		})
	}
	return loaded, nil
}

func splitInput(specifier string) (string, string) {
	path, contentType, _ := strings.Cut(specifier, specifierSeparator)
	return strings.TrimSpace(path), strings.TrimSpace(contentType)
}
