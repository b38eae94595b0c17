package staging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/tyemirov/formrelay/internal/model"
)

const (
	directoryPermissions = 0o755
	maxExtensionLength   = 16
)

var (
	ErrMissingUploadDir = errors.New("staging: upload directory is required")
	ErrMissingLogger    = errors.New("staging: logger is required")
)

// SaveFunc writes one uploaded part to destination.
type SaveFunc func(fileHeader *multipart.FileHeader, destination string) error

// Store owns the scratch directory shared by every request. Each Stage call
// writes into its own UUID-named subdirectory, so concurrent uploads with the
// same original filename never collide. Directories between Stage and Remove
// are tracked as in flight and skipped by the sweeper.
type Store struct {
	rootDir string
	logger  *slog.Logger

	mutex    sync.Mutex
	inFlight map[string]struct{}
}

// NewStore resolves dir to an absolute path. Call Prepare before staging.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrMissingUploadDir
	}
	if logger == nil {
		return nil, ErrMissingLogger
	}
	absoluteDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("staging: resolve %s: %w", dir, err)
	}
	return &Store{rootDir: absoluteDir, logger: logger, inFlight: make(map[string]struct{})}, nil
}

// Dir returns the absolute scratch directory.
func (store *Store) Dir() string {
	return store.rootDir
}

// Prepare creates the scratch directory if it is absent.
func (store *Store) Prepare() error {
	if err := os.MkdirAll(store.rootDir, directoryPermissions); err != nil {
		return fmt.Errorf("staging: create %s: %w", store.rootDir, err)
	}
	return nil
}

// Stage writes every part under a fresh request directory. A nil save uses a
// plain copy. On failure nothing staged by this call is left behind.
func (store *Store) Stage(fileHeaders []*multipart.FileHeader, save SaveFunc) ([]model.FileRef, error) {
	if len(fileHeaders) == 0 {
		return nil, nil
	}
	if save == nil {
		save = copyUploadedFile
	}

	requestDir := filepath.Join(store.rootDir, uuid.NewString())
	store.acquire(requestDir)
	if err := os.MkdirAll(requestDir, directoryPermissions); err != nil {
		store.release(requestDir)
		return nil, fmt.Errorf("staging: create request directory: %w", err)
	}

	staged := make([]model.FileRef, 0, len(fileHeaders))
	for _, fileHeader := range fileHeaders {
		originalName := sanitizeOriginalName(fileHeader.Filename)
		destination := filepath.Join(requestDir, uuid.NewString()+safeExtension(originalName))
		if err := save(fileHeader, destination); err != nil {
			store.discard(requestDir)
			return nil, fmt.Errorf("staging: save %q: %w", originalName, err)
		}
		staged = append(staged, model.FileRef{
			AbsolutePath: destination,
			OriginalName: originalName,
			ContentType:  detectContentType(destination, fileHeader),
			Size:         fileHeader.Size,
		})
	}

	store.logger.Debug("uploads_staged", "directory", requestDir, "count", len(staged))
	return staged, nil
}

// Remove deletes every referenced file and prunes request directories left
// empty. Missing files are not an error; other failures are joined. Either
// way the request directories are released to the sweeper.
func (store *Store) Remove(fileRefs []model.FileRef) error {
	var removalErrors []error
	parents := make(map[string]struct{}, 1)
	for _, fileRef := range fileRefs {
		parents[filepath.Dir(fileRef.AbsolutePath)] = struct{}{}
		if err := os.Remove(fileRef.AbsolutePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			removalErrors = append(removalErrors, fmt.Errorf("remove %s: %w", fileRef.AbsolutePath, err))
		}
	}
	for parent := range parents {
		if !store.owns(parent) {
			continue
		}
		store.release(parent)
		// fails harmlessly while the directory still holds files
		_ = os.Remove(parent)
	}
	return errors.Join(removalErrors...)
}

func (store *Store) acquire(requestDir string) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.inFlight[filepath.Base(requestDir)] = struct{}{}
}

func (store *Store) release(requestDir string) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	delete(store.inFlight, filepath.Base(requestDir))
}

func (store *Store) isInFlight(name string) bool {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	_, active := store.inFlight[name]
	return active
}

func (store *Store) owns(directory string) bool {
	relative, err := filepath.Rel(store.rootDir, directory)
	if err != nil {
		return false
	}
	return relative != "." && !strings.HasPrefix(relative, "..") && !strings.ContainsRune(relative, filepath.Separator)
}

func (store *Store) discard(requestDir string) {
	defer store.release(requestDir)
	if err := os.RemoveAll(requestDir); err != nil {
		store.logger.Error("staging_discard_failed", "directory", requestDir, "error", err)
	}
}

func copyUploadedFile(fileHeader *multipart.FileHeader, destination string) error {
	source, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer source.Close()

	target, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(target, source); err != nil {
		target.Close()
		return err
	}
	return target.Close()
}

func detectContentType(path string, fileHeader *multipart.FileHeader) string {
	detected, err := mimetype.DetectFile(path)
	if err == nil && detected != nil {
		return detected.String()
	}
	if declared := strings.TrimSpace(fileHeader.Header.Get("Content-Type")); declared != "" {
		return declared
	}
	return "application/octet-stream"
}

// sanitizeOriginalName keeps only the base name and drops control characters.
func sanitizeOriginalName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, base)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" || cleaned == "." || cleaned == "/" {
		return "attachment"
	}
	return cleaned
}

func safeExtension(name string) string {
	extension := strings.ToLower(filepath.Ext(name))
	if len(extension) < 2 || len(extension) > maxExtensionLength {
		return ""
	}
	for _, r := range extension[1:] {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
			return ""
		}
	}
	return extension
}
