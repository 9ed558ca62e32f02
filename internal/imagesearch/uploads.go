package imagesearch

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrBadUploadID rejects ids that are not ones Save handed out,
	// including paths.
	ErrBadUploadID = errors.New("invalid upload id")
	// ErrUploadNotFound means no upload with that id exists for the
	// thread.
	ErrUploadNotFound = errors.New("upload not found")
)

// threadDirRe limits thread ids used as directory names.
var threadDirRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Uploads stores customer pictures under one directory per thread.
// Pictures are addressed by the id Save returns; nothing outside the
// upload directory can be opened through it.
type Uploads struct {
	dir    string
	root   *os.Root
	logger *slog.Logger
}

// OpenUploads creates dir if needed and confines all access to it.
func OpenUploads(dir string, logger *slog.Logger) (*Uploads, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open upload dir %s: %w", dir, err)
	}
	return &Uploads{dir: dir, root: root, logger: logger.With("component", "uploads")}, nil
}

// Close releases the upload directory.
func (u *Uploads) Close() error {
	return u.root.Close()
}

// Save stores image for threadID and returns its id. filename only
// contributes its extension, which must be supported.
func (u *Uploads) Save(threadID, filename string, image io.Reader) (string, error) {
	if !threadDirRe.MatchString(threadID) {
		return "", fmt.Errorf("%w: thread %q", ErrBadUploadID, threadID)
	}
	if !Supported(filename) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
	if err := u.root.Mkdir(threadID, 0o750); err != nil && !errors.Is(err, fs.ErrExist) {
		return "", fmt.Errorf("create thread upload dir: %w", err)
	}

	id := uuid.NewString() + strings.ToLower(path.Ext(filename))
	f, err := u.root.OpenFile(path.Join(threadID, id), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	n, err := io.Copy(f, image)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = u.root.Remove(path.Join(threadID, id))
		return "", fmt.Errorf("write upload: %w", err)
	}

	u.logger.Info("image uploaded", "thread_id", threadID, "image_id", id, "bytes", n)
	return id, nil
}

// Open returns the upload id of threadID for reading.
func (u *Uploads) Open(threadID, id string) (io.ReadCloser, error) {
	if err := ValidUploadID(id); err != nil {
		return nil, err
	}
	if !threadDirRe.MatchString(threadID) {
		return nil, fmt.Errorf("%w: thread %q", ErrBadUploadID, threadID)
	}
	f, err := u.root.Open(path.Join(threadID, id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrUploadNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", id, err)
	}
	return f, nil
}

// ValidUploadID reports whether id has the shape Save produces: a UUID
// followed by a supported extension, with no path elements.
func ValidUploadID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q", ErrBadUploadID, id)
	}
	ext := path.Ext(id)
	if !Supported(id) || ext != strings.ToLower(ext) {
		return fmt.Errorf("%w: %q", ErrBadUploadID, id)
	}
	stem := strings.TrimSuffix(id, ext)
	if _, err := uuid.Parse(stem); err != nil || len(stem) != 36 {
		return fmt.Errorf("%w: %q", ErrBadUploadID, id)
	}
	return nil
}
