// Package storage persists ticket attachments on local disk under randomized names.
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/station-helpdesk/internal/config"
	"github.com/spec-kit/station-helpdesk/internal/domain"
	apperrors "github.com/spec-kit/station-helpdesk/pkg/util/errorutil"
)

// Upload is one incoming file.
type Upload struct {
	OriginalName string
	Size         int64
	MimeType     string
	Open         func() (io.ReadCloser, error)
}

// DiskStore writes uploads into a single directory.
type DiskStore struct {
	dir      string
	maxFiles int
	maxSize  int64
	allowed  map[string]struct{}
}

// NewDiskStore creates the upload directory if needed.
func NewDiskStore(cfg config.UploadConfig) (*DiskStore, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return &DiskStore{
		dir:      cfg.Dir,
		maxFiles: cfg.MaxFiles,
		maxSize:  cfg.MaxFileSize(),
		allowed:  allowed,
	}, nil
}

// Dir returns the directory files are written to.
func (s *DiskStore) Dir() string {
	return s.dir
}

// Validate checks count, size and extension for every upload before anything is written.
func (s *DiskStore) Validate(uploads []Upload) error {
	var fields []apperrors.FieldError
	if s.maxFiles > 0 && len(uploads) > s.maxFiles {
		fields = append(fields, apperrors.FieldError{
			Field:   "attachments",
			Message: fmt.Sprintf("at most %d files may be attached", s.maxFiles),
		})
	}
	for _, u := range uploads {
		ext := extension(u.OriginalName)
		if _, ok := s.allowed[ext]; !ok {
			fields = append(fields, apperrors.FieldError{
				Field:   "attachments",
				Message: fmt.Sprintf("%s: file type not allowed", u.OriginalName),
			})
			continue
		}
		if s.maxSize > 0 && u.Size > s.maxSize {
			fields = append(fields, apperrors.FieldError{
				Field:   "attachments",
				Message: fmt.Sprintf("%s: file exceeds %d bytes", u.OriginalName, s.maxSize),
			})
		}
	}
	if len(fields) > 0 {
		return apperrors.NewFieldValidationError(fields)
	}
	return nil
}

// Save copies the upload to disk and returns its attachment metadata.
func (s *DiskStore) Save(ctx context.Context, u Upload) (domain.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Attachment{}, err
	}
	ext := extension(u.OriginalName)
	filename := uuid.NewString() + "." + ext
	path := filepath.Join(s.dir, filename)

	src, err := u.Open()
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("create %s: %w", filename, err)
	}

	limit := s.maxSize
	if limit <= 0 {
		limit = u.Size
	}
	written, err := io.Copy(dst, io.LimitReader(src, limit+1))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && s.maxSize > 0 && written > s.maxSize {
		err = fmt.Errorf("%s exceeds size limit", u.OriginalName)
	}
	if err != nil {
		_ = os.Remove(path)
		return domain.Attachment{}, err
	}

	mimeType := u.MimeType
	if mimeType == "" {
		mimeType = mime.TypeByExtension("." + ext)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return domain.Attachment{
		Filename:     filename,
		OriginalName: filepath.Base(u.OriginalName),
		StoragePath:  path,
		MimeType:     mimeType,
		Size:         written,
	}, nil
}

// Remove deletes a stored file; missing files are ignored.
func (s *DiskStore) Remove(att domain.Attachment) error {
	err := os.Remove(filepath.Join(s.dir, filepath.Base(att.Filename)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}
