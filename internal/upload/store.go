// Package upload stores multipart attachments on local disk, one directory per request.
package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"agent-runtime/internal/entities"

	"go.uber.org/zap"
)

// Store writes request attachments under a base directory.
type Store struct {
	dir string
	log *zap.SugaredLogger
}

// New creates the base directory if needed.
func New(dir string, log *zap.SugaredLogger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir, log: log.Named("upload")}, nil
}

// Save copies r into the request's directory. A body larger than limit
// bytes is discarded and reported as ErrUploadTooLarge.
func (s *Store) Save(key, name, contentType string, r io.Reader, limit int64) (entities.Attachment, error) {
	reqDir, err := s.requestDir(key)
	if err != nil {
		return entities.Attachment{}, err
	}
	if err := os.MkdirAll(reqDir, 0o750); err != nil {
		return entities.Attachment{}, fmt.Errorf("create request dir: %w", err)
	}

	clean := SanitizeName(name)
	f, path, err := createUnique(reqDir, clean)
	if err != nil {
		return entities.Attachment{}, err
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if copyErr == nil && limit > 0 && n > limit {
		copyErr = fmt.Errorf("%w: %s exceeds %d bytes", entities.ErrUploadTooLarge, clean, limit)
	}
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return entities.Attachment{}, err
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return entities.Attachment{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Size:        n,
		Path:        path,
	}, nil
}

// Remove deletes every file stored under key. Missing keys are not an error.
func (s *Store) Remove(key string) error {
	if key == "" {
		return nil
	}
	reqDir, err := s.requestDir(key)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(reqDir); err != nil {
		return fmt.Errorf("remove uploads: %w", err)
	}
	s.log.Debugw("uploads removed", "key", key)
	return nil
}

func (s *Store) requestDir(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || key == "." || key == ".." {
		return "", fmt.Errorf("%w: bad upload key %q", entities.ErrInvalidArgument, key)
	}
	return filepath.Join(s.dir, key), nil
}

// SanitizeName reduces a client supplied file name to a safe base name.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == '/' || r == ':' {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}

func createUnique(dir, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 1; ; i++ {
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("create upload file: %w", err)
		}
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
}
