package middleware

import (
	"fmt"
	"io"
	"strings"

	"agent-runtime/internal/entities"
	"agent-runtime/internal/reqctx"

	"github.com/gofiber/fiber/v2"
)

// UploadField is the multipart field carrying files.
const UploadField = "files"

// UploadStore persists request files.
type UploadStore interface {
	Save(key, name, contentType string, r io.Reader, limit int64) (entities.Attachment, error)
	Remove(key string) error
}

// UploadLimits bounds one multipart request.
type UploadLimits struct {
	MaxFiles    int
	MaxFileSize int64
}

// UploadHandler stores multipart files under the request id and exposes them
// as attachments. Files are removed when the chain returns unless the request
// state was detached.
func UploadHandler(store UploadStore, limits UploadLimits) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEMultipartForm) {
			return c.Next()
		}
		rc := reqctx.MustFrom(c.UserContext())

		form, err := c.MultipartForm()
		if err != nil {
			return fmt.Errorf("%w: malformed multipart body: %v", entities.ErrInvalidArgument, err)
		}
		files := form.File[UploadField]
		if len(files) == 0 {
			return c.Next()
		}
		if limits.MaxFiles > 0 && len(files) > limits.MaxFiles {
			return fmt.Errorf("%w: at most %d files", entities.ErrUploadTooLarge, limits.MaxFiles)
		}

		defer func() {
			if rc.Detached() {
				return
			}
			if err := store.Remove(rc.RequestID); err != nil {
				rc.Logger().Warnw("failed to remove uploads", "error", err)
			}
		}()

		atts := make([]entities.Attachment, 0, len(files))
		for _, fh := range files {
			if limits.MaxFileSize > 0 && fh.Size > limits.MaxFileSize {
				return fmt.Errorf("%w: %s exceeds %d bytes", entities.ErrUploadTooLarge, fh.Filename, limits.MaxFileSize)
			}
			f, err := fh.Open()
			if err != nil {
				return fmt.Errorf("open upload %s: %w", fh.Filename, err)
			}
			att, err := store.Save(rc.RequestID, fh.Filename, fh.Header.Get(fiber.HeaderContentType), f, limits.MaxFileSize)
			_ = f.Close()
			if err != nil {
				return err
			}
			atts = append(atts, att)
		}
		rc.AddAttachments(atts...)
		rc.Logger().Infow("stored uploads", "count", len(atts))

		return c.Next()
	}
}
