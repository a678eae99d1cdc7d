package scanner

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DefaultMaxUploadBytes caps an uploaded image.
const DefaultMaxUploadBytes = 10 << 20

var (
	// ErrInvalidImage is returned for empty, oversized or non-image uploads.
	ErrInvalidImage = errors.New("invalid image")

	allowedTypes = []string{
		"image/jpeg",
		"image/png",
		"image/webp",
		"image/gif",
		"image/bmp",
		"image/tiff",
		"image/heic",
		"image/heif",
	}
)

// Image is a validated upload.
type Image struct {
	Data      []byte
	MediaType string
}

// readImage spools r to a temp file, enforces the size cap and sniffs the
// content type. The temp file never outlives the call.
func (s *Scanner) readImage(r io.Reader) (Image, error) {
	path := filepath.Join(s.tempDir, "shelf-upload-"+uuid.NewString())
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return Image{}, fmt.Errorf("creating upload file: %w", err)
	}
	defer os.Remove(path)
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(r, s.maxUpload+1))
	if err != nil {
		return Image{}, fmt.Errorf("%w: reading upload: %w", ErrInvalidImage, err)
	}
	if n == 0 {
		return Image{}, fmt.Errorf("%w: empty upload", ErrInvalidImage)
	}
	if n > s.maxUpload {
		return Image{}, fmt.Errorf("%w: larger than %d bytes", ErrInvalidImage, s.maxUpload)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Image{}, fmt.Errorf("rewinding upload: %w", err)
	}
	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return Image{}, fmt.Errorf("%w: sniffing upload: %w", ErrInvalidImage, err)
	}
	if !mimetype.EqualsAny(mtype.String(), allowedTypes...) {
		return Image{}, fmt.Errorf("%w: unsupported type %s", ErrInvalidImage, mtype.String())
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Image{}, fmt.Errorf("rewinding upload: %w", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return Image{}, fmt.Errorf("reading upload file: %w", err)
	}

	return Image{Data: data, MediaType: mtype.String()}, nil
}
