package media

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/banana-tryon/tryon/internal/failure"
)

// MaxFileSize is the largest accepted upload (10 MiB)
const MaxFileSize = 10 * 1024 * 1024

// ErrNoFile is returned by a FilePicker when the shopper dismisses it
var ErrNoFile = errors.New("no file selected")

// Image is an acquired image held in memory
type Image struct {
	Name     string
	MIMEType string
	Data     []byte
}

// File is a shopper-chosen file with its declared type
type File struct {
	Name string
	Type string
	Size int64
	Data []byte
}

// FilePicker lets the shopper choose a file
type FilePicker interface {
	Pick(ctx context.Context) (File, error)
}

// ValidateFile accepts image files no larger than MaxFileSize
func ValidateFile(f File) (Image, error) {
	if !strings.HasPrefix(strings.ToLower(f.Type), "image/") {
		return Image{}, failure.New(failure.InvalidFileType, fmt.Errorf("declared type %q is not an image", f.Type))
	}

	size := f.Size
	if size == 0 {
		size = int64(len(f.Data))
	}
	if size > MaxFileSize {
		return Image{}, failure.New(failure.FileTooLarge, fmt.Errorf("file is %d bytes, limit is %d", size, MaxFileSize))
	}

	if len(f.Data) == 0 {
		return Image{}, failure.New(failure.InvalidFileType, errors.New("file is empty"))
	}

	return Image{
		Name:     f.Name,
		MIMEType: f.Type,
		Data:     f.Data,
	}, nil
}
