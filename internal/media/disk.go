package media

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/gabriel-vasile/mimetype"
)

// DiskPicker picks a file from the local filesystem. The declared type is
// sniffed from the file contents.
type DiskPicker struct {
	Path string
}

func (p *DiskPicker) Pick(ctx context.Context) (File, error) {
	if err := ctx.Err(); err != nil {
		return File{}, err
	}
	if p.Path == "" {
		return File{}, ErrNoFile
	}

	info, err := os.Stat(p.Path)
	if err != nil {
		return File{}, fmt.Errorf("failed to stat %s: %w", p.Path, err)
	}

	mtype, err := mimetype.DetectFile(p.Path)
	if err != nil {
		return File{}, fmt.Errorf("failed to detect type of %s: %w", p.Path, err)
	}

	f := File{
		Name: filepath.Base(p.Path),
		Type: mtype.String(),
		Size: info.Size(),
	}

	// Oversized files are rejected on size alone, so skip reading them
	if f.Size > MaxFileSize {
		return f, nil
	}

	f.Data, err = os.ReadFile(p.Path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read %s: %w", p.Path, err)
	}
	return f, nil
}

// StillCamera is a Camera whose streams always show the same frame
type StillCamera struct {
	Frame image.Image

	mu   sync.Mutex
	live int
}

// NewStillCameraFromFile decodes a JPEG, PNG or GIF to use as the frame
func NewStillCameraFromFile(path string) (*StillCamera, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &StillCamera{Frame: img}, nil
}

func (c *StillCamera) Open(ctx context.Context, _ Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Frame == nil {
		return nil, ErrNoDevice
	}

	c.mu.Lock()
	c.live++
	c.mu.Unlock()
	return &stillStream{cam: c}, nil
}

// Live returns the number of streams not yet stopped
func (c *StillCamera) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

type stillStream struct {
	cam     *StillCamera
	once    sync.Once
	stopped bool
	mu      sync.Mutex
}

func (s *stillStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, fmt.Errorf("stream stopped")
	}
	return s.cam.Frame, nil
}

func (s *stillStream) Stop() {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		s.cam.mu.Lock()
		s.cam.live--
		s.cam.mu.Unlock()
	})
}
