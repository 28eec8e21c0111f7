package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/banana-tryon/tryon/internal/failure"
)

var (
	// ErrPermissionDenied is returned by a Camera when the shopper refuses access
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrNoDevice is returned by a Camera when no capture device exists
	ErrNoDevice = errors.New("no camera device")
)

// CaptureQuality is the JPEG quality used for camera snapshots
const CaptureQuality = 90

// Constraints describes the requested video stream
type Constraints struct {
	FacingMode  string
	IdealWidth  int
	IdealHeight int
}

// DefaultConstraints prefers the front-facing camera at 1024x1024
var DefaultConstraints = Constraints{
	FacingMode:  "user",
	IdealWidth:  1024,
	IdealHeight: 1024,
}

// Camera opens live video streams
type Camera interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is a live video stream. Stop releases every track and must be
// safe to call more than once.
type Stream interface {
	Frame() (image.Image, error)
	Stop()
}

// Viewfinder is the video sink that displays a live stream
type Viewfinder interface {
	Attach(s Stream)
	Detach()
}

// OpenCamera requests a stream and classifies refusal as CameraDenied and
// every other failure as CameraUnavailable.
func OpenCamera(ctx context.Context, cam Camera, c Constraints) (Stream, error) {
	if cam == nil {
		return nil, failure.New(failure.CameraUnavailable, ErrNoDevice)
	}

	s, err := cam.Open(ctx, c)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return nil, failure.New(failure.CameraDenied, err)
		}
		return nil, failure.New(failure.CameraUnavailable, err)
	}
	if s == nil {
		return nil, failure.New(failure.CameraUnavailable, ErrNoDevice)
	}
	return s, nil
}

// Release stops s and detaches vf. Either may be nil.
func Release(s Stream, vf Viewfinder) {
	if s != nil {
		s.Stop()
	}
	if vf != nil {
		vf.Detach()
	}
}

// Capture snapshots the current frame of s as a JPEG. The stream is
// released before Capture returns, whatever the outcome.
func Capture(s Stream, vf Viewfinder) (Image, error) {
	defer Release(s, vf)

	if s == nil {
		return Image{}, failure.New(failure.CameraUnavailable, errors.New("no active stream"))
	}

	frame, err := s.Frame()
	if err != nil {
		return Image{}, failure.New(failure.CameraUnavailable, fmt.Errorf("failed to read frame: %w", err))
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: CaptureQuality}); err != nil {
		return Image{}, failure.New(failure.ProcessingError, fmt.Errorf("failed to encode snapshot: %w", err))
	}

	return Image{
		Name:     "capture.jpg",
		MIMEType: "image/jpeg",
		Data:     buf.Bytes(),
	}, nil
}
