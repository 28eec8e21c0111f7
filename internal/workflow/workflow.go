// Package workflow drives the try-on modal: acquiring a photo from the
// camera or a file, previewing it, submitting it for synthesis and acting on
// the result.
//
// A Machine is safe for concurrent use. Asynchronous work (camera prompts,
// file picking, submission, add-to-cart) runs on its own goroutine and its
// completion is applied only if the operation is still the current one for
// the current session; anything else is discarded.
package workflow

import (
	"context"
	"errors"

	"github.com/banana-tryon/tryon/internal/failure"
	"github.com/banana-tryon/tryon/internal/gateway"
	"github.com/banana-tryon/tryon/internal/media"
	"github.com/banana-tryon/tryon/internal/models"
)

// State is the visible state of the modal
type State int

const (
	Closed State = iota
	Options
	Camera
	Preview
	Processing
	Result
	Error
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Options:
		return "options"
	case Camera:
		return "camera"
	case Preview:
		return "preview"
	case Processing:
		return "processing"
	case Result:
		return "result"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidTransition is returned when an action is not offered in the current state
	ErrInvalidTransition = errors.New("action not allowed in current state")
	// ErrBusy is returned when an operation of the same kind is already in flight
	ErrBusy = errors.New("operation already in progress")
	// ErrNotRetryable is returned by Retry for errors that only offer close
	ErrNotRetryable = errors.New("error is not retryable")
)

// Surface renders the modal. Its methods are called with the machine's lock
// held and must not call back into the Machine.
type Surface interface {
	Show(s State)
	ShowPreview(displayURL string)
	ShowResult(imageURL string)
	ShowError(rec failure.Record)
	SetCartBusy(busy bool)
}

// Gateway submits a person image for a product
type Gateway interface {
	Submit(ctx context.Context, person media.Image, product models.Product) (*gateway.Result, error)
}

// Cart adds one unit of a variant to the shopper's cart
type Cart interface {
	AddOne(ctx context.Context, variantID string) error
}

// URLs issues and revokes display URLs for captured images
type URLs interface {
	Create(data []byte) string
	Revoke(url string)
}

// Captured is the image currently held by a session
type Captured struct {
	media.Image
	DisplayURL string
}

// Session is a point-in-time view of the open modal
type Session struct {
	ID        string
	State     State
	Product   models.Product
	Captured  *Captured
	Result    *gateway.Result
	LastError *failure.Record
}
