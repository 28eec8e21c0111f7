package failure

import (
	"errors"
	"fmt"
)

// Kind is a category of failure shown to the shopper
type Kind string

const (
	CameraDenied      Kind = "camera_denied"
	CameraUnavailable Kind = "camera_unavailable"
	FileTooLarge      Kind = "file_too_large"
	InvalidFileType   Kind = "invalid_file_type"
	NetworkError      Kind = "network_error"
	UsageLimit        Kind = "usage_limit"
	ProcessingError   Kind = "processing_error"
	Unknown           Kind = "unknown"
)

// Copy is the user-facing text and retry policy for a Kind
type Copy struct {
	Title     string
	Message   string
	Retryable bool
}

var table = map[Kind]Copy{
	CameraDenied: {
		Title:     "Camera Access Denied",
		Message:   "Please allow camera access in your browser settings, or use the upload option instead.",
		Retryable: false,
	},
	CameraUnavailable: {
		Title:     "Camera Not Available",
		Message:   "No camera was detected on your device. Please use the upload option instead.",
		Retryable: false,
	},
	FileTooLarge: {
		Title:     "File Too Large",
		Message:   "Please choose an image smaller than 10MB.",
		Retryable: true,
	},
	InvalidFileType: {
		Title:     "Invalid File Type",
		Message:   "Please upload a JPG, PNG, or GIF image.",
		Retryable: true,
	},
	NetworkError: {
		Title:     "Connection Problem",
		Message:   "Please check your internet connection and try again.",
		Retryable: true,
	},
	UsageLimit: {
		Title:     "Usage Limit Reached",
		Message:   "You've reached your try-on limit. Please contact the store for more information.",
		Retryable: false,
	},
	ProcessingError: {
		Title:     "Processing Failed",
		Message:   "We couldn't process your image. Please try a different photo.",
		Retryable: true,
	},
	Unknown: {
		Title:     "Something Went Wrong",
		Message:   "An unexpected error occurred. Please try again later.",
		Retryable: true,
	},
}

// Kinds lists every Kind in display order
func Kinds() []Kind {
	return []Kind{
		CameraDenied,
		CameraUnavailable,
		FileTooLarge,
		InvalidFileType,
		NetworkError,
		UsageLimit,
		ProcessingError,
		Unknown,
	}
}

// Lookup returns the copy for k. Unrecognized kinds resolve to Unknown.
func Lookup(k Kind) Copy {
	if c, ok := table[k]; ok {
		return c
	}
	return table[Unknown]
}

// Valid reports whether k is one of the defined kinds
func (k Kind) Valid() bool {
	_, ok := table[k]
	return ok
}

// Error is a failure tagged with a Kind. Message optionally replaces the
// default copy; Err keeps the underlying cause for logs only.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an error of kind k wrapping cause
func New(k Kind, cause error) *Error {
	return &Error{Kind: k, Err: cause}
}

// WithMessage returns an error of kind k whose user-facing message is msg
func WithMessage(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Message: msg, Err: cause}
}

// Record is the classified form of a failure as displayed in the Error state
type Record struct {
	Kind      Kind
	Title     string
	Message   string
	Retryable bool
	// Detail is the raw cause; it is for logs and never shown to the shopper.
	Detail string
}

// Classify reduces any error to a Record
func Classify(err error) Record {
	if err == nil {
		return Of(Unknown)
	}

	var fe *Error
	if !errors.As(err, &fe) {
		rec := Of(Unknown)
		rec.Detail = err.Error()
		return rec
	}

	rec := Of(fe.Kind)
	if fe.Message != "" {
		rec.Message = fe.Message
	}
	if fe.Err != nil {
		rec.Detail = fe.Err.Error()
	}
	return rec
}

// Of returns the default Record for k
func Of(k Kind) Record {
	if !k.Valid() {
		k = Unknown
	}
	c := table[k]
	return Record{
		Kind:      k,
		Title:     c.Title,
		Message:   c.Message,
		Retryable: c.Retryable,
	}
}
