package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"time"

	"github.com/banana-tryon/tryon/internal/failure"
	"github.com/banana-tryon/tryon/internal/media"
	"github.com/banana-tryon/tryon/internal/models"
)

// DefaultEndpoint is the storefront app-proxy path of the try-on endpoint
const DefaultEndpoint = "/apps/banana-tryon/tryon"

// maxResponseSize bounds the JSON body read from the endpoint
const maxResponseSize = 64 * 1024 * 1024

var errMissingProductImage = errors.New("product has no image reference")

// Client submits try-on requests to the proxy. Every error it returns is a
// *failure.Error.
type Client struct {
	Endpoint   string
	HTTPClient *http.Client
}

// Result is the synthesized try-on image
type Result struct {
	DataURL  string
	MIMEType string
	Data     []byte
}

// New returns a client for endpoint. The client keeps cookies between calls
// so the storefront session travels with each submission.
func New(endpoint string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		Endpoint: endpoint,
		HTTPClient: &http.Client{
			Jar:     jar,
			Timeout: 2 * time.Minute,
		},
	}
}

// Submit sends the person image and the product image reference and
// returns the synthesized image. There are no retries.
func (c *Client) Submit(ctx context.Context, person media.Image, product models.Product) (*Result, error) {
	if product.ImageURL == "" {
		return nil, failure.WithMessage(failure.ProcessingError, "Product image is not properly configured.", errMissingProductImage)
	}

	body, contentType, err := buildForm(person, product)
	if err != nil {
		return nil, failure.New(failure.Unknown, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, body)
	if err != nil {
		return nil, failure.New(failure.Unknown, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, failure.New(failure.NetworkError, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, failure.New(failure.NetworkError, fmt.Errorf("failed to read response: %w", err))
	}

	var payload models.TryOnResponse
	decodeErr := json.Unmarshal(raw, &payload)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyStatus(resp.StatusCode, payload)
	}

	if decodeErr != nil {
		return nil, failure.New(failure.ProcessingError, fmt.Errorf("failed to decode response: %w", decodeErr))
	}
	if payload.ResultImage == "" {
		return nil, failure.New(failure.ProcessingError, errors.New("response has no result image"))
	}

	mimeType, data, err := ParseDataURL(payload.ResultImage)
	if err != nil {
		return nil, failure.New(failure.ProcessingError, fmt.Errorf("malformed result image: %w", err))
	}

	slog.Debug("Try-on result received", "mime", mimeType, "bytes", len(data))
	return &Result{
		DataURL:  payload.ResultImage,
		MIMEType: mimeType,
		Data:     data,
	}, nil
}

func classifyStatus(status int, payload models.TryOnResponse) error {
	cause := fmt.Errorf("HTTP %d", status)
	if msg := firstNonEmpty(payload.Error, payload.Message); msg != "" {
		cause = fmt.Errorf("HTTP %d: %s", status, msg)
	}

	switch {
	case status == http.StatusTooManyRequests || payload.Code == models.CodeUsageLimit:
		return failure.New(failure.UsageLimit, cause)
	case status >= 500:
		return failure.New(failure.ProcessingError, cause)
	default:
		return failure.New(failure.NetworkError, cause)
	}
}

func buildForm(person media.Image, product models.Product) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := person.Name
	if name == "" {
		name = "person.jpg"
	}
	mimeType := person.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, models.FieldPersonImage, name))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create person image part: %w", err)
	}
	if _, err := part.Write(person.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write person image: %w", err)
	}

	if err := w.WriteField(models.FieldProductImage, product.ImageURL); err != nil {
		return nil, "", fmt.Errorf("failed to write product image reference: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
