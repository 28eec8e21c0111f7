package vertex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2/google"
	aiplatform "google.golang.org/api/aiplatform/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	htransport "google.golang.org/api/transport/http"
)

const (
	DefaultProject  = "shopify-tryon"
	DefaultLocation = "us-central1"
	DefaultModel    = "virtual-try-on-preview-08-04"

	// CloudPlatformScope is the OAuth scope the predict endpoint requires
	CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

	sampleCount      = 1
	baseSteps        = 32
	personGeneration = "allow_all"

	maxErrorBody = 200
)

// ErrNoPrediction is returned when a successful response carries no image
var ErrNoPrediction = errors.New("No image returned from Vertex AI")

// Config selects the model endpoint and credentials
type Config struct {
	Project  string
	Location string
	Model    string
	// CredentialsJSON is a service-account key. When empty, application
	// default credentials are used.
	CredentialsJSON string
	// Endpoint overrides the regional service base URL
	Endpoint string
}

// Client calls the virtual try-on model
type Client struct {
	// Model is the publisher model resource name
	Model   string
	service *aiplatform.Service
}

// APIError is a non-success answer from the predict endpoint
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Vertex AI error (%d): %s", e.StatusCode, e.Body)
}

type imageBytes struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
}

type imageRef struct {
	Image imageBytes `json:"image"`
}

type instance struct {
	PersonImage   imageRef   `json:"personImage"`
	ProductImages []imageRef `json:"productImages"`
}

type parameters struct {
	SampleCount      int    `json:"sampleCount"`
	BaseSteps        int    `json:"baseSteps"`
	PersonGeneration string `json:"personGeneration"`
}

// ServiceURL is the regional Vertex AI base URL
func ServiceURL(location string) string {
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com/", location)
}

// ModelName is the resource name of a Google publisher model
func ModelName(project, location, model string) string {
	return fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s", project, location, model)
}

// New creates an authenticated client. Extra options are passed to the
// Google HTTP transport; option.WithHTTPClient bypasses authentication.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	if cfg.Project == "" {
		cfg.Project = DefaultProject
	}
	if cfg.Location == "" {
		cfg.Location = DefaultLocation
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = ServiceURL(cfg.Location)
	}

	clientOpts := []option.ClientOption{option.WithScopes(CloudPlatformScope)}
	if cfg.CredentialsJSON != "" {
		creds, err := google.CredentialsFromJSON(ctx, []byte(cfg.CredentialsJSON), CloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Google Cloud credentials: %w", err)
		}
		clientOpts = append(clientOpts, option.WithTokenSource(creds.TokenSource))
	}
	clientOpts = append(clientOpts, opts...)

	httpClient, _, err := htransport.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI HTTP client: %w", err)
	}
	hc := *httpClient
	if hc.Timeout == 0 {
		hc.Timeout = 120 * time.Second
	}

	svc, err := aiplatform.NewService(ctx, option.WithHTTPClient(&hc), option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI service: %w", err)
	}

	model := ModelName(cfg.Project, cfg.Location, cfg.Model)
	slog.Debug("Vertex AI client ready", "endpoint", endpoint, "model", model)
	return &Client{
		Model:   model,
		service: svc,
	}, nil
}

// Predict submits one person image and one product image, both base64
// encoded, and returns the first synthesized image as base64.
func (c *Client) Predict(ctx context.Context, personB64, productB64 string) (string, error) {
	req := &aiplatform.GoogleCloudAiplatformV1PredictRequest{
		Instances: []interface{}{instance{
			PersonImage:   imageRef{Image: imageBytes{BytesBase64Encoded: personB64}},
			ProductImages: []imageRef{{Image: imageBytes{BytesBase64Encoded: productB64}}},
		}},
		Parameters: parameters{
			SampleCount:      sampleCount,
			BaseSteps:        baseSteps,
			PersonGeneration: personGeneration,
		},
	}

	start := time.Now()
	resp, err := c.service.Projects.Locations.Publishers.Models.Predict(c.Model, req).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return "", &APIError{StatusCode: gerr.Code, Body: truncate(gerr.Body, maxErrorBody)}
		}
		return "", fmt.Errorf("failed to call Vertex AI: %w", err)
	}

	image := firstImage(resp.Predictions)
	if image == "" {
		return "", ErrNoPrediction
	}

	slog.Debug("Vertex AI prediction received", "duration", time.Since(start), "predictions", len(resp.Predictions))
	return image, nil
}

// firstImage reads bytesBase64Encoded from the first prediction
func firstImage(predictions []interface{}) string {
	if len(predictions) == 0 {
		return ""
	}
	p, ok := predictions[0].(map[string]interface{})
	if !ok {
		return ""
	}
	b64, _ := p["bytesBase64Encoded"].(string)
	return b64
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
