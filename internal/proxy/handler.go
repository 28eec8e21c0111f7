package proxy

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/banana-tryon/tryon/internal/metrics"
	"github.com/banana-tryon/tryon/internal/models"
)

// Predictor synthesizes a try-on image from base64 encoded inputs
type Predictor interface {
	Predict(ctx context.Context, personB64, productB64 string) (string, error)
}

// ImageFetcher downloads a product image
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Handler serves try-on requests. It keeps no per-request state.
type Handler struct {
	predictor Predictor
	fetcher   ImageFetcher
	metrics   *metrics.Proxy
}

func New(predictor Predictor, fetcher ImageFetcher, m *metrics.Proxy) *Handler {
	return &Handler{
		predictor: predictor,
		fetcher:   fetcher,
		metrics:   m,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, data any) {
	render.JSON(w, r, data)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, resp models.TryOnResponse, status int) {
	slog.Debug("Writing error response", "status", status, "error", resp.Error, "code", resp.Code)
	render.Status(r, status)
	render.JSON(w, r, resp)
}
