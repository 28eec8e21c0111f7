package proxy

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banana-tryon/tryon/internal/images"
	"github.com/banana-tryon/tryon/internal/metrics"
	"github.com/banana-tryon/tryon/internal/models"
	"github.com/banana-tryon/tryon/internal/vertex"
)

const (
	// MaxPersonImageSize matches the client-side upload limit
	MaxPersonImageSize = 10 * 1024 * 1024

	maxRequestSize = MaxPersonImageSize + 1024*1024
	resultPrefix   = "data:image/png;base64,"
)

var (
	errMissingImages   = errors.New("Missing required images")
	errPersonTooLarge  = errors.New("File too large (max 10MB)")
	errTryOnFailed     = errors.New("Failed to process try-on")
	errInvalidFormData = errors.New("Invalid form data")
)

// HandleTryOn accepts a multipart form with a person image file and a
// product image reference and answers with the synthesized image.
func (h *Handler) HandleTryOn(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	outcome := metrics.OutcomeSuccess
	defer func() {
		if h.metrics != nil {
			h.metrics.Observe(outcome, time.Since(start))
		}
	}()

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)
	if err := r.ParseMultipartForm(maxRequestSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			outcome = metrics.OutcomeBadRequest
			h.writeError(w, r, models.TryOnResponse{Error: errPersonTooLarge.Error()}, http.StatusRequestEntityTooLarge)
			return
		}
		outcome = metrics.OutcomeBadRequest
		slog.Warn("Unable to parse try-on form", "err", err)
		h.writeError(w, r, models.TryOnResponse{Error: errInvalidFormData.Error()}, http.StatusBadRequest)
		return
	}

	person, _, personErr := r.FormFile(models.FieldPersonImage)
	productRef := r.FormValue(models.FieldProductImage)
	if personErr != nil || productRef == "" {
		outcome = metrics.OutcomeMissingImages
		slog.Error("Missing images", "personImage", personErr == nil, "productImage", productRef != "")
		if person != nil {
			person.Close()
		}
		h.writeError(w, r, models.TryOnResponse{Error: errMissingImages.Error()}, http.StatusBadRequest)
		return
	}
	defer person.Close()

	productURL, err := images.NormalizeURL(productRef)
	if err != nil {
		outcome = metrics.OutcomeFetchFailed
		slog.Error("Failed to fetch product image", "ref", productRef, "err", err)
		h.writeError(w, r, models.TryOnResponse{Error: images.ErrFetchFailed.Error()}, http.StatusInternalServerError)
		return
	}

	var personB64, productB64 string
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		data, err := io.ReadAll(io.LimitReader(person, MaxPersonImageSize+1))
		if err != nil {
			return fmt.Errorf("failed to read person image: %w", err)
		}
		if len(data) > MaxPersonImageSize {
			return errPersonTooLarge
		}
		personB64 = base64.StdEncoding.EncodeToString(data)
		return nil
	})
	g.Go(func() error {
		data, err := h.fetcher.Fetch(ctx, productURL)
		if err != nil {
			return err
		}
		productB64 = base64.StdEncoding.EncodeToString(data)
		return nil
	})
	if err := g.Wait(); err != nil {
		status := http.StatusInternalServerError
		outcome = metrics.OutcomeFetchFailed
		if errors.Is(err, errPersonTooLarge) {
			outcome, status = metrics.OutcomeBadRequest, http.StatusRequestEntityTooLarge
		}
		slog.Error("Try-on error", "url", productURL, "err", err)
		h.writeError(w, r, models.TryOnResponse{Error: publicMessage(err)}, status)
		return
	}

	modelStart := time.Now()
	result, err := h.predictor.Predict(r.Context(), personB64, productB64)
	if h.metrics != nil {
		h.metrics.ObserveModel(time.Since(modelStart))
	}
	if err != nil {
		outcome = metrics.OutcomeModelFailed
		slog.Error("Try-on error", "err", err)
		resp := models.TryOnResponse{Error: publicMessage(err)}
		if isUsageLimit(err) {
			resp.Code = models.CodeUsageLimit
		}
		h.writeError(w, r, resp, http.StatusInternalServerError)
		return
	}

	slog.Info("Try-on completed", "product", productURL, "duration", time.Since(start))
	h.writeJSON(w, r, models.TryOnResponse{ResultImage: resultPrefix + result})
}

// publicMessage strips transport detail from errors whose message is fixed
func publicMessage(err error) string {
	switch {
	case errors.Is(err, images.ErrFetchFailed):
		return images.ErrFetchFailed.Error()
	case errors.Is(err, errPersonTooLarge):
		return errPersonTooLarge.Error()
	case err.Error() == "":
		return errTryOnFailed.Error()
	}
	return err.Error()
}

func isUsageLimit(err error) bool {
	var apiErr *vertex.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}
