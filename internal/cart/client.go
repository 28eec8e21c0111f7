package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/banana-tryon/tryon/internal/failure"
)

// Client talks to the storefront AJAX cart API
type Client struct {
	// RoutesRoot is the locale-aware storefront root, e.g. https://shop.example/fr/
	RoutesRoot string
	HTTPClient *http.Client
}

// Item is one line of an add request
type Item struct {
	ID       int64 `json:"id"`
	Quantity int   `json:"quantity"`
}

// LineItem is a cart line returned by the storefront
type LineItem struct {
	ID        int64  `json:"id"`
	VariantID int64  `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	Title     string `json:"title"`
}

type addRequest struct {
	Items []Item `json:"items"`
}

// AddResponse is the body of a successful add
type AddResponse struct {
	Items []LineItem `json:"items"`
}

type errorResponse struct {
	Status      any    `json:"status"`
	Message     string `json:"message"`
	Description string `json:"description"`
}

// NewClient creates a cart client for the storefront rooted at routesRoot
func NewClient(routesRoot string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		RoutesRoot: routesRoot,
		HTTPClient: httpClient,
	}
}

func (c *Client) url(path string) string {
	root := c.RoutesRoot
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return root + path
}

// Add adds quantity units of a variant. Failures are *failure.Error values
// whose message is safe to show the shopper.
func (c *Client) Add(ctx context.Context, variantID int64, quantity int) (*AddResponse, error) {
	body, err := json.Marshal(addRequest{Items: []Item{{ID: variantID, Quantity: quantity}}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cart request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("cart/add.js"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create cart request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, failure.New(failure.NetworkError, fmt.Errorf("failed to call cart API: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		cause := fmt.Errorf("cart API returned status %d: %s", resp.StatusCode, string(raw))

		if resp.StatusCode == http.StatusUnprocessableEntity {
			var e errorResponse
			_ = json.Unmarshal(raw, &e)
			msg := e.Description
			if msg == "" {
				msg = e.Message
			}
			if msg == "" {
				msg = "Unable to add item to cart"
			}
			return nil, failure.WithMessage(failure.Unknown, msg, cause)
		}
		return nil, failure.WithMessage(failure.Unknown, "Failed to add to cart", cause)
	}

	var added AddResponse
	if err := json.NewDecoder(resp.Body).Decode(&added); err != nil {
		return nil, failure.WithMessage(failure.Unknown, "Failed to add to cart", fmt.Errorf("failed to decode cart response: %w", err))
	}
	return &added, nil
}

// ItemCount returns the number of items in the cart
func (c *Client) ItemCount(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("cart.js"), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create cart request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch cart: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("cart API returned status %d", resp.StatusCode)
	}

	var summary struct {
		ItemCount int `json:"item_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return 0, fmt.Errorf("failed to decode cart: %w", err)
	}
	return summary.ItemCount, nil
}
