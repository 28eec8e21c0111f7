package cart

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/banana-tryon/tryon/internal/failure"
)

// Listener is notified after an item was added to the cart
type Listener interface {
	ItemAdded(items []LineItem)
}

// ListenerFunc adapts a function to a Listener
type ListenerFunc func(items []LineItem)

func (f ListenerFunc) ItemAdded(items []LineItem) { f(items) }

// Indicator displays the cart item count
type Indicator interface {
	SetCount(n int)
}

// Service adds variants to the cart and keeps on-page indicators current
type Service struct {
	client *Client

	mu         sync.RWMutex
	listeners  []Listener
	indicators []Indicator
}

func NewService(client *Client) *Service {
	return &Service{client: client}
}

// Subscribe registers l for item-added notifications
func (s *Service) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// AddIndicator registers a cart count display
func (s *Service) AddIndicator(ind Indicator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indicators = append(s.indicators, ind)
}

// AddOne adds one unit of variantID. The cart count is refreshed only
// when an indicator is registered; a failed refresh is logged, not returned.
func (s *Service) AddOne(ctx context.Context, variantID string) error {
	id, err := strconv.ParseInt(variantID, 10, 64)
	if err != nil {
		return failure.WithMessage(failure.Unknown, "Unable to add item to cart", fmt.Errorf("invalid variant id %q: %w", variantID, err))
	}

	added, err := s.client.Add(ctx, id, 1)
	if err != nil {
		return err
	}

	s.mu.RLock()
	indicators := append([]Indicator(nil), s.indicators...)
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()

	if len(indicators) > 0 {
		count, err := s.client.ItemCount(ctx)
		if err != nil {
			slog.Warn("Unable to refresh cart count", "variant_id", id, "err", err)
		} else {
			for _, ind := range indicators {
				ind.SetCount(count)
			}
		}
	}

	for _, l := range listeners {
		l.ItemAdded(added.Items)
	}

	slog.Info("Variant added to cart", "variant_id", id, "lines", len(added.Items))
	return nil
}
