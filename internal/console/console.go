package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/banana-tryon/tryon/internal/cart"
	"github.com/banana-tryon/tryon/internal/failure"
	"github.com/banana-tryon/tryon/internal/media"
	"github.com/banana-tryon/tryon/internal/workflow"
)

var (
	stateColor = color.New(color.FgCyan)
	okColor    = color.New(color.FgGreen, color.Bold)
	errColor   = color.New(color.FgRed, color.Bold)
	hintColor  = color.New(color.FgYellow)
	dimColor   = color.New(color.Faint)
)

// Surface renders the try-on workflow as terminal lines
type Surface struct {
	mu sync.Mutex
	w  io.Writer
}

func New(w io.Writer) *Surface {
	return &Surface{w: w}
}

func (s *Surface) Show(state workflow.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stateColor.Fprintf(s.w, "» %s\n", state)
}

func (s *Surface) ShowPreview(displayURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dimColor.Fprintf(s.w, "  preview %s\n", displayURL)
}

func (s *Surface) ShowResult(imageURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mime, _, _ := strings.Cut(strings.TrimPrefix(imageURL, "data:"), ";")
	okColor.Fprintf(s.w, "✓ Try-on ready")
	fmt.Fprintf(s.w, " (%s, %d bytes encoded)\n", mime, len(imageURL))
}

func (s *Surface) ShowError(rec failure.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	errColor.Fprintf(s.w, "✗ %s\n", rec.Title)
	fmt.Fprintf(s.w, "  %s\n", rec.Message)
	if rec.Retryable {
		hintColor.Fprintln(s.w, "  Try again is available")
	}
}

func (s *Surface) SetCartBusy(busy bool) {
	if !busy {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dimColor.Fprintln(s.w, "  adding to cart...")
}

// SetCount shows the cart item count
func (s *Surface) SetCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	okColor.Fprintf(s.w, "✓ Added to cart")
	fmt.Fprintf(s.w, " (%d items)\n", n)
}

// ItemAdded lists the cart lines the store reported for an add
func (s *Surface) ItemAdded(items []cart.LineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		name := it.Title
		if name == "" {
			name = fmt.Sprintf("variant %d", it.VariantID)
		}
		fmt.Fprintf(s.w, "  + %s x%d\n", name, it.Quantity)
	}
}

// Viewfinder reports camera preview attachment
type Viewfinder struct {
	s *Surface
}

// Viewfinder returns a viewfinder that writes to the same terminal
func (s *Surface) Viewfinder() media.Viewfinder {
	return &Viewfinder{s: s}
}

func (v *Viewfinder) Attach(media.Stream) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	dimColor.Fprintln(v.s.w, "  camera live")
}

func (v *Viewfinder) Detach() {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	dimColor.Fprintln(v.s.w, "  camera off")
}
