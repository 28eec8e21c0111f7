package workflow

import (
	"context"
	"image"
	"image/color"
	"sync"

	"github.com/banana-tryon/tryon/internal/failure"
	"github.com/banana-tryon/tryon/internal/gateway"
	"github.com/banana-tryon/tryon/internal/media"
	"github.com/banana-tryon/tryon/internal/models"
)

type recordingSurface struct {
	mu       sync.Mutex
	states   []State
	previews []string
	results  []string
	errors   []failure.Record
	cartBusy []bool
}

func (s *recordingSurface) Show(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
}

func (s *recordingSurface) ShowPreview(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previews = append(s.previews, url)
}

func (s *recordingSurface) ShowResult(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, url)
}

func (s *recordingSurface) ShowError(rec failure.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, rec)
}

func (s *recordingSurface) SetCartBusy(busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cartBusy = append(s.cartBusy, busy)
}

func (s *recordingSurface) lastError() failure.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errors) == 0 {
		return failure.Record{}
	}
	return s.errors[len(s.errors)-1]
}

// gatedGateway blocks each submission until release is called and ignores
// cancellation, like a request that keeps running after the shopper leaves.
type gatedGateway struct {
	gate  chan struct{}
	res   *gateway.Result
	err   error
	mu    sync.Mutex
	calls []media.Image
}

func newGatedGateway(res *gateway.Result, err error) *gatedGateway {
	return &gatedGateway{gate: make(chan struct{}), res: res, err: err}
}

func (g *gatedGateway) Submit(_ context.Context, person media.Image, _ models.Product) (*gateway.Result, error) {
	g.mu.Lock()
	g.calls = append(g.calls, person)
	g.mu.Unlock()

	<-g.gate
	return g.res, g.err
}

func (g *gatedGateway) release() { close(g.gate) }

type instantGateway struct {
	res *gateway.Result
	err error
}

func (g instantGateway) Submit(context.Context, media.Image, models.Product) (*gateway.Result, error) {
	return g.res, g.err
}

type gatedCamera struct {
	inner media.Camera
	gate  chan struct{}
}

func (c *gatedCamera) Open(ctx context.Context, cons media.Constraints) (media.Stream, error) {
	<-c.gate
	return c.inner.Open(ctx, cons)
}

type errCamera struct{ err error }

func (c errCamera) Open(context.Context, media.Constraints) (media.Stream, error) {
	return nil, c.err
}

type gatedPicker struct {
	gate chan struct{}
	file media.File
	err  error
}

func (p *gatedPicker) Pick(ctx context.Context) (media.File, error) {
	select {
	case <-p.gate:
		return p.file, p.err
	case <-ctx.Done():
		return media.File{}, ctx.Err()
	}
}

type fakeCart struct {
	mu       sync.Mutex
	err      error
	variants []string
}

func (c *fakeCart) AddOne(_ context.Context, variantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variants = append(c.variants, variantID)
	return c.err
}

type fakeViewfinder struct {
	mu       sync.Mutex
	attached media.Stream
}

func (v *fakeViewfinder) Attach(s media.Stream) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.attached = s
}

func (v *fakeViewfinder) Detach() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.attached = nil
}

func (v *fakeViewfinder) isAttached() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.attached != nil
}

func stillFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 255, G: uint8(x * 60), B: uint8(y * 60), A: 255})
		}
	}
	return img
}

var okResult = &gateway.Result{
	DataURL:  "data:image/png;base64,Zm9v",
	MIMEType: "image/png",
	Data:     []byte("foo"),
}
