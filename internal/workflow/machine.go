package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/banana-tryon/tryon/internal/failure"
	"github.com/banana-tryon/tryon/internal/gateway"
	"github.com/banana-tryon/tryon/internal/media"
	"github.com/banana-tryon/tryon/internal/models"
)

// Deps are the collaborators a Machine drives. Surface, Gateway and URLs
// are required. With a nil Camera, RequestCamera enters Camera and then
// Error(CameraUnavailable). A nil Picker or Cart makes ChooseFile or
// AddToCart fail with ErrInvalidTransition.
type Deps struct {
	Surface    Surface
	Viewfinder media.Viewfinder
	Camera     media.Camera
	Picker     media.FilePicker
	Gateway    Gateway
	Cart       Cart
	URLs       URLs
	Logger     *slog.Logger
}

// op is one in-flight asynchronous operation. Its pointer is the token a
// completion checks before touching the session.
type op struct {
	cancel context.CancelFunc
}

type session struct {
	id        string
	state     State
	captured  *Captured
	result    *gateway.Result
	lastError *failure.Record
}

// Machine is the try-on workflow for a single product
type Machine struct {
	product models.Product
	deps    Deps
	log     *slog.Logger

	mu         sync.Mutex
	sess       *session
	stream     media.Stream
	acquiring  *op
	submitting *op
	carting    *op

	wg sync.WaitGroup
}

// New returns a closed Machine for product
func New(product models.Product, deps Deps) (*Machine, error) {
	if deps.Surface == nil {
		return nil, errors.New("workflow: surface is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("workflow: gateway is required")
	}
	if deps.URLs == nil {
		return nil, errors.New("workflow: display URL registry is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Machine{
		product: product,
		deps:    deps,
		log:     logger.With("product_id", product.ID),
	}, nil
}

// Product returns the product the machine is attached to
func (m *Machine) Product() models.Product {
	return m.product
}

// Snapshot returns the current session, or a Session in state Closed
func (m *Machine) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil {
		return Session{State: Closed, Product: m.product}
	}

	s := Session{
		ID:      m.sess.id,
		State:   m.sess.state,
		Product: m.product,
	}
	if m.sess.captured != nil {
		c := *m.sess.captured
		s.Captured = &c
	}
	if m.sess.result != nil {
		r := *m.sess.result
		s.Result = &r
	}
	if m.sess.lastError != nil {
		e := *m.sess.lastError
		s.LastError = &e
	}
	return s
}

// StreamActive reports whether a camera stream is held
func (m *Machine) StreamActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream != nil
}

// Wait blocks until every asynchronous operation started so far has
// returned, including ones whose results were discarded.
func (m *Machine) Wait() {
	m.wg.Wait()
}

// Open starts a new session in Options
func (m *Machine) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess != nil {
		return fmt.Errorf("open: %w: modal already open", ErrInvalidTransition)
	}

	m.sess = &session{id: uuid.NewString()}
	m.log.Debug("Session opened", "session_id", m.sess.id)
	m.setState(Options)
	return nil
}

// Close ends the session from any state, cancelling in-flight work and
// releasing every held resource.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

func (m *Machine) closeLocked() {
	if m.sess == nil {
		return
	}

	m.cancelOp(&m.acquiring)
	m.cancelOp(&m.submitting)
	m.cancelOp(&m.carting)
	m.releaseStream()
	m.discardCaptured()

	m.log.Debug("Session closed", "session_id", m.sess.id, "state", m.sess.state)
	m.sess = nil
	m.deps.Surface.Show(Closed)
}

// RequestCamera moves to Camera and asks for a video stream. A refusal or
// a missing device ends in Error.
func (m *Machine) RequestCamera(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.require("request camera", Options); err != nil {
		return err
	}
	if m.acquiring != nil {
		return fmt.Errorf("request camera: %w", ErrBusy)
	}

	m.setState(Camera)
	o, opCtx := m.startOp(ctx, &m.acquiring)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		stream, err := media.OpenCamera(opCtx, m.deps.Camera, media.DefaultConstraints)

		m.mu.Lock()
		defer m.mu.Unlock()

		if m.acquiring != o {
			// The session moved on while the prompt was open
			media.Release(stream, nil)
			m.log.Debug("Discarding stale camera stream")
			return
		}
		m.cancelOp(&m.acquiring)

		if err != nil {
			m.log.Warn("Camera acquisition failed", "err", err)
			m.enterError(failure.Classify(err))
			return
		}

		m.stream = stream
		if m.deps.Viewfinder != nil {
			m.deps.Viewfinder.Attach(stream)
		}
		m.log.Debug("Camera stream attached")
	}()

	return nil
}

// Capture snapshots the live stream and moves to Preview. The stream is
// released in every outcome.
func (m *Machine) Capture() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.require("capture", Camera); err != nil {
		return err
	}
	if m.stream == nil {
		if m.acquiring != nil {
			return fmt.Errorf("capture: %w: camera is still starting", ErrBusy)
		}
		return fmt.Errorf("capture: %w: no camera stream", ErrInvalidTransition)
	}

	stream := m.stream
	m.stream = nil
	img, err := media.Capture(stream, m.deps.Viewfinder)
	if err != nil {
		m.log.Warn("Capture failed", "err", err)
		m.enterError(failure.Classify(err))
		return nil
	}

	m.setCaptured(img)
	return nil
}

// CancelCamera leaves Camera for Options, abandoning a pending prompt and
// stopping any live stream.
func (m *Machine) CancelCamera() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.require("cancel camera", Camera); err != nil {
		return err
	}

	m.cancelOp(&m.acquiring)
	m.releaseStream()
	m.setState(Options)
	return nil
}

// ChooseFile opens the file picker. A dismissed picker leaves the session
// in Options; an invalid file ends in Error.
func (m *Machine) ChooseFile(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.require("choose file", Options); err != nil {
		return err
	}
	if m.acquiring != nil {
		return fmt.Errorf("choose file: %w", ErrBusy)
	}
	if m.deps.Picker == nil {
		return fmt.Errorf("choose file: %w: no file picker", ErrInvalidTransition)
	}

	o, opCtx := m.startOp(ctx, &m.acquiring)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		f, err := m.deps.Picker.Pick(opCtx)

		m.mu.Lock()
		defer m.mu.Unlock()

		if m.acquiring != o {
			return
		}
		m.cancelOp(&m.acquiring)

		if errors.Is(err, media.ErrNoFile) {
			m.log.Debug("File picker dismissed")
			return
		}
		if err != nil {
			m.log.Warn("File picker failed", "err", err)
			m.enterError(failure.Classify(err))
			return
		}
		m.acceptLocked(f)
	}()

	return nil
}

// AcceptFile validates a file delivered directly by the host page
func (m *Machine) AcceptFile(f media.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.require("accept file", Options); err != nil {
		return err
	}
	if m.acquiring != nil {
		return fmt.Errorf("accept file: %w", ErrBusy)
	}

	m.acceptLocked(f)
	return nil
}

func (m *Machine) acceptLocked(f media.File) {
	img, err := media.ValidateFile(f)
	if err != nil {
		m.log.Info("File rejected", "name", f.Name, "type", f.Type, "size", f.Size, "err", err)
		m.enterError(failure.Classify(err))
		return
	}
	m.setCaptured(img)
}

// Retake discards the captured image and returns to Options
func (m *Machine) Retake() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.require("retake", Preview); err != nil {
		return err
	}

	m.discardCaptured()
	m.setState(Options)
	return nil
}

// Submit sends the captured image to the gateway and moves to Processing
func (m *Machine) Submit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.require("submit", Preview); err != nil {
		return err
	}
	if m.submitting != nil {
		return fmt.Errorf("submit: %w", ErrBusy)
	}
	if m.sess.captured == nil {
		return fmt.Errorf("submit: %w: no captured image", ErrInvalidTransition)
	}

	person := m.sess.captured.Image
	m.setState(Processing)
	o, opCtx := m.startOp(ctx, &m.submitting)
	sessionID := m.sess.id

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		res, err := m.deps.Gateway.Submit(opCtx, person, m.product)

		m.mu.Lock()
		defer m.mu.Unlock()

		if m.submitting != o {
			m.log.Debug("Ignoring completion of abandoned submission", "session_id", sessionID)
			return
		}
		m.cancelOp(&m.submitting)

		if err != nil {
			m.log.Warn("Try-on submission failed", "session_id", sessionID, "err", err)
			m.enterError(failure.Classify(err))
			return
		}

		m.discardCaptured()
		m.sess.result = res
		m.setState(Result)
		m.deps.Surface.ShowResult(res.DataURL)
	}()

	return nil
}

// CancelProcessing abandons the in-flight submission and returns to
// Options. The request may still complete; its outcome is ignored.
func (m *Machine) CancelProcessing() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.require("cancel processing", Processing); err != nil {
		return err
	}

	m.cancelOp(&m.submitting)
	m.discardCaptured()
	m.setState(Options)
	return nil
}

// Retry leaves Error for Options when the error allows it
func (m *Machine) Retry() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.require("retry", Error); err != nil {
		return err
	}
	if m.sess.lastError != nil && !m.sess.lastError.Retryable {
		return fmt.Errorf("retry: %w: %s", ErrNotRetryable, m.sess.lastError.Kind)
	}

	m.sess.lastError = nil
	m.setState(Options)
	return nil
}

// AddToCart adds the product variant to the cart and closes the modal on
// success. It is offered from Result and, as a shortcut, from Processing.
func (m *Machine) AddToCart(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.require("add to cart", Result, Processing); err != nil {
		return err
	}
	if m.carting != nil {
		return fmt.Errorf("add to cart: %w", ErrBusy)
	}
	if m.deps.Cart == nil {
		return fmt.Errorf("add to cart: %w: no cart", ErrInvalidTransition)
	}

	m.deps.Surface.SetCartBusy(true)
	o, opCtx := m.startOp(ctx, &m.carting)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := m.deps.Cart.AddOne(opCtx, m.product.VariantID)

		m.mu.Lock()
		defer m.mu.Unlock()

		if m.carting != o {
			return
		}
		m.cancelOp(&m.carting)

		if err != nil {
			m.log.Warn("Add to cart failed", "variant_id", m.product.VariantID, "err", err)
			m.deps.Surface.SetCartBusy(false)
			m.enterError(failure.Classify(err))
			return
		}

		m.log.Info("Added to cart", "variant_id", m.product.VariantID)
		m.closeLocked()
	}()

	return nil
}

func (m *Machine) require(action string, allowed ...State) error {
	if m.sess == nil {
		return fmt.Errorf("%s: %w: modal is closed", action, ErrInvalidTransition)
	}
	for _, s := range allowed {
		if m.sess.state == s {
			return nil
		}
	}
	return fmt.Errorf("%s: %w: state is %s", action, ErrInvalidTransition, m.sess.state)
}

func (m *Machine) setState(s State) {
	m.log.Debug("Workflow transition", "session_id", m.sess.id, "from", m.sess.state, "to", s)
	m.sess.state = s
	m.deps.Surface.Show(s)
}

func (m *Machine) startOp(ctx context.Context, slot **op) (*op, context.Context) {
	opCtx, cancel := context.WithCancel(ctx)
	o := &op{cancel: cancel}
	*slot = o
	return o, opCtx
}

// cancelOp cancels the operation in slot and forgets it, which also
// invalidates its token.
func (m *Machine) cancelOp(slot **op) {
	if *slot != nil {
		(*slot).cancel()
		*slot = nil
	}
}

func (m *Machine) releaseStream() {
	if m.stream != nil {
		media.Release(m.stream, m.deps.Viewfinder)
		m.stream = nil
	}
}

func (m *Machine) setCaptured(img media.Image) {
	m.discardCaptured()
	m.sess.captured = &Captured{
		Image:      img,
		DisplayURL: m.deps.URLs.Create(img.Data),
	}
	m.setState(Preview)
	m.deps.Surface.ShowPreview(m.sess.captured.DisplayURL)
}

func (m *Machine) discardCaptured() {
	if m.sess == nil || m.sess.captured == nil {
		return
	}
	m.deps.URLs.Revoke(m.sess.captured.DisplayURL)
	m.sess.captured = nil
}

// enterError stores rec and moves to Error. Every error path drops the
// captured image, any result and any live stream.
func (m *Machine) enterError(rec failure.Record) {
	m.cancelOp(&m.acquiring)
	m.cancelOp(&m.submitting)
	m.releaseStream()
	m.discardCaptured()
	m.sess.result = nil
	m.sess.lastError = &rec
	m.setState(Error)
	m.deps.Surface.ShowError(rec)
}
