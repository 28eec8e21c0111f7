package workflow

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/banana-tryon/tryon/internal/failure"
	"github.com/banana-tryon/tryon/internal/media"
	"github.com/banana-tryon/tryon/internal/models"
	"github.com/banana-tryon/tryon/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const mib = 1024 * 1024

var product = models.Product{
	ID:        "gid://shopify/Product/1",
	VariantID: "4242",
	Title:     "Linen Shirt",
	ImageURL:  "//cdn.shop.example/shirt.png",
}

type harness struct {
	m       *Machine
	surface *recordingSurface
	urls    *storage.BlobStore
	vf      *fakeViewfinder
}

func newHarness(t *testing.T, deps Deps) *harness {
	t.Helper()

	h := &harness{
		surface: &recordingSurface{},
		urls:    storage.New(),
		vf:      &fakeViewfinder{},
	}
	deps.Surface = h.surface
	deps.URLs = h.urls
	deps.Viewfinder = h.vf
	if deps.Gateway == nil {
		deps.Gateway = instantGateway{res: okResult}
	}

	m, err := New(product, deps)
	require.NoError(t, err)
	h.m = m
	require.NoError(t, m.Open())
	t.Cleanup(func() {
		m.Close()
		m.Wait()
	})
	return h
}

func jpegFile(size int) media.File {
	return media.File{Name: "me.jpg", Type: "image/jpeg", Size: int64(size), Data: make([]byte, size)}
}

// sizedFile declares size without allocating it
func sizedFile(size int) media.File {
	return media.File{Name: "me.jpg", Type: "image/jpeg", Size: int64(size), Data: []byte{0xff, 0xd8, 0xff}}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(product, Deps{})
	assert.Error(t, err)

	_, err = New(product, Deps{Surface: &recordingSurface{}, URLs: storage.New()})
	assert.Error(t, err)
}

func TestOpenStartsInOptions(t *testing.T) {
	h := newHarness(t, Deps{})

	s := h.m.Snapshot()
	assert.Equal(t, Options, s.State)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, product, s.Product)

	assert.ErrorIs(t, h.m.Open(), ErrInvalidTransition)
}

func TestFileToResult(t *testing.T) {
	h := newHarness(t, Deps{})

	require.NoError(t, h.m.AcceptFile(jpegFile(1024)))
	s := h.m.Snapshot()
	require.Equal(t, Preview, s.State)
	require.NotNil(t, s.Captured)
	assert.Equal(t, 1, h.urls.Len())

	require.NoError(t, h.m.Submit(context.Background()))
	h.m.Wait()

	s = h.m.Snapshot()
	assert.Equal(t, Result, s.State)
	require.NotNil(t, s.Result)
	assert.Equal(t, "data:image/png;base64,Zm9v", s.Result.DataURL)
	assert.Nil(t, s.Captured)
	assert.Equal(t, 0, h.urls.Len())
	assert.Equal(t, []string{"data:image/png;base64,Zm9v"}, h.surface.results)
	assert.Equal(t, []State{Options, Preview, Processing, Result}, h.surface.states)
}

func TestCameraCapture(t *testing.T) {
	cam := &media.StillCamera{Frame: stillFrame()}
	h := newHarness(t, Deps{Camera: cam})

	require.NoError(t, h.m.RequestCamera(context.Background()))
	h.m.Wait()

	assert.Equal(t, Camera, h.m.Snapshot().State)
	assert.True(t, h.m.StreamActive())
	assert.True(t, h.vf.isAttached())
	assert.Equal(t, 1, cam.Live())

	require.NoError(t, h.m.Capture())

	s := h.m.Snapshot()
	assert.Equal(t, Preview, s.State)
	require.NotNil(t, s.Captured)
	assert.Equal(t, "image/jpeg", s.Captured.MIMEType)
	assert.False(t, h.m.StreamActive())
	assert.False(t, h.vf.isAttached())
	assert.Equal(t, 0, cam.Live())
}

func TestCameraDenied(t *testing.T) {
	h := newHarness(t, Deps{Camera: errCamera{err: media.ErrPermissionDenied}})

	require.NoError(t, h.m.RequestCamera(context.Background()))
	h.m.Wait()

	s := h.m.Snapshot()
	require.Equal(t, Error, s.State)
	require.NotNil(t, s.LastError)
	assert.Equal(t, failure.CameraDenied, s.LastError.Kind)
	assert.False(t, s.LastError.Retryable)
	assert.Equal(t, "Camera Access Denied", h.surface.lastError().Title)

	assert.ErrorIs(t, h.m.Retry(), ErrNotRetryable)
	assert.Equal(t, Error, h.m.Snapshot().State)

	h.m.Close()
	assert.Equal(t, Closed, h.m.Snapshot().State)
}

func TestCameraUnavailable(t *testing.T) {
	h := newHarness(t, Deps{})

	require.NoError(t, h.m.RequestCamera(context.Background()))
	h.m.Wait()

	s := h.m.Snapshot()
	assert.Equal(t, Error, s.State)
	require.NotNil(t, s.LastError)
	assert.Equal(t, failure.CameraUnavailable, s.LastError.Kind)
}

func TestCancelCameraWhilePromptPending(t *testing.T) {
	cam := &media.StillCamera{Frame: stillFrame()}
	gated := &gatedCamera{inner: cam, gate: make(chan struct{})}
	h := newHarness(t, Deps{Camera: gated})

	require.NoError(t, h.m.RequestCamera(context.Background()))
	assert.ErrorIs(t, h.m.Capture(), ErrBusy)

	require.NoError(t, h.m.CancelCamera())
	assert.Equal(t, Options, h.m.Snapshot().State)

	// permission granted after the shopper already left the camera view
	close(gated.gate)
	h.m.Wait()

	assert.Equal(t, Options, h.m.Snapshot().State)
	assert.False(t, h.m.StreamActive())
	assert.Equal(t, 0, cam.Live())
}

func TestCloseReleasesStream(t *testing.T) {
	cam := &media.StillCamera{Frame: stillFrame()}
	h := newHarness(t, Deps{Camera: cam})

	require.NoError(t, h.m.RequestCamera(context.Background()))
	h.m.Wait()
	require.Equal(t, 1, cam.Live())

	h.m.Close()
	assert.Equal(t, 0, cam.Live())
	assert.False(t, h.vf.isAttached())
}

func TestRetakeDiscardsPreviousImage(t *testing.T) {
	h := newHarness(t, Deps{})

	require.NoError(t, h.m.AcceptFile(jpegFile(9*mib)))
	first := h.m.Snapshot().Captured
	require.NotNil(t, first)

	require.NoError(t, h.m.Retake())
	s := h.m.Snapshot()
	assert.Equal(t, Options, s.State)
	assert.Nil(t, s.Captured)
	_, live := h.urls.Get(first.DisplayURL)
	assert.False(t, live)

	// the size check sees only the new file
	require.NoError(t, h.m.AcceptFile(media.File{Name: "big.png", Type: "image/png", Size: 11 * mib}))
	s = h.m.Snapshot()
	assert.Equal(t, Error, s.State)
	assert.Equal(t, failure.FileTooLarge, s.LastError.Kind)
	assert.Nil(t, s.Captured)

	require.NoError(t, h.m.Retry())
	require.NoError(t, h.m.AcceptFile(jpegFile(10)))
	s = h.m.Snapshot()
	assert.Equal(t, Preview, s.State)
	assert.Len(t, s.Captured.Data, 10)
	assert.Equal(t, 1, h.urls.Len())
}

func TestInvalidFileType(t *testing.T) {
	h := newHarness(t, Deps{})

	require.NoError(t, h.m.AcceptFile(media.File{Name: "notes.txt", Type: "text/plain", Data: []byte("hi")}))
	s := h.m.Snapshot()
	assert.Equal(t, Error, s.State)
	assert.Equal(t, failure.InvalidFileType, s.LastError.Kind)
	assert.True(t, s.LastError.Retryable)
}

func TestChooseFile(t *testing.T) {
	t.Run("picked file moves to preview", func(t *testing.T) {
		picker := &gatedPicker{gate: make(chan struct{}), file: jpegFile(64)}
		h := newHarness(t, Deps{Picker: picker, Camera: &media.StillCamera{Frame: stillFrame()}})

		require.NoError(t, h.m.ChooseFile(context.Background()))
		assert.ErrorIs(t, h.m.ChooseFile(context.Background()), ErrBusy)
		assert.ErrorIs(t, h.m.RequestCamera(context.Background()), ErrBusy)
		assert.ErrorIs(t, h.m.AcceptFile(jpegFile(1)), ErrBusy)

		close(picker.gate)
		h.m.Wait()
		assert.Equal(t, Preview, h.m.Snapshot().State)
	})

	t.Run("dismissed picker stays in options", func(t *testing.T) {
		picker := &gatedPicker{gate: make(chan struct{}), err: media.ErrNoFile}
		h := newHarness(t, Deps{Picker: picker})

		require.NoError(t, h.m.ChooseFile(context.Background()))
		close(picker.gate)
		h.m.Wait()

		s := h.m.Snapshot()
		assert.Equal(t, Options, s.State)
		assert.Nil(t, s.LastError)
	})

	t.Run("close abandons the picker", func(t *testing.T) {
		picker := &gatedPicker{gate: make(chan struct{}), file: jpegFile(64)}
		h := newHarness(t, Deps{Picker: picker})

		require.NoError(t, h.m.ChooseFile(context.Background()))
		h.m.Close()
		h.m.Wait()
		assert.Equal(t, Closed, h.m.Snapshot().State)
	})

	t.Run("no picker", func(t *testing.T) {
		h := newHarness(t, Deps{})
		assert.ErrorIs(t, h.m.ChooseFile(context.Background()), ErrInvalidTransition)
	})
}

func TestSubmitFailure(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      failure.Kind
		retryable bool
	}{
		{"usage limit", failure.New(failure.UsageLimit, errors.New("HTTP 429")), failure.UsageLimit, false},
		{"processing", failure.New(failure.ProcessingError, errors.New("HTTP 503")), failure.ProcessingError, true},
		{"network", failure.New(failure.NetworkError, errors.New("HTTP 401")), failure.NetworkError, true},
		{"unclassified", errors.New("boom"), failure.Unknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Deps{Gateway: instantGateway{err: tt.err}})

			require.NoError(t, h.m.AcceptFile(jpegFile(16)))
			require.NoError(t, h.m.Submit(context.Background()))
			h.m.Wait()

			s := h.m.Snapshot()
			require.Equal(t, Error, s.State)
			assert.Equal(t, tt.kind, s.LastError.Kind)
			assert.Equal(t, tt.retryable, s.LastError.Retryable)
			assert.NotEmpty(t, s.LastError.Title)
			assert.NotEmpty(t, s.LastError.Message)
			assert.Nil(t, s.Captured)
			assert.Nil(t, s.Result)
			assert.Equal(t, 0, h.urls.Len())

			if tt.retryable {
				require.NoError(t, h.m.Retry())
				assert.Equal(t, Options, h.m.Snapshot().State)
			} else {
				assert.ErrorIs(t, h.m.Retry(), ErrNotRetryable)
			}
		})
	}
}

func TestCancelProcessingIgnoresLateSuccess(t *testing.T) {
	gw := newGatedGateway(okResult, nil)
	h := newHarness(t, Deps{Gateway: gw})

	require.NoError(t, h.m.AcceptFile(jpegFile(32)))
	require.NoError(t, h.m.Submit(context.Background()))
	assert.ErrorIs(t, h.m.Submit(context.Background()), ErrInvalidTransition)

	require.NoError(t, h.m.CancelProcessing())
	s := h.m.Snapshot()
	assert.Equal(t, Options, s.State)
	assert.Nil(t, s.Captured)

	require.NoError(t, h.m.AcceptFile(jpegFile(8)))

	gw.release()
	h.m.Wait()

	s = h.m.Snapshot()
	assert.Equal(t, Preview, s.State)
	assert.Nil(t, s.Result)
	assert.Len(t, s.Captured.Data, 8)
	assert.Empty(t, h.surface.results)
}

func TestLateSuccessDoesNotReachNewSession(t *testing.T) {
	gw := newGatedGateway(okResult, nil)
	h := newHarness(t, Deps{Gateway: gw})

	require.NoError(t, h.m.AcceptFile(jpegFile(32)))
	require.NoError(t, h.m.Submit(context.Background()))
	first := h.m.Snapshot().ID

	h.m.Close()
	require.NoError(t, h.m.Open())
	second := h.m.Snapshot().ID
	assert.NotEqual(t, first, second)

	gw.release()
	h.m.Wait()

	s := h.m.Snapshot()
	assert.Equal(t, Options, s.State)
	assert.Nil(t, s.Result)
}

func TestAddToCart(t *testing.T) {
	t.Run("success closes the modal", func(t *testing.T) {
		cart := &fakeCart{}
		h := newHarness(t, Deps{Cart: cart})

		assert.ErrorIs(t, h.m.AddToCart(context.Background()), ErrInvalidTransition)

		require.NoError(t, h.m.AcceptFile(jpegFile(16)))
		require.NoError(t, h.m.Submit(context.Background()))
		h.m.Wait()
		require.Equal(t, Result, h.m.Snapshot().State)

		require.NoError(t, h.m.AddToCart(context.Background()))
		h.m.Wait()

		assert.Equal(t, Closed, h.m.Snapshot().State)
		assert.Equal(t, []string{"4242"}, cart.variants)
		assert.Equal(t, []bool{true}, h.surface.cartBusy)
	})

	t.Run("failure surfaces the cart message", func(t *testing.T) {
		cart := &fakeCart{err: failure.WithMessage(failure.Unknown, "Only 2 left in stock", nil)}
		h := newHarness(t, Deps{Cart: cart})

		require.NoError(t, h.m.AcceptFile(jpegFile(16)))
		require.NoError(t, h.m.Submit(context.Background()))
		h.m.Wait()

		require.NoError(t, h.m.AddToCart(context.Background()))
		h.m.Wait()

		s := h.m.Snapshot()
		assert.Equal(t, Error, s.State)
		assert.Equal(t, "Only 2 left in stock", s.LastError.Message)
		assert.Nil(t, s.Result)
		assert.Equal(t, []bool{true, false}, h.surface.cartBusy)

		// closing still works after a failed cart call
		h.m.Close()
		assert.Equal(t, Closed, h.m.Snapshot().State)
	})

	t.Run("from processing abandons the submission", func(t *testing.T) {
		gw := newGatedGateway(okResult, nil)
		cart := &fakeCart{}
		h := newHarness(t, Deps{Gateway: gw, Cart: cart})

		require.NoError(t, h.m.AcceptFile(jpegFile(16)))
		require.NoError(t, h.m.Submit(context.Background()))
		require.NoError(t, h.m.AddToCart(context.Background()))
		assert.ErrorIs(t, h.m.AddToCart(context.Background()), ErrBusy)

		// cart completes first, then the submission resolves late
		require.Eventually(t, func() bool {
			return h.m.Snapshot().State == Closed
		}, time.Second, time.Millisecond)
		gw.release()
		h.m.Wait()

		assert.Equal(t, Closed, h.m.Snapshot().State)
		assert.Empty(t, h.surface.results)
	})
	t.Run("no cart", func(t *testing.T) {
		h := newHarness(t, Deps{})

		require.NoError(t, h.m.AcceptFile(jpegFile(16)))
		require.NoError(t, h.m.Submit(context.Background()))
		h.m.Wait()
		require.Equal(t, Result, h.m.Snapshot().State)

		assert.ErrorIs(t, h.m.AddToCart(context.Background()), ErrInvalidTransition)
		assert.Equal(t, Result, h.m.Snapshot().State)
	})
}

func TestActionsRequireOpenSession(t *testing.T) {
	m, err := New(product, Deps{Surface: &recordingSurface{}, Gateway: instantGateway{}, URLs: storage.New()})
	require.NoError(t, err)

	ctx := context.Background()
	assert.ErrorIs(t, m.RequestCamera(ctx), ErrInvalidTransition)
	assert.ErrorIs(t, m.Capture(), ErrInvalidTransition)
	assert.ErrorIs(t, m.AcceptFile(jpegFile(1)), ErrInvalidTransition)
	assert.ErrorIs(t, m.Submit(ctx), ErrInvalidTransition)
	assert.ErrorIs(t, m.Retry(), ErrInvalidTransition)
	assert.ErrorIs(t, m.Retake(), ErrInvalidTransition)
	assert.ErrorIs(t, m.CancelProcessing(), ErrInvalidTransition)

	// closing a closed machine is a no-op
	m.Close()
	assert.Equal(t, Closed, m.Snapshot().State)
}

// TestRandomWalkKeepsSessionConsistent drives the machine through random action
// sequences and checks after each settled step that a stream is held only in
// Camera, that a result exists only in Result, and that a captured image and
// a result are never held together.
func TestRandomWalkKeepsSessionConsistent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 50; run++ {
		cam := &media.StillCamera{Frame: stillFrame()}
		var gw Gateway = instantGateway{res: okResult}
		if run%3 == 0 {
			gw = instantGateway{err: failure.New(failure.ProcessingError, errors.New("HTTP 500"))}
		}
		h := newHarness(t, Deps{Camera: cam, Gateway: gw, Cart: &fakeCart{}})
		ctx := context.Background()

		actions := []func(){
			func() { _ = h.m.Open() },
			func() { h.m.Close() },
			func() { _ = h.m.RequestCamera(ctx) },
			func() { _ = h.m.Capture() },
			func() { _ = h.m.CancelCamera() },
			func() { _ = h.m.AcceptFile(sizedFile(rng.Intn(12 * mib))) },
			func() { _ = h.m.Retake() },
			func() { _ = h.m.Submit(ctx) },
			func() { _ = h.m.CancelProcessing() },
			func() { _ = h.m.Retry() },
			func() { _ = h.m.AddToCart(ctx) },
		}

		for step := 0; step < 40; step++ {
			actions[rng.Intn(len(actions))]()
			h.m.Wait()

			s := h.m.Snapshot()
			if h.m.StreamActive() {
				require.Equal(t, Camera, s.State, "run %d step %d", run, step)
			}
			if s.State != Camera {
				require.Equal(t, 0, cam.Live(), "run %d step %d", run, step)
			}
			if s.Result != nil {
				require.Equal(t, Result, s.State, "run %d step %d", run, step)
			}
			require.False(t, s.Captured != nil && s.Result != nil, "run %d step %d", run, step)
			if s.State == Options || s.State == Error || s.State == Closed {
				require.Nil(t, s.Captured, "run %d step %d", run, step)
				require.Equal(t, 0, h.urls.Len(), "run %d step %d", run, step)
			}
		}

		h.m.Close()
		h.m.Wait()
		require.Equal(t, 0, cam.Live())
	}
}
