package app_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirides/texshare/app"
	"github.com/kirides/texshare/channel"
	"github.com/kirides/texshare/interop"
	"github.com/kirides/texshare/interop/interoptest"
)

type fakeWindow struct {
	mu         sync.Mutex
	swaps      int
	closeAfter int
	closed     bool
	current    int
	detached   int
}

func (w *fakeWindow) MakeCurrent() {
	w.mu.Lock()
	w.current++
	w.mu.Unlock()
}

func (w *fakeWindow) DetachCurrent() {
	w.mu.Lock()
	w.detached++
	w.mu.Unlock()
}

func (w *fakeWindow) SwapBuffers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.swaps++
	if w.closeAfter > 0 && w.swaps >= w.closeAfter {
		w.closed = true
	}
}

func (w *fakeWindow) ShouldClose() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *fakeWindow) SetShouldClose() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

func (w *fakeWindow) FramebufferSize() (int, int) { return 640, 480 }

type fakeEvents struct {
	mu     sync.Mutex
	waits  int
	wakeup int
}

func (e *fakeEvents) WaitEventsTimeout(d time.Duration) {
	e.mu.Lock()
	e.waits++
	e.mu.Unlock()
	time.Sleep(time.Millisecond)
}

func (e *fakeEvents) PostEmptyEvent() {
	e.mu.Lock()
	e.wakeup++
	e.mu.Unlock()
}

type recordingSink struct {
	mu     sync.Mutex
	frames []*image.RGBA
	status []string
}

func (s *recordingSink) Update(img *image.RGBA, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := image.NewRGBA(img.Bounds())
	copy(cp.Pix, img.Pix)
	s.frames = append(s.frames, cp)
	s.status = append(s.status, status)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func newChannel(t *testing.T) *channel.Channel {
	t.Helper()
	ch, err := channel.New(make([]byte, channel.RecordSize))
	require.NoError(t, err)
	ch.Interval = 5 * time.Millisecond
	return ch
}

func openContext(t *testing.T, p *interoptest.Process) *interop.Context {
	t.Helper()
	ctx, err := interop.Open(p)
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Close() })
	return ctx
}

var clearColor = color.RGBA{R: 10, G: 20, B: 30, A: 255}

func producerOptions() app.ProducerOptions {
	return app.ProducerOptions{
		Texture: interop.TextureDesc{Width: 100, Height: 100},
		Clear:   clearColor,
	}
}

func TestProducerConsumer(t *testing.T) {
	gpu := interoptest.NewGPU()
	pp, cp := gpu.NewProcess(), gpu.NewProcess()
	ch := newChannel(t)
	w := &fakeWindow{}

	prod := app.NewProducer(openContext(t, pp), ch, pp.GL(), producerOptions())
	require.NoError(t, prod.Start())
	require.NoError(t, prod.Frame(w))

	d, ok := ch.TryRead()
	require.True(t, ok)
	assert.Equal(t, pp.PID(), d.OwnerProcessID)
	assert.Equal(t, prod.Descriptor(), d)

	cons := app.NewConsumer(openContext(t, cp), ch, cp.GL(), app.ConsumerOptions{})
	require.NoError(t, cons.Start(context.Background()))
	require.NoError(t, cons.Frame(w))

	assert.Equal(t, 100, cons.Texture().Width())
	assert.Equal(t, 100, cons.Texture().Height())
	assert.Equal(t, clearColor, cons.Texel())
	assert.Equal(t, 1, pp.GL().Presents())
	assert.Equal(t, 1, cp.GL().Presents())
	assert.Equal(t, 2, w.swaps)

	require.NoError(t, cons.Stop())
	assert.Equal(t, 0, cp.GL().Registered())
	assert.Equal(t, 0, cp.OpenHandles())

	// the producer keeps drawing after the consumer left
	require.NoError(t, prod.Frame(w))
	require.NoError(t, prod.Stop())
	_, ok = ch.TryRead()
	assert.False(t, ok)
	assert.Equal(t, 0, pp.GL().Registered())
}

func TestConsumerPollsBeforePublish(t *testing.T) {
	gpu := interoptest.NewGPU()
	pp, cp := gpu.NewProcess(), gpu.NewProcess()
	ch := newChannel(t)
	cons := app.NewConsumer(openContext(t, cp), ch, cp.GL(), app.ConsumerOptions{})

	done := make(chan error, 1)
	go func() { done <- cons.Start(context.Background()) }()

	assert.Never(t, func() bool { return len(done) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, 0, cp.ResourcesOpened())

	prod := app.NewProducer(openContext(t, pp), ch, pp.GL(), producerOptions())
	require.NoError(t, prod.Start())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not pick up the descriptor")
	}
	assert.Equal(t, prod.Descriptor(), cons.Descriptor())
	assert.Equal(t, 1, cp.ResourcesOpened())
	require.NoError(t, cons.Stop())
	require.NoError(t, prod.Stop())
}

func TestConsumerStartCancelled(t *testing.T) {
	cp := interoptest.NewGPU().NewProcess()
	cons := app.NewConsumer(openContext(t, cp), newChannel(t), cp.GL(), app.ConsumerOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := cons.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, cons.Texture())
}

type scriptedSubscriber struct {
	descs []interop.ShareDescriptor
	polls int
}

func (s *scriptedSubscriber) Poll(ctx context.Context) (interop.ShareDescriptor, error) {
	d := s.descs[s.polls]
	if s.polls < len(s.descs)-1 {
		s.polls++
	}
	return d, nil
}

// staleDescriptor exports a texture from a process that exits right after.
func staleDescriptor(t *testing.T, gpu *interoptest.GPU) interop.ShareDescriptor {
	t.Helper()
	p := gpu.NewProcess()
	ctx, err := interop.Open(p)
	require.NoError(t, err)
	tex, err := ctx.CreateSharedTexture(interop.TextureDesc{Width: 4, Height: 4})
	require.NoError(t, err)
	d, err := ctx.Export(tex)
	require.NoError(t, err)
	p.Exit()
	return d
}

func TestConsumerImportRetry(t *testing.T) {
	gpu := interoptest.NewGPU()
	stale := staleDescriptor(t, gpu)

	pp, cp := gpu.NewProcess(), gpu.NewProcess()
	prod := app.NewProducer(openContext(t, pp), newChannel(t), pp.GL(), producerOptions())
	require.NoError(t, prod.Start())

	sub := &scriptedSubscriber{descs: []interop.ShareDescriptor{stale, prod.Descriptor()}}
	cons := app.NewConsumer(openContext(t, cp), sub, cp.GL(), app.ConsumerOptions{
		ImportAttempts: 3,
		RetryDelay:     time.Millisecond,
	})
	require.NoError(t, cons.Start(context.Background()))
	assert.Equal(t, prod.Descriptor(), cons.Descriptor())
	assert.Equal(t, 1, sub.polls)
}

func TestConsumerImportNoRetry(t *testing.T) {
	gpu := interoptest.NewGPU()
	stale := staleDescriptor(t, gpu)
	cp := gpu.NewProcess()

	sub := &scriptedSubscriber{descs: []interop.ShareDescriptor{stale}}
	cons := app.NewConsumer(openContext(t, cp), sub, cp.GL(), app.ConsumerOptions{})
	err := cons.Start(context.Background())
	assert.ErrorIs(t, err, interop.ErrDuplication)
	assert.Equal(t, 0, cp.OpenHandles())
}

func TestConsumerSampleOutside(t *testing.T) {
	gpu := interoptest.NewGPU()
	pp, cp := gpu.NewProcess(), gpu.NewProcess()
	ch := newChannel(t)
	prod := app.NewProducer(openContext(t, pp), ch, pp.GL(), producerOptions())
	require.NoError(t, prod.Start())

	cons := app.NewConsumer(openContext(t, cp), ch, cp.GL(), app.ConsumerOptions{Sample: &image.Point{X: 100, Y: 0}})
	err := cons.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside")
	assert.Nil(t, cons.Texture())
	assert.Equal(t, 0, cp.GL().Registered())
}

func TestProducerPulse(t *testing.T) {
	opts := producerOptions()
	opts.Pulse = true
	prod := app.NewProducer(nil, nil, nil, opts)

	assert.Equal(t, uint8(128), prod.ColorAt(0).G)
	peak := time.Duration(math.Round(math.Pi / 10 * float64(time.Second)))
	c := prod.ColorAt(peak)
	assert.Equal(t, uint8(255), c.G)
	assert.Equal(t, clearColor.R, c.R)
	assert.Equal(t, clearColor.B, c.B)

	opts.Pulse = false
	assert.Equal(t, clearColor, app.NewProducer(nil, nil, nil, opts).ColorAt(peak))

	blue := color.RGBA{B: 200, A: 255}
	prod.SetColor(blue, false)
	assert.Equal(t, blue, prod.ColorAt(peak))
}

func TestProducerPreview(t *testing.T) {
	pp := interoptest.NewGPU().NewProcess()
	prod := app.NewProducer(openContext(t, pp), newChannel(t), pp.GL(), producerOptions())
	sink := &recordingSink{}
	prod.SetPreview(sink)
	require.NoError(t, prod.Start())
	require.NoError(t, prod.Frame(&fakeWindow{}))

	require.Equal(t, 1, sink.count())
	assert.Equal(t, clearColor, sink.frames[0].RGBAAt(50, 50))
	assert.True(t, strings.HasPrefix(sink.status[0], "producer pid="), sink.status[0])
	assert.Contains(t, sink.status[0], "frame 1")
	require.NoError(t, prod.Stop())
}

func TestProducerExclusive(t *testing.T) {
	gpu := interoptest.NewGPU()
	pp, cp := gpu.NewProcess(), gpu.NewProcess()
	ch := newChannel(t)
	opts := producerOptions()
	opts.Exclusive = true
	prod := app.NewProducer(openContext(t, pp), ch, pp.GL(), opts)
	sink := &recordingSink{}
	prod.SetPreview(sink)
	require.NoError(t, prod.Start())
	assert.Equal(t, interop.OwnershipExclusive, prod.Binding().Ownership())

	w := &fakeWindow{}
	require.NoError(t, prod.Frame(w))
	require.NoError(t, prod.Frame(w))
	assert.Equal(t, interop.StateLocked, prod.Binding().State())
	assert.Equal(t, 0, sink.count())

	cons := app.NewConsumer(openContext(t, cp), ch, cp.GL(), app.ConsumerOptions{})
	require.NoError(t, cons.Start(context.Background()))
	done := make(chan error, 1)
	go func() { done <- cons.Frame(&fakeWindow{}) }()
	assert.Never(t, func() bool { return len(done) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	require.NoError(t, prod.Stop())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer still stalled after the producer stopped")
	}
	assert.Equal(t, clearColor, cons.Texel())
	require.NoError(t, cons.Stop())
}

func TestFrameBeforeStart(t *testing.T) {
	assert.Error(t, app.NewProducer(nil, nil, nil, producerOptions()).Frame(&fakeWindow{}))
	assert.Error(t, app.NewConsumer(nil, nil, nil, app.ConsumerOptions{}).Frame(&fakeWindow{}))
}

func TestRunProducer(t *testing.T) {
	pp := interoptest.NewGPU().NewProcess()
	ch := newChannel(t)
	prod := app.NewProducer(openContext(t, pp), ch, pp.GL(), producerOptions())
	w := &fakeWindow{closeAfter: 3}
	events := &fakeEvents{}

	err := app.Run(context.Background(), w, events, prod.Run)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), prod.Frames())
	assert.Equal(t, 1, w.current)
	assert.Equal(t, 2, w.detached)
	_, ok := ch.TryRead()
	assert.False(t, ok)
	assert.Equal(t, 0, pp.GL().Registered())
}

func TestRunCancelsOnClose(t *testing.T) {
	w := &fakeWindow{}
	events := &fakeEvents{}
	started := make(chan struct{})
	go func() {
		<-started
		w.SetShouldClose()
	}()

	err := app.Run(context.Background(), w, events, func(ctx context.Context, s app.Surface) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Positive(t, events.waits)
	assert.Equal(t, 1, events.wakeup, "event loop woken before Run returned")
}

func TestRunReturnsRenderError(t *testing.T) {
	boom := errors.New("boom")
	events := &fakeEvents{}
	err := app.Run(context.Background(), &fakeWindow{}, events, func(context.Context, app.Surface) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Equal(t, 1, events.wakeup)
}
