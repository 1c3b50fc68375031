package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"
	"time"

	"github.com/kirides/texshare/interop"
)

// Publisher is the producer's end of the descriptor channel.
type Publisher interface {
	Publish(d interop.ShareDescriptor) error
	Retract() error
}

type ProducerOptions struct {
	Texture interop.TextureDesc
	// Clear is the colour drawn into the texture every frame.
	Clear color.RGBA
	// Pulse animates the green channel of Clear over time.
	Pulse bool
	// Exclusive keeps the foreign lock for the producer's lifetime.
	Exclusive bool
	FPS       int
	// PreviewInterval is the minimum time between preview frames.
	PreviewInterval time.Duration
}

// Producer allocates a shared texture, publishes it and draws into it
// through the foreign API every frame.
type Producer struct {
	ictx    *interop.Context
	pub     Publisher
	painter Painter
	opts    ProducerOptions
	sink    FrameSink

	colorMu sync.Mutex
	clear   color.RGBA
	pulse   bool

	tex         *interop.Texture
	binding     *interop.Binding
	desc        interop.ShareDescriptor
	start       time.Time
	frames      uint64
	lastPreview time.Time
	preview     *image.RGBA
}

func NewProducer(ictx *interop.Context, pub Publisher, painter Painter, opts ProducerOptions) *Producer {
	return &Producer{
		ictx:    ictx,
		pub:     pub,
		painter: painter,
		opts:    opts,
		clear:   opts.Clear,
		pulse:   opts.Pulse,
	}
}

// SetColor changes the clear colour and pulse mode of the following
// frames. It may be called from any goroutine.
func (p *Producer) SetColor(c color.RGBA, pulse bool) {
	p.colorMu.Lock()
	p.clear, p.pulse = c, pulse
	p.colorMu.Unlock()
}

// SetPreview sends read back frames to s. Previews are skipped in
// exclusive mode since the native side can never take the lock.
func (p *Producer) SetPreview(s FrameSink) { p.sink = s }

func (p *Producer) Texture() *interop.Texture           { return p.tex }
func (p *Producer) Binding() *interop.Binding           { return p.binding }
func (p *Producer) Descriptor() interop.ShareDescriptor { return p.desc }
func (p *Producer) Frames() uint64                      { return p.frames }

// Start creates, exports and registers the texture and publishes its
// descriptor.
func (p *Producer) Start() error {
	tex, err := p.ictx.CreateSharedTexture(p.opts.Texture)
	if err != nil {
		return err
	}
	desc, err := p.ictx.Export(tex)
	if err != nil {
		tex.Release()
		return err
	}
	b, err := p.ictx.Register(tex)
	if err != nil {
		tex.Release()
		return err
	}
	if p.opts.Exclusive {
		if err := b.ClaimExclusive(); err != nil {
			tex.Release()
			return err
		}
	}
	if err := p.pub.Publish(desc); err != nil {
		tex.Release()
		return err
	}
	p.tex, p.binding, p.desc = tex, b, desc
	p.start = time.Now()
	interop.Logger().Info("producer started", "pid", desc.OwnerProcessID,
		"handle", fmt.Sprintf("%#x", desc.Handle), "name", b.Name(),
		"width", tex.Width(), "height", tex.Height(), "exclusive", p.opts.Exclusive)
	return nil
}

// ColorAt is the colour drawn at elapsed time since Start.
func (p *Producer) ColorAt(elapsed time.Duration) color.RGBA {
	p.colorMu.Lock()
	c, pulse := p.clear, p.pulse
	p.colorMu.Unlock()
	if pulse {
		s := math.Sin(elapsed.Seconds()*5)*0.5 + 0.5
		c.G = uint8(math.Round(s * 255))
	}
	return c
}

// Frame draws one frame into the texture and presents it on s.
func (p *Producer) Frame(s Surface) error {
	if p.binding == nil {
		return errors.New("app: producer not started")
	}
	c := p.ColorAt(time.Since(p.start))
	w, h := s.FramebufferSize()
	err := p.binding.With(func() error {
		if err := p.painter.Clear(p.binding, c); err != nil {
			return err
		}
		return p.painter.Present(p.binding, w, h)
	})
	if err != nil {
		return err
	}
	s.SwapBuffers()
	p.frames++
	p.updatePreview(c)
	return nil
}

func (p *Producer) updatePreview(c color.RGBA) {
	if p.sink == nil || p.opts.Exclusive {
		return
	}
	if time.Since(p.lastPreview) < p.opts.PreviewInterval {
		return
	}
	p.lastPreview = time.Now()
	if p.preview == nil {
		p.preview = image.NewRGBA(p.tex.Bounds())
	}
	if err := p.tex.Snapshot(p.preview); err != nil {
		interop.Logger().Warn("preview snapshot", "err", err)
		return
	}
	p.sink.Update(p.preview, fmt.Sprintf("producer %s frame %d rgba(%d,%d,%d,%d)",
		p.desc, p.frames, c.R, c.G, c.B, c.A))
}

// Stop retracts the descriptor and releases the texture.
func (p *Producer) Stop() error {
	if p.tex == nil {
		return nil
	}
	var errs []error
	if err := p.pub.Retract(); err != nil {
		errs = append(errs, err)
	}
	if err := p.binding.Close(); err != nil {
		errs = append(errs, err)
	}
	p.tex.Release()
	p.tex, p.binding = nil, nil
	interop.Logger().Info("producer stopped", "frames", p.frames)
	return errors.Join(errs...)
}

// Run starts the producer and renders until ctx is done or s should close.
func (p *Producer) Run(ctx context.Context, s Surface) error {
	if err := p.Start(); err != nil {
		return err
	}
	limiter := NewFrameLimiter(p.opts.FPS)
	for running(ctx, s) {
		if err := p.Frame(s); err != nil {
			return errors.Join(err, p.Stop())
		}
		limiter.Wait()
	}
	return p.Stop()
}
