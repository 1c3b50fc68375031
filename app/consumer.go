package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/kirides/texshare/interop"
)

// Subscriber is the consumer's end of the descriptor channel.
type Subscriber interface {
	Poll(ctx context.Context) (interop.ShareDescriptor, error)
}

type ConsumerOptions struct {
	// ImportAttempts bounds how often a descriptor is polled and imported
	// when the import fails with a retryable error. 0 means once.
	ImportAttempts int
	RetryDelay     time.Duration
	// Sample is the texel logged when it changes, nil samples the center
	// of the texture.
	Sample          *image.Point
	FPS             int
	PreviewInterval time.Duration
}

// Consumer imports the published texture and presents it every frame.
type Consumer struct {
	ictx    *interop.Context
	sub     Subscriber
	painter Painter
	opts    ConsumerOptions
	sink    FrameSink

	tex         *interop.Texture
	binding     *interop.Binding
	desc        interop.ShareDescriptor
	sample      image.Point
	last        color.RGBA
	seen        bool
	frames      uint64
	lastPreview time.Time
	preview     *image.RGBA
}

func NewConsumer(ictx *interop.Context, sub Subscriber, painter Painter, opts ConsumerOptions) *Consumer {
	return &Consumer{ictx: ictx, sub: sub, painter: painter, opts: opts}
}

func (c *Consumer) SetPreview(s FrameSink) { c.sink = s }

func (c *Consumer) Texture() *interop.Texture           { return c.tex }
func (c *Consumer) Binding() *interop.Binding           { return c.binding }
func (c *Consumer) Descriptor() interop.ShareDescriptor { return c.desc }
func (c *Consumer) Frames() uint64                      { return c.frames }

// Texel is the last sampled texel.
func (c *Consumer) Texel() color.RGBA { return c.last }

// Start waits for a descriptor, imports and registers it.
func (c *Consumer) Start(ctx context.Context) error {
	attempts := c.opts.ImportAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = c.attach(ctx); err == nil {
			return nil
		}
		if !interop.Retryable(err) || i == attempts {
			break
		}
		interop.Logger().Warn("import failed, retrying", "attempt", i, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.opts.RetryDelay):
		}
	}
	return err
}

func (c *Consumer) attach(ctx context.Context) error {
	desc, err := c.sub.Poll(ctx)
	if err != nil {
		return err
	}
	interop.Logger().Info("descriptor found", "pid", desc.OwnerProcessID, "handle", fmt.Sprintf("%#x", desc.Handle))
	tex, err := c.ictx.Import(desc)
	if err != nil {
		return err
	}
	b, err := c.ictx.Register(tex)
	if err != nil {
		tex.Release()
		return err
	}
	c.tex, c.binding, c.desc = tex, b, desc
	c.sample = image.Pt(tex.Width()/2, tex.Height()/2)
	if c.opts.Sample != nil {
		c.sample = *c.opts.Sample
	}
	if !c.sample.In(tex.Bounds()) {
		err := fmt.Errorf("app: sample texel %v outside %v", c.sample, tex.Bounds())
		return errors.Join(err, c.Stop())
	}
	interop.Logger().Info("consumer started", "localHandle", fmt.Sprintf("%#x", tex.ShareHandle()),
		"name", b.Name(), "width", tex.Width(), "height", tex.Height())
	return nil
}

// Frame samples and presents the shared texture on s.
func (c *Consumer) Frame(s Surface) error {
	if c.binding == nil {
		return errors.New("app: consumer not started")
	}
	w, h := s.FramebufferSize()
	var texel color.RGBA
	err := c.binding.With(func() error {
		var err error
		if texel, err = c.painter.ReadTexel(c.binding, c.sample.X, c.sample.Y); err != nil {
			return err
		}
		return c.painter.Present(c.binding, w, h)
	})
	if err != nil {
		return err
	}
	s.SwapBuffers()
	c.frames++
	if !c.seen || texel != c.last {
		interop.Logger().Info("texel changed", "x", c.sample.X, "y", c.sample.Y,
			"r", texel.R, "g", texel.G, "b", texel.B, "a", texel.A, "frame", c.frames)
	}
	c.last, c.seen = texel, true
	c.updatePreview()
	return nil
}

func (c *Consumer) updatePreview() {
	if c.sink == nil || time.Since(c.lastPreview) < c.opts.PreviewInterval {
		return
	}
	c.lastPreview = time.Now()
	if c.preview == nil {
		c.preview = image.NewRGBA(c.tex.Bounds())
	}
	if err := c.tex.Snapshot(c.preview); err != nil {
		interop.Logger().Warn("preview snapshot", "err", err)
		return
	}
	c.sink.Update(c.preview, fmt.Sprintf("consumer %s frame %d rgba(%d,%d,%d,%d)",
		c.desc, c.frames, c.last.R, c.last.G, c.last.B, c.last.A))
}

// Stop deregisters and releases the imported texture. The owner's texture
// stays alive.
func (c *Consumer) Stop() error {
	if c.tex == nil {
		return nil
	}
	err := c.binding.Close()
	c.tex.Release()
	c.tex, c.binding = nil, nil
	interop.Logger().Info("consumer stopped", "frames", c.frames)
	return err
}

// Run starts the consumer and renders until ctx is done or s should close.
func (c *Consumer) Run(ctx context.Context, s Surface) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	limiter := NewFrameLimiter(c.opts.FPS)
	for running(ctx, s) {
		if err := c.Frame(s); err != nil {
			return errors.Join(err, c.Stop())
		}
		limiter.Wait()
	}
	return c.Stop()
}
