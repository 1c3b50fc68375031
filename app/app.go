// Package app runs the producer and consumer render loops on top of an
// interop.Context.
package app

import (
	"context"
	"image"
	"image/color"
	"runtime"
	"time"

	"github.com/kirides/texshare/interop"
)

// Painter draws through the foreign API. Every call requires the binding
// to be locked.
type Painter interface {
	Clear(b *interop.Binding, c color.RGBA) error
	ReadTexel(b *interop.Binding, x, y int) (color.RGBA, error)
	Present(b *interop.Binding, width, height int) error
}

// Surface is the window as used by the render thread.
type Surface interface {
	MakeCurrent()
	SwapBuffers()
	ShouldClose() bool
	FramebufferSize() (int, int)
}

// Window is the window as used by the event thread.
type Window interface {
	Surface
	DetachCurrent()
}

// EventLoop pumps window events on the main thread.
type EventLoop interface {
	WaitEventsTimeout(d time.Duration)
	PostEmptyEvent()
}

// FrameSink receives preview frames. Update must not retain img.
type FrameSink interface {
	Update(img *image.RGBA, status string)
}

// RenderFunc runs on the render thread with the context current. It
// returns when ctx is done or the surface should close.
type RenderFunc func(ctx context.Context, s Surface) error

// Run moves the window's context to a dedicated render thread, runs render
// there and pumps events on the calling thread until render returns. The
// render context is cancelled when the window should close.
func Run(ctx context.Context, w Window, events EventLoop, render RenderFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.DetachCurrent()
	done := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		w.MakeCurrent()
		err := render(ctx, w)
		w.DetachCurrent()
		events.PostEmptyEvent()
		done <- err
	}()

	for {
		select {
		case err := <-done:
			return err
		default:
		}
		if w.ShouldClose() {
			cancel()
		}
		events.WaitEventsTimeout(100 * time.Millisecond)
	}
}

func running(ctx context.Context, s Surface) bool {
	return ctx.Err() == nil && !s.ShouldClose()
}
