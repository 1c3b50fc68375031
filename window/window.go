// Package window opens the demo window and its OpenGL context with glfw.
//
// Init, New, WaitEventsTimeout and Destroy must be called from the main
// thread. The context is made current on the render thread with
// MakeCurrent after the main thread released it with DetachCurrent.
package window

import (
	"fmt"
	"image"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/kbinani/screenshot"
)

// Config describes the window.
type Config struct {
	Title  string
	Width  int
	Height int
	// Display is the index of the display the window is centered on. A
	// negative value places the window at X, Y in desktop coordinates.
	Display    int
	X, Y       int
	Resizable  bool
	Borderless bool
	GLMajor    int
	GLMinor    int
	// SwapInterval 0 disables vsync.
	SwapInterval int
}

// Init initializes glfw and makes the process DPI aware.
func Init() error {
	setDPIAware()
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("window: glfw init: %w", err)
	}
	return nil
}

// Terminate releases glfw. Every window must be destroyed first.
func Terminate() { glfw.Terminate() }

// WaitEventsTimeout processes pending events, waiting up to d for one.
func WaitEventsTimeout(d time.Duration) { glfw.WaitEventsTimeout(d.Seconds()) }

// PostEmptyEvent wakes the main thread from WaitEventsTimeout. It may be
// called from any thread.
func PostEmptyEvent() { glfw.PostEmptyEvent() }

type Window struct {
	w            *glfw.Window
	swapInterval int
}

// New creates the window with its OpenGL context current on the calling
// thread. Escape closes the window.
func New(cfg Config) (*Window, error) {
	glfw.DefaultWindowHints()
	glfw.WindowHint(glfw.ContextVersionMajor, cfg.GLMajor)
	glfw.WindowHint(glfw.ContextVersionMinor, cfg.GLMinor)
	glfw.WindowHint(glfw.Resizable, boolHint(cfg.Resizable))
	glfw.WindowHint(glfw.Decorated, boolHint(!cfg.Borderless))
	glfw.WindowHint(glfw.Visible, glfw.False)

	w, err := glfw.CreateWindow(cfg.Width, cfg.Height, cfg.Title, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("window: create: %w", err)
	}
	w.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
		}
	})
	pos := placement(cfg, displays())
	w.SetPos(pos.X, pos.Y)
	w.Show()
	w.MakeContextCurrent()
	return &Window{w: w, swapInterval: cfg.SwapInterval}, nil
}

func boolHint(v bool) int {
	if v {
		return glfw.True
	}
	return glfw.False
}

func displays() []image.Rectangle {
	n := screenshot.NumActiveDisplays()
	bounds := make([]image.Rectangle, 0, n)
	for i := 0; i < n; i++ {
		bounds = append(bounds, screenshot.GetDisplayBounds(i))
	}
	return bounds
}

// placement returns the top left corner of the window: centered on the
// configured display, or at X, Y when there is none.
func placement(cfg Config, displays []image.Rectangle) image.Point {
	if cfg.Display < 0 || cfg.Display >= len(displays) {
		return image.Pt(cfg.X, cfg.Y)
	}
	b := displays[cfg.Display]
	return image.Pt(
		b.Min.X+(b.Dx()-cfg.Width)/2,
		b.Min.Y+(b.Dy()-cfg.Height)/2,
	)
}

// MakeCurrent makes the context current on the calling thread and applies
// the swap interval.
func (w *Window) MakeCurrent() {
	w.w.MakeContextCurrent()
	glfw.SwapInterval(w.swapInterval)
}

// DetachCurrent releases the context from the calling thread.
func (w *Window) DetachCurrent() { glfw.DetachCurrentContext() }

func (w *Window) SwapBuffers()          { w.w.SwapBuffers() }
func (w *Window) ShouldClose() bool     { return w.w.ShouldClose() }
func (w *Window) SetShouldClose(v bool) { w.w.SetShouldClose(v) }

// FramebufferSize is the drawable size in pixels.
func (w *Window) FramebufferSize() (int, int) { return w.w.GetFramebufferSize() }

func (w *Window) Destroy() { w.w.Destroy() }

// Events is the package's event loop as a value.
type Events struct{}

func (Events) WaitEventsTimeout(d time.Duration) { WaitEventsTimeout(d) }
func (Events) PostEmptyEvent()                   { PostEmptyEvent() }
