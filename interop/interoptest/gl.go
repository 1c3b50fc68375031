package interoptest

import (
	"errors"
	"fmt"
	"image/color"
	"sync"

	"github.com/kirides/texshare/interop"
)

var ErrNotLocked = errors.New("interoptest: object not locked")

type registration struct {
	res    *resource
	name   uint32
	locked bool
}

// GL is a fake foreign API with the interop extension. It also implements
// the drawing calls the apps need, all of which fail unless the target
// object is locked.
type GL struct {
	proc *Process

	mu       sync.Mutex
	device   interop.InteropDevice
	next     uint32
	names    map[uint32]bool
	regs     map[interop.LockHandle]*registration
	presents int
}

func (g *GL) Supported() error {
	if g.proc.noInterop {
		return errors.New("interoptest: WGL_NV_DX_interop not supported")
	}
	return nil
}

func (g *GL) OpenDevice(dev interop.NativeDevice) (interop.InteropDevice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.device != 0 {
		return 0, errors.New("interoptest: interop device already open")
	}
	g.device = interop.InteropDevice(g.proc.gpu.value())
	return g.device, nil
}

func (g *GL) CloseDevice(d interop.InteropDevice) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkDevice(d); err != nil {
		return err
	}
	if len(g.regs) > 0 {
		return fmt.Errorf("interoptest: %d objects still registered", len(g.regs))
	}
	g.device = 0
	return nil
}

func (g *GL) checkDevice(d interop.InteropDevice) error {
	if d == 0 || d != g.device {
		return fmt.Errorf("interoptest: invalid interop device %#x", uintptr(d))
	}
	return nil
}

func (g *GL) GenTexture() (uint32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	g.names[g.next] = true
	return g.next, nil
}

func (g *GL) DeleteTexture(name uint32) {
	g.mu.Lock()
	delete(g.names, name)
	g.mu.Unlock()
}

func (g *GL) Register(d interop.InteropDevice, tex interop.NativeTexture, shareHandle uintptr, name uint32, kind interop.ResourceKind, access interop.AccessMode) (interop.LockHandle, error) {
	if _, err := g.proc.lookup(shareHandle); err != nil {
		return 0, fmt.Errorf("set resource share handle: %w", err)
	}
	t, ok := tex.(*Texture)
	if !ok {
		return 0, fmt.Errorf("interoptest: foreign texture %T", tex)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkDevice(d); err != nil {
		return 0, err
	}
	if !g.names[name] {
		return 0, fmt.Errorf("interoptest: texture name %d not generated", name)
	}
	if kind != interop.ResourceTexture2D {
		return 0, fmt.Errorf("interoptest: resource kind %#x", uint32(kind))
	}
	for _, r := range g.regs {
		if r.name == name {
			return 0, fmt.Errorf("interoptest: texture name %d already registered", name)
		}
	}
	h := interop.LockHandle(g.proc.gpu.value())
	g.regs[h] = &registration{res: t.res, name: name}
	return h, nil
}

func (g *GL) registration(h interop.LockHandle) (*registration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.regs[h]
	if !ok {
		return nil, fmt.Errorf("%w %#x", ErrInvalidHandle, uintptr(h))
	}
	return r, nil
}

func (g *GL) Unregister(d interop.InteropDevice, h interop.LockHandle) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.regs[h]
	if !ok {
		return fmt.Errorf("%w %#x", ErrInvalidHandle, uintptr(h))
	}
	if r.locked {
		return errors.New("interoptest: unregister while locked")
	}
	delete(g.regs, h)
	return nil
}

func (g *GL) Lock(d interop.InteropDevice, h interop.LockHandle) error {
	r, err := g.registration(h)
	if err != nil {
		return err
	}
	r.res.acquire()
	g.mu.Lock()
	r.locked = true
	g.mu.Unlock()
	return nil
}

func (g *GL) Unlock(d interop.InteropDevice, h interop.LockHandle) error {
	r, err := g.registration(h)
	if err != nil {
		return err
	}
	g.mu.Lock()
	if !r.locked {
		g.mu.Unlock()
		return ErrNotLocked
	}
	r.locked = false
	g.mu.Unlock()
	return r.res.release()
}

// Registered is the number of currently registered objects.
func (g *GL) Registered() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.regs)
}

// Presents is the number of successful Present calls.
func (g *GL) Presents() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.presents
}

func (g *GL) locked(b *interop.Binding) (*registration, error) {
	r, err := g.registration(b.Token())
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !r.locked {
		return nil, fmt.Errorf("%w: texture %d", ErrNotLocked, b.Name())
	}
	return r, nil
}

// Clear fills the bound texture with c.
func (g *GL) Clear(b *interop.Binding, c color.RGBA) error {
	r, err := g.locked(b)
	if err != nil {
		return err
	}
	r.res.fill(c)
	return nil
}

// ReadTexel samples one texel of the bound texture.
func (g *GL) ReadTexel(b *interop.Binding, x, y int) (color.RGBA, error) {
	r, err := g.locked(b)
	if err != nil {
		return color.RGBA{}, err
	}
	return r.res.at(x, y), nil
}

// Present draws the bound texture to the default framebuffer.
func (g *GL) Present(b *interop.Binding, width, height int) error {
	if _, err := g.locked(b); err != nil {
		return err
	}
	g.mu.Lock()
	g.presents++
	g.mu.Unlock()
	return nil
}
