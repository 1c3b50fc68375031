// Package interoptest provides an in-memory GPU and handle table for tests
// of code built on package interop. A GPU is shared by any number of fake
// processes; handles exported by one are duplicated into another through
// the GPU, and the native and foreign locks of a resource share one keyed
// mutex, like the real driver.
package interoptest

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/kirides/texshare/interop"
)

var (
	ErrNoProcess     = errors.New("interoptest: no such process")
	ErrInvalidHandle = errors.New("interoptest: invalid handle")
	ErrNotAcquired   = errors.New("interoptest: keyed mutex not acquired")
)

// GPU is the memory and kernel object space shared by fake processes.
type GPU struct {
	mu        sync.Mutex
	nextPID   uint32
	nextValue uintptr
	procs     map[uint32]*Process
}

func NewGPU() *GPU {
	return &GPU{nextPID: 1000, nextValue: 0x100, procs: make(map[uint32]*Process)}
}

func (g *GPU) value() uintptr {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextValue += 4
	return g.nextValue
}

func (g *GPU) process(pid uint32) (*Process, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.procs[pid]
	return p, ok
}

// Option configures a Process.
type Option func(*Process)

// WithoutExtendedSharing makes the device report no extended resource
// sharing support.
func WithoutExtendedSharing() Option {
	return func(p *Process) { p.noSharing = true }
}

// WithoutInterop makes the foreign API miss the interop extension.
func WithoutInterop() Option {
	return func(p *Process) { p.noInterop = true }
}

// WithCreateError makes device creation fail with err.
func WithCreateError(err error) Option {
	return func(p *Process) { p.createErr = err }
}

// WithOpenError makes opening a shared resource fail with err after the
// handle was looked up.
func WithOpenError(err error) Option {
	return func(p *Process) { p.openErr = err }
}

// NewProcess starts a fake process on g. It implements interop.Backend.
func (g *GPU) NewProcess(opts ...Option) *Process {
	g.mu.Lock()
	g.nextPID++
	p := &Process{gpu: g, pid: g.nextPID, handles: make(map[uintptr]*resource)}
	g.procs[p.pid] = p
	g.mu.Unlock()
	for _, o := range opts {
		o(p)
	}
	p.gl = &GL{proc: p, names: make(map[uint32]bool), regs: make(map[interop.LockHandle]*registration)}
	return p
}

// Process is one fake OS process with its own handle table, native device
// and foreign API.
type Process struct {
	gpu *GPU
	pid uint32
	gl  *GL

	noSharing bool
	noInterop bool
	createErr error
	openErr   error

	mu       sync.Mutex
	handles  map[uintptr]*resource
	created  int
	opened   int
	exited   bool
	devices  int
	released int
}

func (p *Process) PID() uint32 { return p.pid }

// GL returns the process's foreign API.
func (p *Process) GL() *GL { return p.gl }

// TexturesCreated is the number of textures the process allocated.
func (p *Process) TexturesCreated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

// ResourcesOpened is the number of shared resources the process opened.
func (p *Process) ResourcesOpened() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opened
}

// DevicesAlive is the number of created and not yet released devices.
func (p *Process) DevicesAlive() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.devices - p.released
}

// OpenHandles is the number of handles in the process's handle table.
func (p *Process) OpenHandles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Exit closes every handle of the process and removes it from the GPU, so
// descriptors it published can no longer be duplicated.
func (p *Process) Exit() {
	p.gpu.mu.Lock()
	delete(p.gpu.procs, p.pid)
	p.gpu.mu.Unlock()
	p.mu.Lock()
	p.exited = true
	p.handles = make(map[uintptr]*resource)
	p.mu.Unlock()
}

func (p *Process) CreateDevice() (interop.NativeDevice, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.mu.Lock()
	p.devices++
	p.mu.Unlock()
	return &Device{proc: p, ptr: p.gpu.value()}, nil
}

func (p *Process) HandleTable() interop.HandleTable { return handleTable{p} }
func (p *Process) ForeignAPI() interop.ForeignAPI   { return p.gl }

func (p *Process) insert(r *resource) uintptr {
	h := p.gpu.value()
	p.mu.Lock()
	p.handles[h] = r
	p.mu.Unlock()
	return h
}

func (p *Process) lookup(h uintptr) (*resource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.handles[h]
	if !ok {
		return nil, fmt.Errorf("%w %#x", ErrInvalidHandle, h)
	}
	return r, nil
}

type handleTable struct{ p *Process }

func (t handleTable) CurrentProcessID() uint32 { return t.p.pid }

func (t handleTable) Duplicate(ownerPID uint32, h uintptr) (uintptr, error) {
	owner, ok := t.p.gpu.process(ownerPID)
	if !ok {
		return 0, fmt.Errorf("open process %d: %w", ownerPID, ErrNoProcess)
	}
	r, err := owner.lookup(h)
	if err != nil {
		return 0, err
	}
	return t.p.insert(r), nil
}

func (t handleTable) Close(h uintptr) error {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()
	if _, ok := t.p.handles[h]; !ok {
		return fmt.Errorf("%w %#x", ErrInvalidHandle, h)
	}
	delete(t.p.handles, h)
	return nil
}

// resource is the physical memory of a shared texture.
type resource struct {
	spec  interop.TextureSpec
	mutex chan struct{}

	mu  sync.Mutex
	pix *image.RGBA
}

func newResource(spec interop.TextureSpec) *resource {
	r := &resource{
		spec:  spec,
		mutex: make(chan struct{}, 1),
		pix:   image.NewRGBA(image.Rect(0, 0, spec.Width, spec.Height)),
	}
	r.fill(spec.Fill)
	return r
}

func (r *resource) fill(c color.RGBA) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < len(r.pix.Pix); i += 4 {
		r.pix.Pix[i], r.pix.Pix[i+1], r.pix.Pix[i+2], r.pix.Pix[i+3] = c.R, c.G, c.B, c.A
	}
}

func (r *resource) at(x, y int) color.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pix.RGBAAt(x, y)
}

func (r *resource) acquire() { r.mutex <- struct{}{} }

func (r *resource) release() error {
	select {
	case <-r.mutex:
		return nil
	default:
		return ErrNotAcquired
	}
}

// Device is a fake native device.
type Device struct {
	proc *Process
	ptr  uintptr
	once sync.Once
}

func (d *Device) Capabilities() interop.Capabilities {
	return interop.Capabilities{FeatureLevel: 0xb100, ExtendedResourceSharing: !d.proc.noSharing}
}

func (d *Device) Pointer() uintptr { return d.ptr }

func (d *Device) CreateTexture(spec interop.TextureSpec) (interop.NativeTexture, error) {
	d.proc.mu.Lock()
	d.proc.created++
	d.proc.mu.Unlock()
	if spec.Width < 1 || spec.Height < 1 {
		return nil, errors.New("interoptest: invalid texture size")
	}
	return &Texture{dev: d, res: newResource(spec), ptr: d.proc.gpu.value()}, nil
}

func (d *Device) OpenSharedResource(h uintptr) (interop.NativeTexture, error) {
	r, err := d.proc.lookup(h)
	if err != nil {
		return nil, err
	}
	if d.proc.openErr != nil {
		return nil, d.proc.openErr
	}
	d.proc.mu.Lock()
	d.proc.opened++
	d.proc.mu.Unlock()
	return &Texture{dev: d, res: r, ptr: d.proc.gpu.value()}, nil
}

func (d *Device) Release() {
	d.once.Do(func() {
		d.proc.mu.Lock()
		d.proc.released++
		d.proc.mu.Unlock()
	})
}

// Texture is a fake native texture.
type Texture struct {
	dev      *Device
	res      *resource
	ptr      uintptr
	released bool
}

func (t *Texture) Pointer() uintptr          { return t.ptr }
func (t *Texture) Spec() interop.TextureSpec { return t.res.spec }

func (t *Texture) ExportHandle(access interop.ShareAccess) (uintptr, error) {
	if !t.res.spec.SharedNT {
		return 0, errors.New("interoptest: texture is not shareable")
	}
	return t.dev.proc.insert(t.res), nil
}

func (t *Texture) AcquireSync(key uint64) error {
	t.res.acquire()
	return nil
}

func (t *Texture) ReleaseSync(key uint64) error { return t.res.release() }

func (t *Texture) ReadRGBA(dst *image.RGBA) error {
	t.res.mu.Lock()
	defer t.res.mu.Unlock()
	copy(dst.Pix, t.res.pix.Pix)
	return nil
}

// SetTexel writes through the native API. Callers hold the native lock.
func (t *Texture) SetTexel(x, y int, c color.RGBA) {
	t.res.mu.Lock()
	t.res.pix.SetRGBA(x, y, c)
	t.res.mu.Unlock()
}

func (t *Texture) Release() { t.released = true }

// Released reports whether Release was called.
func (t *Texture) Released() bool { return t.released }
