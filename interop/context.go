package interop

import (
	"errors"
	"fmt"
	"image/color"
	"sync"
)

var defaultFill = color.RGBA{G: 255, A: 255}

// Context owns one native device, the interop device handle binding it to
// the foreign API, and everything created through them. There is one
// Context per process; it must be used from the thread the foreign
// context is current on.
type Context struct {
	native  NativeDevice
	handles HandleTable
	foreign ForeignAPI
	caps    Capabilities
	device  InteropDevice

	mu       sync.Mutex
	textures []*Texture
	bindings map[*Texture]*Binding
	closed   bool
}

// Open creates the native device, verifies it can share resources with the
// foreign API and opens the interop device. A device without extended
// resource sharing yields an ErrInteropUnsupported error and is released
// before any texture is created.
func Open(b Backend) (*Context, error) {
	foreign := b.ForeignAPI()
	native, err := b.CreateDevice()
	if err != nil {
		return nil, newError(KindDeviceCreation, "create device", err)
	}
	caps := native.Capabilities()
	if !caps.ExtendedResourceSharing {
		native.Release()
		return nil, newError(KindInteropUnsupported, "check feature support",
			errors.New("extended resource sharing not supported"))
	}
	if err := foreign.Supported(); err != nil {
		native.Release()
		return nil, newError(KindInteropUnsupported, "check foreign api", err)
	}
	dev, err := foreign.OpenDevice(native)
	if err != nil {
		native.Release()
		return nil, newError(KindDeviceCreation, "open interop device", err)
	}
	Logger().Info("interop device opened",
		"featureLevel", fmt.Sprintf("%#x", caps.FeatureLevel),
		"device", fmt.Sprintf("%#x", uintptr(dev)))
	return &Context{
		native:   native,
		handles:  b.HandleTable(),
		foreign:  foreign,
		caps:     caps,
		device:   dev,
		bindings: make(map[*Texture]*Binding),
	}, nil
}

func (c *Context) Capabilities() Capabilities   { return c.caps }
func (c *Context) InteropDevice() InteropDevice { return c.device }
func (c *Context) ProcessID() uint32            { return c.handles.CurrentProcessID() }

// CreateSharedTexture allocates a texture that can be exported as an NT
// handle and is synchronized by a keyed mutex.
func (c *Context) CreateSharedTexture(desc TextureDesc) (*Texture, error) {
	const op = "create shared texture"
	if err := c.check(); err != nil {
		return nil, newError(KindAllocation, op, err)
	}
	if err := desc.validate(); err != nil {
		return nil, newError(KindAllocation, op, err)
	}
	fill := defaultFill
	if desc.Fill != nil {
		fill = *desc.Fill
	}
	spec := TextureSpec{
		Width:      desc.Width,
		Height:     desc.Height,
		Format:     desc.Format,
		MipLevels:  MipLevels(desc.Width, desc.Height, desc.Mipmaps),
		SharedNT:   true,
		KeyedMutex: true,
		Fill:       fill,
	}
	nt, err := c.native.CreateTexture(spec)
	if err != nil {
		return nil, newError(KindAllocation, op, err)
	}
	t := &Texture{
		ctx:    c,
		native: nt,
		width:  spec.Width,
		height: spec.Height,
		format: spec.Format,
		levels: spec.MipLevels,
	}
	c.track(t)
	Logger().Debug("shared texture created", "width", t.width, "height", t.height,
		"format", t.format, "mipLevels", t.levels)
	return t, nil
}

// Export derives a handle another process can duplicate. It does not bind
// the texture to the foreign API.
func (c *Context) Export(t *Texture) (ShareDescriptor, error) {
	const op = "export handle"
	if err := c.check(); err != nil {
		return ShareDescriptor{}, newError(KindExport, op, err)
	}
	if t.imported {
		return ShareDescriptor{}, newError(KindExport, op, errors.New("texture is imported"))
	}
	if t.exported {
		return t.desc, nil
	}
	h, err := t.native.ExportHandle(ShareReadWrite)
	if err != nil {
		return ShareDescriptor{}, newError(KindExport, op, err)
	}
	t.shareHandle = h
	t.exported = true
	t.desc = ShareDescriptor{OwnerProcessID: c.handles.CurrentProcessID(), Handle: h}
	Logger().Info("texture exported", "pid", t.desc.OwnerProcessID, "handle", fmt.Sprintf("%#x", h))
	return t.desc, nil
}

// Import duplicates the descriptor's handle into this process and opens it on
// the native device.
func (c *Context) Import(d ShareDescriptor) (*Texture, error) {
	if err := c.check(); err != nil {
		return nil, newError(KindDuplication, "duplicate handle", err)
	}
	if d.Handle == 0 {
		return nil, newError(KindDuplication, "duplicate handle", errors.New("null handle"))
	}
	local, err := c.handles.Duplicate(d.OwnerProcessID, d.Handle)
	if err != nil {
		return nil, newError(KindDuplication, "duplicate handle", err)
	}
	nt, err := c.native.OpenSharedResource(local)
	if err != nil {
		if cerr := c.handles.Close(local); cerr != nil {
			Logger().Warn("close local handle", "handle", local, "err", cerr)
		}
		return nil, newError(KindOpenResource, "open shared resource", err)
	}
	t := &Texture{
		ctx:         c,
		native:      nt,
		imported:    true,
		shareHandle: local,
		desc:        d,
	}
	if s, ok := nt.(interface{ Spec() TextureSpec }); ok {
		spec := s.Spec()
		t.width, t.height, t.format, t.levels = spec.Width, spec.Height, spec.Format, spec.MipLevels
	}
	c.track(t)
	Logger().Info("texture imported", "owner", d.OwnerProcessID,
		"remoteHandle", fmt.Sprintf("%#x", d.Handle), "localHandle", fmt.Sprintf("%#x", local),
		"width", t.width, "height", t.height)
	return t, nil
}

// Register binds t to a fresh foreign object name with read+write access.
func (c *Context) Register(t *Texture) (*Binding, error) {
	return c.RegisterAccess(t, AccessReadWrite)
}

// RegisterAccess is Register with an explicit access mode. A texture can be
// registered once per Context until its binding is closed.
func (c *Context) RegisterAccess(t *Texture, access AccessMode) (*Binding, error) {
	const op = "register object"
	if err := c.check(); err != nil {
		return nil, newError(KindRegistration, op, err)
	}
	if t.released {
		return nil, newError(KindRegistration, op, errors.New("texture released"))
	}
	if t.shareHandle == 0 {
		return nil, newError(KindRegistration, op, errors.New("texture has no share handle, export it first"))
	}
	c.mu.Lock()
	_, dup := c.bindings[t]
	c.mu.Unlock()
	if dup {
		return nil, newError(KindRegistration, op, errors.New("texture already registered"))
	}

	name, err := c.foreign.GenTexture()
	if err != nil {
		return nil, newError(KindRegistration, "gen texture", err)
	}
	token, err := c.foreign.Register(c.device, t.native, t.shareHandle, name, ResourceTexture2D, access)
	if err != nil {
		c.foreign.DeleteTexture(name)
		return nil, newError(KindRegistration, op, err)
	}
	b := &Binding{
		lock:   newLock(SideForeign, foreignToken{api: c.foreign, device: c.device, token: token}),
		ctx:    c,
		tex:    t,
		name:   name,
		token:  token,
		access: access,
	}
	c.mu.Lock()
	c.bindings[t] = b
	c.mu.Unlock()
	Logger().Debug("texture registered", "name", name, "token", fmt.Sprintf("%#x", uintptr(token)))
	return b, nil
}

// Close deregisters every open binding, releases every texture, closes the
// interop device and releases the native device. Descriptors exported from
// this Context become invalid.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	bindings := make([]*Binding, 0, len(c.bindings))
	for _, b := range c.bindings {
		bindings = append(bindings, b)
	}
	textures := append([]*Texture(nil), c.textures...)
	c.mu.Unlock()

	var errs []error
	for _, b := range bindings {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(textures) - 1; i >= 0; i-- {
		textures[i].Release()
	}
	if err := c.foreign.CloseDevice(c.device); err != nil {
		errs = append(errs, fmt.Errorf("close interop device: %w", err))
	}
	c.native.Release()
	return errors.Join(errs...)
}

func (c *Context) check() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

func (c *Context) track(t *Texture) {
	c.mu.Lock()
	c.textures = append(c.textures, t)
	c.mu.Unlock()
}

func (c *Context) forget(t *Texture) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, x := range c.textures {
		if x == t {
			c.textures = append(c.textures[:i], c.textures[i+1:]...)
			break
		}
	}
}

func (c *Context) bindingOf(t *Texture) *Binding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bindings[t]
}

func (c *Context) unbind(b *Binding) {
	c.mu.Lock()
	if c.bindings[b.tex] == b {
		delete(c.bindings, b.tex)
	}
	c.mu.Unlock()
}
