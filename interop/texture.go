package interop

import (
	"fmt"
	"image"
	"image/color"
	"math/bits"
	"sync"
)

// MaxTextureDimension is the largest 2D texture side a feature level 11
// device accepts.
const MaxTextureDimension = 16384

// PixelFormat is the texel layout of a shared texture.
type PixelFormat int

const (
	FormatRGBA8 PixelFormat = iota
	FormatRGBA8SRGB
	FormatBGRA8
)

func (f PixelFormat) String() string {
	switch f {
	case FormatRGBA8:
		return "rgba8"
	case FormatRGBA8SRGB:
		return "rgba8-srgb"
	case FormatBGRA8:
		return "bgra8"
	}
	return fmt.Sprintf("PixelFormat(%d)", int(f))
}

// ParsePixelFormat is the inverse of PixelFormat.String.
func ParsePixelFormat(s string) (PixelFormat, error) {
	for _, f := range []PixelFormat{FormatRGBA8, FormatRGBA8SRGB, FormatBGRA8} {
		if f.String() == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown pixel format %q", s)
}

// MipLevels returns floor(log2(max(width, height)))+1 when mipmaps is set,
// and 1 otherwise.
func MipLevels(width, height int, mipmaps bool) uint32 {
	if !mipmaps {
		return 1
	}
	m := width
	if height > m {
		m = height
	}
	if m < 1 {
		return 1
	}
	return uint32(bits.Len(uint(m)))
}

// TextureDesc describes a texture requested from Context.CreateSharedTexture.
type TextureDesc struct {
	Width   int
	Height  int
	Format  PixelFormat
	Mipmaps bool
	// Fill is the initial texel value, nil means opaque green.
	Fill *color.RGBA
}

func (d TextureDesc) validate() error {
	if d.Width < 1 || d.Height < 1 || d.Width > MaxTextureDimension || d.Height > MaxTextureDimension {
		return fmt.Errorf("invalid size %dx%d", d.Width, d.Height)
	}
	switch d.Format {
	case FormatRGBA8, FormatRGBA8SRGB, FormatBGRA8:
	default:
		return fmt.Errorf("invalid format %v", d.Format)
	}
	return nil
}

// TextureSpec is what a NativeDevice is asked to allocate.
type TextureSpec struct {
	Width, Height int
	Format        PixelFormat
	MipLevels     uint32
	SharedNT      bool
	KeyedMutex    bool
	Fill          color.RGBA
}

// ShareDescriptor identifies an exported texture to another process. It is a
// weak reference valid only while the owning process and its device live.
type ShareDescriptor struct {
	OwnerProcessID uint32
	Handle         uintptr
}

func (d ShareDescriptor) String() string {
	return fmt.Sprintf("pid=%d handle=%#x", d.OwnerProcessID, d.Handle)
}

// Texture is a shared texture either allocated by this process (owned) or
// imported from another one. Imported textures are foreign-owned: Release
// only drops the local mapping.
type Texture struct {
	ctx      *Context
	native   NativeTexture
	width    int
	height   int
	format   PixelFormat
	levels   uint32
	imported bool

	// for owned textures the exported handle, for imported ones the
	// duplicated local handle
	shareHandle uintptr
	desc        ShareDescriptor
	exported    bool

	once       sync.Once
	nativeLock *Lock
	released   bool
}

func (t *Texture) Width() int            { return t.width }
func (t *Texture) Height() int           { return t.height }
func (t *Texture) Format() PixelFormat   { return t.format }
func (t *Texture) MipLevels() uint32     { return t.levels }
func (t *Texture) Imported() bool        { return t.imported }
func (t *Texture) Native() NativeTexture { return t.native }
func (t *Texture) Bounds() image.Rectangle {
	return image.Rect(0, 0, t.width, t.height)
}

// ShareHandle returns the handle used for foreign registration, or 0 when an
// owned texture was never exported.
func (t *Texture) ShareHandle() uintptr { return t.shareHandle }

// NativeLock returns the lock serializing access through the API that
// allocated the memory. It is backed by the texture's keyed mutex.
func (t *Texture) NativeLock() *Lock {
	t.once.Do(func() {
		t.nativeLock = newLock(SideNative, keyedMutex{t.native})
	})
	return t.nativeLock
}

// Snapshot copies the texture into dst through the native API while holding
// the native lock.
func (t *Texture) Snapshot(dst *image.RGBA) error {
	r, ok := t.native.(Reader)
	if !ok {
		return fmt.Errorf("interop: texture readback not supported")
	}
	return t.NativeLock().With(func() error {
		return r.ReadRGBA(dst)
	})
}

// Release frees the local texture object. Owned textures also close their
// exported handle, which invalidates any published ShareDescriptor.
func (t *Texture) Release() {
	if t.released {
		return
	}
	t.released = true
	if t.ctx != nil {
		if b := t.ctx.bindingOf(t); b != nil {
			if err := b.Close(); err != nil {
				Logger().Warn("deregister texture", "name", b.name, "err", err)
			}
		}
	}
	if t.nativeLock != nil {
		t.nativeLock.close()
	}
	if t.shareHandle != 0 && t.ctx != nil {
		if err := t.ctx.handles.Close(t.shareHandle); err != nil {
			Logger().Warn("close share handle", "handle", t.shareHandle, "err", err)
		}
	}
	t.native.Release()
	if t.ctx != nil {
		t.ctx.forget(t)
	}
}

type keyedMutex struct{ t NativeTexture }

func (k keyedMutex) lock() error    { return k.t.AcquireSync(0) }
func (k keyedMutex) unlock() error  { return k.t.ReleaseSync(0) }
func (k keyedMutex) release() error { return nil }
