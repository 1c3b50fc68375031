package d3d

import (
	"fmt"
	"image"
	"syscall"
	"unsafe"

	"github.com/kirides/texshare/interop"
	"github.com/kirides/texshare/swizzle"
)

type IDXGISurface struct {
	vtbl *iDXGISurfaceVtbl
}

func (obj *IDXGISurface) Map(pLockedRect *DXGI_MAPPED_RECT, mapFlags uint32) int32 {
	ret, _, _ := syscall.SyscallN(
		obj.vtbl.Map,
		uintptr(unsafe.Pointer(obj)),
		uintptr(unsafe.Pointer(pLockedRect)),
		uintptr(mapFlags),
	)
	return int32(ret)
}

func (obj *IDXGISurface) Unmap() int32 {
	ret, _, _ := syscall.SyscallN(obj.vtbl.Unmap, uintptr(unsafe.Pointer(obj)))
	return int32(ret)
}

func (obj *IDXGISurface) Release() int32 {
	return comRelease(obj.vtbl.Release, unsafe.Pointer(obj))
}

// stage is a CPU readable copy of the top mip level of a texture.
type stage struct {
	tex        *ID3D11Texture2D
	surface    *IDXGISurface
	mappedRect DXGI_MAPPED_RECT
	size       image.Point
}

func newStage(dev *Device, src *ID3D11Texture2D) (*stage, error) {
	var hr int32
	desc := _D3D11_TEXTURE2D_DESC{}
	hr = src.GetDesc(&desc)
	if failed(hr) {
		return nil, fmt.Errorf("failed to GetDesc. %w", _DXGI_ERROR(hr))
	}

	desc.Usage = D3D11_USAGE_STAGING
	desc.CPUAccessFlags = D3D11_CPU_ACCESS_READ
	desc.BindFlags = 0
	desc.MipLevels = 1
	desc.ArraySize = 1
	desc.MiscFlags = 0
	desc.SampleDesc.Count = 1

	s := &stage{size: image.Pt(int(desc.Width), int(desc.Height))}
	hr = dev.device.CreateTexture2D(&desc, nil, &s.tex)
	if failed(hr) {
		return nil, fmt.Errorf("failed to CreateTexture2D(staging). %w", _DXGI_ERROR(hr))
	}
	hr = s.tex.QueryInterface(iid_IDXGISurface, &s.surface)
	if failed(hr) {
		s.Release()
		return nil, fmt.Errorf("failed to QueryInterface(iid_IDXGISurface, ...). %w", _DXGI_ERROR(hr))
	}
	return s, nil
}

func (s *stage) Release() {
	if s.surface != nil {
		s.surface.Release()
		s.surface = nil
	}
	if s.tex != nil {
		s.tex.Release()
		s.tex = nil
	}
}

// ReadRGBA copies the top mip level into dst, converting BGRA textures to
// RGBA. The caller holds the keyed mutex.
func (t *Texture) ReadRGBA(dst *image.RGBA) error {
	if t.stage == nil {
		s, err := newStage(t.dev, t.tex)
		if err != nil {
			return err
		}
		t.stage = s
	}
	s := t.stage
	t.dev.context.CopySubresourceRegion2D(s.tex, 0, t.tex, 0)

	hr := s.surface.Map(&s.mappedRect, DXGI_MAP_READ)
	if failed(hr) {
		return fmt.Errorf("failed to surface.Map(...). %w", _DXGI_ERROR(hr))
	}
	defer s.surface.Unmap()

	w := min(s.size.X, dst.Rect.Dx())
	h := min(s.size.Y, dst.Rect.Dy())
	pitch := int(s.mappedRect.Pitch)
	src := unsafe.Slice((*byte)(unsafe.Pointer(s.mappedRect.PBits)), pitch*s.size.Y)
	for y := 0; y < h; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
		copy(row, src[y*pitch:y*pitch+w*4])
		if t.spec.Format == interop.FormatBGRA8 {
			swizzle.BGRA(row)
		}
	}
	return nil
}
