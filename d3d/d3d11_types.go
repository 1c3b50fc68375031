package d3d

import (
	"fmt"

	"github.com/kirides/texshare/interop"
)

const (
	D3D11_SDK_VERSION        = 7
	D3D_DRIVER_TYPE_HARDWARE = 1
	D3D_FEATURE_LEVEL_11_1   = 0xb100

	D3D11_CREATE_DEVICE_SINGLETHREADED                           = 0x1
	D3D11_CREATE_DEVICE_DEBUG                                    = 0x2
	D3D11_CREATE_DEVICE_PREVENT_INTERNAL_THREADING_OPTIMIZATIONS = 0x8

	D3D11_FEATURE_D3D11_OPTIONS = 2

	D3D11_USAGE_DEFAULT = 0
	D3D11_USAGE_STAGING = 3

	D3D11_BIND_SHADER_RESOURCE = 0x8
	D3D11_BIND_RENDER_TARGET   = 0x20

	D3D11_CPU_ACCESS_READ = 0x20000

	D3D11_RESOURCE_MISC_SHARED_KEYEDMUTEX = 0x100
	D3D11_RESOURCE_MISC_SHARED_NTHANDLE   = 0x800

	INFINITE = 0xFFFFFFFF
)

type _D3D11_TEXTURE2D_DESC struct {
	Width          uint32
	Height         uint32
	MipLevels      uint32
	ArraySize      uint32
	Format         uint32
	SampleDesc     _DXGI_SAMPLE_DESC
	Usage          uint32
	BindFlags      uint32
	CPUAccessFlags uint32
	MiscFlags      uint32
}

type _D3D11_SUBRESOURCE_DATA struct {
	PSysMem          uintptr
	SysMemPitch      uint32
	SysMemSlicePitch uint32
}

type _D3D11_FEATURE_DATA_D3D11_OPTIONS struct {
	OutputMergerLogicOp                    uint32 // BOOL
	UAVOnlyRenderingForcedSampleCount      uint32
	DiscardAPIsSeenByDriver                uint32
	FlagsForUpdateAndCopySeenByDriver      uint32
	ClearView                              uint32
	CopyWithOverlap                        uint32
	ConstantBufferPartialUpdate            uint32
	ConstantBufferOffsetting               uint32
	MapNoOverwriteOnDynamicConstantBuffer  uint32
	MapNoOverwriteOnDynamicBufferSRV       uint32
	MultisampleRTVWithForcedSampleCountOne uint32
	SAD4ShaderInstructions                 uint32
	ExtendedDoublesShaderInstructions      uint32
	ExtendedResourceSharing                uint32
}

// dxgiFormat maps a pixel format to its DXGI_FORMAT.
func dxgiFormat(f interop.PixelFormat) (uint32, error) {
	switch f {
	case interop.FormatRGBA8:
		return DXGI_FORMAT_R8G8B8A8_UNORM, nil
	case interop.FormatRGBA8SRGB:
		return DXGI_FORMAT_R8G8B8A8_UNORM_SRGB, nil
	case interop.FormatBGRA8:
		return DXGI_FORMAT_B8G8R8A8_UNORM, nil
	}
	return 0, fmt.Errorf("unsupported pixel format %v", f)
}

func pixelFormat(dxgi uint32) (interop.PixelFormat, error) {
	switch dxgi {
	case DXGI_FORMAT_R8G8B8A8_UNORM:
		return interop.FormatRGBA8, nil
	case DXGI_FORMAT_R8G8B8A8_UNORM_SRGB:
		return interop.FormatRGBA8SRGB, nil
	case DXGI_FORMAT_B8G8R8A8_UNORM:
		return interop.FormatBGRA8, nil
	}
	return 0, fmt.Errorf("unsupported DXGI_FORMAT %d", dxgi)
}

// textureDesc builds the creation desc of a shared texture.
func textureDesc(spec interop.TextureSpec) (_D3D11_TEXTURE2D_DESC, error) {
	format, err := dxgiFormat(spec.Format)
	if err != nil {
		return _D3D11_TEXTURE2D_DESC{}, err
	}
	desc := _D3D11_TEXTURE2D_DESC{
		Width:      uint32(spec.Width),
		Height:     uint32(spec.Height),
		MipLevels:  spec.MipLevels,
		ArraySize:  1,
		Format:     format,
		SampleDesc: _DXGI_SAMPLE_DESC{Count: 1},
		Usage:      D3D11_USAGE_DEFAULT,
		BindFlags:  D3D11_BIND_RENDER_TARGET | D3D11_BIND_SHADER_RESOURCE,
	}
	if spec.SharedNT {
		desc.MiscFlags |= D3D11_RESOURCE_MISC_SHARED_NTHANDLE
	}
	if spec.KeyedMutex {
		desc.MiscFlags |= D3D11_RESOURCE_MISC_SHARED_KEYEDMUTEX
	}
	return desc, nil
}

func shareAccess(a interop.ShareAccess) uint32 {
	var v uint32
	if a&interop.ShareRead != 0 {
		v |= DXGI_SHARED_RESOURCE_READ
	}
	if a&interop.ShareWrite != 0 {
		v |= DXGI_SHARED_RESOURCE_WRITE
	}
	return v
}

// initialData returns one tightly packed level per mip filled with spec.Fill
// in the texture's byte order.
func initialData(spec interop.TextureSpec) [][]byte {
	c := spec.Fill
	px := [4]byte{c.R, c.G, c.B, c.A}
	if spec.Format == interop.FormatBGRA8 {
		px = [4]byte{c.B, c.G, c.R, c.A}
	}
	levels := make([][]byte, spec.MipLevels)
	w, h := spec.Width, spec.Height
	for i := range levels {
		buf := make([]byte, w*h*4)
		for j := 0; j < len(buf); j += 4 {
			copy(buf[j:j+4], px[:])
		}
		levels[i] = buf
		w, h = max(w/2, 1), max(h/2, 1)
	}
	return levels
}
