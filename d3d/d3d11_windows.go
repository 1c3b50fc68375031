package d3d

import (
	"fmt"
	"runtime"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/kirides/texshare/interop"
)

var (
	modD3D11 = windows.NewLazySystemDLL("d3d11.dll")

	procD3D11CreateDevice = modD3D11.NewProc("D3D11CreateDevice")
)

type ID3D11Device struct {
	vtbl *iD3D11DeviceVtbl
}

func (obj *ID3D11Device) QueryInterface(iid windows.GUID, pp interface{}) int32 {
	return reflectQueryInterface(obj, obj.vtbl.QueryInterface, &iid, pp)
}

func (obj *ID3D11Device) Release() int32 {
	return comRelease(obj.vtbl.Release, unsafe.Pointer(obj))
}

type ID3D11Device1 struct {
	vtbl *iD3D11Device1Vtbl
}

func (obj *ID3D11Device1) CreateTexture2D(desc *_D3D11_TEXTURE2D_DESC, initial *_D3D11_SUBRESOURCE_DATA, ppTexture2D **ID3D11Texture2D) int32 {
	ret, _, _ := syscall.SyscallN(
		obj.vtbl.CreateTexture2D,
		uintptr(unsafe.Pointer(obj)),
		uintptr(unsafe.Pointer(desc)),
		uintptr(unsafe.Pointer(initial)),
		uintptr(unsafe.Pointer(ppTexture2D)),
	)
	return int32(ret)
}

func (obj *ID3D11Device1) CheckFeatureSupport(feature uint32, data unsafe.Pointer, size uintptr) int32 {
	ret, _, _ := syscall.SyscallN(
		obj.vtbl.CheckFeatureSupport,
		uintptr(unsafe.Pointer(obj)),
		uintptr(feature),
		uintptr(data),
		size,
	)
	return int32(ret)
}

func (obj *ID3D11Device1) GetFeatureLevel() uint32 {
	ret, _, _ := syscall.SyscallN(obj.vtbl.GetFeatureLevel, uintptr(unsafe.Pointer(obj)))
	return uint32(ret)
}

func (obj *ID3D11Device1) OpenSharedResource1(handle uintptr, iid windows.GUID, ppResource unsafe.Pointer) int32 {
	ret, _, _ := syscall.SyscallN(
		obj.vtbl.OpenSharedResource1,
		uintptr(unsafe.Pointer(obj)),
		handle,
		uintptr(unsafe.Pointer(&iid)),
		uintptr(ppResource),
	)
	return int32(ret)
}

func (obj *ID3D11Device1) Release() int32 {
	return comRelease(obj.vtbl.Release, unsafe.Pointer(obj))
}

type ID3D11DeviceContext struct {
	vtbl *iD3D11DeviceContextVtbl
}

func (obj *ID3D11DeviceContext) CopySubresourceRegion2D(dst *ID3D11Texture2D, dstSubresource uint32, src *ID3D11Texture2D, srcSubresource uint32) {
	syscall.SyscallN(
		obj.vtbl.CopySubresourceRegion,
		uintptr(unsafe.Pointer(obj)),
		uintptr(unsafe.Pointer(dst)),
		uintptr(dstSubresource),
		0, 0, 0,
		uintptr(unsafe.Pointer(src)),
		uintptr(srcSubresource),
		0,
	)
}

func (obj *ID3D11DeviceContext) Flush() {
	syscall.SyscallN(obj.vtbl.Flush, uintptr(unsafe.Pointer(obj)))
}

func (obj *ID3D11DeviceContext) Release() int32 {
	return comRelease(obj.vtbl.Release, unsafe.Pointer(obj))
}

// Device is a hardware Direct3D 11.1 device that allocates and opens shared
// textures. It is single-threaded: every call must come from the thread
// that renders.
type Device struct {
	device  *ID3D11Device1
	context *ID3D11DeviceContext
	caps    interop.Capabilities
}

// NewD3D11Device creates a hardware device at feature level 11_1 without
// internal threading optimizations and queries its resource sharing
// support. There is no fallback to lower feature levels.
func NewD3D11Device(debug bool) (*Device, error) {
	flags := uint32(D3D11_CREATE_DEVICE_SINGLETHREADED | D3D11_CREATE_DEVICE_PREVENT_INTERNAL_THREADING_OPTIMIZATIONS)
	if debug {
		flags |= D3D11_CREATE_DEVICE_DEBUG
	}
	levels := [1]uint32{D3D_FEATURE_LEVEL_11_1}
	var base *ID3D11Device
	var ctx *ID3D11DeviceContext
	var level uint32
	hr, _, _ := syscall.SyscallN(
		procD3D11CreateDevice.Addr(),
		0, // pAdapter
		D3D_DRIVER_TYPE_HARDWARE,
		0, // Software
		uintptr(flags),
		uintptr(unsafe.Pointer(&levels[0])),
		uintptr(len(levels)),
		D3D11_SDK_VERSION,
		uintptr(unsafe.Pointer(&base)),
		uintptr(unsafe.Pointer(&level)),
		uintptr(unsafe.Pointer(&ctx)),
	)
	if failed(int32(hr)) {
		return nil, fmt.Errorf("failed to D3D11CreateDevice. %w", _DXGI_ERROR(hr))
	}

	var dev1 *ID3D11Device1
	hr2 := base.QueryInterface(iid_ID3D11Device1, &dev1)
	base.Release()
	if failed(hr2) {
		ctx.Release()
		return nil, fmt.Errorf("failed to QueryInterface(iid_ID3D11Device1, ...). %w", _DXGI_ERROR(hr2))
	}

	var opts _D3D11_FEATURE_DATA_D3D11_OPTIONS
	hr2 = dev1.CheckFeatureSupport(D3D11_FEATURE_D3D11_OPTIONS, unsafe.Pointer(&opts), unsafe.Sizeof(opts))
	if failed(hr2) {
		ctx.Release()
		dev1.Release()
		return nil, fmt.Errorf("failed to CheckFeatureSupport(D3D11_FEATURE_D3D11_OPTIONS). %w", _DXGI_ERROR(hr2))
	}

	return &Device{
		device:  dev1,
		context: ctx,
		caps: interop.Capabilities{
			FeatureLevel:            level,
			ExtendedResourceSharing: opts.ExtendedResourceSharing != 0,
		},
	}, nil
}

func (d *Device) Capabilities() interop.Capabilities { return d.caps }
func (d *Device) Pointer() uintptr                   { return uintptr(unsafe.Pointer(d.device)) }

// CreateTexture allocates a render target and shader resource texture
// filled with spec.Fill.
func (d *Device) CreateTexture(spec interop.TextureSpec) (interop.NativeTexture, error) {
	desc, err := textureDesc(spec)
	if err != nil {
		return nil, err
	}
	levels := initialData(spec)
	data := make([]_D3D11_SUBRESOURCE_DATA, len(levels))
	w := spec.Width
	for i, l := range levels {
		data[i] = _D3D11_SUBRESOURCE_DATA{
			PSysMem:     uintptr(unsafe.Pointer(&l[0])),
			SysMemPitch: uint32(w * 4),
		}
		w = max(w/2, 1)
	}

	var tex *ID3D11Texture2D
	hr := d.device.CreateTexture2D(&desc, &data[0], &tex)
	runtime.KeepAlive(levels)
	if failed(hr) {
		return nil, fmt.Errorf("failed to CreateTexture2D(%dx%d, levels=%d). %w", desc.Width, desc.Height, desc.MipLevels, _DXGI_ERROR(hr))
	}
	return newTexture(d, tex, spec)
}

// OpenSharedResource opens an NT handle, duplicated into this process, as
// a texture. The handle stays owned by the caller.
func (d *Device) OpenSharedResource(handle uintptr) (interop.NativeTexture, error) {
	var tex *ID3D11Texture2D
	hr := d.device.OpenSharedResource1(handle, iid_ID3D11Texture2D, unsafe.Pointer(&tex))
	if failed(hr) {
		return nil, fmt.Errorf("failed to OpenSharedResource1(%#x). %w", handle, _DXGI_ERROR(hr))
	}
	var desc _D3D11_TEXTURE2D_DESC
	tex.GetDesc(&desc)
	format, err := pixelFormat(desc.Format)
	if err != nil {
		tex.Release()
		return nil, err
	}
	return newTexture(d, tex, interop.TextureSpec{
		Width:      int(desc.Width),
		Height:     int(desc.Height),
		Format:     format,
		MipLevels:  desc.MipLevels,
		SharedNT:   desc.MiscFlags&D3D11_RESOURCE_MISC_SHARED_NTHANDLE != 0,
		KeyedMutex: desc.MiscFlags&D3D11_RESOURCE_MISC_SHARED_KEYEDMUTEX != 0,
	})
}

func (d *Device) Release() {
	if d.context != nil {
		d.context.Release()
		d.context = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
}
