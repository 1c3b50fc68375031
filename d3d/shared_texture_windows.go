package d3d

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/kirides/texshare/interop"
)

type ID3D11Texture2D struct {
	vtbl *iD3D11Texture2DVtbl
}

func (obj *ID3D11Texture2D) GetDesc(desc *_D3D11_TEXTURE2D_DESC) int32 {
	ret, _, _ := syscall.SyscallN(
		obj.vtbl.GetDesc,
		uintptr(unsafe.Pointer(obj)),
		uintptr(unsafe.Pointer(desc)),
	)
	return int32(ret)
}

func (obj *ID3D11Texture2D) QueryInterface(iid windows.GUID, pp interface{}) int32 {
	return reflectQueryInterface(obj, obj.vtbl.QueryInterface, &iid, pp)
}

func (obj *ID3D11Texture2D) Release() int32 {
	return comRelease(obj.vtbl.Release, unsafe.Pointer(obj))
}

type IDXGIResource1 struct {
	vtbl *iDXGIResource1Vtbl
}

func (obj *IDXGIResource1) CreateSharedHandle(access uint32, handle *windows.Handle) int32 {
	ret, _, _ := syscall.SyscallN(
		obj.vtbl.CreateSharedHandle,
		uintptr(unsafe.Pointer(obj)),
		0, // pAttributes
		uintptr(access),
		0, // lpName
		uintptr(unsafe.Pointer(handle)),
	)
	return int32(ret)
}

func (obj *IDXGIResource1) Release() int32 {
	return comRelease(obj.vtbl.Release, unsafe.Pointer(obj))
}

type IDXGIKeyedMutex struct {
	vtbl *iDXGIKeyedMutexVtbl
}

func (obj *IDXGIKeyedMutex) AcquireSync(key uint64, milliseconds uint32) int32 {
	var ret uintptr
	if unsafe.Sizeof(uintptr(0)) == 8 {
		ret, _, _ = syscall.SyscallN(obj.vtbl.AcquireSync, uintptr(unsafe.Pointer(obj)), uintptr(key), uintptr(milliseconds))
	} else {
		// UINT64 takes two stack slots on 386
		ret, _, _ = syscall.SyscallN(obj.vtbl.AcquireSync, uintptr(unsafe.Pointer(obj)), uintptr(key), uintptr(key>>32), uintptr(milliseconds))
	}
	return int32(ret)
}

func (obj *IDXGIKeyedMutex) ReleaseSync(key uint64) int32 {
	var ret uintptr
	if unsafe.Sizeof(uintptr(0)) == 8 {
		ret, _, _ = syscall.SyscallN(obj.vtbl.ReleaseSync, uintptr(unsafe.Pointer(obj)), uintptr(key))
	} else {
		ret, _, _ = syscall.SyscallN(obj.vtbl.ReleaseSync, uintptr(unsafe.Pointer(obj)), uintptr(key), uintptr(key>>32))
	}
	return int32(ret)
}

func (obj *IDXGIKeyedMutex) Release() int32 {
	return comRelease(obj.vtbl.Release, unsafe.Pointer(obj))
}

// Texture is a shared texture of a Device, either allocated by it or opened
// from a share handle.
type Texture struct {
	dev   *Device
	tex   *ID3D11Texture2D
	mutex *IDXGIKeyedMutex
	spec  interop.TextureSpec
	stage *stage
}

func newTexture(d *Device, tex *ID3D11Texture2D, spec interop.TextureSpec) (*Texture, error) {
	t := &Texture{dev: d, tex: tex, spec: spec}
	if spec.KeyedMutex {
		hr := tex.QueryInterface(iid_IDXGIKeyedMutex, &t.mutex)
		if failed(hr) {
			tex.Release()
			return nil, fmt.Errorf("failed to QueryInterface(iid_IDXGIKeyedMutex, ...). %w", _DXGI_ERROR(hr))
		}
	}
	return t, nil
}

func (t *Texture) Pointer() uintptr          { return uintptr(unsafe.Pointer(t.tex)) }
func (t *Texture) Spec() interop.TextureSpec { return t.spec }

// ExportHandle creates an NT handle to the texture. The caller owns it and
// closes it with CloseHandle.
func (t *Texture) ExportHandle(access interop.ShareAccess) (uintptr, error) {
	var res *IDXGIResource1
	hr := t.tex.QueryInterface(iid_IDXGIResource1, &res)
	if failed(hr) {
		return 0, fmt.Errorf("failed to QueryInterface(iid_IDXGIResource1, ...). %w", _DXGI_ERROR(hr))
	}
	defer res.Release()

	var h windows.Handle
	hr = res.CreateSharedHandle(shareAccess(access), &h)
	if failed(hr) {
		return 0, fmt.Errorf("failed to CreateSharedHandle. %w", _DXGI_ERROR(hr))
	}
	return uintptr(h), nil
}

// AcquireSync waits for the keyed mutex without timeout.
func (t *Texture) AcquireSync(key uint64) error {
	if t.mutex == nil {
		return fmt.Errorf("texture has no keyed mutex")
	}
	if hr := t.mutex.AcquireSync(key, INFINITE); hr != 0 {
		return fmt.Errorf("failed to AcquireSync(%d). %w", key, _DXGI_ERROR(hr))
	}
	return nil
}

func (t *Texture) ReleaseSync(key uint64) error {
	if t.mutex == nil {
		return fmt.Errorf("texture has no keyed mutex")
	}
	if hr := t.mutex.ReleaseSync(key); failed(hr) {
		return fmt.Errorf("failed to ReleaseSync(%d). %w", key, _DXGI_ERROR(hr))
	}
	return nil
}

func (t *Texture) Release() {
	if t.stage != nil {
		t.stage.Release()
		t.stage = nil
	}
	if t.mutex != nil {
		t.mutex.Release()
		t.mutex = nil
	}
	if t.tex != nil {
		t.tex.Release()
		t.tex = nil
	}
}
