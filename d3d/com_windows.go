package d3d

import (
	"reflect"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

type iUnknownVtbl struct {
	// every COM object starts with these three
	QueryInterface uintptr
	AddRef         uintptr
	Release        uintptr
}

var (
	iid_ID3D11Device1   = windows.GUID{Data1: 0xa04bfb29, Data2: 0x08ef, Data3: 0x43d6, Data4: [8]byte{0xa4, 0x9c, 0xa9, 0xbd, 0xbd, 0xcb, 0xe6, 0x86}}
	iid_ID3D11Texture2D = windows.GUID{Data1: 0x6f15aaf2, Data2: 0xd208, Data3: 0x4e89, Data4: [8]byte{0x9a, 0xb4, 0x48, 0x95, 0x35, 0xd3, 0x4f, 0x9c}}
	iid_IDXGISurface    = windows.GUID{Data1: 0xcafcb56c, Data2: 0x6ac3, Data3: 0x4889, Data4: [8]byte{0xbf, 0x47, 0x9e, 0x23, 0xbb, 0xd2, 0x60, 0xec}}
	iid_IDXGIResource1  = windows.GUID{Data1: 0x30961379, Data2: 0x4609, Data3: 0x4a41, Data4: [8]byte{0x99, 0x8e, 0x54, 0xfe, 0x56, 0x7e, 0xe0, 0xc1}}
	iid_IDXGIKeyedMutex = windows.GUID{Data1: 0x9d8e1289, Data2: 0xd7b3, Data3: 0x465f, Data4: [8]byte{0x81, 0x26, 0x25, 0x0e, 0x34, 0x9a, 0xf8, 0x5d}}
)

// reflectQueryInterface calls QueryInterface on self and stores the result
// in *obj, which must be a pointer to a COM interface pointer.
func reflectQueryInterface(self interface{}, method uintptr, interfaceID *windows.GUID, obj interface{}) int32 {
	selfValue := reflect.ValueOf(self).Elem()
	objValue := reflect.ValueOf(obj).Elem()

	hr, _, _ := syscall.SyscallN(
		method,
		selfValue.UnsafeAddr(),
		uintptr(unsafe.Pointer(interfaceID)),
		objValue.Addr().Pointer())

	return int32(hr)
}

func comRelease(method uintptr, self unsafe.Pointer) int32 {
	ret, _, _ := syscall.SyscallN(method, uintptr(self))
	return int32(ret)
}

func failed(hr int32) bool {
	return hr < 0
}
