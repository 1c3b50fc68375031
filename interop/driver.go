package interop

import "image"

// Capabilities reported by a native device after creation.
type Capabilities struct {
	FeatureLevel            uint32
	ExtendedResourceSharing bool
}

// ShareAccess are the access rights requested for an exported handle.
type ShareAccess uint32

const (
	ShareRead  ShareAccess = 1 << 0
	ShareWrite ShareAccess = 1 << 1

	ShareReadWrite = ShareRead | ShareWrite
)

// ResourceKind is the foreign object type a native texture is bound as.
type ResourceKind uint32

const ResourceTexture2D ResourceKind = 0x0DE1 // GL_TEXTURE_2D

// AccessMode is the foreign API's access to a registered object.
type AccessMode uint32

const (
	AccessReadOnly     AccessMode = 0x0000
	AccessReadWrite    AccessMode = 0x0001
	AccessWriteDiscard AccessMode = 0x0002
)

// InteropDevice is the OS-level handle binding a native device to the
// foreign API's driver layer.
type InteropDevice uintptr

// LockHandle is the synchronization token of one registered object.
type LockHandle uintptr

// NativeDevice is the graphics device that allocates shared memory.
type NativeDevice interface {
	Capabilities() Capabilities
	// Pointer is the raw device pointer handed to the foreign API.
	Pointer() uintptr
	CreateTexture(spec TextureSpec) (NativeTexture, error)
	OpenSharedResource(handle uintptr) (NativeTexture, error)
	Release()
}

// NativeTexture is a texture object of a NativeDevice.
type NativeTexture interface {
	Pointer() uintptr
	ExportHandle(access ShareAccess) (uintptr, error)
	AcquireSync(key uint64) error
	ReleaseSync(key uint64) error
	Release()
}

// Reader is implemented by native textures that can be read back to host
// memory. Callers must hold the native lock.
type Reader interface {
	ReadRGBA(dst *image.RGBA) error
}

// HandleTable is the process's OS handle table.
type HandleTable interface {
	CurrentProcessID() uint32
	// Duplicate copies handle from the process ownerPID into the local
	// handle table with the same access rights.
	Duplicate(ownerPID uint32, handle uintptr) (uintptr, error)
	Close(handle uintptr) error
}

// ForeignAPI is the graphics API that maps memory allocated by the native
// device. Calls require the foreign context to be current on the calling
// thread.
type ForeignAPI interface {
	// Supported reports an error when the driver lacks the interop extension.
	Supported() error
	OpenDevice(dev NativeDevice) (InteropDevice, error)
	CloseDevice(d InteropDevice) error

	GenTexture() (uint32, error)
	DeleteTexture(name uint32)

	Register(d InteropDevice, tex NativeTexture, shareHandle uintptr, name uint32, kind ResourceKind, access AccessMode) (LockHandle, error)
	Unregister(d InteropDevice, h LockHandle) error
	Lock(d InteropDevice, h LockHandle) error
	Unlock(d InteropDevice, h LockHandle) error
}

// Backend creates the per-process drivers a Context is built from.
type Backend interface {
	CreateDevice() (NativeDevice, error)
	HandleTable() HandleTable
	ForeignAPI() ForeignAPI
}
