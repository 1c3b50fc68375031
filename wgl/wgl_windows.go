package wgl

import (
	"errors"
	"fmt"
	"math"
	"syscall"
	"unsafe"

	"github.com/lxn/win"
	"golang.org/x/sys/windows"

	"github.com/kirides/texshare/interop"
)

var (
	modOpenGL32 = windows.NewLazySystemDLL("opengl32.dll")

	procGlGenTextures    = modOpenGL32.NewProc("glGenTextures")
	procGlDeleteTextures = modOpenGL32.NewProc("glDeleteTextures")
	procGlBindTexture    = modOpenGL32.NewProc("glBindTexture")
	procGlTexParameteri  = modOpenGL32.NewProc("glTexParameteri")
	procGlClearColor     = modOpenGL32.NewProc("glClearColor")
	procGlClear          = modOpenGL32.NewProc("glClear")
	procGlViewport       = modOpenGL32.NewProc("glViewport")
	procGlReadPixels     = modOpenGL32.NewProc("glReadPixels")
	procGlGetError       = modOpenGL32.NewProc("glGetError")
	procGlFinish         = modOpenGL32.NewProc("glFinish")
)

// extension entry points resolved through wglGetProcAddress
type procs struct {
	getExtensionsStringARB uintptr

	dxOpenDevice             uintptr
	dxCloseDevice            uintptr
	dxSetResourceShareHandle uintptr
	dxRegisterObject         uintptr
	dxUnregisterObject       uintptr
	dxLockObjects            uintptr
	dxUnlockObjects          uintptr

	genFramebuffers        uintptr
	deleteFramebuffers     uintptr
	bindFramebuffer        uintptr
	framebufferTexture2D   uintptr
	checkFramebufferStatus uintptr
	blitFramebuffer        uintptr
}

func getProcAddress(name string) uintptr {
	b, err := windows.BytePtrFromString(name)
	if err != nil {
		return 0
	}
	p := win.WglGetProcAddress(b)
	switch p {
	case 1, 2, 3, ^uintptr(0):
		// some drivers return small sentinels instead of NULL
		return 0
	}
	return p
}

func call(proc uintptr, args ...uintptr) (uintptr, error) {
	r, _, e := syscall.SyscallN(proc, args...)
	if e != 0 {
		return r, e
	}
	return r, nil
}

// API is the OpenGL context current on the calling thread. It implements
// interop.ForeignAPI. Every method must be called from that thread.
type API struct {
	p       procs
	missing []string
	fbos    map[uint32]uint32
}

// Load resolves the entry points of the current context. A context must be
// current; missing entry points are reported by Supported.
func Load() (*API, error) {
	if win.WglGetCurrentContext() == 0 {
		return nil, errors.New("wgl: no current OpenGL context")
	}
	a := &API{fbos: make(map[uint32]uint32)}
	for _, e := range []struct {
		name string
		dst  *uintptr
	}{
		{"wglGetExtensionsStringARB", &a.p.getExtensionsStringARB},
		{"wglDXOpenDeviceNV", &a.p.dxOpenDevice},
		{"wglDXCloseDeviceNV", &a.p.dxCloseDevice},
		{"wglDXSetResourceShareHandleNV", &a.p.dxSetResourceShareHandle},
		{"wglDXRegisterObjectNV", &a.p.dxRegisterObject},
		{"wglDXUnregisterObjectNV", &a.p.dxUnregisterObject},
		{"wglDXLockObjectsNV", &a.p.dxLockObjects},
		{"wglDXUnlockObjectsNV", &a.p.dxUnlockObjects},
		{"glGenFramebuffers", &a.p.genFramebuffers},
		{"glDeleteFramebuffers", &a.p.deleteFramebuffers},
		{"glBindFramebuffer", &a.p.bindFramebuffer},
		{"glFramebufferTexture2D", &a.p.framebufferTexture2D},
		{"glCheckFramebufferStatus", &a.p.checkFramebufferStatus},
		{"glBlitFramebuffer", &a.p.blitFramebuffer},
	} {
		*e.dst = getProcAddress(e.name)
		if *e.dst == 0 {
			a.missing = append(a.missing, e.name)
		}
	}
	if err := modOpenGL32.Load(); err != nil {
		return nil, fmt.Errorf("wgl: %w", err)
	}
	return a, nil
}

// Extensions returns the WGL extension string of the current device context.
func (a *API) Extensions() string {
	if a.p.getExtensionsStringARB == 0 {
		return ""
	}
	r, _, _ := syscall.SyscallN(a.p.getExtensionsStringARB, uintptr(win.WglGetCurrentDC()))
	if r == 0 {
		return ""
	}
	return windows.BytePtrToString((*byte)(unsafe.Pointer(r)))
}

func (a *API) Supported() error {
	if !hasExtension(a.Extensions(), InteropExtension) {
		return fmt.Errorf("wgl: %s not supported", InteropExtension)
	}
	if len(a.missing) > 0 {
		return fmt.Errorf("wgl: missing entry points %v", a.missing)
	}
	return nil
}

func (a *API) OpenDevice(dev interop.NativeDevice) (interop.InteropDevice, error) {
	h, err := call(a.p.dxOpenDevice, dev.Pointer())
	if h == 0 {
		return 0, fmt.Errorf("wglDXOpenDeviceNV: %w", errOr(err))
	}
	return interop.InteropDevice(h), nil
}

func (a *API) CloseDevice(d interop.InteropDevice) error {
	for name, fbo := range a.fbos {
		a.deleteFramebuffer(fbo)
		delete(a.fbos, name)
	}
	if ok, err := call(a.p.dxCloseDevice, uintptr(d)); ok == 0 {
		return fmt.Errorf("wglDXCloseDeviceNV: %w", errOr(err))
	}
	return nil
}

func (a *API) GenTexture() (uint32, error) {
	var name uint32
	syscall.SyscallN(procGlGenTextures.Addr(), 1, uintptr(unsafe.Pointer(&name)))
	if err := glError("glGenTextures"); err != nil {
		return 0, err
	}
	return name, nil
}

func (a *API) DeleteTexture(name uint32) {
	if fbo, ok := a.fbos[name]; ok {
		a.deleteFramebuffer(fbo)
		delete(a.fbos, name)
	}
	syscall.SyscallN(procGlDeleteTextures.Addr(), 1, uintptr(unsafe.Pointer(&name)))
}

func (a *API) Register(d interop.InteropDevice, tex interop.NativeTexture, shareHandle uintptr, name uint32, kind interop.ResourceKind, access interop.AccessMode) (interop.LockHandle, error) {
	if ok, err := call(a.p.dxSetResourceShareHandle, tex.Pointer(), shareHandle); ok == 0 {
		return 0, fmt.Errorf("wglDXSetResourceShareHandleNV: %w", errOr(err))
	}
	h, err := call(a.p.dxRegisterObject, uintptr(d), tex.Pointer(), uintptr(name), uintptr(kind), uintptr(access))
	if h == 0 {
		return 0, fmt.Errorf("wglDXRegisterObjectNV: %w", errOr(err))
	}
	syscall.SyscallN(procGlBindTexture.Addr(), GL_TEXTURE_2D, uintptr(name))
	syscall.SyscallN(procGlTexParameteri.Addr(), GL_TEXTURE_2D, GL_TEXTURE_MIN_FILTER, GL_LINEAR)
	syscall.SyscallN(procGlTexParameteri.Addr(), GL_TEXTURE_2D, GL_TEXTURE_MAG_FILTER, GL_LINEAR)
	syscall.SyscallN(procGlBindTexture.Addr(), GL_TEXTURE_2D, 0)
	return interop.LockHandle(h), nil
}

func (a *API) Unregister(d interop.InteropDevice, h interop.LockHandle) error {
	if ok, err := call(a.p.dxUnregisterObject, uintptr(d), uintptr(h)); ok == 0 {
		return fmt.Errorf("wglDXUnregisterObjectNV: %w", errOr(err))
	}
	return nil
}

func (a *API) Lock(d interop.InteropDevice, h interop.LockHandle) error {
	if ok, err := call(a.p.dxLockObjects, uintptr(d), 1, uintptr(unsafe.Pointer(&h))); ok == 0 {
		return fmt.Errorf("wglDXLockObjectsNV: %w", errOr(err))
	}
	return nil
}

func (a *API) Unlock(d interop.InteropDevice, h interop.LockHandle) error {
	if ok, err := call(a.p.dxUnlockObjects, uintptr(d), 1, uintptr(unsafe.Pointer(&h))); ok == 0 {
		return fmt.Errorf("wglDXUnlockObjectsNV: %w", errOr(err))
	}
	return nil
}

func errOr(err error) error {
	if err == nil {
		return errors.New("failed")
	}
	return err
}

func glError(op string) error {
	if e, _, _ := syscall.SyscallN(procGlGetError.Addr()); e != GL_NO_ERROR {
		return fmt.Errorf("%s: GL error %#x", op, e)
	}
	return nil
}

func f32(v float32) uintptr { return uintptr(math.Float32bits(v)) }
