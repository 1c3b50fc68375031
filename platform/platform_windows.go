package platform

import (
	"fmt"

	"golang.org/x/sys/windows"

	"github.com/kirides/texshare/app"
	"github.com/kirides/texshare/d3d"
	"github.com/kirides/texshare/interop"
	"github.com/kirides/texshare/wgl"
)

type backend struct {
	debug bool
	gl    *wgl.API
}

// New returns the Direct3D 11 and OpenGL backend of the context current on
// the calling thread, and the painter drawing with that context.
func New(opts Options) (interop.Backend, app.Painter, error) {
	gl, err := wgl.Load()
	if err != nil {
		return nil, nil, err
	}
	return &backend{debug: opts.Debug, gl: gl}, gl, nil
}

func (b *backend) CreateDevice() (interop.NativeDevice, error) {
	return d3d.NewD3D11Device(b.debug)
}

func (b *backend) HandleTable() interop.HandleTable { return handleTable{} }
func (b *backend) ForeignAPI() interop.ForeignAPI   { return b.gl }

type handleTable struct{}

func (handleTable) CurrentProcessID() uint32 { return windows.GetCurrentProcessId() }

// Duplicate needs PROCESS_DUP_HANDLE access to the owner process.
func (handleTable) Duplicate(ownerPID uint32, handle uintptr) (uintptr, error) {
	proc, err := windows.OpenProcess(windows.PROCESS_DUP_HANDLE, false, ownerPID)
	if err != nil {
		return 0, fmt.Errorf("OpenProcess(%d): %w", ownerPID, err)
	}
	defer windows.CloseHandle(proc)

	var local windows.Handle
	err = windows.DuplicateHandle(proc, windows.Handle(handle), windows.CurrentProcess(), &local, 0, false, windows.DUPLICATE_SAME_ACCESS)
	if err != nil {
		return 0, fmt.Errorf("DuplicateHandle(%#x): %w", handle, err)
	}
	return uintptr(local), nil
}

func (handleTable) Close(handle uintptr) error {
	return windows.CloseHandle(windows.Handle(handle))
}
