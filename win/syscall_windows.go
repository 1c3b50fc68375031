package win

//go:generate mkwinsyscall -output zsyscall_windows.go syscall_windows.go

type (
	BOOL   uint32
	DWORD  uint32
	HANDLE uintptr
)

const (
	FILE_MAP_WRITE = 0x0002
	FILE_MAP_READ  = 0x0004
)

//sys	OpenFileMapping(desiredAccess uint32, inheritHandle bool, name *uint16) (h HANDLE, err error) = Kernel32.OpenFileMappingW

const (
	DpiAwarenessContextUndefined         = 0
	DpiAwarenessContextUnaware           = -1
	DpiAwarenessContextSystemAware       = -2
	DpiAwarenessContextPerMonitorAware   = -3
	DpiAwarenessContextPerMonitorAwareV2 = -4
	DpiAwarenessContextUnawareGdiScaled  = -5
)

//sys	SetThreadDpiAwarenessContext(value int32) (n int, err error) = User32.SetThreadDpiAwarenessContext
//sys	IsValidDpiAwarenessContext(value int32) (n bool) = User32.IsValidDpiAwarenessContext
