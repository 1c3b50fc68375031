package d3d

import "strconv"

type _DXGI_SAMPLE_DESC struct {
	Count   uint32
	Quality uint32
}

type DXGI_MAPPED_RECT struct {
	Pitch int32
	PBits uintptr
}

const (
	DXGI_FORMAT_R8G8B8A8_UNORM      = 28
	DXGI_FORMAT_R8G8B8A8_UNORM_SRGB = 29
	DXGI_FORMAT_B8G8R8A8_UNORM      = 87

	DXGI_MAP_READ = 1

	DXGI_SHARED_RESOURCE_READ  = 0x80000000
	DXGI_SHARED_RESOURCE_WRITE = 1
)

const (
	ERROR_INVALID_ARG            _DXGI_ERROR = 0x80070057
	E_ACCESSDENIED               _DXGI_ERROR = 0x80070005
	E_NOINTERFACE                _DXGI_ERROR = 0x80004002
	E_OUTOFMEMORY                _DXGI_ERROR = 0x8007000E
	E_FAIL                       _DXGI_ERROR = 0x80004005
	DXGI_ERROR_ACCESS_LOST       _DXGI_ERROR = 0x887A0026
	DXGI_ERROR_INVALID_CALL      _DXGI_ERROR = 0x887A0001
	DXGI_ERROR_WAIT_TIMEOUT      _DXGI_ERROR = 0x887A0027
	DXGI_ERROR_WAS_STILL_DRAWING _DXGI_ERROR = 0x887A000A
	DXGI_ERROR_UNSUPPORTED       _DXGI_ERROR = 0x887A0004
	DXGI_ERROR_DEVICE_HUNG       _DXGI_ERROR = 0x887A0006
	DXGI_ERROR_DEVICE_REMOVED    _DXGI_ERROR = 0x887A0005
	DXGI_ERROR_NOT_FOUND         _DXGI_ERROR = 0x887A0002

	// AcquireSync success codes that did not acquire the mutex
	WAIT_ABANDONED _DXGI_ERROR = 0x00000080
	WAIT_TIMEOUT   _DXGI_ERROR = 0x00000102
)

type _DXGI_ERROR uint32

func (e _DXGI_ERROR) Error() string {
	switch e {
	case ERROR_INVALID_ARG:
		return "ERROR_INVALID_ARG"
	case E_ACCESSDENIED:
		return "E_ACCESSDENIED"
	case E_NOINTERFACE:
		return "E_NOINTERFACE"
	case E_OUTOFMEMORY:
		return "E_OUTOFMEMORY"
	case E_FAIL:
		return "E_FAIL"
	case DXGI_ERROR_ACCESS_LOST:
		return "DXGI_ERROR_ACCESS_LOST"
	case DXGI_ERROR_INVALID_CALL:
		return "DXGI_ERROR_INVALID_CALL"
	case DXGI_ERROR_WAIT_TIMEOUT:
		return "DXGI_ERROR_WAIT_TIMEOUT"
	case DXGI_ERROR_WAS_STILL_DRAWING:
		return "DXGI_ERROR_WAS_STILL_DRAWING"
	case DXGI_ERROR_UNSUPPORTED:
		return "DXGI_ERROR_UNSUPPORTED"
	case DXGI_ERROR_DEVICE_HUNG:
		return "DXGI_ERROR_DEVICE_HUNG"
	case DXGI_ERROR_DEVICE_REMOVED:
		return "DXGI_ERROR_DEVICE_REMOVED"
	case DXGI_ERROR_NOT_FOUND:
		return "DXGI_ERROR_NOT_FOUND"
	case WAIT_ABANDONED:
		return "WAIT_ABANDONED"
	case WAIT_TIMEOUT:
		return "WAIT_TIMEOUT"
	}

	return "0x" + strconv.FormatUint(uint64(e), 16)
}
