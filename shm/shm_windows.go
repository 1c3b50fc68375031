package shm

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/kirides/texshare/win"
)

type sysSegment struct {
	h windows.Handle
}

func (s *sysSegment) open(name string, size int, create bool) ([]byte, error) {
	pname, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}
	access := uint32(windows.FILE_MAP_READ)
	if create {
		// a valid handle comes with ERROR_ALREADY_EXISTS when another
		// process created the mapping first
		h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, 0, uint32(size), pname)
		if h == 0 {
			return nil, err
		}
		s.h = h
		access |= windows.FILE_MAP_WRITE
	} else {
		h, err := win.OpenFileMapping(win.FILE_MAP_READ, false, pname)
		if err != nil {
			if errors.Is(err, windows.ERROR_FILE_NOT_FOUND) {
				return nil, ErrNotExist
			}
			return nil, err
		}
		s.h = windows.Handle(h)
	}
	addr, err := windows.MapViewOfFile(s.h, access, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(s.h)
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

func (s *sysSegment) close(data []byte) error {
	err := windows.UnmapViewOfFile(uintptr(unsafe.Pointer(&data[0])))
	return errors.Join(err, windows.CloseHandle(s.h))
}
