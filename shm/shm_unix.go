//go:build unix

package shm

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Dir holds the files backing segments. It defaults to /dev/shm when
// present.
var Dir = defaultDir()

func defaultDir() string {
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

type sysSegment struct{}

func (sysSegment) open(name string, size int, create bool) ([]byte, error) {
	path := filepath.Join(Dir, filepath.Base(name))
	flag, prot := os.O_RDONLY, unix.PROT_READ
	if create {
		flag, prot = os.O_RDWR|os.O_CREATE, unix.PROT_READ|unix.PROT_WRITE
	}
	f, err := os.OpenFile(path, flag, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() < int64(size) {
		if !create {
			return nil, ErrNotExist
		}
		if err := f.Truncate(int64(size)); err != nil {
			return nil, err
		}
	}
	return unix.Mmap(int(f.Fd()), 0, size, prot, unix.MAP_SHARED)
}

func (sysSegment) close(data []byte) error { return unix.Munmap(data) }
