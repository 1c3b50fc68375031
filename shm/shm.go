// Package shm maps named shared memory segments visible to every process of
// the current session.
package shm

import (
	"errors"
	"fmt"
)

// ErrNotExist is returned by OpenExisting when no process created the
// segment yet.
var ErrNotExist = errors.New("shm: segment does not exist")

// Segment is a mapped view of a named segment.
type Segment struct {
	name     string
	data     []byte
	readOnly bool
	sys      sysSegment
}

func (s *Segment) Name() string   { return s.name }
func (s *Segment) Bytes() []byte  { return s.data }
func (s *Segment) ReadOnly() bool { return s.readOnly }

// Close unmaps the view. The segment outlives the call while any other
// process keeps it mapped.
func (s *Segment) Close() error {
	if s.data == nil {
		return nil
	}
	err := s.sys.close(s.data)
	s.data = nil
	return err
}

// Open creates the segment or opens it when another process already did,
// and maps size bytes read-write.
func Open(name string, size int) (*Segment, error) {
	if err := check(name, size); err != nil {
		return nil, err
	}
	s := &Segment{name: name}
	data, err := s.sys.open(name, size, true)
	if err != nil {
		return nil, fmt.Errorf("shm: open %q: %w", name, err)
	}
	s.data = data
	return s, nil
}

// OpenExisting maps size bytes of an existing segment read-only.
func OpenExisting(name string, size int) (*Segment, error) {
	if err := check(name, size); err != nil {
		return nil, err
	}
	s := &Segment{name: name, readOnly: true}
	data, err := s.sys.open(name, size, false)
	if err != nil {
		return nil, fmt.Errorf("shm: open %q: %w", name, err)
	}
	s.data = data
	return s, nil
}

func check(name string, size int) error {
	if name == "" {
		return errors.New("shm: empty segment name")
	}
	if size <= 0 {
		return fmt.Errorf("shm: invalid size %d", size)
	}
	return nil
}
