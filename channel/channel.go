// Package channel publishes a share descriptor from one producer to one
// consumer through a fixed-layout record in shared memory.
//
// The producer writes the owner process id and handle and then sets the
// ready flag; the consumer never reads the fields of a record that is not
// ready. Consumers never write to the channel.
//
// The low byte of the ready word is the C bool. The three bytes above it,
// padding in the C layout, count publishes so a reader can detect a
// descriptor rewritten while it was decoding.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/kirides/texshare/interop"
	"github.com/kirides/texshare/shm"
)

// DefaultName is the well-known segment both processes open.
const DefaultName = "d3dshare"

// DefaultInterval is the poll backoff.
const DefaultInterval = time.Second

// Channel is a single-slot descriptor mailbox.
type Channel struct {
	buf      []byte
	pid      *uint32
	handle   *uintptr
	ready    *uint32
	seg      *shm.Segment
	readOnly bool

	// Interval is the fixed backoff between polls.
	Interval time.Duration
}

// New uses the first RecordSize bytes of buf as the channel.
func New(buf []byte) (*Channel, error) {
	if len(buf) < RecordSize {
		return nil, fmt.Errorf("channel: buffer of %d bytes, need %d", len(buf), RecordSize)
	}
	if uintptr(unsafe.Pointer(&buf[0]))%ptrSize != 0 {
		return nil, errors.New("channel: misaligned buffer")
	}
	return &Channel{
		buf:      buf[:RecordSize],
		pid:      (*uint32)(unsafe.Pointer(&buf[pidOffset])),
		handle:   (*uintptr)(unsafe.Pointer(&buf[handleOffset])),
		ready:    (*uint32)(unsafe.Pointer(&buf[readyOffset])),
		Interval: DefaultInterval,
	}, nil
}

// Open maps the named segment, creating it when needed.
func Open(name string) (*Channel, error) {
	seg, err := shm.Open(name, RecordSize)
	if err != nil {
		return nil, err
	}
	c, err := New(seg.Bytes())
	if err != nil {
		seg.Close()
		return nil, err
	}
	c.seg = seg
	return c, nil
}

// OpenReadOnly maps an existing segment without write access. The segment
// must have been created by a producer or consumer, else shm.ErrNotExist.
func OpenReadOnly(name string) (*Channel, error) {
	seg, err := shm.OpenExisting(name, RecordSize)
	if err != nil {
		return nil, err
	}
	c, err := New(seg.Bytes())
	if err != nil {
		seg.Close()
		return nil, err
	}
	c.seg = seg
	c.readOnly = true
	return c, nil
}

func (c *Channel) Close() error {
	if c.seg == nil {
		return nil
	}
	return c.seg.Close()
}

// Publish makes d available to the consumer.
func (c *Channel) Publish(d interop.ShareDescriptor) error {
	if c.readOnly {
		return errors.New("channel: read-only")
	}
	if d.Handle == 0 {
		return errors.New("channel: publish of a null handle")
	}
	seq := (atomic.LoadUint32(c.ready) + 1<<8) &^ readyMask
	atomic.StoreUint32(c.ready, seq)
	atomic.StoreUint32(c.pid, d.OwnerProcessID)
	atomic.StoreUintptr(c.handle, d.Handle)
	atomic.StoreUint32(c.ready, seq|1)
	interop.Logger().Info("descriptor published", "pid", d.OwnerProcessID, "handle", fmt.Sprintf("%#x", d.Handle))
	return nil
}

// Retract clears the ready flag. The producer calls it before releasing
// the texture since the descriptor dies with it.
func (c *Channel) Retract() error {
	if c.readOnly {
		return errors.New("channel: read-only")
	}
	atomic.StoreUint32(c.ready, atomic.LoadUint32(c.ready)&^readyMask)
	return nil
}

// Read decodes the record as it is, ready or not. The fields of a record
// that is being republished may not belong together, use TryRead to get a
// consistent descriptor.
func (c *Channel) Read() Record {
	return Record{
		OwnerProcessID: atomic.LoadUint32(c.pid),
		Handle:         atomic.LoadUintptr(c.handle),
		Ready:          atomic.LoadUint32(c.ready)&readyMask != 0,
	}
}

// TryRead returns the published descriptor, or false when none is ready.
// The fields are only trusted when the ready word did not change while
// they were read.
func (c *Channel) TryRead() (interop.ShareDescriptor, bool) {
	for {
		before := atomic.LoadUint32(c.ready)
		if before&readyMask == 0 {
			return interop.ShareDescriptor{}, false
		}
		d := interop.ShareDescriptor{
			OwnerProcessID: atomic.LoadUint32(c.pid),
			Handle:         atomic.LoadUintptr(c.handle),
		}
		if atomic.LoadUint32(c.ready) == before {
			return d, true
		}
	}
}

// Poll blocks until a descriptor is ready, checking every Interval. It only
// returns early when ctx is done.
func (c *Channel) Poll(ctx context.Context) (interop.ShareDescriptor, error) {
	interval := c.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for round := 1; ; round++ {
		if d, ok := c.TryRead(); ok {
			return d, nil
		}
		interop.Logger().Info("waiting for descriptor", "round", round)
		select {
		case <-ctx.Done():
			return interop.ShareDescriptor{}, ctx.Err()
		case <-t.C:
		}
	}
}
