package channel

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirides/texshare/interop"
)

func newChannel(t *testing.T) (*Channel, []byte) {
	t.Helper()
	buf := make([]byte, RecordSize)
	c, err := New(buf)
	require.NoError(t, err)
	c.Interval = 10 * time.Millisecond
	return c, buf
}

func TestRecordLayout(t *testing.T) {
	c, buf := newChannel(t)
	d := interop.ShareDescriptor{OwnerProcessID: 0x01020304, Handle: 0x0a0b0c0d}
	require.NoError(t, c.Publish(d))

	assert.Equal(t, uint32(0x01020304), binary.LittleEndian.Uint32(buf[0:]))
	switch ptrSize {
	case 8:
		assert.Equal(t, 24, RecordSize)
		assert.Equal(t, uint64(0x0a0b0c0d), binary.LittleEndian.Uint64(buf[8:]))
		assert.Equal(t, byte(1), buf[16])
	case 4:
		assert.Equal(t, 12, RecordSize)
		assert.Equal(t, uint32(0x0a0b0c0d), binary.LittleEndian.Uint32(buf[4:]))
		assert.Equal(t, byte(1), buf[8])
	}

	got, ok := c.TryRead()
	require.True(t, ok)
	assert.Equal(t, d, got)
}

func TestNotReadyIsNeverImportable(t *testing.T) {
	c, buf := newChannel(t)
	binary.LittleEndian.PutUint32(buf[pidOffset:], 42)
	*c.handle = 0x1234

	_, ok := c.TryRead()
	assert.False(t, ok)
	r := c.Read()
	assert.False(t, r.Ready)
	assert.Equal(t, uint32(42), r.OwnerProcessID)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Poll(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, c.Publish(interop.ShareDescriptor{OwnerProcessID: 7, Handle: 0x88}))
	require.NoError(t, c.Retract())
	_, ok = c.TryRead()
	assert.False(t, ok)
}

func TestPollBeforePublish(t *testing.T) {
	c, _ := newChannel(t)
	d := interop.ShareDescriptor{OwnerProcessID: 99, Handle: 0x44}

	got := make(chan interop.ShareDescriptor, 1)
	go func() {
		v, err := c.Poll(context.Background())
		if err == nil {
			got <- v
		}
	}()

	assert.Never(t, func() bool { return len(got) > 0 }, 100*time.Millisecond, 5*time.Millisecond)
	require.NoError(t, c.Publish(d))
	select {
	case v := <-got:
		assert.Equal(t, d, v)
	case <-time.After(time.Second):
		t.Fatal("poll did not observe the published descriptor")
	}
}

func TestPublishNullHandle(t *testing.T) {
	c, _ := newChannel(t)
	assert.Error(t, c.Publish(interop.ShareDescriptor{OwnerProcessID: 1}))
	_, ok := c.TryRead()
	assert.False(t, ok)
}

func TestNewShortBuffer(t *testing.T) {
	_, err := New(make([]byte, RecordSize-1))
	assert.Error(t, err)
}

func TestPublishAdvancesSequence(t *testing.T) {
	c, buf := newChannel(t)
	d := interop.ShareDescriptor{OwnerProcessID: 5, Handle: 0x50}

	require.NoError(t, c.Publish(d))
	first := binary.LittleEndian.Uint32(buf[readyOffset:])
	require.NoError(t, c.Publish(d))
	second := binary.LittleEndian.Uint32(buf[readyOffset:])
	assert.Equal(t, byte(1), buf[readyOffset])
	assert.NotEqual(t, first, second)

	require.NoError(t, c.Retract())
	assert.Equal(t, byte(0), buf[readyOffset])
	assert.Equal(t, second&^readyMask, binary.LittleEndian.Uint32(buf[readyOffset:]))
}

func TestTryReadDuringRepublish(t *testing.T) {
	c, _ := newChannel(t)
	a := interop.ShareDescriptor{OwnerProcessID: 1, Handle: 0x10}
	b := interop.ShareDescriptor{OwnerProcessID: 2, Handle: 0x20}
	require.NoError(t, c.Publish(a))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20000; i++ {
			d := a
			if i%2 == 0 {
				d = b
			}
			if err := c.Publish(d); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		if d, ok := c.TryRead(); ok && d != a && d != b {
			t.Fatalf("torn descriptor %+v", d)
		}
	}
}
