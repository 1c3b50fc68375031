package channel

import "math/bits"

const ptrSize = bits.UintSize / 8

// Record layout, matching a C struct { uint32_t pid; HANDLE h; bool ready; }
// on the native word size.
const (
	pidOffset    = 0
	handleOffset = ptrSize
	readyOffset  = 2 * ptrSize

	// RecordSize is the number of bytes a channel occupies.
	RecordSize = 3 * ptrSize

	readyMask = 0xff
)

// Record is the decoded content of a channel.
type Record struct {
	OwnerProcessID uint32
	Handle         uintptr
	Ready          bool
}
