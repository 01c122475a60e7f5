// Package txalloc hands out monotonically increasing PTP transaction IDs in
// reserved blocks, one allocator per Session (spec §4.3).
package txalloc

import (
	"sync"

	"github.com/putto11262002/sabaipics-core/ptp"
)

// DefaultBlockSize is the default reserved-block size (spec §6 configuration:
// transaction_reserve_block = 32).
const DefaultBlockSize = 32

// Allocator generates ptp.TransactionID values starting at 1 and wrapping to 1 on
// overflow; 0 is never issued. Safe for concurrent use.
type Allocator struct {
	mu        sync.Mutex
	next      uint32
	blockSize uint32
}

// New creates an Allocator with the given reserved-block size. A blockSize <= 0
// falls back to DefaultBlockSize.
func New(blockSize int) *Allocator {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Allocator{next: 1, blockSize: uint32(blockSize)}
}

// Next issues the next single transaction ID.
func (a *Allocator) Next() ptp.TransactionID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return ptp.TransactionID(a.advance())
}

// advance must be called with a.mu held.
func (a *Allocator) advance() uint32 {
	id := a.next
	if a.next == 0xFFFFFFFF {
		a.next = 1
	} else {
		a.next++
		if a.next == 0 {
			a.next = 1
		}
	}
	return id
}

// ReserveBlock hands out a contiguous block of n transaction IDs for a caller
// building a command that generates multiple IDs internally, without colliding
// with other in-flight builders (spec §4.3). The block never wraps internally:
// if the allocator's counter would wrap mid-block, the block starts fresh at 1.
func (a *Allocator) ReserveBlock(n int) []ptp.TransactionID {
	if n <= 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if uint64(a.next)+uint64(n) > 0xFFFFFFFF {
		a.next = 1
	}

	ids := make([]ptp.TransactionID, n)
	for i := 0; i < n; i++ {
		ids[i] = ptp.TransactionID(a.advance())
	}
	return ids
}

// DefaultReservation reserves a block of the allocator's configured block size.
func (a *Allocator) DefaultReservation() []ptp.TransactionID {
	a.mu.Lock()
	n := int(a.blockSize)
	a.mu.Unlock()
	return a.ReserveBlock(n)
}
