// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

// Memblock is the external "memory-block pool" collaborator's unit of
// transfer (§1, §3 GLOSSARY): a refcounted audio sample buffer that may
// live in shared memory. The core only needs to read its bytes and know
// its length; acquisition/release/refcounting belong to [MemblockPool].
type Memblock interface {
	// Bytes returns the block's contents. Callers must not retain the
	// slice beyond the callback that received it.
	Bytes() []byte
}

// MemblockPool is the external "memory-block pool" collaborator named out
// of scope in §1. The core consults [MemblockPool.SupportsShared] to
// compute the `do_shm` invariant of §3; it does not call
// [MemblockPool.Acquire] or [MemblockPool.Release] itself.
type MemblockPool interface {
	// SupportsShared reports whether this pool can hand out blocks
	// backed by shared memory, the first conjunct of the `do_shm`
	// invariant (§3).
	SupportsShared() bool

	// Acquire returns a new block of n bytes.
	Acquire(n int) Memblock

	// Release returns block to the pool.
	Release(block Memblock)
}

// byteMemblock is the simplest possible [Memblock]: a plain heap buffer.
type byteMemblock struct {
	data []byte
}

var _ Memblock = &byteMemblock{}

// Bytes implements [Memblock].
func (b *byteMemblock) Bytes() []byte {
	return b.data
}

// localMemblockPool is a [MemblockPool] backed by ordinary heap
// allocations that nonetheless reports shared-memory support, matching
// the common case of a client pool negotiated over a local transport
// (§3 `do_shm` invariant conjunct (a)). It does not actually place
// blocks in POSIX/SysV shared memory; doing so is a deployment detail
// left to a richer pool implementation supplied via [Config.Pool].
type localMemblockPool struct{}

var _ MemblockPool = localMemblockPool{}

// NewLocalMemblockPool returns the default [MemblockPool] used by
// [NewConfig].
func NewLocalMemblockPool() MemblockPool {
	return localMemblockPool{}
}

// SupportsShared implements [MemblockPool].
func (localMemblockPool) SupportsShared() bool {
	return true
}

// Acquire implements [MemblockPool].
func (localMemblockPool) Acquire(n int) Memblock {
	return &byteMemblock{data: make([]byte, n)}
}

// Release implements [MemblockPool]. The simple pool performs no
// recycling; Release is a no-op.
func (localMemblockPool) Release(block Memblock) {}
