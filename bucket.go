package shmtable

import (
	"unsafe"

	"github.com/emirpasic/gods/lists/singlylinkedlist"
)

type bucketBody struct {
	mu   RWLock
	list *singlylinkedlist.List
}

// bucket is one slot of a HashTable: an insertion-ordered chain of values
// guarded by its own RWLock. Duplicates are kept.
//
// The list methods do not lock; callers hold mu in the matching mode.
// Buckets are padded to whole cache lines so neighbouring locks do not
// share a line.
type bucket struct {
	bucketBody
	_ [(cacheLineSize - unsafe.Sizeof(bucketBody{})%cacheLineSize) % cacheLineSize]byte
}

func (b *bucket) init() {
	b.list = singlylinkedlist.New()
}

// add appends v. Requires the write lock.
func (b *bucket) add(v int32) {
	b.list.Add(v)
}

// remove drops the first entry equal to v and reports whether one existed.
// Requires the write lock.
func (b *bucket) remove(v int32) bool {
	i := b.list.IndexOf(v)
	if i < 0 {
		return false
	}
	b.list.Remove(i)
	return true
}

// contains reports whether v is present. Requires at least a read lock.
func (b *bucket) contains(v int32) bool {
	return b.list.Contains(v)
}

// values returns a copy of the chain in insertion order.
// Requires at least a read lock.
func (b *bucket) values() []int32 {
	out := make([]int32, 0, b.list.Size())
	it := b.list.Iterator()
	for it.Next() {
		out = append(out, it.Value().(int32))
	}
	return out
}
