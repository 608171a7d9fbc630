package shmtable

import (
	"bufio"
	"io"
	"strconv"
)

// HashFunc maps a key to its bucket hash. It must be deterministic, pure and
// defined for every int32.
type HashFunc func(v int32) uint32

// AbsHash is the default HashFunc: the absolute value of the key.
// It collides v with -v on purpose; it is not meant to spread keys.
func AbsHash(v int32) uint32 {
	if v < 0 {
		return uint32(-int64(v))
	}
	return uint32(v)
}

// TableConfig holds the options of NewHashTable.
type TableConfig struct {
	hash HashFunc
}

// WithHasher replaces AbsHash as the bucket selection strategy.
// A nil hasher is ignored.
func WithHasher(hash HashFunc) func(*TableConfig) {
	return func(c *TableConfig) {
		if hash != nil {
			c.hash = hash
		}
	}
}

// HashTable is a fixed-size integer multiset with one RWLock per bucket.
//
// A key lives in bucket hash(key) % Len(). Operations on different
// buckets never contend; Find calls on the same bucket run together while
// Insert and Remove are exclusive.
//
// Besides the self-locking Insert/Remove/Find, the bucket lock is exposed
// through LockForWrite/LockForRead and the *Locked bodies, so a caller can
// announce that it holds the lock before it runs the operation.
//
// Usage:
//
//	t := NewHashTable(7)
//	t.Insert(3)
//	t.Find(3)  // true
//	t.Remove(3)
type HashTable struct {
	_       noCopy
	buckets []bucket
	hash    HashFunc
}

// NewHashTable creates a table with n buckets.
//
// panic if n <= 0.
func NewHashTable(n int, options ...func(*TableConfig)) *HashTable {
	if n <= 0 {
		panic("shmtable: bucket count must be positive")
	}
	cfg := TableConfig{hash: AbsHash}
	for _, o := range options {
		o(&cfg)
	}
	t := &HashTable{
		buckets: make([]bucket, n),
		hash:    cfg.hash,
	}
	for i := range t.buckets {
		t.buckets[i].init()
	}
	return t
}

// Len returns the number of buckets.
func (t *HashTable) Len() int {
	return len(t.buckets)
}

// BucketIndex returns the home bucket of v.
func (t *HashTable) BucketIndex(v int32) int {
	return int(t.hash(v) % uint32(len(t.buckets)))
}

func (t *HashTable) bucket(v int32) *bucket {
	return &t.buckets[t.BucketIndex(v)]
}

// Insert appends v to its bucket.
func (t *HashTable) Insert(v int32) {
	b := t.bucket(v)
	b.mu.Lock()
	b.add(v)
	b.mu.Unlock()
}

// Remove deletes the first occurrence of v, if any.
func (t *HashTable) Remove(v int32) {
	b := t.bucket(v)
	b.mu.Lock()
	b.remove(v)
	b.mu.Unlock()
}

// Find reports whether v is present.
func (t *HashTable) Find(v int32) bool {
	b := t.bucket(v)
	b.mu.RLock()
	ok := b.contains(v)
	b.mu.RUnlock()
	return ok
}

// LockForWrite takes v's bucket lock exclusively.
func (t *HashTable) LockForWrite(v int32) { t.bucket(v).mu.Lock() }

// UnlockForWrite releases a lock taken by LockForWrite.
func (t *HashTable) UnlockForWrite(v int32) { t.bucket(v).mu.Unlock() }

// LockForRead takes v's bucket lock shared.
func (t *HashTable) LockForRead(v int32) { t.bucket(v).mu.RLock() }

// UnlockForRead releases a lock taken by LockForRead.
func (t *HashTable) UnlockForRead(v int32) { t.bucket(v).mu.RUnlock() }

// InsertLocked is Insert for a caller already holding LockForWrite(v).
func (t *HashTable) InsertLocked(v int32) { t.bucket(v).add(v) }

// RemoveLocked is Remove for a caller already holding LockForWrite(v).
// It reports whether an entry was removed.
func (t *HashTable) RemoveLocked(v int32) bool { return t.bucket(v).remove(v) }

// FindLocked is Find for a caller already holding LockForRead(v) or
// LockForWrite(v).
func (t *HashTable) FindLocked(v int32) bool { return t.bucket(v).contains(v) }

// Snapshot is a point-in-time copy of every bucket, in index order.
type Snapshot struct {
	Buckets [][]int32 `json:"buckets"`
}

// Snapshot copies each bucket under its own read lock.
//
// Buckets are visited one at a time, so a snapshot taken while writers are
// active is consistent per bucket only. The Dispatcher calls it behind its
// print barrier, where no worker is in flight.
func (t *HashTable) Snapshot() Snapshot {
	s := Snapshot{Buckets: make([][]int32, len(t.buckets))}
	for i := range t.buckets {
		b := &t.buckets[i]
		b.mu.RLock()
		s.Buckets[i] = b.values()
		b.mu.RUnlock()
	}
	return s
}

// Print writes the table in text form, one "[i]: a -> b -> " line per
// bucket followed by an empty line.
func (t *HashTable) Print(w io.Writer) error {
	return writeText(w, t.Snapshot())
}

func writeText(w io.Writer, s Snapshot) error {
	bw := bufio.NewWriter(w)
	var num []byte
	for i, values := range s.Buckets {
		bw.WriteByte('[')
		bw.WriteString(strconv.Itoa(i))
		bw.WriteString("]: ")
		for _, v := range values {
			num = strconv.AppendInt(num[:0], int64(v), 10)
			bw.Write(num)
			bw.WriteString(" -> ")
		}
		bw.WriteByte('\n')
	}
	bw.WriteByte('\n')
	return bw.Flush()
}
