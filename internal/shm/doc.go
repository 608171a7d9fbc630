// Package shm provides the named shared memory regions and the named
// process-shared counting semaphore that back the shmtable transport.
//
// Both resources are plain files under a shared directory (/dev/shm when it
// exists, the system temp directory otherwise) mapped with mmap(2). The
// creating side owns the names and unlinks them on Close; the opening side
// only unmaps.
//
// The semaphore keeps its count in the first word of its mapping and parks
// waiters on a shared futex on Linux. Other platforms fall back to spinning
// with a sleeping backoff.
package shm
