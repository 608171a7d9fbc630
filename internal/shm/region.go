package shm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

var (
	// ErrName is returned for empty names or names containing a separator.
	ErrName = errors.New("shm: invalid name")
	// ErrSize is returned for a non-positive size or when an existing
	// region's size differs from the requested one.
	ErrSize = errors.New("shm: region size mismatch")
	// ErrNotExist is returned when opening a name nobody created.
	ErrNotExist = errors.New("shm: name does not exist")
	// ErrInUse is returned when creating a name a live owner still holds.
	ErrInUse = errors.New("shm: name is in use")
)

// Region is a named, memory-mapped shared byte region.
type Region struct {
	file  *os.File
	mem   []byte
	path  string
	owner bool
}

// Dir returns the directory shared regions live in.
func Dir() string {
	info, err := os.Stat("/dev/shm")
	if err == nil && info.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// regionPath maps a POSIX-style name ("/foo" or "foo") onto dir.
func regionPath(dir, name string) (string, error) {
	name = strings.TrimPrefix(name, "/")
	if name == "" || strings.ContainsRune(name, '/') {
		return "", fmt.Errorf("%w: %q", ErrName, name)
	}
	if dir == "" {
		dir = Dir()
	}
	return filepath.Join(dir, name), nil
}

// CreateRegion creates the named region of size bytes in dir ("" means
// Dir()). The caller owns the name until Close, which unlinks it.
//
// Owners hold an exclusive flock on the file. A file nobody holds is
// stale, left behind by a crashed owner, and is replaced; a held one
// fails with ErrInUse.
func CreateRegion(dir, name string, size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrSize, size)
	}
	path, err := regionPath(dir, name)
	if err != nil {
		return nil, err
	}
	if err := removeStale(path); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to create region %s: %w", path, err)
	}

	cleanup := func() {
		file.Close()
		os.Remove(path)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		cleanup()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrInUse, path)
		}
		return nil, fmt.Errorf("failed to lock region %s: %w", path, err)
	}

	if err := file.Truncate(int64(size)); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to resize region %s: %w", path, err)
	}

	mem, err := mmapFile(file, size)
	if err != nil {
		cleanup()
		return nil, err
	}
	return &Region{file: file, mem: mem, path: path, owner: true}, nil
}

// removeStale unlinks path unless its owner is still alive.
func removeStale(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check region %s: %w", path, err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return fmt.Errorf("%w: %s", ErrInUse, path)
		}
		return fmt.Errorf("failed to lock region %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove stale region %s: %w", path, err)
	}
	return nil
}

// OpenRegion maps an existing named region. The region must be exactly
// size bytes long, so both sides agree on where it ends.
func OpenRegion(dir, name string, size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrSize, size)
	}
	path, err := regionPath(dir, name)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		return nil, fmt.Errorf("failed to open region %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat region %s: %w", path, err)
	}
	if info.Size() != int64(size) {
		file.Close()
		return nil, fmt.Errorf("%w: %s has %d bytes, want %d", ErrSize, path, info.Size(), size)
	}

	mem, err := mmapFile(file, size)
	if err != nil {
		file.Close()
		return nil, err
	}
	return &Region{file: file, mem: mem, path: path}, nil
}

// Bytes returns the mapped memory. It is invalid after Close.
func (r *Region) Bytes() []byte {
	return r.mem
}

// Path returns the backing file path.
func (r *Region) Path() string {
	return r.path
}

// Close unmaps the region and, for the owner, unlinks its name and drops
// the ownership lock.
// It is safe to call more than once.
func (r *Region) Close() error {
	if r.file == nil {
		return nil
	}
	var errs []error
	if r.mem != nil {
		if err := unix.Munmap(r.mem); err != nil {
			errs = append(errs, fmt.Errorf("munmap failed: %w", err))
		}
		r.mem = nil
	}
	// Unlink while still holding the lock, so a new owner never sees the
	// old file unlocked and removes it in our place.
	if r.owner {
		if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, err)
	}
	r.file = nil
	return errors.Join(errs...)
}

func mmapFile(file *os.File, size int) ([]byte, error) {
	data, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	return data, nil
}
