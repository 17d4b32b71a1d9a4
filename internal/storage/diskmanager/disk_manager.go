// Package diskmanager persists page bytes to a single heap-style data
// file and hands out page ids. It implements the Disk Manager contract
// the buffer pool manager consumes, simplified from the teacher's
// multi-file, catalog-backed disk manager (storage_engine/disk_manager)
// down to the single-file model this core's spec assumes: one data file,
// a monotonically increasing page id counter, and a free list of
// deallocated ids available for reuse.
package diskmanager

import (
	"fmt"
	"io"
	"os"
	"sync"

	"pagecache/internal/storage/frame"
)

// DiskManager owns the on-disk heap file and the page id space over it.
type DiskManager struct {
	mu       sync.Mutex
	file     *os.File
	pageSize int
	nextID   frame.PageID
	free     []frame.PageID
	reads    int64
	writes   int64
}

// Open creates or opens the data file at path and recovers the next page
// id from its current size.
func Open(path string, pageSize int) (*DiskManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("diskmanager: open %s: %w", path, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("diskmanager: stat %s: %w", path, err)
	}

	return &DiskManager{
		file:     f,
		pageSize: pageSize,
		nextID:   frame.PageID(stat.Size() / int64(pageSize)),
	}, nil
}

// AllocatePage returns a page id that is not currently allocated: the most
// recently deallocated id if one is available, otherwise the next
// never-used id.
func (dm *DiskManager) AllocatePage() frame.PageID {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if n := len(dm.free); n > 0 {
		id := dm.free[n-1]
		dm.free = dm.free[:n-1]
		return id
	}
	id := dm.nextID
	dm.nextID++
	return id
}

// DeallocatePage marks a page id reusable. It does not touch the
// underlying bytes on disk — nothing reads a deallocated page again until
// AllocatePage hands its id back out.
func (dm *DiskManager) DeallocatePage(id frame.PageID) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.free = append(dm.free, id)
}

// ReadPage fills buf (which must be pageSize bytes) from stable storage.
func (dm *DiskManager) ReadPage(id frame.PageID, buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if len(buf) != dm.pageSize {
		return fmt.Errorf("diskmanager: buffer size %d does not match page size %d", len(buf), dm.pageSize)
	}

	offset := int64(id) * int64(dm.pageSize)
	n, err := dm.file.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return fmt.Errorf("diskmanager: read page %d: %w", id, err)
	}
	for i := n; i < dm.pageSize; i++ {
		buf[i] = 0
	}
	dm.reads++
	return nil
}

// WritePage persists buf (which must be pageSize bytes) for page id.
func (dm *DiskManager) WritePage(id frame.PageID, buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if len(buf) != dm.pageSize {
		return fmt.Errorf("diskmanager: buffer size %d does not match page size %d", len(buf), dm.pageSize)
	}

	offset := int64(id) * int64(dm.pageSize)
	if _, err := dm.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("diskmanager: write page %d: %w", id, err)
	}
	dm.writes++
	return nil
}

// Sync forces the OS buffer for the data file to stable storage.
func (dm *DiskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err := dm.file.Sync(); err != nil {
		return fmt.Errorf("diskmanager: sync: %w", err)
	}
	return nil
}

// Close closes the underlying data file.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.file.Close()
}

// Stats reports the number of ReadPage/WritePage calls served, mirroring
// the teacher's habit of exposing simple operational counters off the
// disk/buffer layer (see BufferPoolStats in storage_engine/bufferpool).
type Stats struct {
	Reads  int64
	Writes int64
}

func (dm *DiskManager) Stats() Stats {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return Stats{Reads: dm.reads, Writes: dm.writes}
}
