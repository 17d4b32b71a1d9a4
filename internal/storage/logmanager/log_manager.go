// Package logmanager is the optional write-ahead log collaborator the
// buffer pool consults before writing a dirty frame back to disk. It is
// grounded on the teacher's append-only WAL segment
// (storage_engine/wal_manager/wal_segment.go: O_APPEND file, Append,
// Sync) combined with the LSN/flushed-watermark shape of
// anishsapkota-mydb/log's Manager, which is exactly the
// WALFlushedLSNGetter contract the teacher's bufferpool already expects
// (storage_engine/bufferpool/structs.go).
package logmanager

import (
	"fmt"
	"os"
	"sync"
)

// Manager appends log records to a single append-only segment file and
// tracks which LSN has been durably flushed. When nil, the buffer pool
// treats logging as disabled, per the external Log Manager contract.
type Manager struct {
	mu         sync.Mutex
	file       *os.File
	latestLSN  uint64
	flushedLSN uint64
}

// Open creates or opens the log file at path in append-only mode.
func Open(path string) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("logmanager: open %s: %w", path, err)
	}
	return &Manager{file: f}, nil
}

// Append writes a log record and returns its assigned LSN. LSNs are
// monotonically increasing and never reused.
func (m *Manager) Append(record []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.latestLSN++
	lsn := m.latestLSN

	if _, err := m.file.Write(record); err != nil {
		return 0, fmt.Errorf("logmanager: append: %w", err)
	}
	return lsn, nil
}

// Flush forces the log file to stable storage and advances the flushed
// watermark to the latest appended LSN. The buffer pool calls this (or
// checks GetFlushedLSN) before writing back a frame whose LSN has not yet
// been covered by a durable log flush.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("logmanager: flush: %w", err)
	}
	m.flushedLSN = m.latestLSN
	return nil
}

// GetFlushedLSN implements the WALFlushedLSNGetter contract the buffer
// pool consumes: the highest LSN known to be durable on disk.
func (m *Manager) GetFlushedLSN() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushedLSN
}

// Close closes the underlying log file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Close()
}
