package bufferpool

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagecache/internal/storage/diskmanager"
	"pagecache/internal/storage/frame"
)

const testPageSize = 16

func newTestPool(t *testing.T, poolSize int) *BufferPoolManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.db")
	disk, err := diskmanager.Open(path, testPageSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = disk.Close() })
	return New(poolSize, testPageSize, 2, disk, nil)
}

// fakeLog is a minimal LogManager test double that records whether Flush
// was called, for asserting the eviction-gates-on-flush contract.
type fakeLog struct {
	latestLSN   uint64
	flushedLSN  uint64
	flushCalled int
}

func (f *fakeLog) GetFlushedLSN() uint64 { return f.flushedLSN }
func (f *fakeLog) Flush() error {
	f.flushCalled++
	f.flushedLSN = f.latestLSN
	return nil
}

// S1: fetch a brand-new page, write to it, unpin dirty, flush, and read
// the same bytes back from disk directly.
func TestNewPageWriteUnpinFlushPersists(t *testing.T) {
	bp := newTestPool(t, 2)

	f, err := bp.NewPage()
	require.NoError(t, err)
	require.NotNil(t, f)
	pageID := f.PageID

	for i := range f.Data {
		f.Data[i] = byte(i + 1)
	}

	require.True(t, bp.UnpinPage(pageID, true))
	ok, err := bp.FlushPage(pageID)
	require.NoError(t, err)
	assert.True(t, ok)

	buf := make([]byte, testPageSize)
	require.NoError(t, bp.disk.ReadPage(pageID, buf))
	for i := range buf {
		assert.Equal(t, byte(i+1), buf[i])
	}
}

// S2: fetching an already-resident page returns the same in-memory
// bytes without a disk round trip, and increments the pin count.
func TestFetchResidentPageHitsPageTable(t *testing.T) {
	bp := newTestPool(t, 2)

	f, err := bp.NewPage()
	require.NoError(t, err)
	f.Data[0] = 0x42
	pageID := f.PageID
	require.True(t, bp.UnpinPage(pageID, true))

	fetched, err := bp.FetchPage(pageID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, byte(0x42), fetched.Data[0])
	assert.Equal(t, 1, fetched.PinCount)

	statsBefore := bp.disk.Stats()
	assert.Equal(t, int64(0), statsBefore.Reads)
}

// S3: with every frame pinned, NewPage and FetchPage both report
// exhaustion by returning a nil frame rather than an error.
func TestPoolExhaustionReturnsNilFrame(t *testing.T) {
	bp := newTestPool(t, 2)

	first, err := bp.NewPage()
	require.NoError(t, err)
	require.NotNil(t, first)
	second, err := bp.NewPage()
	require.NoError(t, err)
	require.NotNil(t, second)

	third, err := bp.NewPage()
	require.NoError(t, err)
	assert.Nil(t, third)

	fetched, err := bp.FetchPage(frame.PageID(999))
	require.NoError(t, err)
	assert.Nil(t, fetched)
}

// S4: unpinning a page twice in a row fails the second time.
func TestDoubleUnpinFailsOnSecondCall(t *testing.T) {
	bp := newTestPool(t, 2)

	f, err := bp.NewPage()
	require.NoError(t, err)
	pageID := f.PageID

	require.True(t, bp.UnpinPage(pageID, false))
	assert.False(t, bp.UnpinPage(pageID, false))
}

// S5: deleting a pinned page is refused; deleting an unpinned one
// succeeds and frees a slot for reuse.
func TestDeletePinnedPageIsRefused(t *testing.T) {
	bp := newTestPool(t, 1)

	f, err := bp.NewPage()
	require.NoError(t, err)
	pageID := f.PageID

	assert.False(t, bp.DeletePage(pageID))
}

func TestDeleteUnpinnedPageFreesFrameForReuse(t *testing.T) {
	bp := newTestPool(t, 1)

	f, err := bp.NewPage()
	require.NoError(t, err)
	pageID := f.PageID
	require.True(t, bp.UnpinPage(pageID, false))

	assert.True(t, bp.DeletePage(pageID))

	next, err := bp.NewPage()
	require.NoError(t, err)
	require.NotNil(t, next, "freed frame should be available for a new page")
}

// Allocating a new page beyond pool capacity evicts the
// least-recently-unpinned evictable frame, writing it back first if dirty.
func TestNewPageEvictsOldestUnpinnedFrameAndWritesBackIfDirty(t *testing.T) {
	bp := newTestPool(t, 1)

	first, err := bp.NewPage()
	require.NoError(t, err)
	firstID := first.PageID
	first.Data[0] = 0x99
	require.True(t, bp.UnpinPage(firstID, true))

	second, err := bp.NewPage()
	require.NoError(t, err)
	secondID := second.PageID
	require.NotEqual(t, firstID, secondID)
	require.True(t, bp.UnpinPage(secondID, false))

	buf := make([]byte, testPageSize)
	require.NoError(t, bp.disk.ReadPage(firstID, buf))
	assert.Equal(t, byte(0x99), buf[0], "dirty victim must be written back before its frame is reused")
}

// Size's three counts always sum to the pool size (spec's quantified
// invariant over pool occupancy).
func TestSizeCountsAlwaysSumToPoolSize(t *testing.T) {
	const poolSize = 3
	bp := newTestPool(t, poolSize)

	f1, err := bp.NewPage()
	require.NoError(t, err)
	_, err = bp.NewPage()
	require.NoError(t, err)
	require.True(t, bp.UnpinPage(f1.PageID, false))

	sz := bp.Size()
	assert.Equal(t, poolSize, sz.Free+sz.Evictable+sz.Pinned)
}

// A log manager's GetFlushedLSN is consulted before writing back a dirty
// victim whose LSN it has not yet covered, and Flush is invoked to close
// the gap.
func TestEvictionFlushesLogWhenVictimLSNIsUnflushed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	disk, err := diskmanager.Open(path, testPageSize)
	require.NoError(t, err)
	defer disk.Close()

	log := &fakeLog{latestLSN: 5}
	bp := New(1, testPageSize, 2, disk, log)

	f, err := bp.NewPage()
	require.NoError(t, err)
	f.LSN = 5
	require.True(t, bp.UnpinPage(f.PageID, true))

	_, err = bp.NewPage()
	require.NoError(t, err)

	assert.Equal(t, 1, log.flushCalled)
	assert.Equal(t, uint64(5), log.GetFlushedLSN())
}

// FlushPage does not clear the dirty flag: a page flushed once and never
// modified again will be written back a second time on eviction.
func TestFlushPageDoesNotClearDirtyFlag(t *testing.T) {
	bp := newTestPool(t, 1)

	f, err := bp.NewPage()
	require.NoError(t, err)
	pageID := f.PageID
	require.True(t, bp.UnpinPage(pageID, true))

	ok, err := bp.FlushPage(pageID)
	require.NoError(t, err)
	require.True(t, ok)

	refetched, err := bp.FetchPage(pageID)
	require.NoError(t, err)
	require.NotNil(t, refetched)
	assert.True(t, refetched.IsDirty)
}

func TestFlushPageOnAbsentPageReturnsFalseWithoutError(t *testing.T) {
	bp := newTestPool(t, 1)
	ok, err := bp.FlushPage(frame.PageID(999))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnpinAbsentPageReturnsFalse(t *testing.T) {
	bp := newTestPool(t, 1)
	assert.False(t, bp.UnpinPage(frame.PageID(123), false))
}
