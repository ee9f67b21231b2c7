// Package pager stores fixed-size pages in a single file and keeps recently
// used pages in an LRU cache. Files go through Pebble's vfs so the paged
// index can run on vfs.NewMem() in tests and benchmarks.
package pager

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/cockroachdb/pebble/vfs"
)

const (
	PageSize    = 4096 // 4 KB, matches OS page size
	InvalidPage = ^uint64(0)
)

// ErrPageOutOfRange is returned for reads and writes past the last
// allocated page.
var ErrPageOutOfRange = errors.New("pager: page out of range")

// Page is a raw 4 KB block read from or written to disk.
type Page [PageSize]byte

// Pager manages a file of fixed-size pages and caches recently used ones.
// It is safe for concurrent use; pages returned by Read are shared, so
// concurrent readers must not modify them.
type Pager struct {
	mu        sync.Mutex
	file      vfs.File
	cache     *lruCache
	pageCount uint64 // total number of pages ever allocated
}

// Open opens (or creates) a pager backed by the given file. A nil fs means
// the OS filesystem. cacheSize is the number of pages to hold in the LRU
// cache and is at least one.
func Open(fs vfs.FS, path string, cacheSize int) (*Pager, error) {
	if fs == nil {
		fs = vfs.Default
	}
	f, err := fs.OpenReadWrite(path)
	if err != nil {
		return nil, fmt.Errorf("pager open: %w", err)
	}

	p := &Pager{
		file:  f,
		cache: newLRUCache(max(cacheSize, 1)),
	}

	// Page 0 holds the page count in its first 8 bytes.
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("pager: stat: %w", err)
	}
	if info.Size() == 0 {
		p.pageCount = 1
		if err := p.writePageCount(); err != nil {
			_ = f.Close()
			return nil, err
		}
		return p, nil
	}
	if info.Size()%PageSize != 0 {
		_ = f.Close()
		return nil, fmt.Errorf("pager: %s: size %d is not a multiple of %d", path, info.Size(), PageSize)
	}
	pg, err := p.readPageFromDisk(0)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("pager: read header: %w", err)
	}
	p.pageCount = binary.LittleEndian.Uint64(pg[:8])
	return p, nil
}

// Allocate reserves a new page on disk and returns its page ID.
func (p *Pager) Allocate() (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.pageCount

	// Write an empty page to extend the file.
	var blank Page
	if err := p.writePageToDisk(id, &blank); err != nil {
		return 0, err
	}
	p.pageCount++
	if err := p.writePageCount(); err != nil {
		p.pageCount--
		return 0, err
	}
	return id, nil
}

// Read returns the page with the given ID, from cache or disk. The page is
// shared with the cache: callers that modify it must Write it back.
func (p *Pager) Read(id uint64) (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id >= p.pageCount {
		return nil, fmt.Errorf("%w: read %d of %d", ErrPageOutOfRange, id, p.pageCount)
	}
	if pg := p.cache.get(id); pg != nil {
		return pg, nil
	}
	pg, err := p.readPageFromDisk(id)
	if err != nil {
		return nil, err
	}
	p.cache.put(id, pg)
	return pg, nil
}

// Write writes a page through to disk and updates the cache.
func (p *Pager) Write(id uint64, pg *Page) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id >= p.pageCount {
		return fmt.Errorf("%w: write %d of %d", ErrPageOutOfRange, id, p.pageCount)
	}
	if err := p.writePageToDisk(id, pg); err != nil {
		return err
	}
	p.cache.put(id, pg)
	return nil
}

// Sync flushes the file to stable storage.
func (p *Pager) Sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("pager: sync: %w", err)
	}
	return nil
}

// Close syncs and closes the underlying file.
func (p *Pager) Close() error {
	err := p.Sync()
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(err, p.file.Close())
}

// PageCount returns the total number of allocated pages.
func (p *Pager) PageCount() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pageCount
}

// CachedPages returns the number of pages held in the cache.
func (p *Pager) CachedPages() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cache.items)
}

func (p *Pager) offset(id uint64) int64 {
	return int64(id) * PageSize
}

func (p *Pager) readPageFromDisk(id uint64) (*Page, error) {
	pg := new(Page)
	n, err := p.file.ReadAt(pg[:], p.offset(id))
	if err != nil && !(errors.Is(err, io.EOF) && n == PageSize) {
		return nil, fmt.Errorf("pager: read page %d: %w", id, err)
	}
	return pg, nil
}

func (p *Pager) writePageToDisk(id uint64, pg *Page) error {
	_, err := p.file.WriteAt(pg[:], p.offset(id))
	if err != nil {
		return fmt.Errorf("pager: write page %d: %w", id, err)
	}
	return nil
}

func (p *Pager) writePageCount() error {
	var hdr Page
	// Keep whatever else lives on page 0.
	if p.pageCount > 1 {
		existing, err := p.readPageFromDisk(0)
		if err != nil {
			return err
		}
		hdr = *existing
	}
	binary.LittleEndian.PutUint64(hdr[:8], p.pageCount)
	if err := p.writePageToDisk(0, &hdr); err != nil {
		return err
	}
	if p.cache.get(0) != nil {
		p.cache.put(0, &hdr)
	}
	return nil
}

// --- LRU cache ---

type lruEntry struct {
	id   uint64
	page *Page
	prev *lruEntry
	next *lruEntry
}

type lruCache struct {
	cap   int
	items map[uint64]*lruEntry
	head  *lruEntry // most recent
	tail  *lruEntry // least recent
}

func newLRUCache(cap int) *lruCache {
	return &lruCache{
		cap:   cap,
		items: make(map[uint64]*lruEntry, cap),
	}
}

func (c *lruCache) get(id uint64) *Page {
	e, ok := c.items[id]
	if !ok {
		return nil
	}
	c.moveToFront(e)
	return e.page
}

func (c *lruCache) put(id uint64, pg *Page) {
	if e, ok := c.items[id]; ok {
		e.page = pg
		c.moveToFront(e)
		return
	}
	e := &lruEntry{id: id, page: pg}
	c.items[id] = e
	c.pushFront(e)
	if len(c.items) > c.cap {
		c.evict()
	}
}

func (c *lruCache) pushFront(e *lruEntry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) moveToFront(e *lruEntry) {
	if c.head == e {
		return
	}
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if c.tail == e {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
}

func (c *lruCache) evict() {
	if c.tail == nil {
		return
	}
	delete(c.items, c.tail.id)
	if c.tail.prev != nil {
		c.tail.prev.next = nil
	}
	c.tail = c.tail.prev
	if c.tail == nil {
		c.head = nil
	}
}
