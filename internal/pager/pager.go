// Package pager provides page-granular file I/O for a single table file:
// a 4-byte root-page-number header followed by a sequence of fixed-size
// pages, numbered from 1.
package pager

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// PageSize is the fixed size, in bytes, of every page in a table file.
const PageSize = 4096

// rootHeaderSize is the width of the file's root-page-number prefix.
const rootHeaderSize = 4

// Pager owns a single table file's handle and serves page-granular reads
// and writes against it. A Pager must not be shared between two Table
// instances concurrently (see spec §5).
type Pager struct {
	filename string
	file     *os.File
	log      *logrus.Entry
}

// Open opens filename, creating it (and writing an initial root page
// number of 1) if it does not already exist.
func Open(filename string, log *logrus.Logger) (*Pager, error) {
	if log == nil {
		log = logrus.New()
	}
	entry := log.WithField("file", filename)

	_, statErr := os.Stat(filename)
	existed := statErr == nil

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pager: open %s: %w", filename, err)
	}

	p := &Pager{filename: filename, file: f, log: entry}

	if !existed {
		if err := p.WriteRootPageNumber(1); err != nil {
			f.Close()
			return nil, fmt.Errorf("pager: initializing root header for %s: %w", filename, err)
		}
		entry.Info("initialized new table file with root page 1")
	}

	return p, nil
}

// ReadRootPageNumber reads the file's 4-byte root page number header.
func (p *Pager) ReadRootPageNumber() (uint32, error) {
	buf := make([]byte, rootHeaderSize)
	n, err := p.file.ReadAt(buf, 0)
	if err != nil && n < rootHeaderSize {
		return 1, nil
	}
	return beUint32(buf), nil
}

// WriteRootPageNumber writes the file's 4-byte root page number header
// and flushes.
func (p *Pager) WriteRootPageNumber(pageNumber uint32) error {
	buf := putBeUint32(pageNumber)
	if _, err := p.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("pager: write root page number: %w", err)
	}
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("pager: flush root page number: %w", err)
	}
	p.log.WithField("root_page", pageNumber).Debug("wrote root page number")
	return nil
}

// pageOffset computes the byte offset of page n (1-based).
func pageOffset(n uint32) int64 {
	return int64(rootHeaderSize) + int64(n-1)*int64(PageSize)
}

// ReadPage reads page n, right-padding with zeros if the file is shorter
// than a full page (the shape of a freshly-allocated, unwritten page).
// Fails if n < 1, which is a caller bug.
func (p *Pager) ReadPage(n uint32) ([]byte, error) {
	if n < 1 {
		panic(fmt.Sprintf("pager: invalid page number %d", n))
	}

	buf := make([]byte, PageSize)
	read, err := p.file.ReadAt(buf, pageOffset(n))
	if err != nil && read == 0 {
		// Entirely unwritten page: return the all-zero buffer.
		return buf, nil
	}
	if read < PageSize {
		// Short read at the tail of the file: zero-pad the rest.
		for i := read; i < PageSize; i++ {
			buf[i] = 0
		}
	}
	return buf, nil
}

// WritePage writes data (padded to PageSize with zeros) at page n and
// flushes. Rejects data longer than PageSize, which is a caller bug.
func (p *Pager) WritePage(n uint32, data []byte) error {
	if n < 1 {
		panic(fmt.Sprintf("pager: invalid page number %d", n))
	}
	if len(data) > PageSize {
		panic(fmt.Sprintf("pager: page data too large: %d > %d", len(data), PageSize))
	}

	buf := make([]byte, PageSize)
	copy(buf, data)

	if _, err := p.file.WriteAt(buf, pageOffset(n)); err != nil {
		return fmt.Errorf("pager: write page %d: %w", n, err)
	}
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("pager: flush page %d: %w", n, err)
	}
	p.log.WithField("page", n).Debug("wrote page")
	return nil
}

// AllocatePage returns the smallest page number not yet materialized in
// the file. No page is physically written until the caller calls
// WritePage for it.
func (p *Pager) AllocatePage() (uint32, error) {
	info, err := p.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("pager: stat %s: %w", p.filename, err)
	}

	size := info.Size()
	if size < rootHeaderSize {
		size = rootHeaderSize
	}

	n := uint32((size-rootHeaderSize)/PageSize) + 1
	p.log.WithField("page", n).Debug("allocated page")
	return n, nil
}

// Close flushes and fsyncs the underlying file handle.
func (p *Pager) Close() error {
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("pager: sync on close: %w", err)
	}
	if err := p.file.Close(); err != nil {
		return fmt.Errorf("pager: close %s: %w", p.filename, err)
	}
	p.log.Debug("closed pager")
	return nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putBeUint32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
