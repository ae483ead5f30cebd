// Package page implements the B-tree page codec: serializing and
// deserializing a single 4096-byte leaf or internal page to and from the
// fixed-size buffer the pager reads and writes.
package page

import (
	"encoding/binary"
	"fmt"

	"github.com/arrowledge/pagedb/internal/pager"
)

// Type is the page's leaf/internal discriminant, stored as the page's
// first byte.
type Type uint8

const (
	// TypeLeaf marks a leaf page.
	TypeLeaf Type = 0x0D
	// TypeInternal marks an internal page.
	TypeInternal Type = 0x05
)

// HeaderSize is the width of a page's fixed header.
const HeaderSize = 11

// Cell is one leaf record: a key and its opaque value blob.
type Cell struct {
	Key   uint16
	Value []byte
}

// InternalEntry is one internal-page separator/child pair.
type InternalEntry struct {
	Separator uint16
	Child     uint32
}

// Page is the decoded, in-memory form of one B-tree page.
type Page struct {
	Type Type

	// Leaf fields.
	Cells []Cell

	// Internal fields: LeftmostChild plus len(Entries) separator/child
	// pairs. The i-th child subtree holds keys < Entries[i].Separator;
	// the last child holds keys >= the last separator.
	LeftmostChild uint32
	Entries       []InternalEntry

	// RightSibling is reserved (spec §9(a)): always zero on write, never
	// consulted by the core algorithms.
	RightSibling uint32
}

// NewLeaf returns an empty leaf page.
func NewLeaf() *Page {
	return &Page{Type: TypeLeaf}
}

// NewInternal returns an empty internal page with the given leftmost child.
func NewInternal(leftmostChild uint32) *Page {
	return &Page{Type: TypeInternal, LeftmostChild: leftmostChild}
}

// IsLeaf reports whether the page is a leaf page.
func (p *Page) IsLeaf() bool {
	return p.Type == TypeLeaf
}

// NumKeys returns the number of keys (leaf cells, or internal separators)
// on the page.
func (p *Page) NumKeys() int {
	if p.IsLeaf() {
		return len(p.Cells)
	}
	return len(p.Entries)
}

// bodySize computes the encoded byte length of the page body (everything
// after the 11-byte header) as it stands, plus a prospective extra leaf
// cell or internal entry if one is supplied.
func (p *Page) bodySize(extraLeaf *Cell, extraInternal *InternalEntry) int {
	if p.IsLeaf() {
		size := 0
		for _, c := range p.Cells {
			size += 4 + len(c.Value)
		}
		if extraLeaf != nil {
			size += 4 + len(extraLeaf.Value)
		}
		return size
	}

	size := 4 // leftmost child
	size += 6 * len(p.Entries)
	if extraInternal != nil {
		size += 6
	}
	return size
}

// IsFull reports whether inserting the given prospective leaf cell (for a
// leaf page) would push the encoded page size past PageSize.
func (p *Page) IsFull(extraKey uint16, extraValue []byte) bool {
	cell := &Cell{Key: extraKey, Value: extraValue}
	return HeaderSize+p.bodySize(cell, nil) > pager.PageSize
}

// IsFullWithEntry reports whether inserting the given prospective
// separator/child pair (for an internal page) would push the encoded
// page size past PageSize.
func (p *Page) IsFullWithEntry(sep uint16, child uint32) bool {
	entry := &InternalEntry{Separator: sep, Child: child}
	return HeaderSize+p.bodySize(nil, entry) > pager.PageSize
}

// EncodedSize returns the byte length the page would occupy if encoded
// right now (header plus body, with no prospective extra cell).
func (p *Page) EncodedSize() int {
	return HeaderSize + p.bodySize(nil, nil)
}

// Encode serializes the page to a PageSize-capped buffer. free_start is
// recomputed as HeaderSize + len(body).
func (p *Page) Encode() ([]byte, error) {
	body := make([]byte, 0, pager.PageSize-HeaderSize)

	if p.IsLeaf() {
		for _, c := range p.Cells {
			var cellBuf [4]byte
			binary.BigEndian.PutUint16(cellBuf[0:2], c.Key)
			binary.BigEndian.PutUint16(cellBuf[2:4], uint16(len(c.Value)))
			body = append(body, cellBuf[:]...)
			body = append(body, c.Value...)
		}
	} else {
		var childBuf [4]byte
		binary.BigEndian.PutUint32(childBuf[:], p.LeftmostChild)
		body = append(body, childBuf[:]...)

		for _, e := range p.Entries {
			var entryBuf [6]byte
			binary.BigEndian.PutUint16(entryBuf[0:2], e.Separator)
			binary.BigEndian.PutUint32(entryBuf[2:6], e.Child)
			body = append(body, entryBuf[:]...)
		}
	}

	freeStart := HeaderSize + len(body)
	if freeStart > pager.PageSize {
		return nil, fmt.Errorf("page: encoded page exceeds page size: %d > %d", freeStart, pager.PageSize)
	}

	buf := make([]byte, freeStart)
	buf[0] = byte(p.Type)
	binary.BigEndian.PutUint16(buf[1:3], uint16(p.NumKeys()))
	binary.BigEndian.PutUint32(buf[3:7], uint32(freeStart))
	binary.BigEndian.PutUint32(buf[7:11], 0) // RightSibling: reserved, zero on write.
	copy(buf[HeaderSize:], body)

	return buf, nil
}

// Decode parses a page from its on-disk bytes. A page whose first 11
// bytes are all zero decodes as an empty leaf page (the shape of a
// freshly allocated, unwritten page).
func Decode(data []byte) (*Page, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("page: header too short: got %d bytes, want at least %d", len(data), HeaderSize)
	}

	if isAllZero(data[:HeaderSize]) {
		return NewLeaf(), nil
	}

	pageType := Type(data[0])
	numKeys := binary.BigEndian.Uint16(data[1:3])

	switch pageType {
	case TypeLeaf:
		p := NewLeaf()
		offset := HeaderSize
		for i := uint16(0); i < numKeys; i++ {
			if offset+4 > len(data) {
				return nil, fmt.Errorf("page: truncated leaf cell at offset %d", offset)
			}
			key := binary.BigEndian.Uint16(data[offset : offset+2])
			valueLen := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
			offset += 4
			if offset+valueLen > len(data) {
				return nil, fmt.Errorf("page: truncated leaf value at offset %d", offset)
			}
			value := make([]byte, valueLen)
			copy(value, data[offset:offset+valueLen])
			offset += valueLen
			p.Cells = append(p.Cells, Cell{Key: key, Value: value})
		}
		return p, nil

	case TypeInternal:
		if HeaderSize+4 > len(data) {
			return nil, fmt.Errorf("page: truncated internal leftmost child")
		}
		leftmost := binary.BigEndian.Uint32(data[HeaderSize : HeaderSize+4])
		p := NewInternal(leftmost)
		offset := HeaderSize + 4
		for i := uint16(0); i < numKeys; i++ {
			if offset+6 > len(data) {
				return nil, fmt.Errorf("page: truncated internal entry at offset %d", offset)
			}
			sep := binary.BigEndian.Uint16(data[offset : offset+2])
			child := binary.BigEndian.Uint32(data[offset+2 : offset+6])
			offset += 6
			p.Entries = append(p.Entries, InternalEntry{Separator: sep, Child: child})
		}
		return p, nil

	default:
		return nil, fmt.Errorf("page: unknown page type byte 0x%02x", pageType)
	}
}

// Children returns every child page number of an internal page, in
// left-to-right order: the leftmost child followed by each entry's
// child.
func (p *Page) Children() []uint32 {
	if p.IsLeaf() {
		return nil
	}
	out := make([]uint32, 0, len(p.Entries)+1)
	out = append(out, p.LeftmostChild)
	for _, e := range p.Entries {
		out = append(out, e.Child)
	}
	return out
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
