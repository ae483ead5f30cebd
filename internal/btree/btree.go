// Package btree implements the ordered key (uint16) -> value (bytes) map
// described in spec.md §4.3: splits propagate upward on insert, and
// borrow/merge rebalancing propagates upward on delete, all persisted
// through a pager.Pager.
package btree

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/arrowledge/pagedb/internal/page"
	"github.com/arrowledge/pagedb/internal/pager"
)

// DefaultMaxKeys bounds the number of keys a page may hold, independent
// of the byte-size bound, so that splits and merges engage on realistic
// test-sized data sets rather than only once a page nears 4096 bytes.
// Grounded on original_source/backend/btree.py's MAX_KEYS = 32.
const DefaultMaxKeys = 32

// Tree is an ordered key->value B-tree persisted through a Pager.
type Tree struct {
	pager   *pager.Pager
	maxKeys int
	log     *logrus.Entry
}

// Option configures a Tree at construction time.
type Option func(*Tree)

// WithMaxKeys caps the number of keys any single page may hold,
// independent of the byte-size bound (spec.md §4.3: "implementations may
// additionally cap num_keys at a smaller MAX for testability").
func WithMaxKeys(n int) Option {
	return func(t *Tree) { t.maxKeys = n }
}

// WithLogger attaches a logger to the tree; without it, the tree logs
// through its own logrus.New() logger at logrus's default level.
func WithLogger(l *logrus.Logger) Option {
	return func(t *Tree) { t.log = l.WithField("component", "btree") }
}

// Open returns a Tree backed by p.
func Open(p *pager.Pager, opts ...Option) *Tree {
	t := &Tree{pager: p, maxKeys: DefaultMaxKeys, log: logrus.New().WithField("component", "btree")}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Tree) minKeys() int {
	return t.maxKeys / 2
}

// UpdateAtPage overwrites key's value directly on the leaf page known to
// hold it, skipping the root-to-leaf descent. Used by callers (the VM's
// UPDATE_ROW) that already cached the page number from a prior scan.
// Reports false if key is not present on that page.
func (t *Tree) UpdateAtPage(pageNumber uint32, key uint16, value []byte) (bool, error) {
	pg, err := t.loadPage(pageNumber)
	if err != nil {
		return false, err
	}
	for i, c := range pg.Cells {
		if c.Key == key {
			pg.Cells[i].Value = value
			return true, t.savePage(pageNumber, pg)
		}
	}
	return false, nil
}

// Get returns the value stored for key, if present.
func (t *Tree) Get(key uint16) ([]byte, bool, error) {
	root, err := t.pager.ReadRootPageNumber()
	if err != nil {
		return nil, false, err
	}

	pn := root
	for {
		pg, err := t.loadPage(pn)
		if err != nil {
			return nil, false, err
		}
		if pg.IsLeaf() {
			for _, c := range pg.Cells {
				if c.Key == key {
					return c.Value, true, nil
				}
			}
			return nil, false, nil
		}
		pn = pg.Children()[findChildIndex(pg, key)]
	}
}

// ScanEntry is one in-order (key, value) pair, tagged with the leaf page
// it currently lives on.
type ScanEntry struct {
	Key        uint16
	Value      []byte
	PageNumber uint32
}

// Walk performs a finite, in-order traversal of every leaf cell, calling
// visit for each. It is not restartable: call Walk again for a fresh
// traversal.
func (t *Tree) Walk(visit func(entry ScanEntry) error) error {
	root, err := t.pager.ReadRootPageNumber()
	if err != nil {
		return err
	}
	return t.walkPage(root, visit)
}

func (t *Tree) walkPage(pn uint32, visit func(entry ScanEntry) error) error {
	pg, err := t.loadPage(pn)
	if err != nil {
		return err
	}
	if pg.IsLeaf() {
		for _, c := range pg.Cells {
			if err := visit(ScanEntry{Key: c.Key, Value: c.Value, PageNumber: pn}); err != nil {
				return err
			}
		}
		return nil
	}
	for _, child := range pg.Children() {
		if err := t.walkPage(child, visit); err != nil {
			return err
		}
	}
	return nil
}

// Scan collects every (key, value, page number) triple in ascending key
// order.
func (t *Tree) Scan() ([]ScanEntry, error) {
	var out []ScanEntry
	err := t.Walk(func(e ScanEntry) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

// ancestor records one step of a root-to-leaf descent: the page visited
// and the index (into page.Children()) that was followed next. Children
// are referenced only by page number, never by a resident handle (spec
// §9): a traversal rebuilds the path in this local slice.
type ancestor struct {
	pageNumber uint32
	page       *page.Page
	childIndex int
}

func (t *Tree) descend(rootPN uint32, key uint16) (path []ancestor, leafPN uint32, leaf *page.Page, err error) {
	pn := rootPN
	for {
		pg, err := t.loadPage(pn)
		if err != nil {
			return nil, 0, nil, err
		}
		if pg.IsLeaf() {
			return path, pn, pg, nil
		}
		idx := findChildIndex(pg, key)
		path = append(path, ancestor{pageNumber: pn, page: pg, childIndex: idx})
		pn = pg.Children()[idx]
	}
}

// findChildIndex returns the index i (into Entries, and equivalently
// into Children()) of the first separator > key, or len(Entries) if
// every separator is <= key. A key equal to a separator therefore
// descends into the child to that separator's right.
func findChildIndex(pg *page.Page, key uint16) int {
	for i, e := range pg.Entries {
		if key < e.Separator {
			return i
		}
	}
	return len(pg.Entries)
}

// Insert sets key -> value. If key already exists its value is replaced
// in place and no split is triggered.
func (t *Tree) Insert(key uint16, value []byte) error {
	root, err := t.pager.ReadRootPageNumber()
	if err != nil {
		return err
	}

	path, leafPN, leaf, err := t.descend(root, key)
	if err != nil {
		return err
	}

	for i, c := range leaf.Cells {
		if c.Key == key {
			leaf.Cells[i].Value = value
			return t.savePage(leafPN, leaf)
		}
	}

	insertLeafCellSorted(leaf, key, value)

	if t.isLeafOverflow(leaf) {
		medianKey, rightPN, rightPage, err := t.splitLeaf(leaf)
		if err != nil {
			return err
		}
		if err := t.savePage(leafPN, leaf); err != nil {
			return err
		}
		if err := t.savePage(rightPN, rightPage); err != nil {
			return err
		}
		t.log.WithFields(logrus.Fields{"leaf": leafPN, "right": rightPN, "median": medianKey}).Debug("split leaf")
		return t.propagateInsert(path, medianKey, rightPN)
	}

	return t.savePage(leafPN, leaf)
}

func insertLeafCellSorted(pg *page.Page, key uint16, value []byte) {
	idx := 0
	for idx < len(pg.Cells) && pg.Cells[idx].Key < key {
		idx++
	}
	pg.Cells = append(pg.Cells, page.Cell{})
	copy(pg.Cells[idx+1:], pg.Cells[idx:])
	pg.Cells[idx] = page.Cell{Key: key, Value: value}
}

func insertInternalEntrySorted(pg *page.Page, sep uint16, child uint32) {
	idx := 0
	for idx < len(pg.Entries) && pg.Entries[idx].Separator < sep {
		idx++
	}
	pg.Entries = append(pg.Entries, page.InternalEntry{})
	copy(pg.Entries[idx+1:], pg.Entries[idx:])
	pg.Entries[idx] = page.InternalEntry{Separator: sep, Child: child}
}

func (t *Tree) isLeafOverflow(pg *page.Page) bool {
	return len(pg.Cells) > t.maxKeys || pg.EncodedSize() > pager.PageSize
}

func (t *Tree) isInternalOverflow(pg *page.Page) bool {
	return len(pg.Entries) > t.maxKeys || pg.EncodedSize() > pager.PageSize
}

// splitLeaf splits pg in place: pg keeps cells [:mid], the returned page
// holds [mid:]. The promoted separator is the right page's first key
// (a B+-tree-style leaf split per spec.md §4.3).
func (t *Tree) splitLeaf(pg *page.Page) (medianKey uint16, rightPN uint32, right *page.Page, err error) {
	mid := len(pg.Cells) / 2
	rightCells := append([]page.Cell{}, pg.Cells[mid:]...)
	pg.Cells = pg.Cells[:mid]

	right = page.NewLeaf()
	right.Cells = rightCells

	rightPN, err = t.pager.AllocatePage()
	if err != nil {
		return 0, 0, nil, err
	}

	return rightCells[0].Key, rightPN, right, nil
}

// splitInternal splits pg in place: pg keeps entries [:mid] and its own
// leftmost child. The median entry is promoted (removed from both
// halves); the returned page's leftmost child is the median's old child,
// and it keeps entries [mid+1:].
func (t *Tree) splitInternal(pg *page.Page) (medianKey uint16, rightPN uint32, right *page.Page, err error) {
	mid := len(pg.Entries) / 2
	median := pg.Entries[mid]

	right = page.NewInternal(median.Child)
	right.Entries = append([]page.InternalEntry{}, pg.Entries[mid+1:]...)

	pg.Entries = pg.Entries[:mid]

	rightPN, err = t.pager.AllocatePage()
	if err != nil {
		return 0, 0, nil, err
	}

	return median.Separator, rightPN, right, nil
}

// propagateInsert inserts (sepKey, rightPN) into the last ancestor on
// path, splitting and recursing upward as needed. An empty path means
// the split reached above the current root: a new root is allocated.
func (t *Tree) propagateInsert(path []ancestor, sepKey uint16, rightPN uint32) error {
	if len(path) == 0 {
		oldRoot, err := t.pager.ReadRootPageNumber()
		if err != nil {
			return err
		}

		newRoot := page.NewInternal(oldRoot)
		newRoot.Entries = []page.InternalEntry{{Separator: sepKey, Child: rightPN}}

		newRootPN, err := t.pager.AllocatePage()
		if err != nil {
			return err
		}
		if err := t.savePage(newRootPN, newRoot); err != nil {
			return err
		}
		t.log.WithFields(logrus.Fields{"new_root": newRootPN, "old_root": oldRoot}).Info("grew new root")
		return t.pager.WriteRootPageNumber(newRootPN)
	}

	parent := path[len(path)-1]
	rest := path[:len(path)-1]

	insertInternalEntrySorted(parent.page, sepKey, rightPN)

	if t.isInternalOverflow(parent.page) {
		medianKey, newRightPN, newRightPage, err := t.splitInternal(parent.page)
		if err != nil {
			return err
		}
		if err := t.savePage(parent.pageNumber, parent.page); err != nil {
			return err
		}
		if err := t.savePage(newRightPN, newRightPage); err != nil {
			return err
		}
		t.log.WithFields(logrus.Fields{"page": parent.pageNumber, "right": newRightPN}).Debug("split internal")
		return t.propagateInsert(rest, medianKey, newRightPN)
	}

	return t.savePage(parent.pageNumber, parent.page)
}

// Delete removes key, if present, and rebalances on the way back up to
// the root (spec.md §4.3): borrow from a sibling when possible, else
// merge, always preferring the left sibling.
func (t *Tree) Delete(key uint16) error {
	root, err := t.pager.ReadRootPageNumber()
	if err != nil {
		return err
	}

	path, leafPN, leaf, err := t.descend(root, key)
	if err != nil {
		return err
	}

	idx := -1
	for i, c := range leaf.Cells {
		if c.Key == key {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil
	}

	leaf.Cells = append(leaf.Cells[:idx], leaf.Cells[idx+1:]...)
	if err := t.savePage(leafPN, leaf); err != nil {
		return err
	}

	return t.rebalance(path, leafPN, leaf)
}

// rebalance restores the minimum-keys invariant for pg (at pageNumber
// pn), given the ancestor path leading to it. It recurses upward if a
// merge propagates an underflow to the parent level.
func (t *Tree) rebalance(path []ancestor, pn uint32, pg *page.Page) error {
	if len(path) == 0 {
		if !pg.IsLeaf() && len(pg.Entries) == 0 {
			newRoot := pg.LeftmostChild
			t.log.WithField("new_root", newRoot).Info("collapsed empty root")
			return t.pager.WriteRootPageNumber(newRoot)
		}
		return nil
	}

	if pg.NumKeys() >= t.minKeys() {
		return nil
	}

	parent := path[len(path)-1]
	rest := path[:len(path)-1]

	children := parent.page.Children()
	idx := parent.childIndex

	var (
		leftPN, rightPN   uint32
		haveLeft, haveRight bool
	)
	if idx > 0 {
		leftPN, haveLeft = children[idx-1], true
	}
	if idx < len(children)-1 {
		rightPN, haveRight = children[idx+1], true
	}

	if haveLeft {
		left, err := t.loadPage(leftPN)
		if err != nil {
			return err
		}
		if left.NumKeys() > t.minKeys() {
			if err := t.borrowFromLeft(parent.page, idx-1, left, leftPN, pg, pn); err != nil {
				return err
			}
			return t.savePage(parent.pageNumber, parent.page)
		}
	}

	if haveRight {
		right, err := t.loadPage(rightPN)
		if err != nil {
			return err
		}
		if right.NumKeys() > t.minKeys() {
			if err := t.borrowFromRight(parent.page, idx, pg, pn, right, rightPN); err != nil {
				return err
			}
			return t.savePage(parent.pageNumber, parent.page)
		}
	}

	if haveLeft {
		left, err := t.loadPage(leftPN)
		if err != nil {
			return err
		}
		if err := t.mergeIntoLeft(parent.page, idx-1, left, leftPN, pg); err != nil {
			return err
		}
		if err := t.savePage(parent.pageNumber, parent.page); err != nil {
			return err
		}
		t.log.WithFields(logrus.Fields{"left": leftPN, "right": pn}).Debug("merged with left sibling")
		return t.rebalance(rest, parent.pageNumber, parent.page)
	}

	if haveRight {
		right, err := t.loadPage(rightPN)
		if err != nil {
			return err
		}
		if err := t.mergeIntoLeft(parent.page, idx, pg, pn, right); err != nil {
			return err
		}
		if err := t.savePage(parent.pageNumber, parent.page); err != nil {
			return err
		}
		t.log.WithFields(logrus.Fields{"current": pn, "right": rightPN}).Debug("merged with right sibling")
		return t.rebalance(rest, parent.pageNumber, parent.page)
	}

	// No sibling at all: pg is the root's only child subtree; nothing to do.
	return nil
}

// borrowFromLeft moves left's last cell/entry to the front of current,
// rotating the boundary key through parent.Entries[parentSepIdx].
func (t *Tree) borrowFromLeft(parent *page.Page, parentSepIdx int, left *page.Page, leftPN uint32, current *page.Page, currentPN uint32) error {
	if current.IsLeaf() {
		lastIdx := len(left.Cells) - 1
		moved := left.Cells[lastIdx]
		left.Cells = left.Cells[:lastIdx]
		current.Cells = append([]page.Cell{moved}, current.Cells...)
		parent.Entries[parentSepIdx].Separator = current.Cells[0].Key
	} else {
		lastIdx := len(left.Entries) - 1
		moved := left.Entries[lastIdx]
		left.Entries = left.Entries[:lastIdx]

		parentSep := parent.Entries[parentSepIdx].Separator
		newEntry := page.InternalEntry{Separator: parentSep, Child: current.LeftmostChild}
		current.Entries = append([]page.InternalEntry{newEntry}, current.Entries...)
		current.LeftmostChild = moved.Child
		parent.Entries[parentSepIdx].Separator = moved.Separator
	}

	if err := t.savePage(leftPN, left); err != nil {
		return err
	}
	return t.savePage(currentPN, current)
}

// borrowFromRight moves right's first cell/entry to the end of current,
// rotating the boundary key through parent.Entries[parentSepIdx].
func (t *Tree) borrowFromRight(parent *page.Page, parentSepIdx int, current *page.Page, currentPN uint32, right *page.Page, rightPN uint32) error {
	if current.IsLeaf() {
		moved := right.Cells[0]
		right.Cells = right.Cells[1:]
		current.Cells = append(current.Cells, moved)
		parent.Entries[parentSepIdx].Separator = right.Cells[0].Key
	} else {
		parentSep := parent.Entries[parentSepIdx].Separator
		current.Entries = append(current.Entries, page.InternalEntry{Separator: parentSep, Child: right.LeftmostChild})
		parent.Entries[parentSepIdx].Separator = right.Entries[0].Separator
		right.LeftmostChild = right.Entries[0].Child
		right.Entries = right.Entries[1:]
	}

	if err := t.savePage(rightPN, right); err != nil {
		return err
	}
	return t.savePage(currentPN, current)
}

// mergeIntoLeft concatenates right's contents onto left (the surviving
// page, written back to leftPN) and removes the separator/child pair at
// parent.Entries[parentSepIdx] that separated them. right's page number
// is left orphaned (spec.md §9(c): no free list).
func (t *Tree) mergeIntoLeft(parent *page.Page, parentSepIdx int, left *page.Page, leftPN uint32, right *page.Page) error {
	if left.IsLeaf() {
		left.Cells = append(left.Cells, right.Cells...)
	} else {
		pulled := parent.Entries[parentSepIdx].Separator
		left.Entries = append(left.Entries, page.InternalEntry{Separator: pulled, Child: right.LeftmostChild})
		left.Entries = append(left.Entries, right.Entries...)
	}

	parent.Entries = append(parent.Entries[:parentSepIdx], parent.Entries[parentSepIdx+1:]...)

	return t.savePage(leftPN, left)
}

func (t *Tree) loadPage(pn uint32) (*page.Page, error) {
	data, err := t.pager.ReadPage(pn)
	if err != nil {
		return nil, err
	}
	pg, err := page.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("btree: decode page %d: %w", pn, err)
	}
	return pg, nil
}

func (t *Tree) savePage(pn uint32, pg *page.Page) error {
	data, err := pg.Encode()
	if err != nil {
		return fmt.Errorf("btree: encode page %d: %w", pn, err)
	}
	return t.pager.WritePage(pn, data)
}
