// Package table binds a table name to its on-disk file, Pager, and
// B-tree, the unit the virtual machine opens and scans.
package table

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/arrowledge/pagedb/internal/btree"
	"github.com/arrowledge/pagedb/internal/pager"
)

// Table owns one table file's Pager and the B-tree over it. At most one
// Table may be open against a given file at a time (spec.md §5).
type Table struct {
	Name string

	pager *pager.Pager
	tree  *btree.Tree
}

// Filename returns the on-disk basename for a table named name.
func Filename(name string) string {
	return name + ".tbl"
}

// Open opens (creating if absent) the file for name under dataDir.
func Open(dataDir, name string, log *logrus.Logger, opts ...btree.Option) (*Table, error) {
	path := filepath.Join(dataDir, Filename(name))

	p, err := pager.Open(path, log)
	if err != nil {
		return nil, fmt.Errorf("table: open %q: %w", name, err)
	}

	return &Table{Name: name, pager: p, tree: btree.Open(p, opts...)}, nil
}

// Remove deletes the table's file. The Table must be closed first.
func Remove(dataDir, name string) error {
	path := filepath.Join(dataDir, Filename(name))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("table: remove %q: %w", name, err)
	}
	return nil
}

// RootPageNumber returns the table's current B-tree root page number,
// the value registered in the catalog at CREATE_TABLE time.
func (t *Table) RootPageNumber() (uint32, error) {
	return t.pager.ReadRootPageNumber()
}

// Get looks up key in the table's B-tree.
func (t *Table) Get(key uint16) ([]byte, bool, error) {
	return t.tree.Get(key)
}

// Insert sets key -> value in the table's B-tree.
func (t *Table) Insert(key uint16, value []byte) error {
	return t.tree.Insert(key, value)
}

// Delete removes key from the table's B-tree.
func (t *Table) Delete(key uint16) error {
	return t.tree.Delete(key)
}

// UpdateAtPage overwrites key's value directly on a known leaf page.
func (t *Table) UpdateAtPage(pageNumber uint32, key uint16, value []byte) (bool, error) {
	return t.tree.UpdateAtPage(pageNumber, key, value)
}

// Scan returns every (key, value, page number) triple in ascending key
// order.
func (t *Table) Scan() ([]btree.ScanEntry, error) {
	return t.tree.Scan()
}

// Close releases the table's Pager.
func (t *Table) Close() error {
	return t.pager.Close()
}
