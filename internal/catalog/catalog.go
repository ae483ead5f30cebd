// Package catalog implements the system catalog: the self-describing
// __catalog table that records every user table's schema and B-tree
// root page, bootstrapped atop the same paged storage as user data.
package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/armon/go-radix"
	"github.com/sirupsen/logrus"

	"github.com/arrowledge/pagedb/internal/btree"
	"github.com/arrowledge/pagedb/internal/pager"
	"github.com/arrowledge/pagedb/internal/row"
)

// Name is the catalog's own table name and the basename of its file.
const Name = "__catalog"

// Filename is the catalog's on-disk file, relative to a data directory.
const Filename = Name + ".tbl"

// Column describes one column of a table's schema.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Schema is a table's column list plus its B-tree root page.
type Schema struct {
	TableName string   `json:"table_name"`
	RootPage  uint32   `json:"root_page"`
	Columns   []Column `json:"columns"`
}

// selfSchema describes the catalog's own columns (spec.md §4.5).
func selfSchema() []Column {
	return []Column{
		{Name: "table_name", Type: "TEXT"},
		{Name: "root_page", Type: "INT"},
		{Name: "columns", Type: "TEXT"},
	}
}

// Catalog is a thin API over a B-tree stored in __catalog.tbl. Reads of
// get_schema are served from an in-memory cache populated by load();
// every mutating call opens the catalog's file, mutates it, reloads the
// cache, and closes the file again (spec.md §5).
type Catalog struct {
	dataDir string
	log     *logrus.Entry

	// cache is a radix tree over table name, giving get_schema its O(1)
	// (amortized) lookup plus cheap ordered/prefix enumeration for
	// tooling such as `pagedb catalog <prefix>`.
	cache *radix.Tree
}

// Open bootstraps (if necessary) and loads the catalog rooted at
// dataDir.
func Open(dataDir string, log *logrus.Logger) (*Catalog, error) {
	if log == nil {
		log = logrus.New()
	}
	c := &Catalog{dataDir: dataDir, log: log.WithField("component", "catalog")}

	if err := c.ensureBootstrap(); err != nil {
		return nil, err
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) filePath() string {
	return c.dataDir + "/" + Filename
}

func (c *Catalog) openTree() (*pager.Pager, *btree.Tree, error) {
	p, err := pager.Open(c.filePath(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: open %s: %w", c.filePath(), err)
	}
	return p, btree.Open(p), nil
}

// ensureBootstrap inserts the catalog's own self-describing row at key 1
// if the catalog's root page is empty.
func (c *Catalog) ensureBootstrap() error {
	p, tree, err := c.openTree()
	if err != nil {
		return err
	}
	defer p.Close()

	entries, err := tree.Scan()
	if err != nil {
		return fmt.Errorf("catalog: scan during bootstrap check: %w", err)
	}
	if len(entries) > 0 {
		return nil
	}

	self := Schema{TableName: Name, RootPage: 1, Columns: selfSchema()}
	blob, err := encodeSchemaRow(self)
	if err != nil {
		return err
	}
	if err := tree.Insert(1, blob); err != nil {
		return fmt.Errorf("catalog: bootstrap insert: %w", err)
	}

	c.log.Info("bootstrapped __catalog table")
	return nil
}

// load repopulates the in-memory schema cache from the catalog file.
func (c *Catalog) load() error {
	p, tree, err := c.openTree()
	if err != nil {
		return err
	}
	defer p.Close()

	entries, err := tree.Scan()
	if err != nil {
		return fmt.Errorf("catalog: load: %w", err)
	}

	cache := radix.New()
	for _, e := range entries {
		schema, err := decodeSchemaRow(e.Value)
		if err != nil {
			c.log.WithError(err).WithField("key", e.Key).Error("failed to decode row in catalog")
			continue
		}
		cache.Insert(schema.TableName, schema)
	}
	c.cache = cache

	c.log.WithField("tables", c.cache.Len()).Info("loaded schema for all tables from catalog")
	return nil
}

// CreateTable registers name with columns and rootPage, allocating the
// next unused catalog key, then reloads the cache.
func (c *Catalog) CreateTable(name string, columns []Column, rootPage uint32) error {
	if rootPage == 0 {
		return fmt.Errorf("catalog: refusing to write catalog entry for table %q with root_page 0", name)
	}

	p, tree, err := c.openTree()
	if err != nil {
		return err
	}

	entries, err := tree.Scan()
	if err != nil {
		p.Close()
		return fmt.Errorf("catalog: create_table scan: %w", err)
	}

	var maxKey uint16
	for _, e := range entries {
		if e.Key > maxKey {
			maxKey = e.Key
		}
	}

	schema := Schema{TableName: name, RootPage: rootPage, Columns: columns}
	blob, err := encodeSchemaRow(schema)
	if err != nil {
		p.Close()
		return err
	}

	if err := tree.Insert(maxKey+1, blob); err != nil {
		p.Close()
		return fmt.Errorf("catalog: create_table insert: %w", err)
	}

	if err := p.Close(); err != nil {
		return err
	}

	c.log.WithField("table", name).Info("added table to catalog")
	return c.load()
}

// DropTable removes name from the catalog, re-keying survivors
// sequentially from 1, then reloads the cache.
func (c *Catalog) DropTable(name string) error {
	p, tree, err := c.openTree()
	if err != nil {
		return err
	}

	entries, err := tree.Scan()
	if err != nil {
		p.Close()
		return fmt.Errorf("catalog: drop_table scan: %w", err)
	}

	var survivors [][]byte
	for _, e := range entries {
		schema, err := decodeSchemaRow(e.Value)
		if err != nil {
			c.log.WithError(err).WithField("key", e.Key).Error("failed to decode row in catalog")
			continue
		}
		if schema.TableName != name {
			survivors = append(survivors, e.Value)
		}
	}

	for _, e := range entries {
		if err := tree.Delete(e.Key); err != nil {
			p.Close()
			return fmt.Errorf("catalog: drop_table clear: %w", err)
		}
	}

	for i, blob := range survivors {
		if err := tree.Insert(uint16(i+1), blob); err != nil {
			p.Close()
			return fmt.Errorf("catalog: drop_table reinsert: %w", err)
		}
	}

	if err := p.Close(); err != nil {
		return err
	}

	c.log.WithField("table", name).Info("dropped table from catalog")
	return c.load()
}

// GetSchema returns the cached schema for name, if present.
func (c *Catalog) GetSchema(name string) (Schema, bool) {
	v, ok := c.cache.Get(name)
	if !ok {
		return Schema{}, false
	}
	return v.(Schema), true
}

// ListTablesWithPrefix returns every table name in the cache starting
// with prefix, in ascending lexical order. This exercises the radix
// tree's prefix-walk directly rather than a linear scan of the cache.
func (c *Catalog) ListTablesWithPrefix(prefix string) []string {
	var names []string
	c.cache.WalkPrefix(prefix, func(name string, _ interface{}) bool {
		names = append(names, name)
		return false
	})
	return names
}

func encodeSchemaRow(s Schema) ([]byte, error) {
	columnsJSON, err := json.Marshal(s.Columns)
	if err != nil {
		return nil, fmt.Errorf("catalog: marshal columns: %w", err)
	}
	r := row.Row{
		"table_name": row.NewText(s.TableName),
		"root_page":  row.NewInt(int64(s.RootPage)),
		"columns":    row.NewText(string(columnsJSON)),
	}
	return row.Encode(r)
}

func decodeSchemaRow(blob []byte) (Schema, error) {
	r, err := row.Decode(blob)
	if err != nil {
		return Schema{}, err
	}

	var columns []Column
	if err := json.Unmarshal([]byte(r["columns"].Text), &columns); err != nil {
		return Schema{}, fmt.Errorf("catalog: unmarshal columns: %w", err)
	}

	return Schema{
		TableName: r["table_name"].Text,
		RootPage:  uint32(r["root_page"].Int),
		Columns:   columns,
	}, nil
}
