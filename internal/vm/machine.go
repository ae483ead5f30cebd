// Package vm implements the stack-based bytecode interpreter: the
// execution engine that turns a compiled opcode stream into concrete
// row mutations and a materialized result set, against the catalog and
// table storage packages.
package vm

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/arrowledge/pagedb/internal/btree"
	"github.com/arrowledge/pagedb/internal/catalog"
	"github.com/arrowledge/pagedb/internal/row"
	"github.com/arrowledge/pagedb/internal/table"
)

// materializedRow is one entry of the VM's in-memory row buffer: the
// decoded row plus the leaf page it currently lives on, so UPDATE_ROW
// can write back without a full re-descent.
type materializedRow struct {
	key    uint16
	page   uint32
	values row.Row
}

// Machine is a single, single-use bytecode interpreter run. Construct
// one per execution via New.
type Machine struct {
	dataDir string
	cat     *catalog.Catalog
	log     *logrus.Entry

	code       []Instruction
	labelIndex map[string]int
	ip         int

	stack []Value

	rows       []materializedRow
	cursor     int
	currentRow *materializedRow

	output []row.Row

	currentTable  *table.Table
	currentSchema catalog.Schema
}

// New constructs a Machine over code, ready to Run. cat is the already
// bootstrapped catalog for dataDir.
func New(dataDir string, cat *catalog.Catalog, code []Instruction, log *logrus.Logger) *Machine {
	if log == nil {
		log = logrus.New()
	}
	runID := uuid.New()
	return &Machine{
		dataDir: dataDir,
		cat:     cat,
		log:     log.WithField("run_id", runID.String()),
		code:    code,
		cursor:  -1,
	}
}

// Run executes the loaded program to completion (or to the first
// error), returning the accumulated output buffer. There is no
// cancellation API (spec.md §5): callers cancel by not calling Run
// again.
func (m *Machine) Run() ([]row.Row, error) {
	m.indexLabels()

	defer func() {
		if m.currentTable != nil {
			if err := m.currentTable.Close(); err != nil {
				m.log.WithError(err).Error("failed to close table on exit")
			}
			m.currentTable = nil
		}
	}()

	for m.ip < len(m.code) {
		instr := m.code[m.ip]
		m.log.WithFields(logrus.Fields{"ip": m.ip, "op": instr.Op.String()}).Debug("executing instruction")

		jumped, err := m.step(instr)
		if err != nil {
			return nil, fmt.Errorf("vm: %s at ip=%d: %w", instr.Op, m.ip, err)
		}
		if instr.Op == OpHalt {
			break
		}
		if !jumped {
			m.ip++
		}
	}

	return m.output, nil
}

func (m *Machine) indexLabels() {
	m.labelIndex = make(map[string]int, len(m.code))
	for i, instr := range m.code {
		if instr.Op == OpLabel {
			m.labelIndex[instr.Label] = i
		}
	}
}

// step dispatches and executes one instruction, returning whether it
// changed the program counter itself (a taken jump).
func (m *Machine) step(instr Instruction) (jumped bool, err error) {
	switch instr.Op {
	case OpNoOp, OpLabel, OpHalt, OpScanEnd:
		return false, nil

	case OpCreateTable:
		return false, m.opCreateTable(instr)
	case OpDropTable:
		return false, m.opDropTable(instr)
	case OpOpenTable:
		return false, m.opOpenTable(instr)
	case OpScanStart:
		m.cursor = -1
		m.currentRow = nil
		return false, nil
	case OpScanNext:
		return false, m.opScanNext()
	case OpLoadConst:
		m.push(instr.Const)
		return false, nil
	case OpLoadColumn:
		return false, m.opLoadColumn(instr)
	case OpInsertRow:
		return false, m.opInsertRow(instr)
	case OpUpdateRow:
		return false, m.opUpdateRow()
	case OpDeleteRow:
		return false, m.opDeleteRow()
	case OpUpdateColumn:
		return false, m.opUpdateColumn(instr)
	case OpJump:
		return true, m.jumpTo(instr.Label)
	case OpJumpIfFalse:
		return m.opJumpIfFalse(instr)
	case OpLogicalAnd:
		return false, m.binaryBool(func(a, b bool) bool { return a && b })
	case OpLogicalOr:
		return false, m.binaryBool(func(a, b bool) bool { return a || b })
	case OpLogicalNot:
		return false, m.unaryBool(func(a bool) bool { return !a })
	case OpCompareEq:
		return false, m.compare(func(l, r Value) (bool, error) { return equal(l, r), nil })
	case OpCompareNeq:
		return false, m.compare(func(l, r Value) (bool, error) { return !equal(l, r), nil })
	case OpCompareLt:
		return false, m.compare(func(l, r Value) (bool, error) { lt, _, err := compareOrdered(l, r); return lt, err })
	case OpCompareLte:
		return false, m.compare(func(l, r Value) (bool, error) { lt, eq, err := compareOrdered(l, r); return lt || eq, err })
	case OpCompareGt:
		return false, m.compare(func(l, r Value) (bool, error) { lt, eq, err := compareOrdered(l, r); return !lt && !eq, err })
	case OpCompareGte:
		return false, m.compare(func(l, r Value) (bool, error) { lt, _, err := compareOrdered(l, r); return !lt, err })
	case OpEmitRow:
		return false, m.opEmitRow(instr)

	default:
		return false, fmt.Errorf("vm: no handler for opcode %s", instr.Op)
	}
}

func (m *Machine) jumpTo(label string) error {
	idx, ok := m.labelIndex[label]
	if !ok {
		return fmt.Errorf("vm: unknown jump target %q", label)
	}
	m.ip = idx
	return nil
}

func (m *Machine) push(v Value) {
	m.stack = append(m.stack, v)
}

func (m *Machine) pop() (Value, error) {
	if len(m.stack) == 0 {
		return Value{}, fmt.Errorf("vm: operand stack underflow")
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

func (m *Machine) compare(fn func(left, right Value) (bool, error)) error {
	right, err := m.pop()
	if err != nil {
		return err
	}
	left, err := m.pop()
	if err != nil {
		return err
	}
	result, err := fn(left, right)
	if err != nil {
		return err
	}
	m.push(Bool(result))
	return nil
}

func (m *Machine) binaryBool(fn func(a, b bool) bool) error {
	right, err := m.pop()
	if err != nil {
		return err
	}
	left, err := m.pop()
	if err != nil {
		return err
	}
	m.push(Bool(fn(left.Truthy(), right.Truthy())))
	return nil
}

func (m *Machine) unaryBool(fn func(a bool) bool) error {
	v, err := m.pop()
	if err != nil {
		return err
	}
	m.push(Bool(fn(v.Truthy())))
	return nil
}

func (m *Machine) opJumpIfFalse(instr Instruction) (bool, error) {
	cond, err := m.pop()
	if err != nil {
		return false, err
	}
	if !cond.Truthy() {
		return true, m.jumpTo(instr.Label)
	}
	return false, nil
}

// opOpenTable looks up the schema in the catalog's in-memory cache (the
// catalog file is not re-read here; an unknown name is an error), opens
// the table, and materializes every row via a full leaf scan.
func (m *Machine) opOpenTable(instr Instruction) error {
	if m.currentTable != nil {
		if err := m.currentTable.Close(); err != nil {
			return fmt.Errorf("closing previously open table: %w", err)
		}
		m.currentTable = nil
	}

	schema, ok := m.cat.GetSchema(instr.Table)
	if !ok {
		return fmt.Errorf("unknown table %q", instr.Table)
	}

	tbl, err := table.Open(m.dataDir, instr.Table, nil)
	if err != nil {
		return err
	}

	entries, err := tbl.Scan()
	if err != nil {
		tbl.Close()
		return fmt.Errorf("scanning %q: %w", instr.Table, err)
	}

	rows := make([]materializedRow, 0, len(entries))
	for _, e := range entries {
		decoded, err := row.Decode(e.Value)
		if err != nil {
			tbl.Close()
			return fmt.Errorf("decoding row key=%d in %q: %w", e.Key, instr.Table, err)
		}
		rows = append(rows, materializedRow{key: e.Key, page: e.PageNumber, values: decoded})
	}

	m.currentTable = tbl
	m.currentSchema = schema
	m.rows = rows
	m.cursor = -1
	m.currentRow = nil

	return nil
}

func (m *Machine) opScanNext() error {
	m.cursor++
	if m.cursor < len(m.rows) {
		m.currentRow = &m.rows[m.cursor]
		m.push(Bool(true))
	} else {
		m.currentRow = nil
		m.push(Bool(false))
	}
	return nil
}

func (m *Machine) opLoadColumn(instr Instruction) error {
	if m.currentRow == nil {
		return fmt.Errorf("no current row to load column %q from", instr.Column)
	}
	if instr.Column == "rowid" {
		m.push(Int(int64(m.currentRow.key)))
		return nil
	}
	v, ok := m.currentRow.values[instr.Column]
	if !ok {
		m.push(Null())
		return nil
	}
	m.push(FromRowValue(v))
	return nil
}

func (m *Machine) opEmitRow(instr Instruction) error {
	if m.currentRow == nil {
		return fmt.Errorf("no current row to emit")
	}

	out := make(row.Row)
	if len(instr.Columns) == 1 && instr.Columns[0] == "*" {
		for k, v := range m.currentRow.values {
			out[k] = v
		}
	} else {
		for _, col := range instr.Columns {
			if v, ok := m.currentRow.values[col]; ok {
				out[col] = v
			}
		}
	}

	m.output = append(m.output, out)
	return nil
}

func (m *Machine) opInsertRow(instr Instruction) error {
	if m.currentTable == nil || m.currentTable.Name != instr.Table {
		return fmt.Errorf("insert into %q with no matching open table", instr.Table)
	}

	schema, ok := m.cat.GetSchema(instr.Table)
	if !ok {
		return fmt.Errorf("unknown table schema for %q", instr.Table)
	}

	if len(m.stack) < len(schema.Columns) {
		return fmt.Errorf("not enough values on stack for insert into %q: want %d, have %d", instr.Table, len(schema.Columns), len(m.stack))
	}

	values := make([]Value, len(schema.Columns))
	for i := len(schema.Columns) - 1; i >= 0; i-- {
		v, err := m.pop()
		if err != nil {
			return err
		}
		values[i] = v
	}

	r := make(row.Row, len(schema.Columns))
	for i, col := range schema.Columns {
		rv, err := values[i].ToRowValue()
		if err != nil {
			return fmt.Errorf("column %q: %w", col.Name, err)
		}
		r[col.Name] = rv
	}

	var maxKey uint16
	for _, mr := range m.rows {
		if mr.key > maxKey {
			maxKey = mr.key
		}
	}
	newKey := maxKey + 1

	blob, err := row.Encode(r)
	if err != nil {
		return err
	}
	if err := m.currentTable.Insert(newKey, blob); err != nil {
		return err
	}

	m.rows = append(m.rows, materializedRow{key: newKey, values: r})
	return nil
}

func (m *Machine) opUpdateColumn(instr Instruction) error {
	if m.currentRow == nil {
		return fmt.Errorf("no current row to update column %q", instr.Column)
	}
	v, err := m.pop()
	if err != nil {
		return err
	}
	rv, err := v.ToRowValue()
	if err != nil {
		return fmt.Errorf("column %q: %w", instr.Column, err)
	}
	if m.currentRow.values == nil {
		m.currentRow.values = make(row.Row)
	}
	m.currentRow.values[instr.Column] = rv
	return nil
}

func (m *Machine) opUpdateRow() error {
	if m.currentRow == nil {
		return fmt.Errorf("no current row to commit update")
	}
	if m.currentTable == nil {
		return fmt.Errorf("no open table to update")
	}

	blob, err := row.Encode(m.currentRow.values)
	if err != nil {
		return err
	}

	ok, err := m.currentTable.UpdateAtPage(m.currentRow.page, m.currentRow.key, blob)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("rowid %d not found on cached page %d", m.currentRow.key, m.currentRow.page)
	}

	m.rows[m.cursor].values = m.currentRow.values
	return nil
}

func (m *Machine) opDeleteRow() error {
	if m.currentRow == nil || m.cursor < 0 {
		return fmt.Errorf("no current row to delete")
	}
	if m.currentTable == nil {
		return fmt.Errorf("no open table to delete from")
	}

	if err := m.currentTable.Delete(m.currentRow.key); err != nil {
		return err
	}

	m.rows = append(m.rows[:m.cursor], m.rows[m.cursor+1:]...)
	m.cursor--
	m.currentRow = nil
	return nil
}

func (m *Machine) opCreateTable(instr Instruction) error {
	tbl, err := table.Open(m.dataDir, instr.Table, nil, btree.WithMaxKeys(btree.DefaultMaxKeys))
	if err != nil {
		return err
	}
	root, err := tbl.RootPageNumber()
	if err != nil {
		tbl.Close()
		return err
	}
	if err := tbl.Close(); err != nil {
		return err
	}

	columns := make([]catalog.Column, len(instr.Columns))
	for i, name := range instr.Columns {
		typ := "TEXT"
		if i < len(instr.ColumnTypes) {
			typ = instr.ColumnTypes[i]
		}
		columns[i] = catalog.Column{Name: name, Type: typ}
	}

	return m.cat.CreateTable(instr.Table, columns, root)
}

func (m *Machine) opDropTable(instr Instruction) error {
	if err := table.Remove(m.dataDir, instr.Table); err != nil {
		return err
	}
	return m.cat.DropTable(instr.Table)
}
