package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arrowledge/pagedb/internal/catalog"
	"github.com/arrowledge/pagedb/internal/row"
)

func openCatalog(t *testing.T) (string, *catalog.Catalog) {
	t.Helper()
	dir := t.TempDir()
	cat, err := catalog.Open(dir, nil)
	require.NoError(t, err)
	return dir, cat
}

func createUsersTable(t *testing.T, dir string, cat *catalog.Catalog) {
	t.Helper()
	m := New(dir, cat, []Instruction{
		{Op: OpCreateTable, Table: "users", Columns: []string{"name", "age"}, ColumnTypes: []string{"TEXT", "INT"}},
		{Op: OpHalt},
	}, nil)
	_, err := m.Run()
	require.NoError(t, err)
}

func insertUser(t *testing.T, dir string, cat *catalog.Catalog, name string, age int64) {
	t.Helper()
	m := New(dir, cat, []Instruction{
		{Op: OpOpenTable, Table: "users"},
		{Op: OpLoadConst, Const: Text(name)},
		{Op: OpLoadConst, Const: Int(age)},
		{Op: OpInsertRow, Table: "users"},
		{Op: OpHalt},
	}, nil)
	_, err := m.Run()
	require.NoError(t, err)
}

func TestScenario_CreateInsertSelectWithFilter(t *testing.T) {
	assert := require.New(t)
	dir, cat := openCatalog(t)

	createUsersTable(t, dir, cat)
	insertUser(t, dir, cat, "Alice", 35)
	insertUser(t, dir, cat, "Bob", 25)
	insertUser(t, dir, cat, "Alice", 20)
	insertUser(t, dir, cat, "Charlie", 40)

	// SELECT name WHERE age > 30 AND name = "Alice"
	m := New(dir, cat, []Instruction{
		{Op: OpOpenTable, Table: "users"},
		{Op: OpScanStart},
		{Op: OpLabel, Label: "loop"},
		{Op: OpScanNext},
		{Op: OpJumpIfFalse, Label: "done"},

		{Op: OpLoadColumn, Column: "age"},
		{Op: OpLoadConst, Const: Int(30)},
		{Op: OpCompareGt},
		{Op: OpLoadColumn, Column: "name"},
		{Op: OpLoadConst, Const: Text("Alice")},
		{Op: OpCompareEq},
		{Op: OpLogicalAnd},
		{Op: OpJumpIfFalse, Label: "loop"},

		{Op: OpEmitRow, Columns: []string{"name"}},
		{Op: OpJump, Label: "loop"},

		{Op: OpLabel, Label: "done"},
		{Op: OpHalt},
	}, nil)

	out, err := m.Run()
	assert.NoError(err)
	assert.Len(out, 1)
	assert.Equal(row.NewText("Alice"), out[0]["name"])
}

func TestScenario_UpdateThenSelectAll(t *testing.T) {
	assert := require.New(t)
	dir, cat := openCatalog(t)

	createUsersTable(t, dir, cat)
	insertUser(t, dir, cat, "Alice", 35)
	insertUser(t, dir, cat, "Bob", 25)
	insertUser(t, dir, cat, "Alice", 20)
	insertUser(t, dir, cat, "Charlie", 40)

	// UPDATE users SET age=99 WHERE name="Alice" AND age=35
	m := New(dir, cat, []Instruction{
		{Op: OpOpenTable, Table: "users"},
		{Op: OpScanStart},
		{Op: OpLabel, Label: "loop"},
		{Op: OpScanNext},
		{Op: OpJumpIfFalse, Label: "done"},

		{Op: OpLoadColumn, Column: "name"},
		{Op: OpLoadConst, Const: Text("Alice")},
		{Op: OpCompareEq},
		{Op: OpLoadColumn, Column: "age"},
		{Op: OpLoadConst, Const: Int(35)},
		{Op: OpCompareEq},
		{Op: OpLogicalAnd},
		{Op: OpJumpIfFalse, Label: "loop"},

		{Op: OpLoadConst, Const: Int(99)},
		{Op: OpUpdateColumn, Column: "age"},
		{Op: OpUpdateRow},

		{Op: OpJump, Label: "loop"},
		{Op: OpLabel, Label: "done"},
		{Op: OpHalt},
	}, nil)
	_, err := m.Run()
	assert.NoError(err)

	m2 := New(dir, cat, []Instruction{
		{Op: OpOpenTable, Table: "users"},
		{Op: OpScanStart},
		{Op: OpLabel, Label: "loop"},
		{Op: OpScanNext},
		{Op: OpJumpIfFalse, Label: "done"},
		{Op: OpEmitRow, Columns: []string{"*"}},
		{Op: OpJump, Label: "loop"},
		{Op: OpLabel, Label: "done"},
		{Op: OpHalt},
	}, nil)
	out, err := m2.Run()
	assert.NoError(err)
	assert.Len(out, 4)
	assert.Equal(row.NewInt(99), out[0]["age"])
	assert.Equal(row.NewInt(25), out[1]["age"])
	assert.Equal(row.NewInt(20), out[2]["age"])
	assert.Equal(row.NewInt(40), out[3]["age"])
}

func TestScenario_DeleteThenScanKeepsRowIDsStable(t *testing.T) {
	assert := require.New(t)
	dir, cat := openCatalog(t)

	createUsersTable(t, dir, cat)
	insertUser(t, dir, cat, "Alice", 35)
	insertUser(t, dir, cat, "Bob", 25)
	insertUser(t, dir, cat, "Alice", 20)
	insertUser(t, dir, cat, "Charlie", 40)

	// DELETE FROM users WHERE name="Bob"
	m := New(dir, cat, []Instruction{
		{Op: OpOpenTable, Table: "users"},
		{Op: OpScanStart},
		{Op: OpLabel, Label: "loop"},
		{Op: OpScanNext},
		{Op: OpJumpIfFalse, Label: "done"},
		{Op: OpLoadColumn, Column: "name"},
		{Op: OpLoadConst, Const: Text("Bob")},
		{Op: OpCompareEq},
		{Op: OpJumpIfFalse, Label: "loop"},
		{Op: OpDeleteRow},
		{Op: OpJump, Label: "loop"},
		{Op: OpLabel, Label: "done"},
		{Op: OpHalt},
	}, nil)
	_, err := m.Run()
	assert.NoError(err)

	m2 := New(dir, cat, []Instruction{
		{Op: OpOpenTable, Table: "users"},
		{Op: OpScanStart},
		{Op: OpLabel, Label: "loop"},
		{Op: OpScanNext},
		{Op: OpJumpIfFalse, Label: "done"},
		{Op: OpEmitRow, Columns: []string{"*"}},
		{Op: OpJump, Label: "loop"},
		{Op: OpLabel, Label: "done"},
		{Op: OpHalt},
	}, nil)
	out, err := m2.Run()
	assert.NoError(err)
	assert.Len(out, 3)
}

func TestCompare_TypeMismatchIsError(t *testing.T) {
	assert := require.New(t)
	dir, cat := openCatalog(t)
	createUsersTable(t, dir, cat)
	insertUser(t, dir, cat, "Alice", 35)

	m := New(dir, cat, []Instruction{
		{Op: OpOpenTable, Table: "users"},
		{Op: OpScanStart},
		{Op: OpScanNext},
		{Op: OpLoadColumn, Column: "name"},
		{Op: OpLoadConst, Const: Int(5)},
		{Op: OpCompareLt},
		{Op: OpHalt},
	}, nil)

	_, err := m.Run()
	assert.Error(err)
}

func TestJump_UnknownLabelIsError(t *testing.T) {
	assert := require.New(t)
	dir, cat := openCatalog(t)

	m := New(dir, cat, []Instruction{
		{Op: OpJump, Label: "nowhere"},
		{Op: OpHalt},
	}, nil)

	_, err := m.Run()
	assert.Error(err)
}

func TestPop_UnderflowIsError(t *testing.T) {
	assert := require.New(t)
	dir, cat := openCatalog(t)

	m := New(dir, cat, []Instruction{
		{Op: OpCompareEq},
		{Op: OpHalt},
	}, nil)

	_, err := m.Run()
	assert.Error(err)
}
