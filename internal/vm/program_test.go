package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseProgram_DecodesOpcodesAndConst(t *testing.T) {
	assert := require.New(t)

	data := []byte(`[
		{"op": "CREATE_TABLE", "table": "users", "columns": ["name", "age"], "column_types": ["TEXT", "INT"]},
		{"op": "OPEN_TABLE", "table": "users"},
		{"op": "LOAD_CONST", "const": {"kind": "text", "text": "Alice"}},
		{"op": "LOAD_CONST", "const": {"kind": "int", "int": 35}},
		{"op": "INSERT_ROW", "table": "users"},
		{"op": "HALT"}
	]`)

	instrs, err := ParseProgram(data)
	assert.NoError(err)
	assert.Len(instrs, 6)
	assert.Equal(OpCreateTable, instrs[0].Op)
	assert.Equal("users", instrs[0].Table)
	assert.Equal([]string{"name", "age"}, instrs[0].Columns)
	assert.Equal(Text("Alice"), instrs[2].Const)
	assert.Equal(Int(35), instrs[3].Const)
	assert.Equal(OpHalt, instrs[5].Op)
}

func TestParseProgram_UnknownOpcodeErrors(t *testing.T) {
	assert := require.New(t)

	_, err := ParseProgram([]byte(`[{"op": "NOT_REAL"}]`))
	assert.Error(err)
}

func TestParseProgram_MalformedJSONErrors(t *testing.T) {
	assert := require.New(t)

	_, err := ParseProgram([]byte(`not json`))
	assert.Error(err)
}
