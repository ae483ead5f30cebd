package vm

import (
	"encoding/json"
	"fmt"
)

// opNames maps every opcode's wire name (as produced by Op.String) back
// to its Op value, for parsing a JSON opcode stream.
var opNames = func() map[string]Op {
	m := make(map[string]Op)
	for op := OpNoOp; op <= OpHalt; op++ {
		m[op.String()] = op
	}
	return m
}()

// jsonValue is the wire form of a LOAD_CONST literal.
type jsonValue struct {
	Kind  string  `json:"kind"`
	Int   int64   `json:"int,omitempty"`
	Float float64 `json:"float,omitempty"`
	Text  string  `json:"text,omitempty"`
	Bool  bool    `json:"bool,omitempty"`
}

func (v jsonValue) toValue() (Value, error) {
	switch Kind(v.Kind) {
	case KindInt:
		return Int(v.Int), nil
	case KindFloat:
		return Float(v.Float), nil
	case KindText:
		return Text(v.Text), nil
	case KindBool:
		return Bool(v.Bool), nil
	case KindNull, "":
		return Null(), nil
	default:
		return Value{}, fmt.Errorf("vm: unknown const kind %q", v.Kind)
	}
}

// jsonInstruction is the wire form of one Instruction: an opcode program
// file is a JSON array of these (spec.md's "well-formed opcode stream").
type jsonInstruction struct {
	Op          string     `json:"op"`
	Label       string     `json:"label,omitempty"`
	Table       string     `json:"table,omitempty"`
	Column      string     `json:"column,omitempty"`
	Columns     []string   `json:"columns,omitempty"`
	ColumnTypes []string   `json:"column_types,omitempty"`
	Const       *jsonValue `json:"const,omitempty"`
}

// ParseProgram decodes a JSON-encoded opcode stream into Instructions.
func ParseProgram(data []byte) ([]Instruction, error) {
	var raw []jsonInstruction
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("vm: parse program: %w", err)
	}

	out := make([]Instruction, len(raw))
	for i, ji := range raw {
		op, ok := opNames[ji.Op]
		if !ok {
			return nil, fmt.Errorf("vm: instruction %d: unknown opcode %q", i, ji.Op)
		}

		instr := Instruction{
			Op:          op,
			Label:       ji.Label,
			Table:       ji.Table,
			Column:      ji.Column,
			Columns:     ji.Columns,
			ColumnTypes: ji.ColumnTypes,
		}
		if ji.Const != nil {
			v, err := ji.Const.toValue()
			if err != nil {
				return nil, fmt.Errorf("vm: instruction %d: %w", i, err)
			}
			instr.Const = v
		}
		out[i] = instr
	}

	return out, nil
}
