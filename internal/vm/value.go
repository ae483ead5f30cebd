package vm

import (
	"fmt"

	"github.com/arrowledge/pagedb/internal/row"
)

// Kind discriminates an operand-stack Value. Bool exists only on the
// stack (comparison/logical results); it never appears in a stored row.
type Kind string

const (
	KindInt   Kind = "int"
	KindFloat Kind = "float"
	KindText  Kind = "text"
	KindBool  Kind = "bool"
	KindNull  Kind = "null"
)

// Value is one operand-stack or current-row cell.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Text  string
	Bool  bool
}

func Int(v int64) Value   { return Value{Kind: KindInt, Int: v} }
func Float(v float64) Value { return Value{Kind: KindFloat, Float: v} }
func Text(v string) Value { return Value{Kind: KindText, Text: v} }
func Bool(v bool) Value   { return Value{Kind: KindBool, Bool: v} }
func Null() Value         { return Value{Kind: KindNull} }

// FromRowValue lifts a stored row.Value onto the operand stack.
func FromRowValue(v row.Value) Value {
	switch v.Kind {
	case row.KindInt:
		return Int(v.Int)
	case row.KindFloat:
		return Float(v.Float)
	case row.KindText:
		return Text(v.Text)
	default:
		return Null()
	}
}

// ToRowValue lowers an operand-stack Value into a stored row.Value.
// Fails for Bool and Null, which have no row representation.
func (v Value) ToRowValue() (row.Value, error) {
	switch v.Kind {
	case KindInt:
		return row.NewInt(v.Int), nil
	case KindFloat:
		return row.NewFloat(v.Float), nil
	case KindText:
		return row.NewText(v.Text), nil
	default:
		return row.Value{}, fmt.Errorf("vm: cannot store %s value in a row column", v.Kind)
	}
}

// Truthy reports whether v is considered true by JUMP_IF_FALSE and
// LOGICAL_AND/OR/NOT.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindNull:
		return false
	case KindInt:
		return v.Int != 0
	case KindFloat:
		return v.Float != 0
	case KindText:
		return v.Text != ""
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindText:
		return v.Text
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	default:
		return "null"
	}
}

// numeric reports whether v holds a number, and its float64 value.
func (v Value) numeric() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

// compareOrdered implements the <, <=, >, >= family: both operands must
// be numeric, or both must be text (spec.md §4.6).
func compareOrdered(left, right Value) (lt, eq bool, err error) {
	if lf, lok := left.numeric(); lok {
		if rf, rok := right.numeric(); rok {
			return lf < rf, lf == rf, nil
		}
		return false, false, fmt.Errorf("vm: type mismatch comparing %s and %s", left.Kind, right.Kind)
	}
	if left.Kind == KindText && right.Kind == KindText {
		return left.Text < right.Text, left.Text == right.Text, nil
	}
	return false, false, fmt.Errorf("vm: type mismatch comparing %s and %s", left.Kind, right.Kind)
}

// equal implements EQ/NEQ, which accept any pair of operands.
func equal(left, right Value) bool {
	if left.Kind != right.Kind {
		if lf, lok := left.numeric(); lok {
			if rf, rok := right.numeric(); rok {
				return lf == rf
			}
		}
		return false
	}
	switch left.Kind {
	case KindInt:
		return left.Int == right.Int
	case KindFloat:
		return left.Float == right.Float
	case KindText:
		return left.Text == right.Text
	case KindBool:
		return left.Bool == right.Bool
	case KindNull:
		return true
	default:
		return false
	}
}
