// Package facts builds the flat, addressable fact context a decision is
// evaluated against. The resolved context is frozen into the decision record's
// input snapshot, so replay never needs the live entities.
package facts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind discriminates the typed fact value.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindList
)

// Value is the typed sum for facts and condition operands: a scalar string,
// number, or bool, or a list of scalars. Operators match exhaustively on Kind
// instead of coercing at runtime.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []Value
}

func String(s string) Value  { return Value{kind: KindString, str: s} }
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }

// List builds a list value. Nested lists are rejected by FromAny; callers
// constructing lists directly are expected to pass scalars.
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

func StringList(items ...string) Value {
	vs := make([]Value, len(items))
	for i, s := range items {
		vs[i] = String(s)
	}
	return List(vs...)
}

func (v Value) Kind() Kind      { return v.kind }
func (v Value) Str() string     { return v.str }
func (v Value) Num() float64    { return v.num }
func (v Value) Bool() bool      { return v.b }
func (v Value) Items() []Value  { return v.list }
func (v Value) IsScalar() bool  { return v.kind != KindList }

// Equal implements the type-aware equality shared by eq, neq, in and not_in.
// Values of different kinds are never equal.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num == other.num
	case KindBool:
		return v.b == other.b
	default:
		return false
	}
}

// Describe renders the value for check messages.
func (v Value) Describe() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.str)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList:
		out := "["
		for i, item := range v.list {
			if i > 0 {
				out += ", "
			}
			out += item.Describe()
		}
		return out + "]"
	default:
		return "<unknown>"
	}
}

// MarshalJSON emits the plain JSON scalar/array form used in snapshots and
// hashing. The typed wrapper exists only in memory.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	default:
		return nil, fmt.Errorf("facts: cannot marshal value of kind %d", v.kind)
	}
}

// UnmarshalJSON restores a Value from its plain JSON form, used when reading
// snapshots and stored condition values back from the database.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromAny converts a decoded JSON value into a typed Value. Nested lists and
// objects are rejected: fact values are scalars or lists of scalars.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case float64:
		return Number(x), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("facts: invalid number %q: %w", x.String(), err)
		}
		return Number(f), nil
	case []any:
		items := make([]Value, 0, len(x))
		for _, item := range x {
			iv, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			if !iv.IsScalar() {
				return Value{}, fmt.Errorf("facts: nested lists are not supported")
			}
			items = append(items, iv)
		}
		return List(items...), nil
	default:
		return Value{}, fmt.Errorf("facts: unsupported value type %T", raw)
	}
}
