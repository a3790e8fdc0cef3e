package sdk

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ValueKind enumerates the wire representations a setting value can take.
type ValueKind string

const (
	KindString  ValueKind = "string"
	KindBool    ValueKind = "bool"
	KindInteger ValueKind = "integer"
	KindNumber  ValueKind = "number"
	KindChoices ValueKind = "choice-list"
)

// Valid reports whether k is one of the known kinds.
func (k ValueKind) Valid() bool {
	switch k {
	case KindString, KindBool, KindInteger, KindNumber, KindChoices:
		return true
	}
	return false
}

// Value is the typed union exchanged between modules, the orchestrator and
// observers. The zero value is an empty string.
type Value struct {
	kind ValueKind
	str  string
	b    bool
	i    int64
	f    float64
	list []string
}

// StringValue wraps s.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// BoolValue wraps b.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// IntValue wraps i.
func IntValue(i int64) Value { return Value{kind: KindInteger, i: i} }

// NumberValue wraps f.
func NumberValue(f float64) Value { return Value{kind: KindNumber, f: f} }

// ChoicesValue wraps a copy of items.
func ChoicesValue(items []string) Value {
	return Value{kind: KindChoices, list: cloneStrings(items)}
}

// Kind returns the value's kind.
func (v Value) Kind() ValueKind {
	if v.kind == "" {
		return KindString
	}
	return v.kind
}

func (v Value) Str() string { return v.str }

func (v Value) Bool() bool { return v.b }

func (v Value) Int() int64 { return v.i }

func (v Value) Number() float64 { return v.f }

func (v Value) Choices() []string { return cloneStrings(v.list) }

// Interface returns the native Go representation.
func (v Value) Interface() any {
	switch v.Kind() {
	case KindBool:
		return v.b
	case KindInteger:
		return v.i
	case KindNumber:
		return v.f
	case KindChoices:
		return cloneStrings(v.list)
	default:
		return v.str
	}
}

// Equal compares kind and content.
func (v Value) Equal(other Value) bool {
	if v.Kind() != other.Kind() {
		return false
	}
	switch v.Kind() {
	case KindBool:
		return v.b == other.b
	case KindInteger:
		return v.i == other.i
	case KindNumber:
		return v.f == other.f
	case KindChoices:
		return slices.Equal(v.list, other.list)
	default:
		return v.str == other.str
	}
}

// String renders the persisted form accepted by ParseValue.
func (v Value) String() string {
	switch v.Kind() {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindNumber:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindChoices:
		list := v.list
		if list == nil {
			list = []string{}
		}
		encoded, _ := json.Marshal(list)
		return string(encoded)
	default:
		return v.str
	}
}

// ParseValue converts a persisted string into a value of the given kind.
// Choice lists accept a JSON array or a comma separated list.
func ParseValue(kind ValueKind, raw string) (Value, error) {
	switch kind {
	case KindString, "":
		return StringValue(raw), nil
	case KindBool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return Value{}, fmt.Errorf("expected a boolean, got %q", raw)
		}
		return BoolValue(b), nil
	case KindInteger:
		i, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("expected an integer, got %q", raw)
		}
		return IntValue(i), nil
	case KindNumber:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return Value{}, fmt.Errorf("expected a number, got %q", raw)
		}
		return NumberValue(f), nil
	case KindChoices:
		return parseChoices(raw)
	default:
		return Value{}, fmt.Errorf("unknown value kind %q", kind)
	}
}

func parseChoices(raw string) (Value, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ChoicesValue(nil), nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var items []string
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			return Value{}, fmt.Errorf("expected a list of strings: %w", err)
		}
		return ChoicesValue(items), nil
	}
	parts := strings.Split(trimmed, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			items = append(items, item)
		}
	}
	return ChoicesValue(items), nil
}

type wireValue struct {
	Kind  ValueKind       `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes {"kind": ..., "value": ...}.
func (v Value) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(v.Interface())
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireValue{Kind: v.Kind(), Value: payload})
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var wire wireValue
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Kind == "" {
		wire.Kind = KindString
	}
	if !wire.Kind.Valid() {
		return fmt.Errorf("sdk: unknown value kind %q", wire.Kind)
	}
	if len(wire.Value) == 0 || string(wire.Value) == "null" {
		*v = Value{kind: wire.Kind}
		return nil
	}
	var err error
	switch wire.Kind {
	case KindString:
		var s string
		err = json.Unmarshal(wire.Value, &s)
		*v = StringValue(s)
	case KindBool:
		var b bool
		err = json.Unmarshal(wire.Value, &b)
		*v = BoolValue(b)
	case KindInteger:
		var i int64
		err = json.Unmarshal(wire.Value, &i)
		*v = IntValue(i)
	case KindNumber:
		var f float64
		err = json.Unmarshal(wire.Value, &f)
		*v = NumberValue(f)
	case KindChoices:
		var items []string
		err = json.Unmarshal(wire.Value, &items)
		*v = ChoicesValue(items)
	}
	if err != nil {
		return fmt.Errorf("sdk: decode %s value: %w", wire.Kind, err)
	}
	return nil
}

func cloneStrings(items []string) []string {
	if items == nil {
		return nil
	}
	return append([]string{}, items...)
}
