package wire

import (
	"fmt"

	"github.com/protodyn/protodyn/schema"
)

// Value coercion helpers for the map-driven encode path. Callers hand us
// whatever integer shape their data happens to be in.

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		if n == float64(int64(n)) {
			return int64(n), nil
		}
		return 0, fmt.Errorf("non-integral value %v", n)
	default:
		return 0, fmt.Errorf("cannot use %T as integer", v)
	}
}

func toUint64(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case int:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d for unsigned field", n)
		}
		return uint64(n), nil
	case int32:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d for unsigned field", n)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d for unsigned field", n)
		}
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case uint64:
		return n, nil
	default:
		return 0, fmt.Errorf("cannot use %T as unsigned integer", v)
	}
}

func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("cannot use %T as float", v)
	}
}

// toSlice flattens the slice shapes callers commonly pass for repeated
// fields into []interface{}.
func toSlice(v interface{}) ([]interface{}, error) {
	switch s := v.(type) {
	case []interface{}:
		return s, nil
	case []map[string]interface{}:
		out := make([]interface{}, len(s))
		for i, el := range s {
			out[i] = el
		}
		return out, nil
	case []string:
		out := make([]interface{}, len(s))
		for i, el := range s {
			out[i] = el
		}
		return out, nil
	case []int32:
		out := make([]interface{}, len(s))
		for i, el := range s {
			out[i] = el
		}
		return out, nil
	case []int64:
		out := make([]interface{}, len(s))
		for i, el := range s {
			out[i] = el
		}
		return out, nil
	case []uint32:
		out := make([]interface{}, len(s))
		for i, el := range s {
			out[i] = el
		}
		return out, nil
	case []uint64:
		out := make([]interface{}, len(s))
		for i, el := range s {
			out[i] = el
		}
		return out, nil
	case []bool:
		out := make([]interface{}, len(s))
		for i, el := range s {
			out[i] = el
		}
		return out, nil
	case []float32:
		out := make([]interface{}, len(s))
		for i, el := range s {
			out[i] = el
		}
		return out, nil
	case []float64:
		out := make([]interface{}, len(s))
		for i, el := range s {
			out[i] = el
		}
		return out, nil
	case [][]byte:
		out := make([]interface{}, len(s))
		for i, el := range s {
			out[i] = el
		}
		return out, nil
	default:
		return nil, fmt.Errorf("repeated field value must be a slice, got %T", v)
	}
}

// enumNumber resolves an enum value given either its name or its number.
func enumNumber(v interface{}, e *schema.EnumDescriptor) (int32, error) {
	if s, ok := v.(string); ok {
		if e == nil {
			return 0, ErrDescriptorMissing
		}
		ev, ok := e.ByName(s)
		if !ok {
			return 0, fmt.Errorf("unknown enum value name %q for %s", s, e.Name)
		}
		return ev.Number, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	return int32(n), nil
}

// ===== DECODED VALUE VIEW =====

// ToMap renders a decoded message as a map keyed by field name: scalars
// as their Go types, enums as their canonical declared name (or the raw
// number when unknown), nested messages as nested maps, repeated fields
// as slices. Only fields observed on the wire appear, unless
// Config.PopulateDefaultsOnDecode is set.
func ToMap(m *Message) map[string]interface{} {
	out := make(map[string]interface{})
	desc := m.Descriptor()
	for i := range desc.Fields {
		f := &desc.Fields[i]
		if !m.Has(f) {
			// Defaults were stamped into the region at init, so rendering
			// an absent scalar just reads the field normally.
			if config.PopulateDefaultsOnDecode &&
				f.Label != schema.LabelRepeated && !f.IsOneof() &&
				schema.ScalarWidth(f.Type) > 0 {
				out[f.Name] = fieldValue(m, f)
			}
			continue
		}
		if f.Label == schema.LabelRepeated {
			out[f.Name] = listToSlice(m.List(f), f)
			continue
		}
		out[f.Name] = fieldValue(m, f)
	}
	return out
}

func fieldValue(m *Message, f *schema.FieldDescriptor) interface{} {
	switch f.Type {
	case schema.TypeInt32, schema.TypeSint32, schema.TypeSfixed32:
		return m.Int32(f)
	case schema.TypeUint32, schema.TypeFixed32:
		return m.Uint32(f)
	case schema.TypeInt64, schema.TypeSint64, schema.TypeSfixed64:
		return m.Int64(f)
	case schema.TypeUint64, schema.TypeFixed64:
		return m.Uint64(f)
	case schema.TypeFloat:
		return m.Float32(f)
	case schema.TypeDouble:
		return m.Float64(f)
	case schema.TypeBool:
		return m.Bool(f)
	case schema.TypeEnum:
		return enumValueView(m.Int32(f), f.Enum)
	case schema.TypeString:
		return m.Str(f)
	case schema.TypeBytes:
		return m.Bytes(f)
	case schema.TypeMessage:
		if sub := m.Sub(f); sub != nil {
			return ToMap(sub)
		}
		return nil
	default:
		return nil
	}
}

func listToSlice(l *List, f *schema.FieldDescriptor) []interface{} {
	if l == nil {
		return nil
	}
	out := make([]interface{}, l.Len())
	for i := 0; i < l.Len(); i++ {
		switch f.Type {
		case schema.TypeInt32, schema.TypeSint32, schema.TypeSfixed32:
			out[i] = l.Int32At(i)
		case schema.TypeUint32, schema.TypeFixed32:
			out[i] = l.Uint32At(i)
		case schema.TypeInt64, schema.TypeSint64, schema.TypeSfixed64:
			out[i] = l.Int64At(i)
		case schema.TypeUint64, schema.TypeFixed64:
			out[i] = l.Uint64At(i)
		case schema.TypeFloat:
			out[i] = l.Float32At(i)
		case schema.TypeDouble:
			out[i] = l.Float64At(i)
		case schema.TypeBool:
			out[i] = l.BoolAt(i)
		case schema.TypeEnum:
			out[i] = enumValueView(l.Int32At(i), f.Enum)
		case schema.TypeString:
			out[i] = l.StringAt(i)
		case schema.TypeBytes:
			out[i] = l.BytesAt(i)
		case schema.TypeMessage:
			out[i] = ToMap(l.MessageAt(i))
		}
	}
	return out
}

// enumValueView maps a wire number to its canonical declared name. The
// wire value is preserved when the number is unknown; aliased numbers
// render as the first-declared name.
func enumValueView(n int32, e *schema.EnumDescriptor) interface{} {
	if e != nil {
		if ev, ok := e.Canonical(n); ok {
			return ev.Name
		}
	}
	return n
}
