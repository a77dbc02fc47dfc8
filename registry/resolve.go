package registry

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/protodyn/protodyn/schema"
)

var primitiveTypes = map[string]schema.FieldType{
	"int32":    schema.TypeInt32,
	"sint32":   schema.TypeSint32,
	"uint32":   schema.TypeUint32,
	"sfixed32": schema.TypeSfixed32,
	"fixed32":  schema.TypeFixed32,
	"float":    schema.TypeFloat,
	"int64":    schema.TypeInt64,
	"sint64":   schema.TypeSint64,
	"uint64":   schema.TypeUint64,
	"sfixed64": schema.TypeSfixed64,
	"fixed64":  schema.TypeFixed64,
	"double":   schema.TypeDouble,
	"bool":     schema.TypeBool,
	"string":   schema.TypeString,
	"bytes":    schema.TypeBytes,
}

// build resolves every message collected since the last build and
// assigns storage layouts. Shells are created first so mutually
// recursive message references resolve.
func (r *Registry) build() error {
	for _, rm := range r.pending {
		if _, ok := r.messages[rm.fullName]; !ok {
			r.messages[rm.fullName] = &schema.MessageDescriptor{
				Magic: schema.DescriptorMagic,
				Name:  rm.fullName,
			}
		}
	}
	for _, rm := range r.pending {
		if err := r.buildMessage(rm); err != nil {
			return err
		}
	}
	r.pending = nil
	return nil
}

func (r *Registry) buildMessage(rm *rawMessage) error {
	fields := make([]schema.FieldLayout, 0, len(rm.fields))
	for _, rf := range rm.fields {
		fb, err := r.buildField(rm, rf)
		if err != nil {
			return fmt.Errorf("message %s: %w", rm.fullName, err)
		}
		fields = append(fields, fb)
	}
	return schema.Layout(r.messages[rm.fullName], fields, len(rm.oneofs))
}

func (r *Registry) buildField(rm *rawMessage, rf *rawField) (schema.FieldLayout, error) {
	fb := schema.FieldLayout{Oneof: rf.oneofIndex}
	f := &fb.Field
	f.Name = rf.name
	f.ID = rf.id
	f.Label = rf.label

	if rf.mapKey != "" {
		// Maps lower to a repeated synthetic entry message with key=1 and
		// value=2, so the wire core never sees a map as such.
		entry, err := r.buildMapEntry(rm, rf)
		if err != nil {
			return fb, err
		}
		f.Type = schema.TypeMessage
		f.Message = entry
		return fb, nil
	}

	ft, msg, en, err := r.resolveType(rm, rf.typeName)
	if err != nil {
		return fb, fmt.Errorf("field %s: %w", rf.name, err)
	}
	f.Type = ft
	f.Message = msg
	f.Enum = en

	if rf.label == schema.LabelRepeated && schema.IsPackableType(ft) {
		// proto3 packs packable repeated fields unless told otherwise;
		// proto2 packs only on request.
		packed := rm.syntax == "proto3"
		if rf.packed != nil {
			packed = *rf.packed
		}
		if packed {
			f.Flags |= schema.FlagPacked
		}
	}

	if rf.defaultVal != "" && rf.label != schema.LabelRepeated {
		def, err := parseDefault(ft, rf.defaultVal, en)
		if err != nil {
			return fb, fmt.Errorf("field %s: %w", rf.name, err)
		}
		f.Default = def
	}
	return fb, nil
}

// buildMapEntry synthesizes and lays out the entry message for a map
// field.
func (r *Registry) buildMapEntry(rm *rawMessage, rf *rawField) (*schema.MessageDescriptor, error) {
	keyType, ok := primitiveTypes[rf.mapKey]
	if !ok || keyType == schema.TypeFloat || keyType == schema.TypeDouble ||
		keyType == schema.TypeBytes {
		return nil, fmt.Errorf("field %s: invalid map key type %s", rf.name, rf.mapKey)
	}
	valType, valMsg, valEnum, err := r.resolveType(rm, rf.typeName)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", rf.name, err)
	}

	name := rm.fullName + "." + upperCamel(rf.name) + "Entry"
	entry := &schema.MessageDescriptor{Magic: schema.DescriptorMagic, Name: name}
	fields := []schema.FieldLayout{
		{Field: schema.FieldDescriptor{
			Name: "key", ID: 1, Label: schema.LabelOptional, Type: keyType,
		}, Oneof: -1},
		{Field: schema.FieldDescriptor{
			Name: "value", ID: 2, Label: schema.LabelOptional, Type: valType,
			Message: valMsg, Enum: valEnum,
		}, Oneof: -1},
	}
	if err := schema.Layout(entry, fields, 0); err != nil {
		return nil, err
	}
	r.messages[name] = entry
	return entry, nil
}

// resolveType maps a source type token to a field type, resolving
// message and enum references against the enclosing scopes the way
// protobuf name resolution does: innermost scope outward, or absolutely
// when the token starts with a dot.
func (r *Registry) resolveType(rm *rawMessage, token string) (schema.FieldType, *schema.MessageDescriptor, *schema.EnumDescriptor, error) {
	if ft, ok := primitiveTypes[token]; ok {
		return ft, nil, nil, nil
	}

	if strings.HasPrefix(token, ".") {
		name := strings.TrimPrefix(token, ".")
		if en, ok := r.enums[name]; ok {
			return schema.TypeEnum, nil, en, nil
		}
		if msg, ok := r.messages[name]; ok {
			return schema.TypeMessage, msg, nil, nil
		}
		return schema.TypeError, nil, nil, fmt.Errorf("unable to resolve type name %s", token)
	}

	scope := rm.fullName
	for {
		candidate := token
		if scope != "" {
			candidate = scope + "." + token
		}
		if en, ok := r.enums[candidate]; ok {
			return schema.TypeEnum, nil, en, nil
		}
		if msg, ok := r.messages[candidate]; ok {
			return schema.TypeMessage, msg, nil, nil
		}
		if scope == "" {
			break
		}
		// Go one scope level up.
		if i := strings.LastIndex(scope, "."); i >= 0 {
			scope = scope[:i]
		} else {
			scope = ""
		}
	}
	return schema.TypeError, nil, nil, fmt.Errorf("unable to resolve type name %s", token)
}

// parseDefault interprets a proto2 [default=...] constant. String and
// message defaults are not represented; the field stays unset.
func parseDefault(ft schema.FieldType, constant string, en *schema.EnumDescriptor) (*schema.Default, error) {
	c := strings.TrimSpace(constant)
	switch ft {
	case schema.TypeInt32, schema.TypeSint32, schema.TypeSfixed32:
		n, err := strconv.ParseInt(c, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad int32 default %q: %w", c, err)
		}
		return &schema.Default{U64: uint64(n)}, nil
	case schema.TypeInt64, schema.TypeSint64, schema.TypeSfixed64:
		n, err := strconv.ParseInt(c, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 default %q: %w", c, err)
		}
		return &schema.Default{U64: uint64(n)}, nil
	case schema.TypeUint32, schema.TypeFixed32:
		n, err := strconv.ParseUint(c, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad uint32 default %q: %w", c, err)
		}
		return &schema.Default{U64: n}, nil
	case schema.TypeUint64, schema.TypeFixed64:
		n, err := strconv.ParseUint(c, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad uint64 default %q: %w", c, err)
		}
		return &schema.Default{U64: n}, nil
	case schema.TypeFloat:
		f, err := parseFloatDefault(c)
		if err != nil {
			return nil, err
		}
		return &schema.Default{U64: uint64(math.Float32bits(float32(f)))}, nil
	case schema.TypeDouble:
		f, err := parseFloatDefault(c)
		if err != nil {
			return nil, err
		}
		return &schema.Default{U64: math.Float64bits(f)}, nil
	case schema.TypeBool:
		switch c {
		case "true":
			return &schema.Default{U64: 1}, nil
		case "false":
			return &schema.Default{U64: 0}, nil
		}
		return nil, fmt.Errorf("bad bool default %q", c)
	case schema.TypeEnum:
		if en == nil {
			return nil, fmt.Errorf("enum default %q without enum descriptor", c)
		}
		ev, ok := en.ByName(c)
		if !ok {
			return nil, fmt.Errorf("unknown enum default %q for %s", c, en.Name)
		}
		return &schema.Default{U64: uint64(int64(ev.Number))}, nil
	case schema.TypeBytes:
		return &schema.Default{Bytes: []byte(strings.Trim(c, `"`))}, nil
	default:
		// string and message defaults: unsupported, leave unset
		return nil, nil
	}
}

func parseFloatDefault(c string) (float64, error) {
	switch c {
	case "inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	case "nan":
		return math.NaN(), nil
	}
	f, err := strconv.ParseFloat(c, 64)
	if err != nil {
		return 0, fmt.Errorf("bad float default %q: %w", c, err)
	}
	return f, nil
}

// upperCamel converts snake_case to UpperCamelCase, the naming protobuf
// gives synthetic map entry messages.
func upperCamel(s string) string {
	out := make([]byte, 0, len(s))
	upperNext := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' {
			upperNext = true
			continue
		}
		if upperNext && c >= 'a' && c <= 'z' {
			c = c - 'a' + 'A'
		}
		upperNext = false
		out = append(out, c)
	}
	return string(out)
}
