package schema

import "sort"

// DescriptorMagic is stamped into every MessageDescriptor built by the
// registry. Decoders check it before trusting the rest of the value.
const DescriptorMagic uint32 = 0x50d15c01

// FieldType enumerates the protobuf scalar and compound kinds.
type FieldType int32

const (
	TypeError FieldType = iota // unreachable sentinel
	TypeInt32
	TypeSint32
	TypeUint32
	TypeSfixed32
	TypeFixed32
	TypeFloat
	TypeInt64
	TypeSint64
	TypeUint64
	TypeSfixed64
	TypeFixed64
	TypeDouble
	TypeBool
	TypeEnum
	TypeString
	TypeBytes
	TypeMessage
	TypeGroup // wire type deprecated, never produced by the registry
)

var typeNames = map[FieldType]string{
	TypeError:    "error",
	TypeInt32:    "int32",
	TypeSint32:   "sint32",
	TypeUint32:   "uint32",
	TypeSfixed32: "sfixed32",
	TypeFixed32:  "fixed32",
	TypeFloat:    "float",
	TypeInt64:    "int64",
	TypeSint64:   "sint64",
	TypeUint64:   "uint64",
	TypeSfixed64: "sfixed64",
	TypeFixed64:  "fixed64",
	TypeDouble:   "double",
	TypeBool:     "bool",
	TypeEnum:     "enum",
	TypeString:   "string",
	TypeBytes:    "bytes",
	TypeMessage:  "message",
	TypeGroup:    "group",
}

// String returns the proto-source spelling of the type.
func (t FieldType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "unknown"
}

// Label represents field labels.
type Label int32

const (
	LabelError Label = iota // descriptor-evolution sentinel, unused
	LabelRequired
	LabelOptional
	LabelRepeated
)

// Field flag bits.
const (
	FlagPacked uint32 = 1 << iota // repeated field uses packed encoding
	FlagOneof                     // field belongs to a oneof group
)

// FlagsContain reports whether the bitset contains the given flag.
func FlagsContain(flags, flag uint32) bool {
	return flags&flag != 0
}

// Default holds a proto2 default value for a non-repeated field. Scalar
// defaults (ints, enums, bools, floats) are stored as their raw 64-bit
// representation; bytes defaults keep an owned copy. String and message
// defaults are not represented: such fields stay unset when absent from
// the wire.
type Default struct {
	U64   uint64 // scalar bits: integer value, bool 0/1, float/double bits
	Bytes []byte
}

// FieldDescriptor describes one field of a message: its identity, type and
// where its storage lives inside a message instance.
//
// Offset is the byte offset of the field's storage from the start of the
// instance region. QuantifierOffset is overloaded by label, the same way
// descriptor-directed C runtimes overload it:
//
//   - optional (non-oneof): index of the field's presence bit
//   - required: index of the field's bit in the required bitmap
//   - repeated: offset of the uint32 element count inside the region
//   - oneof member: offset of the group's 4-byte discriminator slot
type FieldDescriptor struct {
	Name             string
	ID               int32
	Label            Label
	Type             FieldType
	Offset           uint32
	QuantifierOffset uint32
	Default          *Default
	Message          *MessageDescriptor // for TypeMessage fields
	Enum             *EnumDescriptor    // for TypeEnum fields
	Flags            uint32
}

// IsPacked reports whether a repeated field uses packed encoding.
func (f *FieldDescriptor) IsPacked() bool {
	return FlagsContain(f.Flags, FlagPacked)
}

// IsOneof reports whether the field belongs to a oneof group.
func (f *FieldDescriptor) IsOneof() bool {
	return FlagsContain(f.Flags, FlagOneof)
}

// MessageInit is an optional custom initializer for a message region. It
// receives the raw storage bytes and must leave them in the
// freshly-initialized state, defaults applied.
type MessageInit func(data []byte)

// MessageDescriptor describes the wire schema and storage layout of one
// message type. Fields is sorted by id; FieldIDs is the parallel sorted id
// sequence used for binary search.
type MessageDescriptor struct {
	Magic    uint32
	Name     string // fully qualified, e.g. "shop.Order"
	Size     uint32 // byte length of an instance region
	Fields   []FieldDescriptor
	FieldIDs []int32

	// Layout metadata filled in by the registry.
	PresenceOffset uint32 // start of the optional-field presence bitmap
	PresenceBits   int
	RequiredOffset uint32 // start of the required-field bitmap
	RequiredBits   int

	Init MessageInit // optional custom initializer
}

// FieldIndex returns the index of the field with the given id, or -1.
// FieldIDs is sorted ascending, so this is a binary search.
func (d *MessageDescriptor) FieldIndex(id int32) int {
	i := sort.Search(len(d.FieldIDs), func(i int) bool {
		return d.FieldIDs[i] >= id
	})
	if i < len(d.FieldIDs) && d.FieldIDs[i] == id {
		return i
	}
	return -1
}

// FieldByName returns the named field, or nil.
func (d *MessageDescriptor) FieldByName(name string) *FieldDescriptor {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return &d.Fields[i]
		}
	}
	return nil
}

// RepeatedEleSize returns the in-memory element width used when sizing a
// repeated field's backing storage.
func RepeatedEleSize(t FieldType) int {
	switch t {
	case TypeBool:
		return 1
	case TypeInt32, TypeSint32, TypeUint32, TypeSfixed32, TypeFixed32,
		TypeFloat, TypeEnum:
		return 4
	case TypeInt64, TypeSint64, TypeUint64, TypeSfixed64, TypeFixed64,
		TypeDouble:
		return 8
	case TypeString:
		return 16 // string header
	case TypeBytes:
		return 24 // slice header
	case TypeMessage:
		return 8 // pointer
	default:
		return 0
	}
}

// ScalarWidth returns the stored width of a singular scalar field: 4 or 8
// bytes for numeric types and enums, 1 for bool, 0 for reference types.
func ScalarWidth(t FieldType) int {
	switch t {
	case TypeBool:
		return 1
	case TypeInt32, TypeSint32, TypeUint32, TypeSfixed32, TypeFixed32,
		TypeFloat, TypeEnum:
		return 4
	case TypeInt64, TypeSint64, TypeUint64, TypeSfixed64, TypeFixed64,
		TypeDouble:
		return 8
	default:
		return 0
	}
}

// IsPackableType reports whether values of the type may appear inside a
// packed length-delimited record. Everything but strings, bytes and
// sub-messages is packable.
func IsPackableType(t FieldType) bool {
	switch t {
	case TypeString, TypeBytes, TypeMessage:
		return false
	default:
		return true
	}
}

// EnumValue represents one declared enum number.
type EnumValue struct {
	Name   string
	Number int32
}

// EnumDescriptor describes an enum type. When AllowAlias is set several
// names may share a number; the canonical name for a number is the first
// one declared.
type EnumDescriptor struct {
	Name       string
	Values     []EnumValue
	AllowAlias bool
}

// Canonical returns the first-declared value with the given number.
func (e *EnumDescriptor) Canonical(number int32) (EnumValue, bool) {
	for _, v := range e.Values {
		if v.Number == number {
			return v, true
		}
	}
	return EnumValue{}, false
}

// ByName returns the value with the given name.
func (e *EnumDescriptor) ByName(name string) (EnumValue, bool) {
	for _, v := range e.Values {
		if v.Name == name {
			return v, true
		}
	}
	return EnumValue{}, false
}
