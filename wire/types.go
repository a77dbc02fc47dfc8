package wire

// ===== PROTOBUF WIRE FORMAT TYPES =====

// WireType represents protobuf wire format types.
type WireType int32

const (
	WireVarint  WireType = 0 // int32, int64, uint32, uint64, sint32, sint64, bool, enum
	WireFixed64 WireType = 1 // fixed64, sfixed64, double
	WireBytes   WireType = 2 // string, bytes, embedded messages, packed repeated fields
	WireSGroup  WireType = 3 // deprecated, rejected
	WireEGroup  WireType = 4 // deprecated, rejected
	WireFixed32 WireType = 5 // fixed32, sfixed32, float
)

// FieldNumber represents a protobuf field number.
type FieldNumber int32

// Tag represents a protobuf field tag (field number + wire type).
type Tag uint64

// MakeTag creates a tag from field number and wire type.
func MakeTag(fieldNumber FieldNumber, wireType WireType) Tag {
	return Tag(uint64(fieldNumber)<<3 | uint64(wireType))
}

// ParseTag parses a tag into field number and wire type.
func ParseTag(tag Tag) (FieldNumber, WireType) {
	return FieldNumber(tag >> 3), WireType(tag & 0x7)
}

// Key is a decoded record key: the leading varint of every wire record.
type Key struct {
	WireType WireType
	FieldID  int32
}

// Tag folds the key back into its varint form.
func (k Key) Tag() Tag {
	return MakeTag(FieldNumber(k.FieldID), k.WireType)
}
