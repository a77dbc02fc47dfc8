package wire

import (
	"encoding/binary"
	"math"

	"github.com/protodyn/protodyn/arena"
	"github.com/protodyn/protodyn/schema"
)

// Message is a decoded message instance. Field storage lives in a
// descriptor-sized byte region addressed through FieldDescriptor offsets:
// scalars are stored little-endian at their offset, bools as one byte,
// and reference-typed fields (strings, bytes, sub-messages, repeated
// lists) as a 4-byte slot holding an index into the instance's reference
// table. The region prefix holds the presence bitmap, the required-field
// bitmap and one 4-byte discriminator slot per oneof group.
type Message struct {
	desc    *schema.MessageDescriptor
	data    []byte
	refs    []interface{}
	unknown []UnknownField
	arena   *arena.Arena
}

// UnknownField retains a wire record whose field id is absent from the
// descriptor. Data is an owned copy of the payload without the key or, for
// length-delimited records, the length prefix.
type UnknownField struct {
	Key  Key
	Data []byte
}

// String is an arena-backed string value. The backing copy carries a
// trailing NUL byte that is not part of the value.
type String struct {
	b []byte
}

func makeString(a *arena.Arena, payload []byte) String {
	return String{b: a.CopyString(payload)}
}

// IsSet reports whether the value was ever stored.
func (s String) IsSet() bool { return s.b != nil }

// Len returns the value length, excluding the NUL terminator.
func (s String) Len() int {
	if s.b == nil {
		return 0
	}
	return len(s.b) - 1
}

// String returns the value.
func (s String) String() string {
	if s.b == nil {
		return ""
	}
	return string(s.b[:len(s.b)-1])
}

// List is repeated-field storage. Scalar elements are appended into an
// arena-backed raw buffer sized exactly from the scanner's tally; string,
// bytes and message elements go into a typed slice with the same exact
// capacity.
type List struct {
	eleSize  int
	len, cap int
	raw      []byte
	strs     []String
	bins     [][]byte
	msgs     []*Message
}

func newList(t schema.FieldType, count int, a *arena.Arena) *List {
	l := &List{eleSize: schema.RepeatedEleSize(t), cap: count}
	switch t {
	case schema.TypeString:
		l.strs = make([]String, 0, count)
	case schema.TypeBytes:
		l.bins = make([][]byte, 0, count)
	case schema.TypeMessage:
		l.msgs = make([]*Message, 0, count)
	default:
		l.raw = a.Alloc(count * l.eleSize)
	}
	return l
}

// Len returns the number of decoded elements.
func (l *List) Len() int { return l.len }

// Cap returns the reserved element capacity.
func (l *List) Cap() int { return l.cap }

func (l *List) appendU32(v uint32) {
	binary.LittleEndian.PutUint32(l.raw[l.len*4:], v)
	l.len++
}

func (l *List) appendU64(v uint64) {
	binary.LittleEndian.PutUint64(l.raw[l.len*8:], v)
	l.len++
}

func (l *List) appendBool(v bool) {
	if v {
		l.raw[l.len] = 1
	}
	l.len++
}

func (l *List) appendString(s String) {
	l.strs = append(l.strs, s)
	l.len++
}

func (l *List) appendBytes(b []byte) {
	l.bins = append(l.bins, b)
	l.len++
}

func (l *List) appendMessage(m *Message) {
	l.msgs = append(l.msgs, m)
	l.len++
}

// Element accessors. Callers index by decoded position; the typed view
// must match the field's declared type.

func (l *List) U32At(i int) uint32 { return binary.LittleEndian.Uint32(l.raw[i*4:]) }
func (l *List) U64At(i int) uint64 { return binary.LittleEndian.Uint64(l.raw[i*8:]) }

func (l *List) Int32At(i int) int32     { return int32(l.U32At(i)) }
func (l *List) Uint32At(i int) uint32   { return l.U32At(i) }
func (l *List) Int64At(i int) int64     { return int64(l.U64At(i)) }
func (l *List) Uint64At(i int) uint64   { return l.U64At(i) }
func (l *List) Float32At(i int) float32 { return math.Float32frombits(l.U32At(i)) }
func (l *List) Float64At(i int) float64 { return math.Float64frombits(l.U64At(i)) }
func (l *List) BoolAt(i int) bool       { return l.raw[i] != 0 }
func (l *List) StringAt(i int) string   { return l.strs[i].String() }
func (l *List) BytesAt(i int) []byte    { return l.bins[i] }
func (l *List) MessageAt(i int) *Message { return l.msgs[i] }

// ===== MESSAGE LIFECYCLE =====

// viewMessage interprets buf as an instance region for desc and
// initializes it: magic check, zero fill, defaults. When the descriptor
// supplies a custom initializer it runs instead of the generic path.
func viewMessage(desc *schema.MessageDescriptor, buf []byte, a *arena.Arena) (*Message, error) {
	if desc == nil || desc.Magic != schema.DescriptorMagic {
		return nil, ErrBadDescriptor
	}
	if len(buf) != int(desc.Size) {
		return nil, ErrInvalidData
	}
	m := &Message{desc: desc, data: buf, arena: a}
	if desc.Init != nil {
		desc.Init(buf)
		return m, nil
	}
	clear(buf)
	for i := range desc.Fields {
		f := &desc.Fields[i]
		if f.Default == nil || f.Label == schema.LabelRepeated {
			continue
		}
		switch schema.ScalarWidth(f.Type) {
		case 1:
			if f.Default.U64 != 0 {
				buf[f.Offset] = 1
			}
		case 4:
			binary.LittleEndian.PutUint32(buf[f.Offset:], uint32(f.Default.U64))
		case 8:
			binary.LittleEndian.PutUint64(buf[f.Offset:], f.Default.U64)
		default:
			if f.Type == schema.TypeBytes && f.Default.Bytes != nil {
				m.setRef(f.Offset, m.addRef(a.Copy(f.Default.Bytes)))
			}
			// String and message defaults are not supported: the field
			// stays unset when absent from the wire.
		}
	}
	return m, nil
}

// newMessage allocates a fresh instance region from the arena.
func newMessage(desc *schema.MessageDescriptor, a *arena.Arena) (*Message, error) {
	if desc == nil || desc.Magic != schema.DescriptorMagic {
		return nil, ErrBadDescriptor
	}
	return viewMessage(desc, a.Alloc(int(desc.Size)), a)
}

// Descriptor returns the message's descriptor.
func (m *Message) Descriptor() *schema.MessageDescriptor { return m.desc }

// Unknown returns retained unknown fields in wire order.
func (m *Message) Unknown() []UnknownField { return m.unknown }

// ===== RAW REGION ACCESS =====

func (m *Message) u32(off uint32) uint32 {
	return binary.LittleEndian.Uint32(m.data[off:])
}

func (m *Message) u64(off uint32) uint64 {
	return binary.LittleEndian.Uint64(m.data[off:])
}

func (m *Message) putU32(off uint32, v uint32) {
	binary.LittleEndian.PutUint32(m.data[off:], v)
}

func (m *Message) putU64(off uint32, v uint64) {
	binary.LittleEndian.PutUint64(m.data[off:], v)
}

// addRef stores v in the reference table and returns its slot value.
func (m *Message) addRef(v interface{}) uint32 {
	m.refs = append(m.refs, v)
	return uint32(len(m.refs)) // index+1, 0 means unset
}

func (m *Message) setRef(off, slot uint32) {
	m.putU32(off, slot)
}

func (m *Message) ref(off uint32) interface{} {
	slot := m.u32(off)
	if slot == 0 {
		return nil
	}
	return m.refs[slot-1]
}

// replaceRef overwrites the value behind an existing slot, or allocates a
// new slot when the field was unset.
func (m *Message) replaceRef(off uint32, v interface{}) {
	slot := m.u32(off)
	if slot == 0 {
		m.setRef(off, m.addRef(v))
		return
	}
	m.refs[slot-1] = v
}

// ===== PRESENCE, REQUIRED AND ONEOF STATE =====

func (m *Message) setPresence(bit uint32) {
	m.data[m.desc.PresenceOffset+bit/8] |= 1 << (bit % 8)
}

func (m *Message) clearPresence(bit uint32) {
	m.data[m.desc.PresenceOffset+bit/8] &^= 1 << (bit % 8)
}

func (m *Message) presence(bit uint32) bool {
	return m.data[m.desc.PresenceOffset+bit/8]&(1<<(bit%8)) != 0
}

func (m *Message) setRequiredBit(bit uint32) {
	m.data[m.desc.RequiredOffset+bit/8] |= 1 << (bit % 8)
}

func (m *Message) requiredBit(bit uint32) bool {
	return m.data[m.desc.RequiredOffset+bit/8]&(1<<(bit%8)) != 0
}

// OneofCase returns the field id currently set in the oneof group that f
// belongs to, 0 meaning unset.
func (m *Message) OneofCase(f *schema.FieldDescriptor) int32 {
	return int32(m.u32(f.QuantifierOffset))
}

// Has reports whether the field was observed on the wire (or, for
// repeated fields, decoded at least one element).
func (m *Message) Has(f *schema.FieldDescriptor) bool {
	switch {
	case f.Label == schema.LabelRepeated:
		return m.u32(f.QuantifierOffset) > 0
	case f.IsOneof():
		return m.OneofCase(f) == f.ID
	case f.Label == schema.LabelRequired:
		return m.requiredBit(f.QuantifierOffset)
	default:
		return m.presence(f.QuantifierOffset)
	}
}

// ===== TYPED FIELD ACCESSORS =====

// Int32 reads an int32/sint32/sfixed32 or enum field.
func (m *Message) Int32(f *schema.FieldDescriptor) int32 { return int32(m.u32(f.Offset)) }

// Uint32 reads a uint32/fixed32 field.
func (m *Message) Uint32(f *schema.FieldDescriptor) uint32 { return m.u32(f.Offset) }

// Int64 reads an int64/sint64/sfixed64 field.
func (m *Message) Int64(f *schema.FieldDescriptor) int64 { return int64(m.u64(f.Offset)) }

// Uint64 reads a uint64/fixed64 field.
func (m *Message) Uint64(f *schema.FieldDescriptor) uint64 { return m.u64(f.Offset) }

// Float32 reads a float field.
func (m *Message) Float32(f *schema.FieldDescriptor) float32 {
	return math.Float32frombits(m.u32(f.Offset))
}

// Float64 reads a double field.
func (m *Message) Float64(f *schema.FieldDescriptor) float64 {
	return math.Float64frombits(m.u64(f.Offset))
}

// Bool reads a bool field.
func (m *Message) Bool(f *schema.FieldDescriptor) bool { return m.data[f.Offset] != 0 }

// StringValue reads a string field as its arena-backed value.
func (m *Message) StringValue(f *schema.FieldDescriptor) String {
	if s, ok := m.ref(f.Offset).(String); ok {
		return s
	}
	return String{}
}

// Str reads a string field.
func (m *Message) Str(f *schema.FieldDescriptor) string {
	return m.StringValue(f).String()
}

// Bytes reads a bytes field; nil when unset and no default applies.
func (m *Message) Bytes(f *schema.FieldDescriptor) []byte {
	if b, ok := m.ref(f.Offset).([]byte); ok {
		return b
	}
	return nil
}

// Sub reads a singular sub-message field; nil when unset.
func (m *Message) Sub(f *schema.FieldDescriptor) *Message {
	if sub, ok := m.ref(f.Offset).(*Message); ok {
		return sub
	}
	return nil
}

// List reads a repeated field's list; nil when no element was decoded.
func (m *Message) List(f *schema.FieldDescriptor) *List {
	if l, ok := m.ref(f.Offset).(*List); ok {
		return l
	}
	return nil
}

// ===== INTERNAL WRITERS =====

func (m *Message) setString(f *schema.FieldDescriptor, payload []byte) {
	m.replaceRef(f.Offset, makeString(m.arena, payload))
}

func (m *Message) setBytes(f *schema.FieldDescriptor, payload []byte) {
	b := m.arena.Copy(payload)
	if b == nil {
		b = []byte{}
	}
	m.replaceRef(f.Offset, b)
}

// mutableSub returns the in-place sub-message for a singular message
// field, creating and initializing it on first use. A second wire record
// for the same field merges into the existing instance.
func (m *Message) mutableSub(f *schema.FieldDescriptor) (*Message, error) {
	if sub := m.Sub(f); sub != nil {
		return sub, nil
	}
	if f.Message == nil {
		return nil, ErrDescriptorMissing
	}
	sub, err := newMessage(f.Message, m.arena)
	if err != nil {
		return nil, err
	}
	m.replaceRef(f.Offset, sub)
	return sub, nil
}

// clearField zeroes a field's storage. Used when a oneof sibling is
// displaced.
func (m *Message) clearField(f *schema.FieldDescriptor) {
	if w := schema.ScalarWidth(f.Type); w > 0 {
		for i := 0; i < w; i++ {
			m.data[int(f.Offset)+i] = 0
		}
		return
	}
	if slot := m.u32(f.Offset); slot != 0 {
		m.refs[slot-1] = nil
		m.putU32(f.Offset, 0)
	}
}

// setOneofCase records f as the live member of its oneof group, releasing
// any previously set sibling.
func (m *Message) setOneofCase(f *schema.FieldDescriptor) {
	prev := m.OneofCase(f)
	if prev != 0 && prev != f.ID {
		if i := m.desc.FieldIndex(prev); i >= 0 {
			sibling := &m.desc.Fields[i]
			if sibling.IsOneof() && sibling.QuantifierOffset == f.QuantifierOffset {
				m.clearField(sibling)
			}
		}
	}
	m.putU32(f.QuantifierOffset, uint32(f.ID))
}

// checkRequired verifies every required field's bit after a parse.
func (m *Message) checkRequired() error {
	for i := range m.desc.Fields {
		f := &m.desc.Fields[i]
		if f.Label == schema.LabelRequired && !m.requiredBit(f.QuantifierOffset) {
			return wrapWithField(ErrFieldMissing, f.Name)
		}
	}
	return nil
}
