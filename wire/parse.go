package wire

import (
	"fmt"
	"math"

	"github.com/protodyn/protodyn/arena"
	"github.com/protodyn/protodyn/schema"
)

// Deserialize allocates a fresh instance region from the context's arena
// and decodes the remaining input into it.
func (c *Ctx) Deserialize(desc *schema.MessageDescriptor) (*Message, error) {
	if desc == nil || desc.Magic != schema.DescriptorMagic {
		return nil, ErrBadDescriptor
	}
	return c.DeserializeTo(desc, c.arena.Alloc(int(desc.Size)))
}

// DeserializeTo decodes the remaining input into buf, which must be
// desc.Size bytes long. The returned Message views buf.
func (c *Ctx) DeserializeTo(desc *schema.MessageDescriptor, buf []byte) (*Message, error) {
	m, err := viewMessage(desc, buf, c.arena)
	if err != nil {
		return nil, err
	}
	if err := c.deserializeInto(m); err != nil {
		return nil, err
	}
	return m, nil
}

// deserializeInto runs the two-pass decode against an already initialized
// message: scan, size repeated storage, then parse every scanned member in
// wire order. Calling it again on the same message merges, the way
// repeated records of a singular sub-message field merge.
func (c *Ctx) deserializeInto(m *Message) error {
	res, err := c.scanMessage(m.desc)
	if err != nil {
		return err
	}
	m.allocate(res)
	for i := range res.members {
		if err := m.parseMember(&res.members[i], c); err != nil {
			return err
		}
	}
	for i := range m.desc.Fields {
		f := &m.desc.Fields[i]
		if f.Label == schema.LabelRepeated {
			if l := m.List(f); l != nil {
				m.putU32(f.QuantifierOffset, uint32(l.len))
			}
		}
	}
	return m.checkRequired()
}

// ===== ALLOCATOR PASS =====

// allocate sizes every repeated field's backing storage exactly once from
// the scanner's tallies, and reserves the unknown-field list. When a list
// already holds elements from an earlier merge pass it is regrown to the
// combined exact size.
func (m *Message) allocate(res *scanResult) {
	for i := range m.desc.Fields {
		f := &m.desc.Fields[i]
		if f.Label != schema.LabelRepeated || res.counts[i] == 0 {
			continue
		}
		count := int(res.counts[i])
		if old := m.List(f); old != nil {
			m.replaceRef(f.Offset, old.regrow(count, m.arena))
		} else {
			m.replaceRef(f.Offset, newList(f.Type, count, m.arena))
		}
	}
	if m.unknown == nil && res.unknown > 0 {
		m.unknown = make([]UnknownField, 0, res.unknown)
	}
}

// regrow returns a list with capacity for extra more elements, carrying
// over everything already decoded.
func (l *List) regrow(extra int, a *arena.Arena) *List {
	nl := &List{eleSize: l.eleSize, cap: l.len + extra, len: l.len}
	switch {
	case l.strs != nil:
		nl.strs = make([]String, l.len, nl.cap)
		copy(nl.strs, l.strs)
	case l.bins != nil:
		nl.bins = make([][]byte, l.len, nl.cap)
		copy(nl.bins, l.bins)
	case l.msgs != nil:
		nl.msgs = make([]*Message, l.len, nl.cap)
		copy(nl.msgs, l.msgs)
	default:
		nl.raw = a.Alloc(nl.cap * l.eleSize)
		copy(nl.raw, l.raw[:l.len*l.eleSize])
	}
	return nl
}

// ===== PARSER (SECOND PASS) =====

func (m *Message) parseMember(sm *scannedMember, c *Ctx) error {
	f := sm.field
	if f == nil {
		m.unknown = append(m.unknown, UnknownField{
			Key:  sm.key,
			Data: m.arena.Copy(sm.data),
		})
		return nil
	}

	switch f.Label {
	case schema.LabelRequired:
		if err := m.parseValue(sm, f, c); err != nil {
			return wrapWithField(err, f.Name)
		}
		m.setRequiredBit(f.QuantifierOffset)
	case schema.LabelRepeated:
		if err := m.parseRepeated(sm, f, c); err != nil {
			return wrapWithField(err, f.Name)
		}
	default:
		// Optional, or the descriptor-evolution sentinel treated as such.
		if f.IsOneof() {
			m.setOneofCase(f)
			if err := m.parseValue(sm, f, c); err != nil {
				return wrapWithField(err, f.Name)
			}
		} else {
			if err := m.parseValue(sm, f, c); err != nil {
				return wrapWithField(err, f.Name)
			}
			m.setPresence(f.QuantifierOffset)
		}
	}
	return nil
}

// parseValue decodes one singular value into the field's storage.
func (m *Message) parseValue(sm *scannedMember, f *schema.FieldDescriptor, c *Ctx) error {
	d := &Ctx{buf: sm.data, arena: m.arena, depth: c.depth}
	switch f.Type {
	case schema.TypeInt32, schema.TypeEnum, schema.TypeSint32, schema.TypeUint32:
		if sm.key.WireType != WireVarint {
			return ErrInvalidType
		}
		v, err := decodeVarint32(d, f.Type)
		if err != nil {
			return err
		}
		if err := checkEnumNumber(f, int32(v)); err != nil {
			return err
		}
		m.putU32(f.Offset, v)
	case schema.TypeInt64, schema.TypeSint64, schema.TypeUint64:
		if sm.key.WireType != WireVarint {
			return ErrInvalidType
		}
		v, err := decodeVarint64(d, f.Type)
		if err != nil {
			return err
		}
		m.putU64(f.Offset, v)
	case schema.TypeSfixed32, schema.TypeFixed32, schema.TypeFloat:
		if sm.key.WireType != WireFixed32 {
			return ErrInvalidType
		}
		v, err := d.readFixed32()
		if err != nil {
			return err
		}
		m.putU32(f.Offset, v)
	case schema.TypeSfixed64, schema.TypeFixed64, schema.TypeDouble:
		if sm.key.WireType != WireFixed64 {
			return ErrInvalidType
		}
		v, err := d.readFixed64()
		if err != nil {
			return err
		}
		m.putU64(f.Offset, v)
	case schema.TypeBool:
		if sm.key.WireType != WireVarint {
			return ErrInvalidType
		}
		v, err := d.readBool()
		if err != nil {
			return err
		}
		m.data[f.Offset] = 0
		if v {
			m.data[f.Offset] = 1
		}
	case schema.TypeString:
		if sm.key.WireType != WireBytes {
			return ErrInvalidType
		}
		m.setString(f, sm.data)
	case schema.TypeBytes:
		if sm.key.WireType != WireBytes {
			return ErrInvalidType
		}
		m.setBytes(f, sm.data)
	case schema.TypeMessage:
		if sm.key.WireType != WireBytes {
			return ErrInvalidType
		}
		sub, err := m.mutableSub(f)
		if err != nil {
			return err
		}
		child, err := c.withData(sm.data)
		if err != nil {
			return err
		}
		return child.deserializeInto(sub)
	default:
		return ErrInvalidType
	}
	return nil
}

// parseRepeated appends either a packed run or a single element.
func (m *Message) parseRepeated(sm *scannedMember, f *schema.FieldDescriptor, c *Ctx) error {
	l := m.List(f)
	if sm.key.WireType == WireBytes &&
		(f.IsPacked() || schema.IsPackableType(f.Type)) {
		if l == nil {
			return nil // zero-element packed record
		}
		d := &Ctx{buf: sm.data, arena: m.arena, depth: c.depth}
		for !d.eof() {
			if err := l.appendElement(f, d); err != nil {
				return err
			}
		}
		return nil
	}
	return m.parseRepeatedElement(sm, f, l, c)
}

// parseRepeatedElement appends one unpacked element to the preallocated
// list.
func (m *Message) parseRepeatedElement(sm *scannedMember, f *schema.FieldDescriptor, l *List, c *Ctx) error {
	switch f.Type {
	case schema.TypeString:
		if sm.key.WireType != WireBytes {
			return ErrInvalidType
		}
		l.appendString(makeString(m.arena, sm.data))
		return nil
	case schema.TypeBytes:
		if sm.key.WireType != WireBytes {
			return ErrInvalidType
		}
		b := m.arena.Copy(sm.data)
		if b == nil {
			b = []byte{}
		}
		l.appendBytes(b)
		return nil
	case schema.TypeMessage:
		if sm.key.WireType != WireBytes {
			return ErrInvalidType
		}
		if f.Message == nil {
			return ErrDescriptorMissing
		}
		sub, err := newMessage(f.Message, m.arena)
		if err != nil {
			return err
		}
		child, err := c.withData(sm.data)
		if err != nil {
			return err
		}
		if err := child.deserializeInto(sub); err != nil {
			return err
		}
		l.appendMessage(sub)
		return nil
	default:
		if expected := expectedWire(f.Type); sm.key.WireType != expected {
			return ErrInvalidType
		}
		d := &Ctx{buf: sm.data, arena: m.arena, depth: c.depth}
		return l.appendElement(f, d)
	}
}

// appendElement decodes one scalar element from the cursor and appends it.
// Shared by the packed and unpacked paths.
func (l *List) appendElement(f *schema.FieldDescriptor, d *Ctx) error {
	switch f.Type {
	case schema.TypeInt32, schema.TypeEnum, schema.TypeSint32, schema.TypeUint32:
		v, err := decodeVarint32(d, f.Type)
		if err != nil {
			return err
		}
		if err := checkEnumNumber(f, int32(v)); err != nil {
			return err
		}
		l.appendU32(v)
	case schema.TypeInt64, schema.TypeSint64, schema.TypeUint64:
		v, err := decodeVarint64(d, f.Type)
		if err != nil {
			return err
		}
		l.appendU64(v)
	case schema.TypeSfixed32, schema.TypeFixed32, schema.TypeFloat:
		v, err := d.readFixed32()
		if err != nil {
			return err
		}
		l.appendU32(v)
	case schema.TypeSfixed64, schema.TypeFixed64, schema.TypeDouble:
		v, err := d.readFixed64()
		if err != nil {
			return err
		}
		l.appendU64(v)
	case schema.TypeBool:
		v, err := d.readBool()
		if err != nil {
			return err
		}
		l.appendBool(v)
	default:
		return ErrInvalidType
	}
	return nil
}

// expectedWire returns the wire type a singular record of the field type
// must carry.
func expectedWire(t schema.FieldType) WireType {
	switch t {
	case schema.TypeSfixed32, schema.TypeFixed32, schema.TypeFloat:
		return WireFixed32
	case schema.TypeSfixed64, schema.TypeFixed64, schema.TypeDouble:
		return WireFixed64
	case schema.TypeString, schema.TypeBytes, schema.TypeMessage:
		return WireBytes
	default:
		return WireVarint
	}
}

// decodeVarint32 decodes one varint-framed 32-bit value. int32 and enum
// values arrive sign-extended to 64 bits from conforming encoders, so the
// range check runs over the signed 64-bit reading.
func decodeVarint32(d *Ctx, t schema.FieldType) (uint32, error) {
	switch t {
	case schema.TypeSint32:
		v, err := d.readUvarint(32)
		if err != nil {
			return 0, err
		}
		return uint32(DecodeZigZag32(v)), nil
	case schema.TypeUint32:
		v, err := d.readUvarint(32)
		if err != nil {
			return 0, err
		}
		return uint32(v), nil
	default: // int32, enum
		v, err := d.readUvarint(64)
		if err != nil {
			return 0, err
		}
		iv := int64(v)
		if iv > math.MaxInt32 || iv < math.MinInt32 {
			return 0, ErrOverflow
		}
		return uint32(iv), nil
	}
}

// checkEnumNumber enforces StrictEnumNumberDecode: by default unknown
// numbers are preserved, strict mode fails the parse.
func checkEnumNumber(f *schema.FieldDescriptor, n int32) error {
	if f.Type != schema.TypeEnum || !config.StrictEnumNumberDecode {
		return nil
	}
	if f.Enum == nil {
		return ErrDescriptorMissing
	}
	if _, ok := f.Enum.Canonical(n); !ok {
		return fmt.Errorf("unknown enum value %d for %s: %w", n, f.Enum.Name, ErrInvalidData)
	}
	return nil
}

func decodeVarint64(d *Ctx, t schema.FieldType) (uint64, error) {
	v, err := d.readUvarint(64)
	if err != nil {
		return 0, err
	}
	if t == schema.TypeSint64 {
		return uint64(DecodeZigZag64(v)), nil
	}
	return v, nil
}
