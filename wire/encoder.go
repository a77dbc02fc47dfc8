package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/protodyn/protodyn/schema"
)

// Encoder handles low-level protobuf wire format encoding.
type Encoder struct {
	buf []byte
}

// NewEncoder creates a new wire format encoder.
func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0)}
}

// Bytes returns the encoded bytes.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Reset clears the encoder buffer.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// EncodeVarint appends a varint.
func (e *Encoder) EncodeVarint(v uint64) {
	e.buf = AppendUvarint(e.buf, v)
}

// EncodeFixed32 appends a 32-bit little-endian value.
func (e *Encoder) EncodeFixed32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

// EncodeFixed64 appends a 64-bit little-endian value.
func (e *Encoder) EncodeFixed64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

// EncodeBytes appends a length-delimited byte array.
func (e *Encoder) EncodeBytes(data []byte) {
	e.EncodeVarint(uint64(len(data)))
	e.buf = append(e.buf, data...)
}

// EncodeString appends a length-delimited string.
func (e *Encoder) EncodeString(s string) {
	e.EncodeVarint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *Encoder) encodeKey(id int32, wt WireType) {
	e.EncodeVarint(uint64(MakeTag(FieldNumber(id), wt)))
}

// ===== MESSAGE SERIALIZATION =====

// Marshal serializes a decoded message back to the wire: fields in id
// order, presence-gated singular records, packed repeated runs where the
// descriptor asks for them, and finally the retained unknown fields in
// the order they were scanned.
func Marshal(m *Message) ([]byte, error) {
	e := NewEncoder()
	if err := e.encodeMessage(m); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

func (e *Encoder) encodeMessage(m *Message) error {
	desc := m.Descriptor()
	for i := range desc.Fields {
		f := &desc.Fields[i]
		switch f.Label {
		case schema.LabelRequired:
			if !m.Has(f) {
				return wrapWithField(ErrFieldMissing, f.Name)
			}
			if err := e.encodeSingular(m, f); err != nil {
				return wrapWithField(err, f.Name)
			}
		case schema.LabelRepeated:
			if err := e.encodeRepeated(m, f); err != nil {
				return wrapWithField(err, f.Name)
			}
		default:
			if !m.Has(f) {
				continue
			}
			if err := e.encodeSingular(m, f); err != nil {
				return wrapWithField(err, f.Name)
			}
		}
	}
	for _, u := range m.Unknown() {
		e.encodeKey(u.Key.FieldID, u.Key.WireType)
		if u.Key.WireType == WireBytes {
			e.EncodeBytes(u.Data)
		} else {
			e.buf = append(e.buf, u.Data...)
		}
	}
	return nil
}

func (e *Encoder) encodeSingular(m *Message, f *schema.FieldDescriptor) error {
	switch f.Type {
	case schema.TypeInt32, schema.TypeEnum:
		e.encodeKey(f.ID, WireVarint)
		e.EncodeVarint(uint64(int64(m.Int32(f))))
	case schema.TypeSint32:
		e.encodeKey(f.ID, WireVarint)
		e.EncodeVarint(EncodeZigZag32(m.Int32(f)))
	case schema.TypeUint32:
		e.encodeKey(f.ID, WireVarint)
		e.EncodeVarint(uint64(m.Uint32(f)))
	case schema.TypeInt64, schema.TypeUint64:
		e.encodeKey(f.ID, WireVarint)
		e.EncodeVarint(m.Uint64(f))
	case schema.TypeSint64:
		e.encodeKey(f.ID, WireVarint)
		e.EncodeVarint(EncodeZigZag64(m.Int64(f)))
	case schema.TypeSfixed32, schema.TypeFixed32, schema.TypeFloat:
		e.encodeKey(f.ID, WireFixed32)
		e.EncodeFixed32(m.Uint32(f))
	case schema.TypeSfixed64, schema.TypeFixed64, schema.TypeDouble:
		e.encodeKey(f.ID, WireFixed64)
		e.EncodeFixed64(m.Uint64(f))
	case schema.TypeBool:
		e.encodeKey(f.ID, WireVarint)
		if m.Bool(f) {
			e.EncodeVarint(1)
		} else {
			e.EncodeVarint(0)
		}
	case schema.TypeString:
		e.encodeKey(f.ID, WireBytes)
		e.EncodeString(m.Str(f))
	case schema.TypeBytes:
		e.encodeKey(f.ID, WireBytes)
		e.EncodeBytes(m.Bytes(f))
	case schema.TypeMessage:
		sub := m.Sub(f)
		if sub == nil {
			return ErrSubMessageMissing
		}
		body, err := Marshal(sub)
		if err != nil {
			return err
		}
		e.encodeKey(f.ID, WireBytes)
		e.EncodeBytes(body)
	default:
		return ErrInvalidType
	}
	return nil
}

func (e *Encoder) encodeRepeated(m *Message, f *schema.FieldDescriptor) error {
	l := m.List(f)
	if l == nil || l.Len() == 0 {
		return nil
	}
	if f.IsPacked() && schema.IsPackableType(f.Type) {
		packed := NewEncoder()
		for i := 0; i < l.Len(); i++ {
			packed.encodeElement(l, f, i)
		}
		e.encodeKey(f.ID, WireBytes)
		e.EncodeBytes(packed.Bytes())
		return nil
	}
	for i := 0; i < l.Len(); i++ {
		switch f.Type {
		case schema.TypeString:
			e.encodeKey(f.ID, WireBytes)
			e.EncodeString(l.StringAt(i))
		case schema.TypeBytes:
			e.encodeKey(f.ID, WireBytes)
			e.EncodeBytes(l.BytesAt(i))
		case schema.TypeMessage:
			body, err := Marshal(l.MessageAt(i))
			if err != nil {
				return err
			}
			e.encodeKey(f.ID, WireBytes)
			e.EncodeBytes(body)
		default:
			e.encodeKey(f.ID, expectedWire(f.Type))
			e.encodeElement(l, f, i)
		}
	}
	return nil
}

// encodeElement appends one scalar element without its key.
func (e *Encoder) encodeElement(l *List, f *schema.FieldDescriptor, i int) {
	switch f.Type {
	case schema.TypeInt32, schema.TypeEnum:
		e.EncodeVarint(uint64(int64(l.Int32At(i))))
	case schema.TypeSint32:
		e.EncodeVarint(EncodeZigZag32(l.Int32At(i)))
	case schema.TypeUint32:
		e.EncodeVarint(uint64(l.Uint32At(i)))
	case schema.TypeInt64, schema.TypeUint64:
		e.EncodeVarint(l.Uint64At(i))
	case schema.TypeSint64:
		e.EncodeVarint(EncodeZigZag64(l.Int64At(i)))
	case schema.TypeSfixed32, schema.TypeFixed32, schema.TypeFloat:
		e.EncodeFixed32(l.U32At(i))
	case schema.TypeSfixed64, schema.TypeFixed64, schema.TypeDouble:
		e.EncodeFixed64(l.U64At(i))
	case schema.TypeBool:
		if l.BoolAt(i) {
			e.EncodeVarint(1)
		} else {
			e.EncodeVarint(0)
		}
	}
}

// ===== MAP-DRIVEN ENCODING =====

// EncodeMap serializes a map keyed by field name against a descriptor.
// This is the encode half of the facade's map-based API.
func EncodeMap(data map[string]interface{}, desc *schema.MessageDescriptor) ([]byte, error) {
	if desc == nil || desc.Magic != schema.DescriptorMagic {
		return nil, ErrBadDescriptor
	}
	e := NewEncoder()
	for i := range desc.Fields {
		f := &desc.Fields[i]
		v, ok := data[f.Name]
		if !ok || v == nil {
			if f.Label == schema.LabelRequired {
				return nil, wrapWithField(ErrFieldMissing, f.Name)
			}
			continue
		}
		if err := e.encodeMapField(v, f); err != nil {
			return nil, wrapWithField(err, f.Name)
		}
	}
	return e.Bytes(), nil
}

func (e *Encoder) encodeMapField(v interface{}, f *schema.FieldDescriptor) error {
	if f.Label == schema.LabelRepeated {
		elems, err := toSlice(v)
		if err != nil {
			return err
		}
		if f.IsPacked() && schema.IsPackableType(f.Type) {
			packed := NewEncoder()
			for _, el := range elems {
				if err := packed.encodeMapValue(el, f, false); err != nil {
					return err
				}
			}
			e.encodeKey(f.ID, WireBytes)
			e.EncodeBytes(packed.Bytes())
			return nil
		}
		for _, el := range elems {
			if err := e.encodeMapValue(el, f, true); err != nil {
				return err
			}
		}
		return nil
	}
	return e.encodeMapValue(v, f, true)
}

// encodeMapValue appends one value, with its key when keyed is true.
func (e *Encoder) encodeMapValue(v interface{}, f *schema.FieldDescriptor, keyed bool) error {
	key := func(wt WireType) {
		if keyed {
			e.encodeKey(f.ID, wt)
		}
	}
	switch f.Type {
	case schema.TypeInt32, schema.TypeInt64, schema.TypeSint32, schema.TypeSint64:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		key(WireVarint)
		switch f.Type {
		case schema.TypeSint32:
			e.EncodeVarint(EncodeZigZag32(int32(n)))
		case schema.TypeSint64:
			e.EncodeVarint(EncodeZigZag64(n))
		default:
			e.EncodeVarint(uint64(n))
		}
	case schema.TypeUint32, schema.TypeUint64:
		n, err := toUint64(v)
		if err != nil {
			return err
		}
		key(WireVarint)
		e.EncodeVarint(n)
	case schema.TypeEnum:
		n, err := enumNumber(v, f.Enum)
		if err != nil {
			return err
		}
		key(WireVarint)
		e.EncodeVarint(uint64(int64(n)))
	case schema.TypeBool:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
		key(WireVarint)
		if b {
			e.EncodeVarint(1)
		} else {
			e.EncodeVarint(0)
		}
	case schema.TypeSfixed32, schema.TypeFixed32:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		key(WireFixed32)
		e.EncodeFixed32(uint32(n))
	case schema.TypeFloat:
		fv, err := toFloat64(v)
		if err != nil {
			return err
		}
		key(WireFixed32)
		e.EncodeFixed32(math.Float32bits(float32(fv)))
	case schema.TypeSfixed64, schema.TypeFixed64:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		key(WireFixed64)
		e.EncodeFixed64(uint64(n))
	case schema.TypeDouble:
		fv, err := toFloat64(v)
		if err != nil {
			return err
		}
		key(WireFixed64)
		e.EncodeFixed64(math.Float64bits(fv))
	case schema.TypeString:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		key(WireBytes)
		e.EncodeString(s)
	case schema.TypeBytes:
		b, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("expected []byte, got %T", v)
		}
		key(WireBytes)
		e.EncodeBytes(b)
	case schema.TypeMessage:
		sub, ok := v.(map[string]interface{})
		if !ok {
			return fmt.Errorf("expected map[string]interface{}, got %T", v)
		}
		if f.Message == nil {
			return ErrDescriptorMissing
		}
		body, err := EncodeMap(sub, f.Message)
		if err != nil {
			return err
		}
		key(WireBytes)
		e.EncodeBytes(body)
	default:
		return ErrInvalidType
	}
	return nil
}
