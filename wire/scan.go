package wire

import (
	"github.com/protodyn/protodyn/schema"
)

// scannedMember is one record found by the first pass: the key, the
// matched field descriptor (nil for unknown ids) and the payload slice,
// excluding the key and any length prefix.
type scannedMember struct {
	key       Key
	field     *schema.FieldDescriptor
	data      []byte
	prefixLen int // bytes of length prefix, LEN-framed records only
}

// scanResult is what the first pass hands to the allocator pass: the
// ordered member list, exact per-field repeated element tallies and the
// unknown-record count.
type scanResult struct {
	members []scannedMember
	counts  []uint32 // parallel to desc.Fields
	unknown int
}

// scanMessage walks the remaining input once without allocating any field
// storage. Payload slices alias the input buffer; the parser copies what
// it keeps.
func (c *Ctx) scanMessage(desc *schema.MessageDescriptor) (*scanResult, error) {
	res := &scanResult{counts: make([]uint32, len(desc.Fields))}

	// Encoders typically emit fields in declaration order, so the field
	// matched last is cached and retried before the binary search.
	var last *schema.FieldDescriptor
	lastIdx := -1

	for !c.eof() {
		key, err := c.readKey()
		if err != nil {
			return nil, err
		}

		var field *schema.FieldDescriptor
		idx := -1
		if last != nil && last.ID == key.FieldID {
			field, idx = last, lastIdx
		} else if i := desc.FieldIndex(key.FieldID); i >= 0 {
			field, idx = &desc.Fields[i], i
			last, lastIdx = field, i
		}

		var data []byte
		prefix := 0
		switch key.WireType {
		case WireVarint:
			start := c.pos
			if _, err := c.skipUvarint(); err != nil {
				return nil, err
			}
			data = c.buf[start:c.pos]
		case WireFixed64:
			if c.pos+8 > len(c.buf) {
				return nil, ErrInvalidData
			}
			data = c.buf[c.pos : c.pos+8]
			c.pos += 8
		case WireFixed32:
			if c.pos+4 > len(c.buf) {
				return nil, ErrInvalidData
			}
			data = c.buf[c.pos : c.pos+4]
			c.pos += 4
		case WireBytes:
			pl, n, err := c.scanLengthPrefixedData()
			if err != nil {
				return nil, err
			}
			prefix = pl
			data = c.buf[c.pos : c.pos+n]
			c.pos += n
		default:
			// Group wire types survived key validation but have no
			// payload framing here.
			return nil, ErrInvalidType
		}

		if field == nil {
			res.unknown++
		} else if field.Label == schema.LabelRepeated {
			if key.WireType == WireBytes &&
				(field.IsPacked() || schema.IsPackableType(field.Type)) {
				n, err := packedCount(field.Type, data)
				if err != nil {
					return nil, wrapWithField(err, field.Name)
				}
				res.counts[idx] += uint32(n)
			} else {
				res.counts[idx]++
			}
		}

		res.members = append(res.members, scannedMember{
			key:       key,
			field:     field,
			data:      data,
			prefixLen: prefix,
		})
	}
	return res, nil
}

// packedCount sizes a packed payload without decoding it: fixed-width
// elements by division (which must be exact), varints by terminator
// bytes, bools one per byte.
func packedCount(t schema.FieldType, payload []byte) (int, error) {
	switch t {
	case schema.TypeSfixed32, schema.TypeFixed32, schema.TypeFloat:
		if len(payload)%4 != 0 {
			return 0, ErrInvalidType
		}
		return len(payload) / 4, nil
	case schema.TypeSfixed64, schema.TypeFixed64, schema.TypeDouble:
		if len(payload)%8 != 0 {
			return 0, ErrInvalidType
		}
		return len(payload) / 8, nil
	case schema.TypeBool:
		return len(payload), nil
	default:
		return countVarints(payload), nil
	}
}
