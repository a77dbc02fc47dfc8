package wire

// ===== VARINT (LEB128) CODEC =====

// maxVarintBytes is the longest legal encoding of a 64-bit varint.
const maxVarintBytes = 10

// readUvarint decodes an unsigned LEB128 integer from the cursor, failing
// with ErrOverflow when the decoded value does not fit in the given bit
// width. The cursor never advances past the terminator byte.
func (c *Ctx) readUvarint(bits uint) (uint64, error) {
	var v uint64
	for i := 0; i < maxVarintBytes; i++ {
		if c.pos >= len(c.buf) {
			return 0, ErrNotEnoughBytes
		}
		b := c.buf[c.pos]
		c.pos++
		if i == maxVarintBytes-1 && b > 1 {
			// The 10th byte may only carry bit 63.
			return 0, ErrOverflow
		}
		v |= uint64(b&0x7f) << (7 * uint(i))
		if b&0x80 == 0 {
			if bits < 64 && v>>bits != 0 {
				return 0, ErrOverflow
			}
			return v, nil
		}
	}
	return 0, ErrOverflow
}

// skipUvarint advances past one varint without decoding it and returns the
// number of bytes consumed.
func (c *Ctx) skipUvarint() (int, error) {
	for i := 0; i < maxVarintBytes; i++ {
		if c.pos >= len(c.buf) {
			return 0, ErrNotEnoughBytes
		}
		b := c.buf[c.pos]
		c.pos++
		if b&0x80 == 0 {
			return i + 1, nil
		}
	}
	return 0, ErrOverflow
}

// countVarints returns the number of complete varints in a packed payload:
// one per byte with the continuation bit clear.
func countVarints(payload []byte) int {
	n := 0
	for _, b := range payload {
		if b&0x80 == 0 {
			n++
		}
	}
	return n
}

// UTILITY FUNCTIONS

// DecodeZigZag32 decodes a zigzag-encoded 32-bit integer.
func DecodeZigZag32(encoded uint64) int32 {
	return int32((uint32(encoded) >> 1) ^ uint32(-int32(encoded&1)))
}

// DecodeZigZag64 decodes a zigzag-encoded 64-bit integer.
func DecodeZigZag64(encoded uint64) int64 {
	return int64((encoded >> 1) ^ uint64(-int64(encoded&1)))
}

// EncodeZigZag32 encodes a signed 32-bit integer using zigzag encoding.
func EncodeZigZag32(v int32) uint64 {
	return uint64((uint32(v) << 1) ^ uint32(v>>31))
}

// EncodeZigZag64 encodes a signed 64-bit integer using zigzag encoding.
func EncodeZigZag64(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

// AppendUvarint appends the LEB128 encoding of v to buf.
func AppendUvarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

// VarintSize returns the number of bytes needed to encode the given varint.
func VarintSize(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
