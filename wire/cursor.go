package wire

import (
	"encoding/binary"

	"github.com/protodyn/protodyn/arena"
)

// maxDepth caps message nesting so hostile input cannot exhaust the stack.
const maxDepth = 100

// Ctx is an advancing view over an input buffer. It carries the arena that
// owns all storage produced while decoding, and spawns child views for
// length-delimited sub-messages.
type Ctx struct {
	buf   []byte
	pos   int
	arena *arena.Arena
	depth int
}

// NewContext creates a decode context over data. All decoded storage is
// drawn from a and shares its lifetime.
func NewContext(data []byte, a *arena.Arena) *Ctx {
	return &Ctx{buf: data, arena: a}
}

// withData derives a child cursor over slice, sharing the arena. Used for
// nested messages.
func (c *Ctx) withData(slice []byte) (*Ctx, error) {
	if c.depth+1 > maxDepth {
		return nil, ErrRecursionDepth
	}
	return &Ctx{buf: slice, arena: c.arena, depth: c.depth + 1}, nil
}

// bytesRead returns the offset from the start of the view.
func (c *Ctx) bytesRead() int {
	return c.pos
}

// eof reports whether the view is exhausted.
func (c *Ctx) eof() bool {
	return c.pos >= len(c.buf)
}

// skip advances without reading.
func (c *Ctx) skip(n int) error {
	if c.pos+n > len(c.buf) {
		return ErrNotEnoughBytes
	}
	c.pos += n
	return nil
}

// readKey decodes a record key: a varint whose low 3 bits are the wire
// type and remaining bits the field id. Wire type bits outside the wire
// alphabet, or a zero field id, fail with ErrInvalidKey.
func (c *Ctx) readKey() (Key, error) {
	v, err := c.readUvarint(64)
	if err != nil {
		return Key{}, err
	}
	wt := WireType(v & 0x7)
	switch wt {
	case WireVarint, WireFixed64, WireBytes, WireSGroup, WireEGroup, WireFixed32:
	default:
		return Key{}, ErrInvalidKey
	}
	id := v >> 3
	if id == 0 || id > 0x1fffffff {
		return Key{}, ErrInvalidKey
	}
	return Key{WireType: wt, FieldID: int32(id)}, nil
}

// readFixed32 decodes a 32-bit little-endian value.
func (c *Ctx) readFixed32() (uint32, error) {
	if c.pos+4 > len(c.buf) {
		return 0, ErrInvalidData
	}
	v := binary.LittleEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

// readFixed64 decodes a 64-bit little-endian value.
func (c *Ctx) readFixed64() (uint64, error) {
	if c.pos+8 > len(c.buf) {
		return 0, ErrInvalidData
	}
	v := binary.LittleEndian.Uint64(c.buf[c.pos:])
	c.pos += 8
	return v, nil
}

// readBool decodes a varint as bool, non-zero meaning true.
func (c *Ctx) readBool() (bool, error) {
	v, err := c.readUvarint(64)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// scanLengthPrefixedData reads a length prefix and returns the prefix
// width and payload length. The cursor is left at the payload start; the
// caller advances past the payload. Fails with ErrInvalidData when fewer
// than payloadLen bytes remain.
func (c *Ctx) scanLengthPrefixedData() (prefixLen, payloadLen int, err error) {
	start := c.pos
	n, err := c.readUvarint(32)
	if err != nil {
		return 0, 0, err
	}
	prefixLen = c.pos - start
	payloadLen = int(n)
	if c.pos+payloadLen > len(c.buf) {
		return 0, 0, ErrInvalidData
	}
	return prefixLen, payloadLen, nil
}
