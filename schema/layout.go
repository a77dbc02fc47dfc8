package schema

import (
	"fmt"
	"sort"
)

// FieldLayout pairs a field descriptor under construction with its oneof
// group index, -1 when the field is not a oneof member.
type FieldLayout struct {
	Field FieldDescriptor
	Oneof int
}

func alignTo(off, to uint32) uint32 {
	return (off + to - 1) &^ (to - 1)
}

// Layout assigns the storage layout of a message: the presence and
// required bitmaps, one 4-byte discriminator slot per oneof group, then
// every field's storage at a naturally aligned offset. Fields end up
// sorted by id with the parallel FieldIDs table filled in, and the magic
// stamped.
func Layout(d *MessageDescriptor, fields []FieldLayout, numOneofs int) error {
	sort.SliceStable(fields, func(i, j int) bool {
		return fields[i].Field.ID < fields[j].Field.ID
	})
	for i := 1; i < len(fields); i++ {
		if fields[i].Field.ID == fields[i-1].Field.ID {
			return fmt.Errorf("message %s: duplicate field id %d", d.Name, fields[i].Field.ID)
		}
	}

	var presenceBits, requiredBits int
	for i := range fields {
		if fields[i].Oneof >= 0 {
			continue
		}
		switch fields[i].Field.Label {
		case LabelOptional:
			presenceBits++
		case LabelRequired:
			requiredBits++
		}
	}

	off := uint32(0)
	d.PresenceOffset = off
	d.PresenceBits = presenceBits
	off += uint32((presenceBits + 7) / 8)
	d.RequiredOffset = off
	d.RequiredBits = requiredBits
	off += uint32((requiredBits + 7) / 8)

	off = alignTo(off, 4)
	oneofSlots := make([]uint32, numOneofs)
	for i := range oneofSlots {
		oneofSlots[i] = off
		off += 4
	}

	var pBit, rBit uint32
	for i := range fields {
		fb := &fields[i]
		f := &fb.Field
		if f.Type == TypeError || f.Type == TypeGroup {
			return fmt.Errorf("message %s: field %s has unusable type", d.Name, f.Name)
		}

		if f.Label == LabelRepeated {
			off = alignTo(off, 4)
			f.QuantifierOffset = off // element count mirror
			off += 4
			f.Offset = off // list reference slot
			off += 4
			continue
		}

		switch {
		case fb.Oneof >= 0:
			if fb.Oneof >= numOneofs {
				return fmt.Errorf("message %s: field %s references missing oneof group", d.Name, f.Name)
			}
			f.Flags |= FlagOneof
			f.QuantifierOffset = oneofSlots[fb.Oneof]
		case f.Label == LabelRequired:
			f.QuantifierOffset = rBit
			rBit++
		default:
			f.QuantifierOffset = pBit
			pBit++
		}

		w := uint32(ScalarWidth(f.Type))
		if w == 0 {
			w = 4 // reference slot
		}
		off = alignTo(off, w)
		f.Offset = off
		off += w
	}

	d.Magic = DescriptorMagic
	d.Size = alignTo(off, 8)

	d.Fields = make([]FieldDescriptor, len(fields))
	d.FieldIDs = make([]int32, len(fields))
	for i := range fields {
		d.Fields[i] = fields[i].Field
		d.FieldIDs[i] = fields[i].Field.ID
	}

	for i := range d.Fields {
		if d.Size > 0 && d.Fields[i].Offset >= d.Size {
			return fmt.Errorf("message %s: field %s offset escapes the region", d.Name, d.Fields[i].Name)
		}
	}
	return nil
}
