package wire

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/protodyn/protodyn/arena"
	"github.com/protodyn/protodyn/schema"
)

func roundTrip(t *testing.T, desc *schema.MessageDescriptor, input []byte) {
	t.Helper()
	msg := decode(t, desc, input)
	out, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Errorf("re-encoding differs:\n got %x\nwant %x", out, input)
	}
}

func TestMarshal_RoundTripScalars(t *testing.T) {
	desc := buildDesc(t, "M", 0,
		opt(1, "i32", schema.TypeInt32),
		opt(2, "s64", schema.TypeSint64),
		opt(3, "u32", schema.TypeUint32),
		opt(4, "flag", schema.TypeBool),
		opt(5, "f32", schema.TypeFixed32),
		opt(6, "d", schema.TypeDouble),
		opt(7, "name", schema.TypeString),
		opt(8, "raw", schema.TypeBytes),
	)

	e := NewEncoder()
	e.EncodeVarint(uint64(MakeTag(1, WireVarint)))
	e.EncodeVarint(150)
	e.EncodeVarint(uint64(MakeTag(2, WireVarint)))
	e.EncodeVarint(EncodeZigZag64(-42))
	e.EncodeVarint(uint64(MakeTag(3, WireVarint)))
	e.EncodeVarint(7)
	e.EncodeVarint(uint64(MakeTag(4, WireVarint)))
	e.EncodeVarint(1)
	e.EncodeVarint(uint64(MakeTag(5, WireFixed32)))
	e.EncodeFixed32(0xcafe)
	e.EncodeVarint(uint64(MakeTag(6, WireFixed64)))
	e.EncodeFixed64(math.Float64bits(3.25))
	e.EncodeVarint(uint64(MakeTag(7, WireBytes)))
	e.EncodeString("testing")
	e.EncodeVarint(uint64(MakeTag(8, WireBytes)))
	e.EncodeBytes([]byte{0xde, 0xad})

	roundTrip(t, desc, e.Bytes())
}

func TestMarshal_RoundTripAbsentFields(t *testing.T) {
	desc := buildDesc(t, "M", 0,
		opt(1, "a", schema.TypeInt32),
		opt(2, "b", schema.TypeInt32),
	)
	// Only field 2 on the wire; field 1 must stay absent on re-encode
	// even though its storage reads as zero.
	roundTrip(t, desc, []byte{0x10, 0x07})
}

func TestMarshal_RoundTripPacked(t *testing.T) {
	f := rep(4, "values", schema.TypeInt32)
	f.Field.Flags = schema.FlagPacked
	desc := buildDesc(t, "M", 0, f)
	roundTrip(t, desc, []byte{0x22, 0x06, 0x03, 0x8e, 0x02, 0x9e, 0xa7, 0x05})
}

func TestMarshal_RoundTripUnpackedRepeated(t *testing.T) {
	desc := buildDesc(t, "M", 0, rep(2, "names", schema.TypeString))
	e := NewEncoder()
	e.EncodeVarint(uint64(MakeTag(2, WireBytes)))
	e.EncodeString("a")
	e.EncodeVarint(uint64(MakeTag(2, WireBytes)))
	e.EncodeString("bc")
	roundTrip(t, desc, e.Bytes())
}

func TestMarshal_RoundTripNested(t *testing.T) {
	inner := buildDesc(t, "Inner", 0, opt(1, "n", schema.TypeInt32))
	f := fl(3, "sub", schema.LabelOptional, schema.TypeMessage)
	f.Field.Message = inner
	desc := buildDesc(t, "Outer", 0, f)
	roundTrip(t, desc, []byte{0x1a, 0x03, 0x08, 0x96, 0x01})
}

func TestMarshal_RoundTripUnknown(t *testing.T) {
	desc := buildDesc(t, "M", 0, opt(1, "value", schema.TypeInt32))
	// Unknown varint field 2 and unknown LEN field 3, after the known
	// field so byte order survives the re-encode.
	roundTrip(t, desc, []byte{
		0x08, 0x2a,
		0x10, 0x07,
		0x1a, 0x02, 0x68, 0x69,
	})
}

func TestMarshal_RequiredMissing(t *testing.T) {
	desc := buildDesc(t, "M", 0, fl(1, "id", schema.LabelRequired, schema.TypeInt32))
	m, err := viewMessage(desc, make([]byte, desc.Size), arena.New())
	if err != nil {
		t.Fatalf("viewMessage: %v", err)
	}
	if _, err := Marshal(m); !errors.Is(err, ErrFieldMissing) {
		t.Errorf("err = %v, want ErrFieldMissing", err)
	}
}

func TestMarshal_Oneof(t *testing.T) {
	a := fl(1, "num", schema.LabelOptional, schema.TypeInt32)
	a.Oneof = 0
	b := fl(2, "text", schema.LabelOptional, schema.TypeString)
	b.Oneof = 0
	desc := buildDesc(t, "M", 1, a, b)

	// Only the live member is emitted.
	roundTrip(t, desc, []byte{0x12, 0x02, 0x68, 0x69})
}

func TestEncodeMap(t *testing.T) {
	inner := buildDesc(t, "Inner", 0, opt(1, "n", schema.TypeInt32))
	sf := fl(4, "sub", schema.LabelOptional, schema.TypeMessage)
	sf.Field.Message = inner
	pf := rep(3, "values", schema.TypeInt32)
	pf.Field.Flags = schema.FlagPacked
	desc := buildDesc(t, "M", 0,
		opt(1, "id", schema.TypeInt32),
		opt(2, "name", schema.TypeString),
		pf,
		sf,
	)

	out, err := EncodeMap(map[string]interface{}{
		"id":     int32(150),
		"name":   "testing",
		"values": []int32{3, 270, 86942},
		"sub":    map[string]interface{}{"n": int32(1)},
	}, desc)
	if err != nil {
		t.Fatalf("EncodeMap failed: %v", err)
	}

	// Feed the encoding back through the decoder.
	msg := decode(t, desc, out)
	got := ToMap(msg)
	want := map[string]interface{}{
		"id":     int32(150),
		"name":   "testing",
		"values": []interface{}{int32(3), int32(270), int32(86942)},
		"sub":    map[string]interface{}{"n": int32(1)},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("decoded = %v, want %v", got, want)
	}
}

func TestEncodeMap_RequiredMissing(t *testing.T) {
	desc := buildDesc(t, "M", 0, fl(1, "id", schema.LabelRequired, schema.TypeInt32))
	if _, err := EncodeMap(map[string]interface{}{}, desc); !errors.Is(err, ErrFieldMissing) {
		t.Errorf("err = %v, want ErrFieldMissing", err)
	}
}

func TestConfig_StrictEnum(t *testing.T) {
	defer SetConfig(Config{})
	enum := &schema.EnumDescriptor{
		Name:   "Status",
		Values: []schema.EnumValue{{Name: "OK", Number: 0}},
	}
	f := opt(1, "status", schema.TypeEnum)
	f.Field.Enum = enum
	desc := buildDesc(t, "M", 0, f)

	// Unknown number 9 passes by default.
	msg := decode(t, desc, []byte{0x08, 0x09})
	if got := msg.Int32(desc.FieldByName("status")); got != 9 {
		t.Errorf("status = %d, want preserved 9", got)
	}

	SetConfig(Config{StrictEnumNumberDecode: true})
	err := decodeErr(t, desc, []byte{0x08, 0x09})
	if !errors.Is(err, ErrInvalidData) {
		t.Errorf("err = %v, want ErrInvalidData", err)
	}
}
