package registry

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/protodyn/protodyn/schema"
)

func writeProto(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadSchema_Proto3(t *testing.T) {
	dir := t.TempDir()
	writeProto(t, dir, "shop.proto", `
syntax = "proto3";
package shop;

enum Status {
  STATUS_UNKNOWN = 0;
  STATUS_OPEN = 1;
  STATUS_CLOSED = 2;
}

message Order {
  int64 id = 1;
  string customer = 2;
  Status status = 3;
  repeated int32 quantities = 4;
  repeated string notes = 5;
  Item first_item = 6;
  repeated Item items = 7;
  map<string, int64> totals = 8;

  oneof payment {
    string card_token = 10;
    uint64 account_id = 11;
  }
}

message Item {
  string sku = 1;
  uint32 count = 2;
}
`)

	r := NewRegistry()
	if err := r.LoadSchema(dir); err != nil {
		t.Fatalf("LoadSchema failed: %v", err)
	}

	order, err := r.GetMessage("shop.Order")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if order.Magic != schema.DescriptorMagic {
		t.Error("magic not stamped")
	}

	t.Run("field_ids_sorted", func(t *testing.T) {
		want := []int32{1, 2, 3, 4, 5, 6, 7, 8, 10, 11}
		if !reflect.DeepEqual(order.FieldIDs, want) {
			t.Errorf("FieldIDs = %v, want %v", order.FieldIDs, want)
		}
	})

	t.Run("enum_field", func(t *testing.T) {
		f := order.FieldByName("status")
		if f == nil || f.Type != schema.TypeEnum || f.Enum == nil {
			t.Fatal("status field not an enum with descriptor")
		}
		if v, ok := f.Enum.Canonical(2); !ok || v.Name != "STATUS_CLOSED" {
			t.Errorf("Canonical(2) = %v", v)
		}
	})

	t.Run("proto3_packs_by_default", func(t *testing.T) {
		if f := order.FieldByName("quantities"); !f.IsPacked() {
			t.Error("repeated int32 not packed under proto3")
		}
		if f := order.FieldByName("notes"); f.IsPacked() {
			t.Error("repeated string marked packed")
		}
	})

	t.Run("message_refs", func(t *testing.T) {
		item, err := r.GetMessage("shop.Item")
		if err != nil {
			t.Fatal(err)
		}
		if f := order.FieldByName("first_item"); f.Type != schema.TypeMessage || f.Message != item {
			t.Error("first_item does not point at shop.Item")
		}
		if f := order.FieldByName("items"); f.Label != schema.LabelRepeated || f.Message != item {
			t.Error("items not a repeated shop.Item")
		}
	})

	t.Run("map_lowered_to_entry", func(t *testing.T) {
		f := order.FieldByName("totals")
		if f.Label != schema.LabelRepeated || f.Type != schema.TypeMessage {
			t.Fatal("map field not lowered to repeated message")
		}
		entry := f.Message
		if entry == nil {
			t.Fatal("no entry descriptor")
		}
		if entry.Name != "shop.Order.TotalsEntry" {
			t.Errorf("entry name = %s", entry.Name)
		}
		key := entry.FieldByName("key")
		value := entry.FieldByName("value")
		if key == nil || key.ID != 1 || key.Type != schema.TypeString {
			t.Error("entry key wrong")
		}
		if value == nil || value.ID != 2 || value.Type != schema.TypeInt64 {
			t.Error("entry value wrong")
		}
	})

	t.Run("oneof_members", func(t *testing.T) {
		card := order.FieldByName("card_token")
		acct := order.FieldByName("account_id")
		if !card.IsOneof() || !acct.IsOneof() {
			t.Fatal("oneof members missing flag")
		}
		if card.QuantifierOffset != acct.QuantifierOffset {
			t.Error("oneof members in different groups")
		}
	})

	t.Run("layout_sane", func(t *testing.T) {
		for i := range order.Fields {
			f := &order.Fields[i]
			if f.Offset >= order.Size {
				t.Errorf("field %s offset %d outside region %d", f.Name, f.Offset, order.Size)
			}
			w := uint32(schema.ScalarWidth(f.Type))
			if w == 0 {
				w = 4
			}
			if f.Offset%w != 0 {
				t.Errorf("field %s misaligned at %d", f.Name, f.Offset)
			}
		}
	})
}

func TestLoadSchema_Proto2(t *testing.T) {
	dir := t.TempDir()
	writeProto(t, dir, "legacy.proto", `
syntax = "proto2";
package legacy;

message Record {
  required int64 id = 1;
  optional int32 retries = 2 [default = 3];
  optional double ratio = 3 [default = 0.5];
  optional bool enabled = 4 [default = true];
  optional Level level = 5 [default = LEVEL_HIGH];
  repeated fixed32 samples = 6 [packed = true];
  repeated int32 unpacked = 7;
}

enum Level {
  LEVEL_LOW = 1;
  LEVEL_HIGH = 2;
}
`)

	r := NewRegistry()
	if err := r.LoadSchema(filepath.Join(dir, "legacy.proto")); err != nil {
		t.Fatalf("LoadSchema failed: %v", err)
	}
	rec, err := r.GetMessage("legacy.Record")
	if err != nil {
		t.Fatal(err)
	}

	if f := rec.FieldByName("id"); f.Label != schema.LabelRequired {
		t.Error("required label lost")
	}
	if rec.RequiredBits != 1 {
		t.Errorf("RequiredBits = %d, want 1", rec.RequiredBits)
	}

	if f := rec.FieldByName("retries"); f.Default == nil || f.Default.U64 != 3 {
		t.Error("int32 default wrong")
	}
	if f := rec.FieldByName("ratio"); f.Default == nil || f.Default.U64 != math.Float64bits(0.5) {
		t.Error("double default wrong")
	}
	if f := rec.FieldByName("enabled"); f.Default == nil || f.Default.U64 != 1 {
		t.Error("bool default wrong")
	}
	if f := rec.FieldByName("level"); f.Default == nil || f.Default.U64 != 2 {
		t.Error("enum default wrong")
	}

	if f := rec.FieldByName("samples"); !f.IsPacked() {
		t.Error("[packed=true] ignored")
	}
	if f := rec.FieldByName("unpacked"); f.IsPacked() {
		t.Error("proto2 repeated packed without option")
	}
}

func TestLoadSchema_Imports(t *testing.T) {
	dir := t.TempDir()
	writeProto(t, dir, "base.proto", `
syntax = "proto3";
package base;

message Ref {
  string id = 1;
}
`)
	writeProto(t, dir, "top.proto", `
syntax = "proto3";
package top;

import "base.proto";

message Holder {
  base.Ref ref = 1;
}
`)

	r := NewRegistry(dir)
	if err := r.LoadSchema(filepath.Join(dir, "top.proto")); err != nil {
		t.Fatalf("LoadSchema failed: %v", err)
	}
	holder, err := r.GetMessage("top.Holder")
	if err != nil {
		t.Fatal(err)
	}
	ref, err := r.GetMessage("base.Ref")
	if err != nil {
		t.Fatal(err)
	}
	if holder.FieldByName("ref").Message != ref {
		t.Error("cross-file reference not resolved")
	}
}

func TestLoadSchema_NestedScopes(t *testing.T) {
	dir := t.TempDir()
	writeProto(t, dir, "nest.proto", `
syntax = "proto3";
package nest;

message Outer {
  message Inner {
    int32 n = 1;
  }
  Inner inner = 1;
  Outer.Inner qualified = 2;
}
`)

	r := NewRegistry()
	if err := r.LoadSchema(filepath.Join(dir, "nest.proto")); err != nil {
		t.Fatalf("LoadSchema failed: %v", err)
	}
	outer, err := r.GetMessage("nest.Outer")
	if err != nil {
		t.Fatal(err)
	}
	inner, err := r.GetMessage("nest.Outer.Inner")
	if err != nil {
		t.Fatal(err)
	}
	if outer.FieldByName("inner").Message != inner {
		t.Error("relative nested reference not resolved")
	}
	if outer.FieldByName("qualified").Message != inner {
		t.Error("qualified nested reference not resolved")
	}
}

func TestLoadSchema_EnumAlias(t *testing.T) {
	dir := t.TempDir()
	writeProto(t, dir, "alias.proto", `
syntax = "proto3";
package alias;

enum Mode {
  option allow_alias = true;
  MODE_UNKNOWN = 0;
  MODE_FAST = 1;
  MODE_QUICK = 1;
}
`)
	r := NewRegistry()
	if err := r.LoadSchema(filepath.Join(dir, "alias.proto")); err != nil {
		t.Fatalf("LoadSchema failed: %v", err)
	}
	mode, err := r.GetEnum("alias.Mode")
	if err != nil {
		t.Fatal(err)
	}
	if !mode.AllowAlias {
		t.Error("allow_alias not recorded")
	}
	if v, _ := mode.Canonical(1); v.Name != "MODE_FAST" {
		t.Errorf("Canonical(1) = %s, want first-declared MODE_FAST", v.Name)
	}

	writeProto(t, dir, "bad.proto", `
syntax = "proto3";
package bad;

enum Broken {
  BROKEN_A = 0;
  BROKEN_B = 0;
}
`)
	r2 := NewRegistry()
	if err := r2.LoadSchema(filepath.Join(dir, "bad.proto")); err == nil {
		t.Error("aliased numbers accepted without allow_alias")
	}
}

func TestGetMessage_SuffixMatch(t *testing.T) {
	dir := t.TempDir()
	writeProto(t, dir, "one.proto", `
syntax = "proto3";
package one;

message Thing {
  int32 n = 1;
}
`)
	r := NewRegistry()
	if err := r.LoadSchema(filepath.Join(dir, "one.proto")); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetMessage("Thing"); err != nil {
		t.Errorf("unqualified lookup failed: %v", err)
	}
	if _, err := r.GetMessage("Missing"); err == nil {
		t.Error("lookup of unknown message succeeded")
	}
}

func TestListMessagesAndEnums(t *testing.T) {
	dir := t.TempDir()
	writeProto(t, dir, "list.proto", `
syntax = "proto3";
package list;

enum Kind {
  KIND_UNKNOWN = 0;
}

message A {
  int32 n = 1;
}

message B {
  string s = 1;
}
`)
	r := NewRegistry()
	if err := r.LoadSchema(filepath.Join(dir, "list.proto")); err != nil {
		t.Fatal(err)
	}
	msgs := r.ListMessages()
	if !reflect.DeepEqual(msgs, []string{"list.A", "list.B"}) {
		t.Errorf("ListMessages = %v", msgs)
	}
	if enums := r.ListEnums(); !reflect.DeepEqual(enums, []string{"list.Kind"}) {
		t.Errorf("ListEnums = %v", enums)
	}
}
