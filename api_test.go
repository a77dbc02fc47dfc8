package protodyn

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const shopProto = `
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
  Item first_item = 5;
  repeated Item items = 6;
}

message Item {
  string sku = 1;
  uint32 count = 2;
}
`

func loadShop(t *testing.T) *Protodyn {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "shop.proto")
	if err := os.WriteFile(path, []byte(shopProto), 0o644); err != nil {
		t.Fatal(err)
	}
	p := New()
	if err := p.LoadSchema(path); err != nil {
		t.Fatalf("LoadSchema failed: %v", err)
	}
	return p
}

func TestProtodyn_MarshalParseRoundTrip(t *testing.T) {
	p := loadShop(t)

	input := map[string]interface{}{
		"id":         int64(42),
		"customer":   "ada",
		"status":     "STATUS_OPEN",
		"quantities": []int32{1, 2, 3},
		"first_item": map[string]interface{}{"sku": "X-1", "count": uint32(2)},
		"items": []map[string]interface{}{
			{"sku": "A", "count": uint32(1)},
			{"sku": "B", "count": uint32(5)},
		},
	}
	data, err := p.Marshal(input, "shop.Order")
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	got, err := p.Parse(data, "shop.Order")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	want := map[string]interface{}{
		"id":         int64(42),
		"customer":   "ada",
		"status":     "STATUS_OPEN",
		"quantities": []interface{}{int32(1), int32(2), int32(3)},
		"first_item": map[string]interface{}{"sku": "X-1", "count": uint32(2)},
		"items": []interface{}{
			map[string]interface{}{"sku": "A", "count": uint32(1)},
			map[string]interface{}{"sku": "B", "count": uint32(5)},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse = %v\nwant %v", got, want)
	}
}

func TestProtodyn_EmptyData(t *testing.T) {
	p := loadShop(t)
	result, err := p.Parse([]byte{}, "shop.Order")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected empty result, got %v", result)
	}
}

func TestProtodyn_UnknownType(t *testing.T) {
	p := loadShop(t)
	if _, err := p.Parse(nil, "shop.Missing"); err == nil {
		t.Error("Parse of unknown type succeeded")
	}
	if _, err := p.Marshal(nil, "shop.Missing"); err == nil {
		t.Error("Marshal of unknown type succeeded")
	}
}

func TestProtodyn_Decode(t *testing.T) {
	p := loadShop(t)
	data, err := p.Marshal(map[string]interface{}{
		"id":       int64(7),
		"customer": "grace",
	}, "shop.Order")
	if err != nil {
		t.Fatal(err)
	}

	msg, err := p.Decode(data, "shop.Order")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	desc := msg.Descriptor()
	if got := msg.Int64(desc.FieldByName("id")); got != 7 {
		t.Errorf("id = %d, want 7", got)
	}
	if got := msg.Str(desc.FieldByName("customer")); got != "grace" {
		t.Errorf("customer = %q, want grace", got)
	}
	if msg.Has(desc.FieldByName("status")) {
		t.Error("absent field reports presence")
	}
}

type Order struct {
	ID       int64  `proto:"id"`
	Customer string `proto:"customer"`
}

func TestProtodyn_Unmarshal(t *testing.T) {
	p := loadShop(t)
	data, err := p.Marshal(map[string]interface{}{
		"id":       int64(9),
		"customer": "lin",
	}, "shop.Order")
	if err != nil {
		t.Fatal(err)
	}

	var o Order
	if err := p.Unmarshal(data, &o); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if o.ID != 9 || o.Customer != "lin" {
		t.Errorf("Order = %+v", o)
	}

	if err := p.Unmarshal(data, Order{}); err == nil {
		t.Error("Unmarshal accepted a non-pointer")
	}
}

func TestProtodyn_Listings(t *testing.T) {
	p := loadShop(t)
	msgs := p.ListMessages()
	if !reflect.DeepEqual(msgs, []string{"shop.Item", "shop.Order"}) {
		t.Errorf("ListMessages = %v", msgs)
	}
	if enums := p.ListEnums(); !reflect.DeepEqual(enums, []string{"shop.Status"}) {
		t.Errorf("ListEnums = %v", enums)
	}
}
