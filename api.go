// Package protodyn decodes and encodes protobuf wire data against
// descriptors compiled at runtime from .proto sources, with no generated
// code. The wire package holds the descriptor-driven decoder core; this
// package is the convenience facade over a schema registry.
package protodyn

import (
	"fmt"
	"reflect"

	"github.com/protodyn/protodyn/arena"
	"github.com/protodyn/protodyn/registry"
	"github.com/protodyn/protodyn/wire"
)

// Protodyn provides schema-aware protobuf operations without generated code.
type Protodyn struct {
	registry *registry.Registry
}

// New creates a new Protodyn instance. protoDirs are the roots .proto
// imports are resolved against.
func New(protoDirs ...string) *Protodyn {
	return &Protodyn{
		registry: registry.NewRegistry(protoDirs...),
	}
}

// LoadSchema loads a .proto file, or every .proto file under a directory,
// compiling descriptors for all messages reachable through imports.
func (p *Protodyn) LoadSchema(protoPath string) error {
	return p.registry.LoadSchema(protoPath)
}

// Decode materializes a message instance from protobuf bytes. The result
// gives typed, descriptor-directed access to every field.
func (p *Protodyn) Decode(data []byte, messageType string) (*wire.Message, error) {
	desc, err := p.registry.GetMessage(messageType)
	if err != nil {
		return nil, fmt.Errorf("message type not found: %s", messageType)
	}
	ctx := wire.NewContext(data, arena.New())
	return ctx.Deserialize(desc)
}

// Parse decodes protobuf bytes into a map keyed by field name.
func (p *Protodyn) Parse(data []byte, messageType string) (map[string]interface{}, error) {
	msg, err := p.Decode(data, messageType)
	if err != nil {
		return nil, err
	}
	return wire.ToMap(msg), nil
}

// Marshal encodes a map to protobuf bytes using schema information.
func (p *Protodyn) Marshal(data map[string]interface{}, messageType string) ([]byte, error) {
	desc, err := p.registry.GetMessage(messageType)
	if err != nil {
		return nil, fmt.Errorf("message type not found: %s", messageType)
	}
	return wire.EncodeMap(data, desc)
}

// Unmarshal decodes protobuf bytes into a Go struct using reflection. The
// message type is taken from the struct's type name.
func (p *Protodyn) Unmarshal(data []byte, v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("unmarshal target must be a pointer to struct")
	}

	messageType := rv.Elem().Type().Name()
	result, err := p.Parse(data, messageType)
	if err != nil {
		return err
	}
	return p.mapToStruct(result, rv.Elem())
}

// mapToStruct maps parsed result to struct fields. Struct field names
// match descriptor field names through the optional `proto` tag, falling
// back to the Go field name.
func (p *Protodyn) mapToStruct(data map[string]interface{}, rv reflect.Value) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fieldValue := rv.Field(i)
		if !fieldValue.CanSet() {
			continue
		}

		name := field.Tag.Get("proto")
		if name == "" {
			name = field.Name
		}
		if value, ok := data[name]; ok {
			if err := p.setFieldValue(fieldValue, value); err != nil {
				return fmt.Errorf("failed to set field %s: %v", field.Name, err)
			}
		}
	}
	return nil
}

// setFieldValue sets a struct field with type conversion.
func (p *Protodyn) setFieldValue(fieldValue reflect.Value, value interface{}) error {
	if value == nil {
		return nil
	}

	sourceValue := reflect.ValueOf(value)
	if sourceValue.Type().AssignableTo(fieldValue.Type()) {
		fieldValue.Set(sourceValue)
		return nil
	}
	if sourceValue.Type().ConvertibleTo(fieldValue.Type()) {
		fieldValue.Set(sourceValue.Convert(fieldValue.Type()))
		return nil
	}
	return fmt.Errorf("cannot convert %T to %s", value, fieldValue.Type())
}

// ===== REGISTRY ACCESS =====

// GetRegistry returns the underlying registry.
func (p *Protodyn) GetRegistry() *registry.Registry { return p.registry }

// ListMessages returns all known message names.
func (p *Protodyn) ListMessages() []string { return p.registry.ListMessages() }

// ListEnums returns all known enum names.
func (p *Protodyn) ListEnums() []string { return p.registry.ListEnums() }
