package registry

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	protoparser "github.com/yoheimuta/go-protoparser/v4"
	protoparserparser "github.com/yoheimuta/go-protoparser/v4/parser"

	"github.com/protodyn/protodyn/schema"
)

// Registry compiles .proto sources into message descriptors: it parses
// files with go-protoparser, resolves type references across files and
// packages, and assigns each message its storage layout. Descriptors are
// built once at load time and are read-only afterwards.
type Registry struct {
	protoDirs []string // search roots for import resolution

	messages map[string]*schema.MessageDescriptor // fully qualified name -> descriptor
	enums    map[string]*schema.EnumDescriptor

	raw     map[string]*rawMessage // parsed definitions, kept for duplicate detection
	loaded  map[string]struct{}    // files already parsed
	pending []*rawMessage          // declaration order, for deterministic builds
}

// rawMessage is a parsed-but-unresolved message definition.
type rawMessage struct {
	fullName string
	pkg      string
	syntax   string // "proto2" or "proto3"
	fields   []*rawField
	oneofs   []string // group names, indexed by rawField.oneofIndex
}

// rawField is one field as written in the source.
type rawField struct {
	name       string
	id         int32
	label      schema.Label
	typeName   string // source type token, primitive or reference
	oneofIndex int    // -1 when not in a oneof
	packed     *bool  // explicit [packed=...] option
	defaultVal string // explicit [default=...] option, "" if none
	mapKey     string // set for map fields
}

// NewRegistry creates a registry. protoDirs are the roots imports are
// resolved against; the directory of each loaded file is always searched
// first.
func NewRegistry(protoDirs ...string) *Registry {
	return &Registry{
		protoDirs: protoDirs,
		messages:  make(map[string]*schema.MessageDescriptor),
		enums:     make(map[string]*schema.EnumDescriptor),
		raw:       make(map[string]*rawMessage),
		loaded:    make(map[string]struct{}),
	}
}

// LoadSchema loads a .proto file, or recursively every .proto file under
// a directory, and compiles descriptors for everything reachable through
// imports.
func (r *Registry) LoadSchema(protoPath string) error {
	info, err := os.Stat(protoPath)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		if !strings.HasSuffix(protoPath, ".proto") {
			return fmt.Errorf("file %s is not a .proto file", protoPath)
		}
		if err := r.loadFile(protoPath); err != nil {
			return err
		}
	} else {
		err = filepath.WalkDir(protoPath, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".proto") {
				return nil
			}
			return r.loadFile(path)
		})
		if err != nil {
			return fmt.Errorf("failed to walk directory: %w", err)
		}
	}
	return r.build()
}

// loadFile parses one file and queues its definitions, following imports
// depth-first.
func (r *Registry) loadFile(path string) error {
	if _, ok := r.loaded[path]; ok {
		return nil
	}
	r.loaded[path] = struct{}{}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	proto, err := protoparser.Parse(bytes.NewBuffer(content))
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	pkg := ""
	syntax := "proto2"
	if proto.Syntax != nil {
		syntax = strings.Trim(proto.Syntax.ProtobufVersion, `"`)
	}
	var imports []string
	for _, body := range proto.ProtoBody {
		switch b := body.(type) {
		case *protoparserparser.Package:
			pkg = b.Name
		case *protoparserparser.Import:
			loc := strings.Trim(b.Location, `"`)
			// Well-known types are not compiled; references to them fail
			// resolution with a clear error instead.
			if strings.HasPrefix(loc, "google/protobuf/") {
				continue
			}
			imports = append(imports, loc)
		}
	}

	for _, imp := range imports {
		full, err := r.resolveImportPath(imp, filepath.Dir(path))
		if err != nil {
			return err
		}
		if err := r.loadFile(full); err != nil {
			return err
		}
	}

	for _, body := range proto.ProtoBody {
		switch b := body.(type) {
		case *protoparserparser.Message:
			if err := r.collectMessage(pkg, syntax, "", b); err != nil {
				return err
			}
		case *protoparserparser.Enum:
			if err := r.collectEnum(pkg, "", b); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Registry) resolveImportPath(imp, fileDir string) (string, error) {
	dirs := append([]string{fileDir}, r.protoDirs...)
	for _, dir := range dirs {
		full := filepath.Join(dir, imp)
		if _, err := os.Stat(full); err == nil {
			return full, nil
		}
	}
	return "", fmt.Errorf("unable to resolve import %q", imp)
}

// collectMessage records a message and, recursively, its nested types.
// prefix is the dotted chain of enclosing message names.
func (r *Registry) collectMessage(pkg, syntax, prefix string, msg *protoparserparser.Message) error {
	full := qualify(pkg, prefix, msg.MessageName)
	if _, ok := r.raw[full]; ok {
		return fmt.Errorf("duplicate message definition %s", full)
	}
	rm := &rawMessage{fullName: full, pkg: pkg, syntax: syntax}

	nestedPrefix := msg.MessageName
	if prefix != "" {
		nestedPrefix = prefix + "." + msg.MessageName
	}

	for _, body := range msg.MessageBody {
		switch b := body.(type) {
		case *protoparserparser.Field:
			f, err := newRawField(b.FieldName, b.Type, b.FieldNumber, b.FieldOptions)
			if err != nil {
				return fmt.Errorf("message %s: %w", full, err)
			}
			switch {
			case b.IsRepeated:
				f.label = schema.LabelRepeated
			case b.IsRequired:
				f.label = schema.LabelRequired
			default:
				// proto2 optional and proto3 implicit both track presence.
				f.label = schema.LabelOptional
			}
			rm.fields = append(rm.fields, f)
		case *protoparserparser.Oneof:
			idx := len(rm.oneofs)
			rm.oneofs = append(rm.oneofs, b.OneofName)
			for _, of := range b.OneofFields {
				f, err := newRawField(of.FieldName, of.Type, of.FieldNumber, of.FieldOptions)
				if err != nil {
					return fmt.Errorf("message %s: %w", full, err)
				}
				f.label = schema.LabelOptional
				f.oneofIndex = idx
				rm.fields = append(rm.fields, f)
			}
		case *protoparserparser.MapField:
			id, err := parseFieldNumber(b.FieldNumber)
			if err != nil {
				return fmt.Errorf("message %s: %w", full, err)
			}
			rm.fields = append(rm.fields, &rawField{
				name:       b.MapName,
				id:         id,
				label:      schema.LabelRepeated,
				typeName:   b.Type,
				oneofIndex: -1,
				mapKey:     b.KeyType,
			})
		case *protoparserparser.Message:
			if err := r.collectMessage(pkg, syntax, nestedPrefix, b); err != nil {
				return err
			}
		case *protoparserparser.Enum:
			if err := r.collectEnum(pkg, nestedPrefix, b); err != nil {
				return err
			}
		}
	}

	r.raw[full] = rm
	r.pending = append(r.pending, rm)
	return nil
}

func (r *Registry) collectEnum(pkg, prefix string, en *protoparserparser.Enum) error {
	full := qualify(pkg, prefix, en.EnumName)
	if _, ok := r.enums[full]; ok {
		return fmt.Errorf("duplicate enum definition %s", full)
	}
	ed := &schema.EnumDescriptor{Name: full}
	for _, body := range en.EnumBody {
		switch b := body.(type) {
		case *protoparserparser.EnumField:
			n, err := strconv.ParseInt(b.Number, 10, 32)
			if err != nil {
				return fmt.Errorf("enum %s: bad number for %s: %w", full, b.Ident, err)
			}
			ed.Values = append(ed.Values, schema.EnumValue{Name: b.Ident, Number: int32(n)})
		case *protoparserparser.Option:
			if b.OptionName == "allow_alias" && strings.TrimSpace(b.Constant) == "true" {
				ed.AllowAlias = true
			}
		}
	}
	if !ed.AllowAlias {
		seen := make(map[int32]string)
		for _, v := range ed.Values {
			if prev, ok := seen[v.Number]; ok {
				return fmt.Errorf("enum %s: %s reuses number %d of %s without allow_alias",
					full, v.Name, v.Number, prev)
			}
			seen[v.Number] = v.Name
		}
	}
	r.enums[full] = ed
	return nil
}

func newRawField(name, typ, number string, opts []*protoparserparser.FieldOption) (*rawField, error) {
	id, err := parseFieldNumber(number)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", name, err)
	}
	f := &rawField{name: name, id: id, typeName: typ, oneofIndex: -1}
	for _, o := range opts {
		switch o.OptionName {
		case "packed":
			v := strings.TrimSpace(o.Constant) == "true"
			f.packed = &v
		case "default":
			f.defaultVal = o.Constant
		}
	}
	return f, nil
}

func parseFieldNumber(s string) (int32, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid field number %q", s)
	}
	return int32(n), nil
}

func qualify(pkg, prefix, name string) string {
	parts := make([]string, 0, 3)
	if pkg != "" {
		parts = append(parts, pkg)
	}
	if prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, name)
	return strings.Join(parts, ".")
}

// ===== LOOKUPS =====

// GetMessage returns the descriptor for a fully qualified message name.
// Unqualified names match when unambiguous.
func (r *Registry) GetMessage(name string) (*schema.MessageDescriptor, error) {
	if d, ok := r.messages[name]; ok {
		return d, nil
	}
	var found *schema.MessageDescriptor
	for full, d := range r.messages {
		if strings.HasSuffix(full, "."+name) {
			if found != nil {
				return nil, fmt.Errorf("ambiguous message name %s", name)
			}
			found = d
		}
	}
	if found == nil {
		return nil, fmt.Errorf("message not found: %s", name)
	}
	return found, nil
}

// GetEnum returns the descriptor for a fully qualified enum name.
func (r *Registry) GetEnum(name string) (*schema.EnumDescriptor, error) {
	if e, ok := r.enums[name]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("enum not found: %s", name)
}

// ListMessages returns all message names, sorted.
func (r *Registry) ListMessages() []string {
	names := make([]string, 0, len(r.messages))
	for name := range r.messages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListEnums returns all enum names, sorted.
func (r *Registry) ListEnums() []string {
	names := make([]string, 0, len(r.enums))
	for name := range r.enums {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
