package wire

// Config controls optional decode behaviors. Defaults preserve proto3
// semantics: unknown enum numbers are kept, absent fields stay absent
// from map views.
type Config struct {
	// StrictEnumNumberDecode: when true, decoding an enum number that is
	// not declared by the enum descriptor fails the parse. When false
	// (default), the wire value is preserved and surfaced numerically.
	StrictEnumNumberDecode bool

	// PopulateDefaultsOnDecode: when true, ToMap includes non-repeated
	// scalar and enum fields outside oneof groups that were absent from
	// the wire, rendered at their default (or zero) value. When false
	// (default), absent fields stay missing from the map.
	PopulateDefaultsOnDecode bool
}

var config Config

// SetConfig sets the global wire configuration.
func SetConfig(c Config) { config = c }
