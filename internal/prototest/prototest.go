// Package prototest loads the YAML conformance corpus and provides
// wire-level helpers for comparing encodings. Specimens are written
// either as hex strings or in protoscope notation; expectations are
// plain YAML values diffed against decoded output.
package prototest

import (
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/protocolbuffers/protoscope"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"gopkg.in/yaml.v3"
)

// Case is one conformance case: a message type, one or more wire
// specimens of it, and the decoded value they must produce.
type Case struct {
	Name string `yaml:"-"`

	Type string `yaml:"type"`

	// Two ways to write a specimen: hex, or protoscope notation.
	Hex        []string `yaml:"hex"`
	Protoscope []string `yaml:"protoscope"`

	// Want is the expected Parse output. Nil with WantErr set means the
	// specimen must fail to decode.
	Want    map[string]interface{} `yaml:"want"`
	WantErr bool                   `yaml:"want_err"`

	// NoRoundTrip skips the re-encode comparison, for specimens that are
	// legal but not in canonical record order.
	NoRoundTrip bool `yaml:"no_round_trip"`
}

// Load reads a YAML corpus file: a map of case name to Case.
func Load(t *testing.T, path string) []Case {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err, "read corpus")

	byName := make(map[string]*Case)
	require.NoError(t, yaml.Unmarshal(raw, &byName), "parse corpus")

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	cases := make([]Case, 0, len(byName))
	for _, name := range names {
		c := byName[name]
		c.Name = name
		cases = append(cases, *c)
	}
	return cases
}

// Specimens materializes every encoding of the case.
func (c *Case) Specimens(t *testing.T) [][]byte {
	t.Helper()
	var out [][]byte
	for _, h := range c.Hex {
		b, err := hex.DecodeString(strings.Join(strings.Fields(h), ""))
		require.NoError(t, err, "case %s: bad hex", c.Name)
		out = append(out, b)
	}
	for _, src := range c.Protoscope {
		b, err := protoscope.NewScanner(src).Exec()
		require.NoError(t, err, "case %s: bad protoscope", c.Name)
		out = append(out, b)
	}
	require.NotEmpty(t, out, "case %s has no specimens", c.Name)
	return out
}

// Diff compares a decoded value against the case expectation, ignoring
// integer width differences between YAML and decoded output.
func Diff(want, got interface{}) string {
	return pretty.Compare(got, want)
}

// Record is one wire record split out by protowire.
type Record struct {
	Num  protowire.Number
	Type protowire.Type
	Raw  []byte // full record bytes, key included
}

// SplitRecords cuts a message into records using protowire as an
// independent reference implementation of the framing.
func SplitRecords(t *testing.T, data []byte) []Record {
	t.Helper()
	var records []Record
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		require.NoError(t, protowire.ParseError(n), "reference tag parse")
		m := protowire.ConsumeFieldValue(num, typ, data[n:])
		require.NoError(t, protowire.ParseError(m), "reference value parse")
		records = append(records, Record{
			Num:  num,
			Type: typ,
			Raw:  data[:n+m],
		})
		data = data[n+m:]
	}
	return records
}

// RequireSameRecords asserts that two encodings carry identical record
// sequences under the reference framing.
func RequireSameRecords(t *testing.T, want, got []byte) {
	t.Helper()
	w := SplitRecords(t, want)
	g := SplitRecords(t, got)
	require.Equal(t, len(w), len(g), "record count")
	for i := range w {
		require.Equalf(t, w[i], g[i], "record %d (field %d)", i, w[i].Num)
	}
}

// Describe renders a record list for debugging.
func Describe(records []Record) string {
	var b strings.Builder
	for _, r := range records {
		fmt.Fprintf(&b, "field %d wire %d: %x\n", r.Num, r.Type, r.Raw)
	}
	return b.String()
}
