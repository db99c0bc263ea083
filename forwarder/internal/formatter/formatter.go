// Package formatter converts raw SNMP samples into delivery records.
//
// Format is pure: it performs no I/O and does not read the clock, so the
// same Sample always yields the same Record. Units come from optional
// operator overrides keyed by OID prefix, then from the agent's type tag,
// and fall back to "unknown".
package formatter

import (
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/snmpfwd/snmpfwd/pkg/types"
)

// UnitUnknown is used when neither an override nor the type tag yields a unit.
const UnitUnknown = "unknown"

// typeUnits maps agent syntax tags (as named by gosnmp's Asn1BER) to units.
var typeUnits = map[string]string{
	"Counter32":        "counter",
	"Counter64":        "counter",
	"Gauge32":          "gauge",
	"Uinteger32":       "gauge",
	"TimeTicks":        "timeticks",
	"Integer":          "integer",
	"OctetString":      "string",
	"ObjectIdentifier": "oid",
	"IPAddress":        "ip_address",
	"Opaque":           "opaque",
	"OpaqueFloat":      "opaque",
	"OpaqueDouble":     "opaque",
	"Boolean":          "boolean",
	"BitString":        "bits",
}

// UnitForType returns the unit label for an agent type tag.
func UnitForType(typeHint string) string {
	if u, ok := typeUnits[typeHint]; ok {
		return u
	}
	return UnitUnknown
}

// Formatter holds the read-only unit overrides.
type Formatter struct {
	// prefixes are override keys sorted longest first.
	prefixes []string
	units    map[string]string
}

// New returns a Formatter with the given OID-prefix → unit overrides.
// Invalid OID keys are ignored; use LoadUnitMap to get validation errors.
func New(overrides map[string]string) *Formatter {
	f := &Formatter{units: make(map[string]string, len(overrides))}
	for oid, unit := range overrides {
		oid = types.NormalizeOID(oid)
		if !types.ValidOID(oid) || unit == "" {
			continue
		}
		f.units[oid] = unit
		f.prefixes = append(f.prefixes, oid)
	}
	sort.Slice(f.prefixes, func(i, j int) bool {
		if len(f.prefixes[i]) != len(f.prefixes[j]) {
			return len(f.prefixes[i]) > len(f.prefixes[j])
		}
		return f.prefixes[i] < f.prefixes[j]
	})
	return f
}

// Format builds the delivery record for s as read from sourceIP:sourcePort.
// The timestamp is s.Timestamp, passed through unchanged.
func (f *Formatter) Format(s types.Sample, sourceIP string, sourcePort int) types.Record {
	oid := types.NormalizeOID(s.OID)
	return types.Record{
		Timestamp:  types.UnixSeconds(s.Timestamp),
		SourceIP:   sourceIP,
		SourcePort: sourcePort,
		OID:        oid,
		Value:      Stringify(s.Value),
		Unit:       f.Unit(oid, s.Type),
	}
}

// Unit resolves the unit for oid: the longest override prefix ending on a
// component boundary wins, then the type tag.
func (f *Formatter) Unit(oid, typeHint string) string {
	if f != nil {
		for _, p := range f.prefixes {
			if oid == p || strings.HasPrefix(oid, p+".") {
				return f.units[p]
			}
		}
	}
	return UnitForType(typeHint)
}

// Stringify renders an SNMP scalar as the record's value string.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		if isPrintable(x) {
			return string(x)
		}
		return "0x" + hex.EncodeToString(x)
	case int:
		return strconv.FormatInt(int64(x), 10)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func isPrintable(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
		if r == 0x7f {
			return false
		}
	}
	return true
}

// unitMapFile is the on-disk shape of UNIT_MAP_FILE.
//
//	units:
//	  "1.3.6.1.2.1.2.2.1.10": bytes
//	  "1.3.6.1.2.1.2.2.1.5": bits/second
type unitMapFile struct {
	Units map[string]string `yaml:"units"`
}

// LoadUnitMap reads a YAML unit map. An empty path returns an empty map.
func LoadUnitMap(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("formatter: read unit map: %w", err)
	}
	var f unitMapFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("formatter: parse unit map: %w", err)
	}
	out := make(map[string]string, len(f.Units))
	for oid, unit := range f.Units {
		n := types.NormalizeOID(oid)
		if !types.ValidOID(n) {
			return nil, fmt.Errorf("formatter: unit map: invalid oid %q", oid)
		}
		if unit == "" {
			return nil, fmt.Errorf("formatter: unit map: empty unit for %q", oid)
		}
		out[n] = unit
	}
	return out, nil
}
