// Package canonicalize provides deterministic, sort-keyed JSON serialization
// and SHA-256 hashing for every value that crosses a subsystem boundary in
// the agent runtime: risk features, candidates, replay records, audit
// entries. Every hash elsewhere in the system goes through this package.
//
// The encoding follows the spirit of RFC 8785 (JSON Canonicalization Scheme)
// — sorted object keys, no HTML escaping, array order preserved — extended
// with three rules the teacher's JCS implementation never needed: non-finite
// floats serialize as their textual form ("Infinity", "-Infinity", "NaN"),
// arbitrary-precision integers (U256) serialize as decimal strings, and byte
// slices serialize as JSON arrays of numeric octets rather than base64.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// CanonicalMarshaler lets a type control its own canonical representation.
// U256 implements this to serialize as a decimal string.
type CanonicalMarshaler interface {
	CanonicalJSON() (interface{}, error)
}

// rawToken is an internal marker for values that must be emitted verbatim
// (not quoted, not escaped) by marshalRecursive — used only for the
// non-finite float literals the spec requires.
type rawToken string

// Canonicalize returns a value tree equivalent to v whose object keys are
// sorted lexicographically by UTF-8 bytes and whose arrays preserve input
// order. The returned tree is built only from bool, nil, json.Number,
// string, rawToken, []interface{}, and map[string]interface{} — so
// Canonicalize(Canonicalize(x)) == Canonicalize(x).
func Canonicalize(v interface{}) (interface{}, error) {
	return toGeneric(reflect.ValueOf(v))
}

// StableString renders v through Canonicalize and serializes the result as
// canonical JSON text. It is a total function on any JSON-shaped value.
func StableString(v interface{}) (string, error) {
	generic, err := Canonicalize(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	b, err := marshalRecursive(generic)
	if err != nil {
		return "", fmt.Errorf("canonicalize: stable string: %w", err)
	}
	return string(b), nil
}

// JCS returns the canonical JSON bytes for v.
func JCS(v interface{}) ([]byte, error) {
	generic, err := Canonicalize(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return marshalRecursive(generic)
}

// JCSString returns the canonical form as a string.
func JCSString(v interface{}) (string, error) {
	return StableString(v)
}

// SHA256Hex returns the SHA-256 hex digest of the canonical JSON
// representation of v.
func SHA256Hex(v interface{}) (string, error) {
	s, err := StableString(v)
	if err != nil {
		return "", err
	}
	return SHA256HexOfString(s), nil
}

// CanonicalHash is retained as an alias of SHA256Hex for call sites ported
// from the teacher's naming.
func CanonicalHash(v interface{}) (string, error) {
	return SHA256Hex(v)
}

// SHA256HexOfString hashes raw string bytes and returns the hex digest.
func SHA256HexOfString(s string) string {
	return HashBytes([]byte(s))
}

// HashBytes computes the SHA-256 hash of raw bytes and returns hex.
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

var timeType = reflect.TypeOf(time.Time{})
var jsonNumberType = reflect.TypeOf(json.Number(""))

// toGeneric walks v with reflection and produces the canonical value tree,
// honoring `json:"..."` struct tags (name, omitempty, "-") the same way
// encoding/json does, without ever handing a non-finite float or a byte
// slice to the standard encoder.
func toGeneric(rv reflect.Value) (interface{}, error) {
	if !rv.IsValid() {
		return nil, nil
	}

	if cm, ok := asCanonicalMarshaler(rv); ok {
		v, err := cm.CanonicalJSON()
		if err != nil {
			return nil, err
		}
		return toGeneric(reflect.ValueOf(v))
	}

	if rv.Type() == jsonNumberType {
		return json.Number(rv.String()), nil
	}
	if rv.Type() == reflect.TypeOf(rawToken("")) {
		return rawToken(rv.String()), nil
	}

	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil, nil
		}
		return toGeneric(rv.Elem())
	case reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return toGeneric(rv.Elem())
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return norm.NFC.String(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return json.Number(strconv.FormatInt(rv.Int(), 10)), nil
	case reflect.Uint, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return json.Number(strconv.FormatUint(rv.Uint(), 10)), nil
	case reflect.Uint8:
		return json.Number(strconv.FormatUint(rv.Uint(), 10)), nil
	case reflect.Float32, reflect.Float64:
		return floatLiteral(rv.Float()), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, nil
		}
		// Byte slices/arrays serialize as arrays of numeric octets, not base64.
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			octets := make([]interface{}, rv.Len())
			for i := 0; i < rv.Len(); i++ {
				octets[i] = json.Number(strconv.FormatUint(rv.Index(i).Uint(), 10))
			}
			return octets, nil
		}
		out := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			v, err := toGeneric(rv.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case reflect.Map:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("canonicalize: map key type %s unsupported, want string", rv.Type().Key())
		}
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			v, err := toGeneric(iter.Value())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = v
		}
		return out, nil
	case reflect.Struct:
		if rv.Type() == timeType {
			t := rv.Interface().(time.Time)
			return t.UTC().Format(time.RFC3339Nano), nil
		}
		return structToGeneric(rv)
	default:
		return nil, fmt.Errorf("canonicalize: unsupported kind %s", rv.Kind())
	}
}

func structToGeneric(rv reflect.Value) (interface{}, error) {
	t := rv.Type()
	out := make(map[string]interface{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" && !field.Anonymous {
			continue // unexported
		}
		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts := parseTag(tag)
		if name == "" {
			name = field.Name
		}
		fv := rv.Field(i)
		if field.Anonymous && tag == "" && fv.Kind() == reflect.Struct {
			embedded, err := structToGeneric(fv)
			if err != nil {
				return nil, err
			}
			for k, v := range embedded.(map[string]interface{}) {
				out[k] = v
			}
			continue
		}
		if opts.Contains("omitempty") && isEmptyValue(fv) {
			continue
		}
		v, err := toGeneric(fv)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		out[name] = v
	}
	return out, nil
}

type tagOptions string

func parseTag(tag string) (string, tagOptions) {
	parts := strings.Split(tag, ",")
	return parts[0], tagOptions(strings.Join(parts[1:], ","))
}

func (o tagOptions) Contains(opt string) bool {
	for _, s := range strings.Split(string(o), ",") {
		if s == opt {
			return true
		}
	}
	return false
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	}
	return false
}

func asCanonicalMarshaler(rv reflect.Value) (CanonicalMarshaler, bool) {
	if !rv.IsValid() || !rv.CanInterface() {
		return nil, false
	}
	if cm, ok := rv.Interface().(CanonicalMarshaler); ok {
		return cm, true
	}
	if rv.Kind() != reflect.Ptr && rv.CanAddr() {
		if cm, ok := rv.Addr().Interface().(CanonicalMarshaler); ok {
			return cm, true
		}
	}
	return nil, false
}

// floatLiteral renders a float64 the way canonical JSON requires: standard
// JSON number formatting for finite values, textual form for non-finite
// ones (spec.md §4.1).
func floatLiteral(f float64) interface{} {
	switch {
	case math.IsNaN(f):
		return rawToken("NaN")
	case math.IsInf(f, 1):
		return rawToken("Infinity")
	case math.IsInf(f, -1):
		return rawToken("-Infinity")
	default:
		return json.Number(strconv.FormatFloat(f, 'g', -1, 64))
	}
}

func marshalRecursive(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	switch t := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		if t {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case json.Number:
		return []byte(t.String()), nil
	case rawToken:
		return []byte(string(t)), nil
	case string:
		if err := enc.Encode(t); err != nil {
			return nil, err
		}
		return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
	case []interface{}:
		buf.Reset()
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := marshalRecursive(elem)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case map[string]interface{}:
		buf.Reset()
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := marshalRecursive(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')

			vb, err := marshalRecursive(t[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("canonicalize: unexpected generic type %T", v)
	}
}
