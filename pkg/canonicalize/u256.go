package canonicalize

import (
	"fmt"
	"math/big"
)

// U256 holds an unsigned 256-bit integer, used for candidate output field
// elements (spec.md §3). It canonicalizes as a decimal string rather than a
// JSON number so precision is never lost to float64 round-tripping.
type U256 struct {
	v big.Int
}

var u256Max = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// NewU256FromUint64 builds a U256 from a uint64.
func NewU256FromUint64(u uint64) U256 {
	var out U256
	out.v.SetUint64(u)
	return out
}

// ParseU256 parses a base-10 string into a U256.
func ParseU256(s string) (U256, error) {
	var out U256
	if _, ok := out.v.SetString(s, 10); !ok {
		return U256{}, fmt.Errorf("canonicalize: invalid u256 decimal string %q", s)
	}
	if out.v.Sign() < 0 || out.v.Cmp(u256Max) > 0 {
		return U256{}, fmt.Errorf("canonicalize: u256 value %q out of range", s)
	}
	return out, nil
}

// String returns the base-10 representation.
func (u U256) String() string {
	return u.v.String()
}

// Equal reports whether u and other hold the same value.
func (u U256) Equal(other U256) bool {
	return u.v.Cmp(&other.v) == 0
}

// Big returns a copy of the underlying big.Int.
func (u U256) Big() *big.Int {
	return new(big.Int).Set(&u.v)
}

// CanonicalJSON implements CanonicalMarshaler: U256 values canonicalize as
// decimal strings (spec.md §4.1).
func (u U256) CanonicalJSON() (interface{}, error) {
	return u.v.String(), nil
}

// MarshalJSON implements json.Marshaler so U256 round-trips through ordinary
// encoding/json the same way it canonicalizes.
func (u U256) MarshalJSON() ([]byte, error) {
	return []byte(`"` + u.v.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler, accepting either a decimal
// string or a bare JSON number.
func (u *U256) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseU256(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
