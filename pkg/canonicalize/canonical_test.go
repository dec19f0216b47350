package canonicalize

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestStableString_U256DecimalString(t *testing.T) {
	u, err := ParseU256("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	require.NoError(t, err)

	s, err := StableString(map[string]interface{}{"value": u})
	require.NoError(t, err)
	require.Equal(t, `{"value":"115792089237316195423570985008687907853269984665640564039457584007913129639935"}`, s)
}

func TestStableString_ByteSliceAsOctets(t *testing.T) {
	s, err := StableString(map[string]interface{}{"payload": []byte{1, 2, 255}})
	require.NoError(t, err)
	require.Equal(t, `{"payload":[1,2,255]}`, s)
}

func TestStableString_NonFiniteFloats(t *testing.T) {
	s, err := StableString(map[string]interface{}{"v": math.NaN()})
	require.NoError(t, err)
	require.Equal(t, `{"v":NaN}`, s)

	s, err = StableString(map[string]interface{}{"v": math.Inf(1)})
	require.NoError(t, err)
	require.Equal(t, `{"v":Infinity}`, s)

	s, err = StableString(map[string]interface{}{"v": math.Inf(-1)})
	require.NoError(t, err)
	require.Equal(t, `{"v":-Infinity}`, s)
}

func TestStableString_StructTags(t *testing.T) {
	type inner struct {
		Keep string `json:"keep"`
		Skip string `json:"-"`
		Omit int    `json:"omit,omitempty"`
	}
	s, err := StableString(inner{Keep: "x", Skip: "hidden", Omit: 0})
	require.NoError(t, err)
	require.Equal(t, `{"keep":"x"}`, s)
}

func TestCanonicalize_Idempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("canonicalize is idempotent", prop.ForAll(
		func(m map[string]string) bool {
			v := make(map[string]interface{}, len(m))
			for k, val := range m {
				v[k] = val
			}
			once, err := Canonicalize(v)
			if err != nil {
				return false
			}
			twice, err := Canonicalize(once)
			if err != nil {
				return false
			}
			s1, _ := StableString(once)
			s2, _ := StableString(twice)
			return s1 == s2
		},
		gen.MapOf(gen.Identifier(), gen.AlphaString()),
	))

	properties.TestingRun(t)
}

func TestSHA256Hex_Deterministic(t *testing.T) {
	a := map[string]interface{}{"b": 2, "a": 1}
	b := map[string]interface{}{"a": 1, "b": 2}

	ha, err := SHA256Hex(a)
	require.NoError(t, err)
	hb, err := SHA256Hex(b)
	require.NoError(t, err)
	require.Equal(t, ha, hb)
}
