package term

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalRoundTrip(t *testing.T) {
	cases := []Term{
		IRI("http://example.org/alice"),
		Blank("b0"),
		LangLiteral{Value: "hello", Lang: "en"},
		TypedLiteral{Value: "42", Datatype: XSDInteger},
		TypedLiteral{Value: "", Datatype: XSDString},
	}
	for _, want := range cases {
		got, err := DecodeCanonical(want.CanonicalBytes())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDecodeCanonicalErrors(t *testing.T) {
	_, err := DecodeCanonical(nil)
	assert.Error(t, err)

	_, err = DecodeCanonical([]byte{tagLangLiteral, 5})
	assert.Error(t, err)

	_, err = DecodeCanonical([]byte{0xAB})
	assert.Error(t, err)
}

func TestIsNumericAndAsFloat64(t *testing.T) {
	assert.True(t, IsNumeric(XSDDouble))
	assert.False(t, IsNumeric(XSDString))

	v, ok := AsFloat64(TypedLiteral{Value: "3.5", Datatype: XSDDouble})
	require.True(t, ok)
	assert.InDelta(t, 3.5, v, 1e-9)

	_, ok = AsFloat64(TypedLiteral{Value: "not-a-number", Datatype: XSDDouble})
	assert.False(t, ok)

	_, ok = AsFloat64(IRI("http://example.org/x"))
	assert.False(t, ok)
}

func TestNewFromGo(t *testing.T) {
	lit := NewFromGo(42).(TypedLiteral)
	assert.Equal(t, XSDLong, lit.Datatype)
	assert.Equal(t, "42", lit.Value)
}
