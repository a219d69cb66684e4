package dict

import (
	"math/rand"
	"strconv"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"

	"github.com/nqrdf/tristore/term"
)

func TestInlineIntegerRoundTrip(t *testing.T) {
	f := func(v int64) bool {
		// Keep within the 58-bit magnitude the payload can hold.
		v = v % (1 << 57)
		lit := term.TypedLiteral{Value: strconv.FormatInt(v, 10), Datatype: term.XSDLong}
		id, ok := tryInline(lit)
		if !ok {
			return false
		}
		got, ok := decodeInline(id)
		if !ok {
			return false
		}
		gotLit := got.(term.TypedLiteral)
		return gotLit.Value == strconv.FormatInt(v, 10) && gotLit.Datatype == term.XSDLong
	}
	cfg := &quick.Config{MaxCount: 200, Rand: rand.New(rand.NewSource(1))}
	if err := quick.Check(f, cfg); err != nil {
		t.Error(err)
	}
}

func TestInlineDoesNotClaimXSDIntegerOrXSDInt(t *testing.T) {
	_, ok := tryInline(term.TypedLiteral{Value: "42", Datatype: term.XSDInteger})
	assert.False(t, ok)
	_, ok = tryInline(term.TypedLiteral{Value: "42", Datatype: term.XSDInt})
	assert.False(t, ok)
}

func TestInlineBooleanRoundTrip(t *testing.T) {
	for _, v := range []bool{true, false} {
		lit := term.TypedLiteral{Value: strconv.FormatBool(v), Datatype: term.XSDBoolean}
		id, ok := tryInline(lit)
		assert.True(t, ok)
		got, ok := decodeInline(id)
		assert.True(t, ok)
		assert.Equal(t, strconv.FormatBool(v), got.(term.TypedLiteral).Value)
	}
}

func TestInlineDoesNotClaimNonNumericStrings(t *testing.T) {
	_, ok := tryInline(term.TypedLiteral{Value: "hello world", Datatype: term.XSDString})
	assert.False(t, ok)
	_, ok = tryInline(term.IRI("http://example.org/x"))
	assert.False(t, ok)
}

func TestInlineDateTimeRoundTrip(t *testing.T) {
	lit := term.TypedLiteral{Value: "2024-01-15T10:30:00Z", Datatype: term.XSDDateTime}
	id, ok := tryInline(lit)
	assert.True(t, ok)
	got, ok := decodeInline(id)
	assert.True(t, ok)
	gotLit := got.(term.TypedLiteral)
	assert.Equal(t, term.XSDDateTime, gotLit.Datatype)
}
