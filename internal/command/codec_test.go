package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Name  string
	Count int
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	in := testPayload{Name: "widget", Count: 7}
	data, err := Encode(in)
	require.NoError(t, err)

	var out testPayload
	require.NoError(t, Decode(data, &out))
	assert.Equal(t, in, out)
}

func TestDecode_EmptyIsNoop(t *testing.T) {
	var out testPayload
	require.NoError(t, Decode(nil, &out))
	assert.Equal(t, testPayload{}, out)
}
