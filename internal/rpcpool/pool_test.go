package rpcpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreate_CachesByEndpoint(t *testing.T) {
	p := New()
	defer p.Close()

	cc1, err := p.GetOrCreate("localhost:5001")
	require.NoError(t, err)
	cc2, err := p.GetOrCreate("localhost:5001")
	require.NoError(t, err)

	assert.Same(t, cc1, cc2)
	assert.Equal(t, 1, p.Len())
}

func TestGetOrCreate_DistinctEndpointsDistinctChannels(t *testing.T) {
	p := New()
	defer p.Close()

	cc1, err := p.GetOrCreate("localhost:5001")
	require.NoError(t, err)
	cc2, err := p.GetOrCreate("localhost:5002")
	require.NoError(t, err)

	assert.NotSame(t, cc1, cc2)
	assert.Equal(t, 2, p.Len())
}

func TestRelease_RemovesChannel(t *testing.T) {
	p := New()
	defer p.Close()

	_, err := p.GetOrCreate("localhost:5001")
	require.NoError(t, err)
	require.NoError(t, p.Release("localhost:5001"))
	assert.Equal(t, 0, p.Len())
}

func TestRelease_UnknownEndpointIsNoop(t *testing.T) {
	p := New()
	defer p.Close()
	assert.NoError(t, p.Release("localhost:9999"))
}

func TestClient_ReturnsBoundClient(t *testing.T) {
	p := New()
	defer p.Close()

	c, err := p.Client("localhost:5001")
	require.NoError(t, err)
	assert.NotNil(t, c)
}
