package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkers(t *testing.T) {
	base := New("connection reset")

	upstream := Wrap(UpstreamFatal(base), "fetch check 42")
	assert.True(t, IsUpstreamFatal(upstream))
	assert.False(t, IsSinkFatal(upstream))
	assert.Contains(t, upstream.Error(), "connection reset")

	sink := SinkFatal(Newf("graphite returned %d", 401))
	assert.True(t, IsSinkFatal(sink))
	assert.False(t, IsUpstreamFatal(sink))

	state := StateCorrupt(New("unexpected end of JSON input"))
	assert.True(t, IsStateCorrupt(state))
}

func TestMarkersNil(t *testing.T) {
	assert.Nil(t, UpstreamFatal(nil))
	assert.Nil(t, SinkFatal(nil))
	assert.Nil(t, StateCorrupt(nil))
	assert.False(t, IsUpstreamFatal(nil))
	assert.False(t, IsSinkFatal(nil))
	assert.False(t, IsStateCorrupt(nil))
}
