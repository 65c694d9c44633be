package link

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatePresentation(t *testing.T) {
	assert.Equal(t, "Connecting...", Connecting.Text())
	assert.Equal(t, "#f59e0b", Connecting.Color())
	assert.Equal(t, "#10b981", Connected.Color())
	assert.Equal(t, "#ef4444", Error.Color())
	assert.Equal(t, "#f59e0b", Disconnected.Color())
}

func TestStateJSON(t *testing.T) {
	for _, s := range States {
		b, err := json.Marshal(s)
		require.NoError(t, err)

		var back State
		require.NoError(t, json.Unmarshal(b, &back))
		assert.Equal(t, s, back)
	}

	var s State
	assert.Error(t, s.UnmarshalText([]byte("bogus")))
}
