package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestForwardBody_OnlyPresentFieldsForwarded(t *testing.T) {
	var req ChatRequest
	require.NoError(t, json.Unmarshal([]byte(`{"model":"m","temperature":0.7,"top_p":1}`), &req))

	body, err := req.forwardBody()
	require.NoError(t, err)

	assert.Equal(t, "m", gjson.GetBytes(body, "model").String())
	// Unknown client fields are dropped, absent known fields are not invented.
	assert.False(t, gjson.GetBytes(body, "temperature").Exists())
	assert.False(t, gjson.GetBytes(body, "top_p").Exists())
	assert.False(t, gjson.GetBytes(body, "messages").Exists())
	assert.False(t, gjson.GetBytes(body, "stream").Exists())
	assert.False(t, gjson.GetBytes(body, "max_tokens").Exists())
}

func TestForwardBody_KeepsProvidedFields(t *testing.T) {
	var req ChatRequest
	in := `{"model":"m","messages":[{"role":"user","content":"hi"}],"stream":true,"max_tokens":64}`
	require.NoError(t, json.Unmarshal([]byte(in), &req))

	body, err := req.forwardBody()
	require.NoError(t, err)

	assert.Equal(t, "user", gjson.GetBytes(body, "messages.0.role").String())
	assert.True(t, gjson.GetBytes(body, "stream").Bool())
	assert.EqualValues(t, 64, gjson.GetBytes(body, "max_tokens").Int())
}

func TestIsStreaming(t *testing.T) {
	var req ChatRequest
	assert.False(t, req.IsStreaming())

	require.NoError(t, json.Unmarshal([]byte(`{"model":"m","stream":false}`), &req))
	assert.False(t, req.IsStreaming())

	require.NoError(t, json.Unmarshal([]byte(`{"model":"m","stream":true}`), &req))
	assert.True(t, req.IsStreaming())
}
