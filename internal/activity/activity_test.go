// ABOUTME: Tests for the activity model, field access, and lossless JSON round-tripping.
// ABOUTME: Validates stream marker extraction and unknown-field preservation.

package activity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalKnownFields(t *testing.T) {
	data := []byte(`{
		"id": "act-1",
		"type": "message",
		"conversationId": "conv-42",
		"text": "hello there",
		"deliveryMode": "expectReplies",
		"serviceUrl": "http://127.0.0.1:9000/api/replies"
	}`)

	var a Activity
	require.NoError(t, json.Unmarshal(data, &a))

	assert.Equal(t, "act-1", a.ID)
	assert.Equal(t, TypeMessage, a.Type)
	assert.Equal(t, "conv-42", a.ConversationID)
	assert.Equal(t, "hello there", a.Text)
	assert.Equal(t, DeliveryExpectReplies, a.DeliveryMode)
	assert.Equal(t, "http://127.0.0.1:9000/api/replies", a.ServiceURL)
}

func TestUnknownFieldsSurviveRoundTrip(t *testing.T) {
	data := []byte(`{
		"type": "message",
		"conversationId": "conv-1",
		"text": "hi",
		"channelId": "test",
		"locale": "en-US",
		"channelData": {"clientActivityID": "abc123", "nested": [1, 2, 3]}
	}`)

	var a Activity
	require.NoError(t, json.Unmarshal(data, &a))

	out, err := json.Marshal(a)
	require.NoError(t, err)

	var orig, round map[string]any
	require.NoError(t, json.Unmarshal(data, &orig))
	require.NoError(t, json.Unmarshal(out, &round))
	assert.Equal(t, orig, round)
}

func TestFieldAccess(t *testing.T) {
	data := []byte(`{"type":"event","conversationId":"c1","name":"customEvent","value":{"n":7}}`)

	var a Activity
	require.NoError(t, json.Unmarshal(data, &a))

	v, ok := a.Field("type")
	require.True(t, ok)
	assert.Equal(t, "event", v)

	v, ok = a.Field("name")
	require.True(t, ok)
	assert.Equal(t, "customEvent", v)

	v, ok = a.Field("value")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"n": float64(7)}, v)

	_, ok = a.Field("missing")
	assert.False(t, ok)
}

func TestStreamMarkerExtraction(t *testing.T) {
	a := New("conv-1", "partial").WithStreamMarker(StreamStreaming, 3)

	m, ok := a.StreamMarker()
	require.True(t, ok)
	assert.Equal(t, StreamStreaming, m.StreamType)
	assert.Equal(t, 3, m.StreamSequence)
	assert.False(t, a.IsFinalMessage())
}

func TestStreamMarkerAbsent(t *testing.T) {
	a := New("conv-1", "plain")

	_, ok := a.StreamMarker()
	assert.False(t, ok)
	assert.False(t, a.IsFinalMessage())
}

func TestIsFinalMessage(t *testing.T) {
	final := New("conv-1", "the whole reply").WithStreamMarker(StreamFinal, 0)
	assert.True(t, final.IsFinalMessage())

	// Final marker on a non-message activity is not a stream terminator.
	typing := Activity{Type: TypeTyping, ConversationID: "conv-1"}
	typing = typing.WithStreamMarker(StreamFinal, 0)
	assert.False(t, typing.IsFinalMessage())
}

func TestEntityUnknownFieldsPreserved(t *testing.T) {
	data := []byte(`{
		"type": "message",
		"conversationId": "c1",
		"entities": [
			{"type": "streaminfo", "streamType": "streaming", "streamSequence": 1, "vendor": "x"}
		]
	}`)

	var a Activity
	require.NoError(t, json.Unmarshal(data, &a))
	require.Len(t, a.Entities, 1)

	out, err := json.Marshal(a)
	require.NoError(t, err)

	var round Activity
	require.NoError(t, json.Unmarshal(out, &round))
	require.Len(t, round.Entities, 1)
	v, ok := round.Entities[0].extra["vendor"]
	require.True(t, ok)
	assert.JSONEq(t, `"x"`, string(v))
}

func TestMarshalOmitsEmptyFields(t *testing.T) {
	a := Activity{Type: TypeTyping, ConversationID: "c1"}

	out, err := json.Marshal(a)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, map[string]any{"type": "typing", "conversationId": "c1"}, m)
}
