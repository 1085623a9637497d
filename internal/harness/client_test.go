// ABOUTME: Tests for the harness client facade across all three delivery modes.
// ABOUTME: Uses httptest fake agents and a live ingress for callback delivery.

package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-harness/internal/activity"
	"github.com/2389/coven-harness/internal/auth"
	"github.com/2389/coven-harness/internal/exchange"
	"github.com/2389/coven-harness/internal/ingress"
	"github.com/2389/coven-harness/internal/stream"
	"github.com/2389/coven-harness/internal/transcript"
)

func testTiming() exchange.Timing {
	return exchange.Timing{
		Debounce:       40 * time.Millisecond,
		HardLimit:      250 * time.Millisecond,
		StreamFallback: 80 * time.Millisecond,
	}
}

// newTestClient wires a client against the given fake agent handler,
// with a live ingress for out-of-band replies.
func newTestClient(t *testing.T, agent http.HandlerFunc) *Client {
	t.Helper()

	recorder := transcript.NewRecorder()
	correlator := exchange.NewCorrelator(testTiming(), nil)
	t.Cleanup(correlator.Close)

	ing, err := ingress.New("127.0.0.1:0", correlator, recorder, nil)
	require.NoError(t, err)
	ing.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = ing.Shutdown(ctx)
	})

	server := httptest.NewServer(agent)
	t.Cleanup(server.Close)

	submitter := NewHTTPSubmitter(server.URL, auth.NewStaticProvider("test-token"))
	return New(submitter, correlator, recorder, ing.URL(), nil)
}

// decodeRequest reads the submitted activity out of a fake agent request.
func decodeRequest(t *testing.T, r *http.Request) activity.Activity {
	t.Helper()
	var act activity.Activity
	require.NoError(t, json.NewDecoder(r.Body).Decode(&act))
	return act
}

// postReply plays the agent side of callback delivery.
func postReply(t *testing.T, serviceURL string, act activity.Activity) {
	t.Helper()
	payload, err := json.Marshal(act)
	require.NoError(t, err)
	resp, err := http.Post(serviceURL, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// === expectReplies mode ===

func TestSendExpectReplies(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		act := decodeRequest(t, r)
		assert.Equal(t, activity.DeliveryExpectReplies, act.DeliveryMode)

		replies := map[string]any{"activities": []activity.Activity{
			activity.New(act.ConversationID, "first"),
			activity.New(act.ConversationID, "second"),
		}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(replies))
	})

	replies, err := client.SendExpectReplies(context.Background(), activity.New("", "hello"))
	require.NoError(t, err)
	require.Len(t, replies, 2)
	assert.Equal(t, "first", replies[0].Text)
	assert.Equal(t, "second", replies[1].Text)

	// one sent plus two received
	assert.Equal(t, 3, client.Transcript().Len())
}

func TestSendExpectRepliesEmptyBodyIsProtocolFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := client.SendExpectReplies(context.Background(), activity.New("", "hello"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyReplyBody)
}

func TestSendExpectRepliesMalformedBodyIsProtocolFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not json")
	})

	_, err := client.SendExpectReplies(context.Background(), activity.New("", "hello"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing expectReplies body")
}

// === stream mode ===

func TestSendStreamInlineBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		act := decodeRequest(t, r)
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame := func(a activity.Activity) {
			payload, err := json.Marshal(a)
			require.NoError(t, err)
			fmt.Fprintf(w, "event: activity\ndata: %s\n\n", payload)
		}
		typing := activity.Activity{Type: activity.TypeTyping, ConversationID: act.ConversationID}
		writeFrame(typing.WithStreamMarker(activity.StreamStreaming, 1))
		writeFrame(typing.WithStreamMarker(activity.StreamStreaming, 2))
		writeFrame(activity.New(act.ConversationID, "the answer").WithStreamMarker(activity.StreamFinal, 0))
	})

	replies, err := client.SendStream(context.Background(), activity.New("", "question"))
	require.NoError(t, err)
	require.Len(t, replies, 3)
	assert.Equal(t, activity.TypeTyping, replies[0].Type)
	assert.True(t, replies[2].IsFinalMessage())
}

func TestSendStreamProtocolViolation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "event: something-else\ndata: {}\n\n")
	})

	_, err := client.SendStream(context.Background(), activity.New("", "question"))
	require.Error(t, err)

	var protoErr *stream.ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestSendStreamEmptyBodyFallsBackToCallbacks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		act := decodeRequest(t, r)
		w.WriteHeader(http.StatusAccepted)

		// deliver out-of-band instead
		go postReply(t, act.ServiceURL,
			activity.New(act.ConversationID, "late answer").WithStreamMarker(activity.StreamFinal, 0))
	})

	replies, err := client.SendStream(context.Background(), activity.New("", "question"))
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "late answer", replies[0].Text)
}

func TestSendStreamEmptyBodySilenceFails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	_, err := client.SendStream(context.Background(), activity.New("", "question"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, exchange.ErrTimeout)
}

// === callback mode ===

func TestSendCallbackCollectsUntilQuiet(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		act := decodeRequest(t, r)
		assert.Equal(t, activity.DeliveryCallback, act.DeliveryMode)
		assert.NotEmpty(t, act.ServiceURL)
		w.WriteHeader(http.StatusAccepted)

		go func() {
			postReply(t, act.ServiceURL, activity.New(act.ConversationID, "part one"))
			time.Sleep(10 * time.Millisecond)
			postReply(t, act.ServiceURL, activity.New(act.ConversationID, "part two"))
		}()
	})

	ex, err := client.Send(context.Background(), activity.New("", "hello"))
	require.NoError(t, err)

	replies, err := client.Resolve(context.Background(), ex.ConversationID())
	require.NoError(t, err)
	require.Len(t, replies, 2)
	assert.Equal(t, "part one", replies[0].Text)
	assert.Equal(t, "part two", replies[1].Text)
}

func TestSendCallbackSilenceTimesOut(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	ex, err := client.Send(context.Background(), activity.New("", "hello"))
	require.NoError(t, err)

	replies, err := client.Resolve(context.Background(), ex.ConversationID())
	require.Error(t, err)
	assert.ErrorIs(t, err, exchange.ErrTimeout)
	assert.Empty(t, replies)
}

func TestSendSubmitErrorCancelsExchange(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Send(context.Background(), activity.New("", "hello"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")

	// the exchange is gone, not leaked
	_, err = client.Resolve(context.Background(), "anything")
	assert.ErrorIs(t, err, exchange.ErrUnknownConversation)
}

func TestSendAssignsConversationID(t *testing.T) {
	var submitted activity.Activity
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		submitted = decodeRequest(t, r)
		replies := map[string]any{"activities": []activity.Activity{
			activity.New(submitted.ConversationID, "ok"),
		}}
		require.NoError(t, json.NewEncoder(w).Encode(replies))
	})

	_, err := client.SendExpectReplies(context.Background(), activity.New("", "hello"))
	require.NoError(t, err)
	assert.NotEmpty(t, submitted.ConversationID)
}

func TestSendKeepsCallerConversationID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		act := decodeRequest(t, r)
		replies := map[string]any{"activities": []activity.Activity{
			activity.New(act.ConversationID, "ok"),
		}}
		require.NoError(t, json.NewEncoder(w).Encode(replies))
	})

	replies, err := client.SendExpectReplies(context.Background(), activity.New("conv-fixed", "hello"))
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "conv-fixed", replies[0].ConversationID)
}
