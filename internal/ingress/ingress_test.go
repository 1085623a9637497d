// ABOUTME: Tests for the callback ingress endpoint using httptest and a stub sink.
// ABOUTME: Validates immediate acks, validation errors, and concurrent conversations.

package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-harness/internal/activity"
)

// stubSink records ingested activities and can block to prove acks do
// not wait on correlation.
type stubSink struct {
	mu       sync.Mutex
	ingested []activity.Activity
	delay    time.Duration
}

func (s *stubSink) Ingest(conversationID string, act activity.Activity) bool {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingested = append(s.ingested, act)
	return true
}

func (s *stubSink) all() []activity.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]activity.Activity(nil), s.ingested...)
}

func newTestIngress(t *testing.T, sink Sink) *httptest.Server {
	t.Helper()
	srv, err := New("127.0.0.1:0", sink, nil, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postActivity(t *testing.T, url string, act activity.Activity) *http.Response {
	t.Helper()
	body, err := json.Marshal(act)
	require.NoError(t, err)
	resp, err := http.Post(url+"/api/replies", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestReplyAckedWithSyntheticID(t *testing.T) {
	sink := &stubSink{}
	ts := newTestIngress(t, sink)

	resp := postActivity(t, ts.URL, activity.New("conv-1", "hello back"))
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ack AckResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	assert.NotEmpty(t, ack.ID)

	require.Len(t, sink.all(), 1)
	assert.Equal(t, "hello back", sink.all()[0].Text)
}

func TestMissingConversationIDRejected(t *testing.T) {
	sink := &stubSink{}
	ts := newTestIngress(t, sink)

	resp := postActivity(t, ts.URL, activity.Activity{Type: activity.TypeMessage, Text: "orphan"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, sink.all())
}

func TestInvalidJSONRejected(t *testing.T) {
	sink := &stubSink{}
	ts := newTestIngress(t, sink)

	resp, err := http.Post(ts.URL+"/api/replies", "application/json", bytes.NewReader([]byte("{broken")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	sink := &stubSink{}
	ts := newTestIngress(t, sink)

	resp, err := http.Get(ts.URL + "/api/replies")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestUnknownConversationStillAcked(t *testing.T) {
	// The sink reports no pending exchange, but the agent still gets its ack.
	sink := &stubSink{}
	ts := newTestIngress(t, sink)

	resp := postActivity(t, ts.URL, activity.New("retired-conv", "late"))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConcurrentConversations(t *testing.T) {
	sink := &stubSink{}
	ts := newTestIngress(t, sink)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			conv := fmt.Sprintf("conv-%d", n)
			for j := 0; j < 5; j++ {
				resp := postActivity(t, ts.URL, activity.New(conv, fmt.Sprintf("msg-%d", j)))
				resp.Body.Close()
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, sink.all(), 40)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestIngress(t, &stubSink{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerLifecycle(t *testing.T) {
	sink := &stubSink{}
	srv, err := New("127.0.0.1:0", sink, nil, nil)
	require.NoError(t, err)
	srv.Start()

	assert.Contains(t, srv.URL(), "/api/replies")

	resp, err := http.Get("http://" + srv.listener.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}
