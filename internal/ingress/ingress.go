// ABOUTME: HTTP endpoint the harness exposes so agents can push reply activities.
// ABOUTME: Acks every post immediately with a synthetic id, then hands off to the correlator.

package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-harness/internal/activity"
)

// repliesPath is the endpoint agents post reply activities to.
const repliesPath = "/api/replies"

// Sink receives activities pushed by the agent. Implemented by the
// exchange correlator; split out so handler tests can stub it.
type Sink interface {
	Ingest(conversationID string, act activity.Activity) bool
}

// Recorder captures inbound activities for the transcript. May be nil.
type Recorder interface {
	Received(act activity.Activity)
}

// AckResponse is the JSON body returned for every accepted activity.
type AckResponse struct {
	ID string `json:"id"`
}

// Server is the callback ingress. It accepts a single activity per POST,
// acknowledges before correlation completes, and never applies
// backpressure; delivery is fire-and-forget from the agent's side.
type Server struct {
	sink     Sink
	recorder Recorder
	logger   *slog.Logger

	httpServer *http.Server
	listener   net.Listener
}

// New creates an ingress server bound to addr (e.g. "127.0.0.1:0").
// Pass nil logger for default; recorder may be nil.
func New(addr string, sink Sink, recorder Recorder, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		sink:     sink,
		recorder: recorder,
		logger:   logger.With("component", "ingress"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(repliesPath, s.handleReply)
	mux.HandleFunc("/health", s.handleHealth)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on ingress address: %w", err)
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("ingress server error", "error", err)
		}
	}()
	s.logger.Info("ingress listening", "addr", s.listener.Addr().String())
}

// URL returns the full reply endpoint, suitable for an activity's
// serviceUrl field.
func (s *Server) URL() string {
	return "http://" + s.listener.Addr().String() + repliesPath
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the ingress handler for use with httptest servers.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// handleReply accepts one activity per call. The ack is written before
// the correlator sees the activity so the agent is never held up by
// completion logic.
func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var act activity.Activity
	if err := json.NewDecoder(r.Body).Decode(&act); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid activity JSON")
		return
	}

	if act.ConversationID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "conversationId is required")
		return
	}

	ack := AckResponse{ID: uuid.New().String()}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ack); err != nil {
		s.logger.Error("failed to write ack", "error", err)
	}

	s.logger.Debug("reply activity received",
		"conversation_id", act.ConversationID,
		"type", act.Type,
		"ack_id", ack.ID,
	)

	if s.recorder != nil {
		s.recorder.Received(act)
	}
	s.sink.Ingest(act.ConversationID, act)
}

// handleHealth returns 200 OK while the ingress is serving.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
