// ABOUTME: Fake HTTP agent for harness testing; echoes messages under all three delivery modes.
// ABOUTME: Usage: fake-agent [-addr localhost:3978] [-jwt-secret SECRET]

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/2389/coven-harness/internal/activity"
	"github.com/2389/coven-harness/internal/auth"
)

func main() {
	addr := flag.String("addr", "localhost:3978", "HTTP listen address")
	jwtSecret := flag.String("jwt-secret", "", "verify bearer tokens with this HS256 secret (empty disables auth)")
	callbackDelay := flag.Duration("callback-delay", 100*time.Millisecond, "delay between out-of-band callback replies")
	flag.Parse()

	if err := run(*addr, *jwtSecret, *callbackDelay); err != nil {
		log.Fatal(err)
	}
}

func run(addr, jwtSecret string, callbackDelay time.Duration) error {
	agent := &fakeAgent{callbackDelay: callbackDelay}
	if jwtSecret != "" {
		agent.verifier = auth.NewJWTIssuer([]byte(jwtSecret), "")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/messages", agent.handleMessage)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	fmt.Fprintf(os.Stderr, "fake agent listening on %s\n", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

type fakeAgent struct {
	verifier      *auth.JWTIssuer
	callbackDelay time.Duration
}

func (a *fakeAgent) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if a.verifier != nil {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if _, err := a.verifier.Verify(token); err != nil {
			log.Printf("rejected request: %v", err)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	var act activity.Activity
	if err := json.NewDecoder(r.Body).Decode(&act); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	log.Printf("received [%s] %s: %s", act.DeliveryMode, act.ConversationID, act.Text)

	switch act.DeliveryMode {
	case activity.DeliveryExpectReplies:
		a.respondInline(w, act)
	case activity.DeliveryStream:
		a.respondStream(w, act)
	default:
		a.respondCallback(w, act)
	}
}

// respondInline answers with the expectReplies envelope in the body.
func (a *fakeAgent) respondInline(w http.ResponseWriter, act activity.Activity) {
	envelope := map[string]any{"activities": []activity.Activity{
		activity.New(act.ConversationID, echoReply(act.Text)),
	}}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		log.Printf("encode error: %v", err)
	}
}

// respondStream answers with an SSE-shaped body: two typing frames with
// increasing sequence numbers, then a final message.
func (a *fakeAgent) respondStream(w http.ResponseWriter, act activity.Activity) {
	w.Header().Set("Content-Type", "text/event-stream")

	typing := activity.Activity{Type: activity.TypeTyping, ConversationID: act.ConversationID}
	frames := []activity.Activity{
		typing.WithStreamMarker(activity.StreamStreaming, 1),
		typing.WithStreamMarker(activity.StreamStreaming, 2),
		activity.New(act.ConversationID, echoReply(act.Text)).WithStreamMarker(activity.StreamFinal, 0),
	}

	for _, frame := range frames {
		payload, err := json.Marshal(frame)
		if err != nil {
			log.Printf("encode error: %v", err)
			return
		}
		fmt.Fprintf(w, "event: activity\ndata: %s\n\n", payload)
	}
}

// respondCallback acks with an empty body and pushes replies to the
// activity's serviceUrl out-of-band.
func (a *fakeAgent) respondCallback(w http.ResponseWriter, act activity.Activity) {
	w.WriteHeader(http.StatusAccepted)

	if act.ServiceURL == "" {
		log.Printf("no serviceUrl on callback activity, dropping reply")
		return
	}

	go func() {
		replies := []activity.Activity{
			activity.New(act.ConversationID, echoReply(act.Text)),
			activity.New(act.ConversationID, "Anything else?"),
		}
		for _, reply := range replies {
			time.Sleep(a.callbackDelay)
			if err := postActivity(act.ServiceURL, reply); err != nil {
				log.Printf("callback post error: %v", err)
				return
			}
		}
	}()
}

func postActivity(serviceURL string, act activity.Activity) error {
	payload, err := json.Marshal(act)
	if err != nil {
		return fmt.Errorf("encoding reply: %w", err)
	}

	resp, err := http.Post(serviceURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("posting reply: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("callback endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func echoReply(input string) string {
	lower := strings.ToLower(input)
	if strings.Contains(lower, "markdown") || strings.Contains(lower, "bullet") || strings.Contains(lower, "list") {
		return "Here is a **markdown** response:\n\n- First item\n- Second item with `code`\n- Third item\n"
	}
	return fmt.Sprintf("Echo: **%s**", input)
}
