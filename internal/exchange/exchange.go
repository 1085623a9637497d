// ABOUTME: Exchange state machine for one request and its correlated reply set.
// ABOUTME: Owned exclusively by the Correlator; callers observe frozen snapshots.

package exchange

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/coven-harness/internal/activity"
)

// Usage errors indicate a harness programming bug and are never retried.
var (
	// ErrConversationExists indicates a conversation id is already pending.
	ErrConversationExists = errors.New("conversation already pending")
	// ErrUnknownConversation indicates the conversation id was never
	// registered, or was already resolved.
	ErrUnknownConversation = errors.New("conversation not registered")
	// ErrResolveInFlight indicates a second concurrent resolve of the
	// same conversation id.
	ErrResolveInFlight = errors.New("conversation is already being resolved")
)

// ErrTimeout indicates the exchange reached its debounce or hard bound
// with nothing completing it. Distinct from a protocol failure so callers
// can tell "agent was slow or silent" from "agent violated the protocol".
var ErrTimeout = errors.New("exchange timed out")

// Mode selects the reply-delivery mechanism for an exchange.
type Mode string

const (
	// ModeCallback expects out-of-band replies pushed to the ingress.
	ModeCallback Mode = "callback"
	// ModeExpectReplies expects replies inline in the send response body.
	ModeExpectReplies Mode = "expectReplies"
	// ModeStream expects an inline SSE body, falling back to callback
	// delivery when the send response body is empty.
	ModeStream Mode = "stream"
)

// State is the lifecycle state of an exchange.
type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateTimedOut  State = "timed_out"
	StateFailed    State = "failed"
)

// Exchange represents one request/response unit: the request activity
// plus the ordered reply set collected for its conversation id. All
// mutation happens under the correlator; once the exchange leaves
// Pending the reply set is frozen.
type Exchange struct {
	conversationID string
	mode           Mode
	request        activity.Activity

	mu         sync.Mutex
	replies    []activity.Activity
	state      State
	err        error
	hasContent bool // a non-typing reply has been collected

	done      chan struct{}
	debounce  *time.Timer
	hard      *time.Timer
	resolving atomic.Bool
}

func newExchange(conversationID string, mode Mode, request activity.Activity) *Exchange {
	return &Exchange{
		conversationID: conversationID,
		mode:           mode,
		request:        request,
		state:          StatePending,
		done:           make(chan struct{}),
	}
}

// ConversationID returns the correlation key of the exchange.
func (e *Exchange) ConversationID() string { return e.conversationID }

// Mode returns the delivery mode the exchange was registered with.
func (e *Exchange) Mode() Mode { return e.mode }

// Request returns the activity that opened the exchange.
func (e *Exchange) Request() activity.Activity { return e.request }

// State returns the current lifecycle state.
func (e *Exchange) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Replies returns a snapshot of the replies collected so far, in
// arrival order.
func (e *Exchange) Replies() []activity.Activity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]activity.Activity(nil), e.replies...)
}

// Done returns a channel closed when the exchange leaves Pending.
func (e *Exchange) Done() <-chan struct{} { return e.done }

// append records a reply in arrival order. Must hold e.mu.
func (e *Exchange) appendLocked(act activity.Activity) {
	e.replies = append(e.replies, act)
	if act.Type != activity.TypeTyping {
		e.hasContent = true
	}
}

// terminate transitions out of Pending exactly once. Must hold e.mu.
// Returns false if the exchange already reached a terminal state.
func (e *Exchange) terminateLocked(state State, err error) bool {
	if e.state != StatePending {
		return false
	}
	e.state = state
	e.err = err
	if e.debounce != nil {
		e.debounce.Stop()
	}
	if e.hard != nil {
		e.hard.Stop()
	}
	close(e.done)
	return true
}

// outcome returns the frozen reply snapshot and terminal error.
func (e *Exchange) outcome() ([]activity.Activity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]activity.Activity(nil), e.replies...), e.err
}
