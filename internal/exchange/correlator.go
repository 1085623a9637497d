// ABOUTME: Correlates requests to their asynchronous reply sets by conversation id.
// ABOUTME: Applies per-mode debounce/timeout policy to decide when a reply set is done.

package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/coven-harness/internal/activity"
	"github.com/2389/coven-harness/internal/expiry"
)

// Timing holds the completion-policy bounds for pending exchanges.
type Timing struct {
	// Debounce is the quiet period after the last non-typing callback
	// reply before the exchange completes.
	Debounce time.Duration
	// HardLimit bounds a callback exchange even under a reply storm that
	// keeps resetting the debounce timer.
	HardLimit time.Duration
	// StreamFallback bounds a stream exchange whose send returned an
	// empty body, implying out-of-band delivery.
	StreamFallback time.Duration
}

// DefaultTiming returns the reference completion bounds.
func DefaultTiming() Timing {
	return Timing{
		Debounce:       5 * time.Second,
		HardLimit:      20 * time.Second,
		StreamFallback: 6 * time.Second,
	}
}

const (
	retiredTTL     = 5 * time.Minute
	retiredMaxSize = 10_000
)

// Correlator owns all pending exchanges for one harness run. It is the
// only mutator of exchange state; other components feed it through
// Register, Ingest, CompleteInline, and Fail.
type Correlator struct {
	timing  Timing
	retired *expiry.Cache
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]*Exchange
}

// NewCorrelator creates a correlator with the given timing bounds.
// Pass nil logger for default.
func NewCorrelator(timing Timing, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	if timing.Debounce <= 0 {
		timing.Debounce = DefaultTiming().Debounce
	}
	if timing.HardLimit <= 0 {
		timing.HardLimit = DefaultTiming().HardLimit
	}
	if timing.StreamFallback <= 0 {
		timing.StreamFallback = DefaultTiming().StreamFallback
	}
	return &Correlator{
		timing:  timing,
		retired: expiry.New(retiredTTL, retiredMaxSize),
		logger:  logger.With("component", "correlator"),
		pending: make(map[string]*Exchange),
	}
}

// Register creates a pending exchange keyed by conversation id.
// Returns ErrConversationExists if the id already has a pending exchange.
//
// Callback-mode exchanges start their hard timer immediately; the
// debounce timer only starts once the first non-typing reply arrives.
// Stream-mode exchanges get the shorter fallback bound and are armed by
// ArmFallback only when the send body turns out to be empty.
func (c *Correlator) Register(conversationID string, mode Mode, request activity.Activity) (*Exchange, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("%w: empty conversation id", ErrUnknownConversation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pending[conversationID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrConversationExists, conversationID)
	}

	ex := newExchange(conversationID, mode, request)
	c.pending[conversationID] = ex

	if mode == ModeCallback {
		ex.mu.Lock()
		c.armHard(ex, c.timing.HardLimit)
		ex.mu.Unlock()
	}

	c.logger.Debug("exchange registered",
		"conversation_id", conversationID,
		"mode", string(mode),
	)
	return ex, nil
}

// ArmFallback switches a stream-mode exchange onto the callback-debounce
// policy with the shorter fallback bound. Called when the initiating send
// returned an empty body, implying out-of-band delivery.
func (c *Correlator) ArmFallback(conversationID string) error {
	c.mu.Lock()
	ex, ok := c.pending[conversationID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConversation, conversationID)
	}

	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.state != StatePending {
		return nil
	}
	c.armHard(ex, c.timing.StreamFallback)
	c.logger.Debug("stream exchange fell back to callback delivery",
		"conversation_id", conversationID,
		"bound", c.timing.StreamFallback,
	)
	return nil
}

// Ingest appends a reply to its pending exchange in arrival order and
// applies the completion policy. Returns false when no pending exchange
// matches; late replies for retired conversations are logged at debug,
// truly unknown ones at warn. Either way the caller still acks.
//
// A typing activity is collected but never starts or resets the debounce
// timer. A final-marked message activity completes the exchange
// immediately, bypassing the debounce.
func (c *Correlator) Ingest(conversationID string, act activity.Activity) bool {
	c.mu.Lock()
	ex, ok := c.pending[conversationID]
	c.mu.Unlock()

	if !ok {
		if c.retired.Seen(conversationID) {
			c.logger.Debug("late reply for retired conversation",
				"conversation_id", conversationID,
				"type", act.Type,
			)
		} else {
			c.logger.Warn("reply for unknown conversation",
				"conversation_id", conversationID,
				"type", act.Type,
			)
		}
		return false
	}

	ex.mu.Lock()
	defer ex.mu.Unlock()

	if ex.state != StatePending {
		c.logger.Debug("reply after terminal state, dropping",
			"conversation_id", conversationID,
			"state", string(ex.state),
		)
		return false
	}

	ex.appendLocked(act)

	if act.IsFinalMessage() {
		ex.terminateLocked(StateCompleted, nil)
		return true
	}

	if act.Type != activity.TypeTyping {
		c.armDebounce(ex)
	}
	return true
}

// CompleteInline completes an exchange with replies obtained
// synchronously (expectReplies body or inline stream). The replies are
// appended in order and the exchange leaves Pending immediately.
func (c *Correlator) CompleteInline(conversationID string, replies []activity.Activity) error {
	c.mu.Lock()
	ex, ok := c.pending[conversationID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConversation, conversationID)
	}

	ex.mu.Lock()
	defer ex.mu.Unlock()
	for _, act := range replies {
		ex.appendLocked(act)
	}
	ex.terminateLocked(StateCompleted, nil)
	return nil
}

// Fail moves an exchange to the Failed terminal state with the given
// protocol error. Replies collected so far are retained for diagnostics.
func (c *Correlator) Fail(conversationID string, err error) error {
	c.mu.Lock()
	ex, ok := c.pending[conversationID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConversation, conversationID)
	}

	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.terminateLocked(StateFailed, err)
	return nil
}

// Resolve blocks until the exchange for the conversation id reaches a
// terminal state, then removes it from the live index and returns the
// frozen reply set. The terminal error is nil for Completed, wraps
// ErrTimeout for TimedOut, and carries the protocol error for Failed.
//
// Resolving an id that was never registered (or was already resolved)
// returns ErrUnknownConversation immediately; a second concurrent
// resolve of the same id returns ErrResolveInFlight immediately.
func (c *Correlator) Resolve(ctx context.Context, conversationID string) ([]activity.Activity, error) {
	c.mu.Lock()
	ex, ok := c.pending[conversationID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConversation, conversationID)
	}

	if !ex.resolving.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: %s", ErrResolveInFlight, conversationID)
	}

	select {
	case <-ctx.Done():
		ex.resolving.Store(false)
		return nil, ctx.Err()
	case <-ex.done:
	}

	c.retire(conversationID)

	replies, err := ex.outcome()
	c.logger.Debug("exchange resolved",
		"conversation_id", conversationID,
		"state", string(ex.State()),
		"replies", len(replies),
	)
	return replies, err
}

// Cancel removes a pending exchange without waiting, marking it failed.
// Used when a send cannot be submitted after registration.
func (c *Correlator) Cancel(conversationID string, err error) {
	c.mu.Lock()
	ex, ok := c.pending[conversationID]
	c.mu.Unlock()
	if !ok {
		return
	}

	ex.mu.Lock()
	ex.terminateLocked(StateFailed, err)
	ex.mu.Unlock()

	c.retire(conversationID)
}

// PendingCount reports the number of live exchanges.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close releases the retired-conversation index.
func (c *Correlator) Close() {
	c.retired.Close()
}

// retire drops the exchange from the live index and remembers its id so
// late callbacks are distinguishable from unknown conversations.
func (c *Correlator) retire(conversationID string) {
	c.mu.Lock()
	delete(c.pending, conversationID)
	c.mu.Unlock()
	c.retired.Remember(conversationID)
}

// armDebounce (re)starts the quiet-period timer. Must hold ex.mu.
func (c *Correlator) armDebounce(ex *Exchange) {
	if ex.debounce != nil {
		ex.debounce.Stop()
	}
	ex.debounce = time.AfterFunc(c.timing.Debounce, func() {
		ex.mu.Lock()
		defer ex.mu.Unlock()
		ex.terminateLocked(StateCompleted, nil)
	})
}

// armHard starts the hard bound timer. Must hold ex.mu. On expiry the
// exchange completes if any non-typing reply arrived; otherwise a
// callback exchange times out, while a stream-fallback exchange fails:
// the agent accepted a stream request and delivered nothing.
func (c *Correlator) armHard(ex *Exchange, bound time.Duration) {
	if ex.hard != nil {
		ex.hard.Stop()
	}
	ex.hard = time.AfterFunc(bound, func() {
		ex.mu.Lock()
		defer ex.mu.Unlock()

		if ex.hasContent {
			ex.terminateLocked(StateCompleted, nil)
			return
		}
		if ex.mode == ModeStream {
			ex.terminateLocked(StateFailed, fmt.Errorf(
				"stream send returned no body and no out-of-band replies arrived within %s", bound))
			return
		}
		ex.terminateLocked(StateTimedOut, fmt.Errorf(
			"no replies within %s: %w", bound, ErrTimeout))
	})
}
