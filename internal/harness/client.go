// ABOUTME: Client facade driving the agent under test through the three delivery modes.
// ABOUTME: Registers exchanges before submitting so no reply can outrun correlation.

package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/2389/coven-harness/internal/activity"
	"github.com/2389/coven-harness/internal/exchange"
	"github.com/2389/coven-harness/internal/stream"
	"github.com/2389/coven-harness/internal/transcript"
)

// ErrEmptyReplyBody is returned when an expectReplies send yields no
// body. The agent accepted the request but broke the inline contract.
var ErrEmptyReplyBody = errors.New("expectReplies send returned empty body")

// Submitter posts one activity to the agent under test and returns the
// synchronous response body, which is empty in callback mode.
type Submitter interface {
	Submit(ctx context.Context, act activity.Activity) ([]byte, error)
}

// repliesEnvelope is the expectReplies response shape.
type repliesEnvelope struct {
	Activities []activity.Activity `json:"activities"`
}

// Client drives one agent under test. All state is in-memory and scoped
// to one run.
type Client struct {
	submitter  Submitter
	correlator *exchange.Correlator
	recorder   *transcript.Recorder
	serviceURL string
	logger     *slog.Logger
}

// New creates a client. serviceURL is the callback ingress endpoint
// advertised to the agent on every request; pass nil logger for default.
func New(submitter Submitter, correlator *exchange.Correlator, recorder *transcript.Recorder, serviceURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		submitter:  submitter,
		correlator: correlator,
		recorder:   recorder,
		serviceURL: serviceURL,
		logger:     logger.With("component", "harness"),
	}
}

// Transcript returns the live transcript recorder.
func (c *Client) Transcript() *transcript.Recorder {
	return c.recorder
}

// Send submits an activity in callback mode and returns the pending
// exchange. Replies arrive through the ingress; call Resolve to block
// for the frozen reply set.
func (c *Client) Send(ctx context.Context, act activity.Activity) (*exchange.Exchange, error) {
	act = c.prepare(act, activity.DeliveryCallback)

	ex, err := c.correlator.Register(act.ConversationID, exchange.ModeCallback, act)
	if err != nil {
		return nil, err
	}

	c.recorder.Sent(act)
	if _, err := c.submitter.Submit(ctx, act); err != nil {
		submitErr := fmt.Errorf("submitting activity: %w", err)
		c.correlator.Cancel(act.ConversationID, submitErr)
		return nil, submitErr
	}

	c.logger.Debug("callback send submitted", "conversation_id", act.ConversationID)
	return ex, nil
}

// Resolve blocks until the exchange reaches a terminal state and returns
// the frozen reply set. Partial replies accompany a timeout error.
func (c *Client) Resolve(ctx context.Context, conversationID string) ([]activity.Activity, error) {
	return c.correlator.Resolve(ctx, conversationID)
}

// SendExpectReplies submits an activity and parses the inline reply list
// from the response body. An empty or malformed body is a protocol
// failure, not a timeout.
func (c *Client) SendExpectReplies(ctx context.Context, act activity.Activity) ([]activity.Activity, error) {
	act = c.prepare(act, activity.DeliveryExpectReplies)

	if _, err := c.correlator.Register(act.ConversationID, exchange.ModeExpectReplies, act); err != nil {
		return nil, err
	}

	c.recorder.Sent(act)
	body, err := c.submitter.Submit(ctx, act)
	if err != nil {
		submitErr := fmt.Errorf("submitting activity: %w", err)
		c.correlator.Cancel(act.ConversationID, submitErr)
		return nil, submitErr
	}

	if len(body) == 0 {
		c.failExchange(act.ConversationID, ErrEmptyReplyBody)
		return c.correlator.Resolve(ctx, act.ConversationID)
	}

	var envelope repliesEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.failExchange(act.ConversationID, fmt.Errorf("parsing expectReplies body: %w", err))
		return c.correlator.Resolve(ctx, act.ConversationID)
	}

	for _, reply := range envelope.Activities {
		c.recorder.Received(reply)
	}
	if err := c.correlator.CompleteInline(act.ConversationID, envelope.Activities); err != nil {
		return nil, err
	}
	return c.correlator.Resolve(ctx, act.ConversationID)
}

// SendStream submits an activity and parses the inline SSE-shaped body.
// An empty body implies out-of-band delivery; the exchange then falls
// back to callback collection under the shorter stream bound.
func (c *Client) SendStream(ctx context.Context, act activity.Activity) ([]activity.Activity, error) {
	act = c.prepare(act, activity.DeliveryStream)

	if _, err := c.correlator.Register(act.ConversationID, exchange.ModeStream, act); err != nil {
		return nil, err
	}

	c.recorder.Sent(act)
	body, err := c.submitter.Submit(ctx, act)
	if err != nil {
		submitErr := fmt.Errorf("submitting activity: %w", err)
		c.correlator.Cancel(act.ConversationID, submitErr)
		return nil, submitErr
	}

	if len(body) == 0 {
		c.logger.Debug("stream send returned empty body, awaiting out-of-band replies",
			"conversation_id", act.ConversationID)
		if err := c.correlator.ArmFallback(act.ConversationID); err != nil {
			return nil, err
		}
		return c.correlator.Resolve(ctx, act.ConversationID)
	}

	replies, err := stream.Parse(body)
	if err != nil {
		c.failExchange(act.ConversationID, err)
		return c.correlator.Resolve(ctx, act.ConversationID)
	}

	for _, reply := range replies {
		c.recorder.Received(reply)
	}
	if err := c.correlator.CompleteInline(act.ConversationID, replies); err != nil {
		return nil, err
	}
	return c.correlator.Resolve(ctx, act.ConversationID)
}

// prepare fills in the fields every outbound activity needs.
func (c *Client) prepare(act activity.Activity, mode activity.DeliveryMode) activity.Activity {
	if act.ConversationID == "" {
		act.ConversationID = uuid.New().String()
	}
	act.DeliveryMode = mode
	if c.serviceURL != "" {
		act.ServiceURL = c.serviceURL
	}
	return act
}

// failExchange records a protocol failure; Resolve surfaces it.
func (c *Client) failExchange(conversationID string, err error) {
	if failErr := c.correlator.Fail(conversationID, err); failErr != nil {
		c.logger.Error("failed to mark exchange failed",
			"conversation_id", conversationID,
			"error", failErr,
		)
	}
}
