// Package exchange correlates harness requests with the unbounded,
// variably-timed reply sets an agent-under-test produces.
//
// # Model
//
// Each outstanding request is an Exchange keyed by conversation id. The
// Correlator is the sole owner of exchange state:
//
//	corr := exchange.NewCorrelator(exchange.DefaultTiming(), logger)
//	ex, err := corr.Register(convID, exchange.ModeCallback, request)
//	...
//	replies, err := corr.Resolve(ctx, convID)
//
// Replies reach the correlator through Ingest (out-of-band callbacks) or
// CompleteInline (synchronous bodies). Replies for one conversation are
// applied strictly in arrival order with no reordering or deduplication.
//
// # Completion policy
//
// There is no "turn is done" signal from the agent, so completion is
// policy-driven per delivery mode:
//
//   - Callback: a quiet-period debounce timer restarted by each
//     non-typing reply, with a hard upper bound for reply storms. A
//     final-marked message completes immediately.
//   - ExpectReplies: the send path parses the response body and calls
//     CompleteInline; there is nothing to debounce.
//   - Stream: inline bodies complete via CompleteInline; an empty body
//     arms the callback policy with a shorter bound (ArmFallback).
//
// # Terminal states
//
// Completed, TimedOut, and Failed are distinct: a timeout means the
// agent was slow or silent, a failure means it broke the protocol.
// Resolve reports TimedOut as ErrTimeout alongside the partial reply
// set so callers can inspect what did arrive.
package exchange
