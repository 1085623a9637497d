// Package ingress exposes the HTTP endpoint agents use to push reply
// activities back to the harness out-of-band.
//
// Every POST carries a single activity. The handler acks immediately
// with a synthetic id, before the correlator decides anything, so the
// agent never experiences backpressure, then forwards the activity to
// the correlator. Completion triggers (including the final-marker fast
// path that bypasses the debounce timer) live in the correlator, which
// sees the marker on the forwarded activity.
//
// Late or unknown conversation ids are still acked; the correlator logs
// and drops them.
package ingress
