// Package harness is the client facade over the correlation core. It
// submits activities to the agent under test and returns correlated
// reply sets per delivery mode:
//
//   - Send: callback mode; replies arrive out-of-band via the ingress
//     and Resolve blocks until the debounce policy declares the set done.
//   - SendExpectReplies: inline JSON activity list in the response body.
//   - SendStream: inline SSE-shaped body parsed by the stream reader; an
//     empty body falls back to callback collection under a shorter bound.
//
// The client registers the exchange before submitting, so a callback
// reply can never arrive ahead of its pending slot. Conversation ids are
// assigned when the caller leaves them empty, and every outbound
// activity advertises the ingress URL as its serviceUrl.
package harness
