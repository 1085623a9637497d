// Package activity defines the message-like unit exchanged between the
// harness and an agent-under-test.
//
// # Activity
//
// An Activity models the wire shape only as far as correlation and
// display require: id, type, conversationId, text, deliveryMode,
// serviceUrl and entities are typed; every other JSON field is preserved
// in an opaque bag so a received activity re-encodes byte-equivalently
// in content.
//
// # Stream markers
//
// Agents that stream replies attach "streaminfo" entities:
//
//	{"type": "streaminfo", "streamType": "streaming", "streamSequence": 1}
//	{"type": "streaminfo", "streamType": "final"}
//
// StreamMarker extracts the marker; IsFinalMessage identifies the
// terminal activity of an out-of-band stream.
package activity
