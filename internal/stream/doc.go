// Package stream parses inline SSE-shaped agent reply bodies.
//
// The wire shape is the standard server-sent-event framing the gateway
// side writes with:
//
//	event: activity
//	data: {"type":"typing","conversationId":"c1","entities":[...]}
//
//	event: activity
//	data: {"type":"message","conversationId":"c1","text":"done"}
//
// Parse validates stream markers (final pairing, positive and strictly
// increasing sequence numbers) and returns activities in arrival order.
// It is a pure function and is tested directly against synthetic bodies.
package stream
