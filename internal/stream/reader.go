// ABOUTME: Parses SSE-shaped response bodies into ordered activity sequences.
// ABOUTME: Pure function over bytes with no network I/O and no shared state.

package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/2389/coven-harness/internal/activity"
)

// ViolationKind categorizes a stream protocol violation.
type ViolationKind string

const (
	// ViolationUnrecognizedFrame means a frame was not an "event: activity"
	// frame with a data payload.
	ViolationUnrecognizedFrame ViolationKind = "unrecognized_frame"
	// ViolationInvalidFinalActivity means a final stream marker was paired
	// with a non-message activity.
	ViolationInvalidFinalActivity ViolationKind = "invalid_final_activity"
	// ViolationInvalidSequence means a streaming marker carried a
	// non-positive or non-increasing sequence number.
	ViolationInvalidSequence ViolationKind = "invalid_sequence"
	// ViolationEmptyBody means a body was required but absent.
	ViolationEmptyBody ViolationKind = "empty_body"
)

// ProtocolError reports an agent contract violation in a streamed body.
// It is never retried: it indicates a bug in the agent, not slowness.
type ProtocolError struct {
	Kind  ViolationKind
	Frame int // zero-based index of the offending frame, -1 if body-level
	Msg   string
}

func (e *ProtocolError) Error() string {
	if e.Frame < 0 {
		return fmt.Sprintf("stream protocol violation (%s): %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("stream protocol violation (%s) in frame %d: %s", e.Kind, e.Frame, e.Msg)
}

func violation(kind ViolationKind, frame int, format string, args ...any) *ProtocolError {
	return &ProtocolError{Kind: kind, Frame: frame, Msg: fmt.Sprintf(format, args...)}
}

// Parse reads an SSE-shaped body and returns the embedded activities in
// arrival order. Frames are blank-line separated; a frame is recognized
// only if it carries a literal "event: activity" line followed by a
// "data: " line with a JSON-encoded activity.
//
// Stream markers are validated as they are seen:
//   - a final marker must be paired with a message activity;
//   - a streaming marker must carry a positive sequence number; the rule
//     applies uniformly to every paired activity type;
//   - streaming sequence numbers must be strictly increasing in arrival
//     order; out-of-order frames fail rather than being re-sorted.
func Parse(body []byte) ([]activity.Activity, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, violation(ViolationEmptyBody, -1, "stream body is empty")
	}

	frames := splitFrames(body)
	activities := make([]activity.Activity, 0, len(frames))
	lastSeq := 0

	for i, frame := range frames {
		act, err := parseFrame(i, frame)
		if err != nil {
			return nil, err
		}

		if marker, ok := act.StreamMarker(); ok {
			switch marker.StreamType {
			case activity.StreamFinal:
				if act.Type != activity.TypeMessage {
					return nil, violation(ViolationInvalidFinalActivity, i,
						"final marker on %q activity, want message", act.Type)
				}
			case activity.StreamStreaming:
				if marker.StreamSequence <= 0 {
					return nil, violation(ViolationInvalidSequence, i,
						"streaming sequence %d is not positive", marker.StreamSequence)
				}
				if marker.StreamSequence <= lastSeq {
					return nil, violation(ViolationInvalidSequence, i,
						"streaming sequence %d after %d is not increasing", marker.StreamSequence, lastSeq)
				}
				lastSeq = marker.StreamSequence
			}
		}

		activities = append(activities, act)
	}

	return activities, nil
}

// splitFrames splits a body into blank-line-terminated frames, tolerating
// CRLF line endings and a missing trailing separator.
func splitFrames(body []byte) []string {
	normalized := strings.ReplaceAll(string(body), "\r\n", "\n")
	parts := strings.Split(normalized, "\n\n")

	frames := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		frames = append(frames, p)
	}
	return frames
}

// parseFrame extracts the activity from a single frame. The frame must
// contain "event: activity" before its "data: " payload line.
func parseFrame(index int, frame string) (activity.Activity, error) {
	var sawEvent bool
	for _, line := range strings.Split(frame, "\n") {
		switch {
		case line == "event: activity":
			sawEvent = true
		case strings.HasPrefix(line, "data: "):
			if !sawEvent {
				return activity.Activity{}, violation(ViolationUnrecognizedFrame, index,
					"data payload before event marker")
			}
			payload := strings.TrimPrefix(line, "data: ")
			var act activity.Activity
			if err := json.Unmarshal([]byte(payload), &act); err != nil {
				return activity.Activity{}, violation(ViolationUnrecognizedFrame, index,
					"undecodable activity payload: %v", err)
			}
			return act, nil
		}
	}
	if !sawEvent {
		return activity.Activity{}, violation(ViolationUnrecognizedFrame, index,
			"frame has no \"event: activity\" marker")
	}
	return activity.Activity{}, violation(ViolationUnrecognizedFrame, index,
		"frame has no data payload")
}
