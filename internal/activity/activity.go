// ABOUTME: Activity data model for the agent wire protocol with lossless round-tripping.
// ABOUTME: Known fields are typed; everything else survives in an opaque field bag.

package activity

import (
	"encoding/json"
	"fmt"
)

// Well-known activity types. The tag set is open: agents may send types
// the harness has never heard of, and those must still round-trip.
const (
	TypeMessage            = "message"
	TypeTyping             = "typing"
	TypeEvent              = "event"
	TypeInvoke             = "invoke"
	TypeConversationUpdate = "conversationUpdate"
	TypeEndOfConversation  = "endOfConversation"
)

// DeliveryMode selects how the agent returns replies for a request.
type DeliveryMode string

const (
	DeliveryCallback      DeliveryMode = "normal"
	DeliveryExpectReplies DeliveryMode = "expectReplies"
	DeliveryStream        DeliveryMode = "stream"
)

// Activity is one unit of conversation between harness and agent.
// It is immutable once received; correlation requires ConversationID.
type Activity struct {
	ID             string
	Type           string
	ConversationID string
	Text           string
	DeliveryMode   DeliveryMode
	ServiceURL     string
	Entities       []Entity

	// extra holds every JSON field this struct does not model, keyed by
	// its wire name, so unknown fields survive a decode/encode cycle.
	extra map[string]json.RawMessage
}

// Entity is a typed side-channel annotation attached to an activity.
type Entity struct {
	Type           string
	StreamType     StreamType
	StreamSequence int

	extra map[string]json.RawMessage
}

// StreamType indicates the streaming state carried by a stream marker entity.
type StreamType string

const (
	StreamStreaming StreamType = "streaming"
	StreamFinal     StreamType = "final"
)

// EntityTypeStreamInfo is the entity type carrying stream markers.
const EntityTypeStreamInfo = "streaminfo"

// StreamMarker is the streaming metadata extracted from a streaminfo entity.
type StreamMarker struct {
	StreamType     StreamType
	StreamSequence int
}

// New creates a message activity with the given conversation id and text.
func New(conversationID, text string) Activity {
	return Activity{
		Type:           TypeMessage,
		ConversationID: conversationID,
		Text:           text,
	}
}

// StreamMarker returns the first stream marker attached to the activity,
// or false if the activity carries none.
func (a Activity) StreamMarker() (StreamMarker, bool) {
	for _, e := range a.Entities {
		if e.Type == EntityTypeStreamInfo {
			return StreamMarker{StreamType: e.StreamType, StreamSequence: e.StreamSequence}, true
		}
	}
	return StreamMarker{}, false
}

// IsFinalMessage reports whether the activity is a message carrying a
// final stream marker. Such an activity terminates an out-of-band stream.
func (a Activity) IsFinalMessage() bool {
	m, ok := a.StreamMarker()
	return ok && m.StreamType == StreamFinal && a.Type == TypeMessage
}

// Field returns the named field's value for query purposes. Known fields
// are returned typed; anything else is looked up in the opaque bag and
// decoded into its natural JSON shape.
func (a Activity) Field(name string) (any, bool) {
	switch name {
	case "id":
		return a.ID, true
	case "type":
		return a.Type, true
	case "conversationId":
		return a.ConversationID, true
	case "text":
		return a.Text, true
	case "deliveryMode":
		return string(a.DeliveryMode), true
	case "serviceUrl":
		return a.ServiceURL, true
	}
	raw, ok := a.extra[name]
	if !ok {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

// activityWire is the typed subset of the activity JSON shape.
type activityWire struct {
	ID             string          `json:"id,omitempty"`
	Type           string          `json:"type,omitempty"`
	ConversationID string          `json:"conversationId,omitempty"`
	Text           string          `json:"text,omitempty"`
	DeliveryMode   string          `json:"deliveryMode,omitempty"`
	ServiceURL     string          `json:"serviceUrl,omitempty"`
	Entities       json.RawMessage `json:"entities,omitempty"`
}

var activityKnownKeys = map[string]bool{
	"id": true, "type": true, "conversationId": true, "text": true,
	"deliveryMode": true, "serviceUrl": true, "entities": true,
}

// UnmarshalJSON decodes the typed fields and preserves every unknown
// field verbatim so it can be re-emitted by MarshalJSON.
func (a *Activity) UnmarshalJSON(data []byte) error {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return fmt.Errorf("decoding activity: %w", err)
	}

	var w activityWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decoding activity fields: %w", err)
	}

	a.ID = w.ID
	a.Type = w.Type
	a.ConversationID = w.ConversationID
	a.Text = w.Text
	a.DeliveryMode = DeliveryMode(w.DeliveryMode)
	a.ServiceURL = w.ServiceURL

	if len(w.Entities) > 0 {
		var entities []Entity
		if err := json.Unmarshal(w.Entities, &entities); err != nil {
			return fmt.Errorf("decoding entities: %w", err)
		}
		a.Entities = entities
	} else {
		a.Entities = nil
	}

	a.extra = nil
	for k, v := range all {
		if activityKnownKeys[k] {
			continue
		}
		if a.extra == nil {
			a.extra = make(map[string]json.RawMessage)
		}
		a.extra[k] = v
	}
	return nil
}

// MarshalJSON emits the typed fields plus the preserved unknown fields.
func (a Activity) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(a.extra)+7)
	for k, v := range a.extra {
		out[k] = v
	}

	put := func(key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		out[key] = raw
		return nil
	}

	if a.ID != "" {
		if err := put("id", a.ID); err != nil {
			return nil, err
		}
	}
	if a.Type != "" {
		if err := put("type", a.Type); err != nil {
			return nil, err
		}
	}
	if a.ConversationID != "" {
		if err := put("conversationId", a.ConversationID); err != nil {
			return nil, err
		}
	}
	if a.Text != "" {
		if err := put("text", a.Text); err != nil {
			return nil, err
		}
	}
	if a.DeliveryMode != "" {
		if err := put("deliveryMode", string(a.DeliveryMode)); err != nil {
			return nil, err
		}
	}
	if a.ServiceURL != "" {
		if err := put("serviceUrl", a.ServiceURL); err != nil {
			return nil, err
		}
	}
	if len(a.Entities) > 0 {
		if err := put("entities", a.Entities); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

// entityWire is the typed subset of the entity JSON shape.
type entityWire struct {
	Type           string `json:"type,omitempty"`
	StreamType     string `json:"streamType,omitempty"`
	StreamSequence int    `json:"streamSequence,omitempty"`
}

var entityKnownKeys = map[string]bool{
	"type": true, "streamType": true, "streamSequence": true,
}

// UnmarshalJSON decodes the typed entity fields and keeps the rest.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return fmt.Errorf("decoding entity: %w", err)
	}

	var w entityWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decoding entity fields: %w", err)
	}

	e.Type = w.Type
	e.StreamType = StreamType(w.StreamType)
	e.StreamSequence = w.StreamSequence

	e.extra = nil
	for k, v := range all {
		if entityKnownKeys[k] {
			continue
		}
		if e.extra == nil {
			e.extra = make(map[string]json.RawMessage)
		}
		e.extra[k] = v
	}
	return nil
}

// MarshalJSON emits the typed entity fields plus preserved unknown fields.
func (e Entity) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(e.extra)+3)
	for k, v := range e.extra {
		out[k] = v
	}

	put := func(key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		out[key] = raw
		return nil
	}

	if e.Type != "" {
		if err := put("type", e.Type); err != nil {
			return nil, err
		}
	}
	if e.StreamType != "" {
		if err := put("streamType", string(e.StreamType)); err != nil {
			return nil, err
		}
	}
	if e.StreamSequence != 0 {
		if err := put("streamSequence", e.StreamSequence); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

// WithStreamMarker returns a copy of the activity with a streaminfo
// entity appended. Used by tests and the fake agent.
func (a Activity) WithStreamMarker(st StreamType, seq int) Activity {
	a.Entities = append(append([]Entity(nil), a.Entities...), Entity{
		Type:           EntityTypeStreamInfo,
		StreamType:     st,
		StreamSequence: seq,
	})
	return a
}
