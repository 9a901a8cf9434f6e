package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
)

var errNotObject = errors.New("payload is not a JSON object")

// decodePayload reads an Events API envelope from body. Only a syntax error is
// fatal. A document that is not an object yields errNotObject with an empty
// payload, and fields of an unexpected type read as absent, except bot_id,
// which counts as present whenever it is not null.
func decodePayload(body []byte) (Payload, error) {
	if !json.Valid(body) {
		// Unmarshal again to surface a positioned syntax error.
		var v any
		err := json.Unmarshal(body, &v)
		if err == nil {
			err = errors.New("invalid JSON")
		}
		return Payload{}, err
	}
	fields, ok := objectFields(body)
	if !ok {
		return Payload{}, errNotObject
	}
	p := Payload{
		Type:      stringField(fields, "type"),
		Challenge: stringField(fields, "challenge"),
		EventID:   stringField(fields, "event_id"),
		TeamID:    stringField(fields, "team_id"),
		APIAppID:  stringField(fields, "api_app_id"),
	}
	if raw, present := fields["event"]; present {
		if ev, ok := objectFields(raw); ok {
			p.Event = decodeEvent(ev)
		}
	}
	return p, nil
}

func decodeEvent(fields map[string]json.RawMessage) *Event {
	ev := &Event{
		Type:        stringField(fields, "type"),
		Text:        stringField(fields, "text"),
		Channel:     stringField(fields, "channel"),
		ChannelType: stringField(fields, "channel_type"),
		User:        stringField(fields, "user"),
		TS:          stringField(fields, "ts"),
		ThreadTS:    stringField(fields, "thread_ts"),
	}
	if raw, present := fields["bot_id"]; present && !isNull(raw) {
		var id string
		if json.Unmarshal(raw, &id) != nil {
			id = string(bytes.TrimSpace(raw))
		}
		ev.BotID = &id
	}
	return ev
}

// objectFields splits raw into its members. ok is false for null and for any
// non-object value.
func objectFields(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

func stringField(fields map[string]json.RawMessage, key string) string {
	var s string
	if raw, ok := fields[key]; ok && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
