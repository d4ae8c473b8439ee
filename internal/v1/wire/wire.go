// Package wire defines the single JSON envelope used for every message
// exchanged over the websocket transport, in both directions. There is no
// protobuf variant: every payload in this domain is a small structured
// object, and round-tripping it as JSON keeps client and server free of a
// generated-code dependency neither side otherwise needs.
package wire

import "encoding/json"

// Message is the envelope carried over the websocket connection. Event
// names are the inbound/outbound event names documented for the transport
// (create_room, join_room, room_created, metronome_tick, ...); Payload is
// deferred decoding so the coordinator can dispatch on Event before
// unmarshaling the payload into the concrete type that event expects.
type Message struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode marshals event/payload into a Message's wire bytes.
func Encode(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Event: event, Payload: raw})
}

// Decode parses raw wire bytes into a Message.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// DecodePayload unmarshals msg.Payload into dst.
func (m Message) DecodePayload(dst any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, dst)
}
