package signaling

import (
	"encoding/json"
	"fmt"
)

// MessageType names an event on the relay wire.
type MessageType string

const (
	// Client to relay
	MessageTypeJoinRoom  MessageType = "join-room"
	MessageTypeLeaveRoom MessageType = "leave-room"

	// Relay to client
	MessageTypeRoomJoined       MessageType = "room-joined"
	MessageTypeRoomNotFound     MessageType = "room-not-found"
	MessageTypeUserConnected    MessageType = "user-connected"
	MessageTypeUserDisconnected MessageType = "user-disconnected"

	// Relayed verbatim to the other members of a room
	MessageTypeOffer            MessageType = "offer"
	MessageTypeAnswer           MessageType = "answer"
	MessageTypeICECandidate     MessageType = "ice-candidate"
	MessageTypeCallAccepted     MessageType = "call-accepted"
	MessageTypeControlAction    MessageType = "control-action"
	MessageTypePermissionUpdate MessageType = "permission-update"
)

// Relayable reports whether the relay forwards messages of this type to the
// other members of a room without interpreting them.
func (t MessageType) Relayable() bool {
	switch t {
	case MessageTypeOffer, MessageTypeAnswer, MessageTypeICECandidate,
		MessageTypeCallAccepted, MessageTypeControlAction,
		MessageTypePermissionUpdate, MessageTypeUserDisconnected:
		return true
	}
	return false
}

// Message is the envelope exchanged between clients and the relay.
// PeerID carries the requester id on join-room, the subject of
// user-connected and user-disconnected, the approved caller on
// call-accepted, and the sender on relayed signaling messages.
type Message struct {
	Type    MessageType     `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	PeerID  string          `json:"peer_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SessionDescription is the payload of offer and answer messages.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate is the payload of ice-candidate messages.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// PermissionPayload is the payload of permission-update messages.
type PermissionPayload struct {
	Allowed bool `json:"allowed"`
}

// NewMessage builds a message, marshalling payload when it is not nil.
func NewMessage(t MessageType, roomID, peerID string, payload any) (*Message, error) {
	msg := &Message{Type: t, RoomID: roomID, PeerID: peerID}
	if payload == nil {
		return msg, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		msg.Payload = raw
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	msg.Payload = data
	return msg, nil
}

// Decode unmarshals the message payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Type, err)
	}
	return nil
}
