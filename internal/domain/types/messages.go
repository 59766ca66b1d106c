package types

import (
	"encoding/json"
	"time"
)

// MessageType classifies message content.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageFile, MessageSystem:
		return true
	}
	return false
}

// Envelope is the logical message before encryption.
type Envelope struct {
	MessageID   MessageID   `json:"message_id" cbor:"1,keyasint"`
	SenderID    UserID      `json:"sender_id" cbor:"2,keyasint"`
	RecipientID UserID      `json:"recipient_id,omitempty" cbor:"3,keyasint,omitempty"`
	GroupID     string      `json:"group_id,omitempty" cbor:"4,keyasint,omitempty"`
	Content     string      `json:"content" cbor:"5,keyasint"`
	Type        MessageType `json:"type" cbor:"6,keyasint"`
	Timestamp   int64       `json:"timestamp" cbor:"7,keyasint"`
	// PreKeyID names the recipient's one-time prekey the session was built
	// on. Only the first message of a session carries it.
	PreKeyID PrekeyID `json:"pre_key_id,omitempty" cbor:"8,keyasint,omitempty"`
}

// MessageStatus is the delivery state of a tracked message.
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

func (s MessageStatus) rank() int {
	switch s {
	case StatusSending:
		return 1
	case StatusSent:
		return 2
	case StatusDelivered:
		return 3
	case StatusRead:
		return 4
	}
	return 0
}

// Advance returns the status after applying next, and whether it changed.
// Statuses only move forward; failed is terminal and only reachable from
// sending.
func (s MessageStatus) Advance(next MessageStatus) (MessageStatus, bool) {
	if s == StatusFailed {
		return s, false
	}
	if next == StatusFailed {
		if s == StatusSending {
			return StatusFailed, true
		}
		return s, false
	}
	if next.rank() > s.rank() {
		return next, true
	}
	return s, false
}

// Message is the delivery-tracked record visible to the user.
type Message struct {
	ID             MessageID     `json:"id"`
	TempID         MessageID     `json:"temp_id,omitempty"`
	SenderID       UserID        `json:"sender_id"`
	SenderDeviceID DeviceID      `json:"sender_device_id,omitempty"`
	RecipientID    UserID        `json:"recipient_id,omitempty"`
	GroupID        string        `json:"group_id,omitempty"`
	Content        string        `json:"encrypted_content"`
	Type           MessageType   `json:"message_type"`
	CreatedAt      time.Time     `json:"created_at"`
	Status         MessageStatus `json:"status,omitempty"`
}

// ReceiptKind is the acknowledgement carried by a Receipt.
type ReceiptKind string

const (
	ReceiptDelivered ReceiptKind = "delivered"
	ReceiptRead      ReceiptKind = "read"
)

// Valid reports whether k is a known receipt kind.
func (k ReceiptKind) Valid() bool { return k == ReceiptDelivered || k == ReceiptRead }

// Status maps a receipt kind to the message status it implies.
func (k ReceiptKind) Status() MessageStatus {
	if k == ReceiptRead {
		return StatusRead
	}
	return StatusDelivered
}

// Receipt acknowledges delivery or reading of a message by a user.
type Receipt struct {
	MessageID MessageID   `json:"message_id"`
	UserID    UserID      `json:"user_id"`
	Kind      ReceiptKind `json:"type"`
	Timestamp time.Time   `json:"created_at"`
}

// Target addresses a send: exactly one of UserID or GroupID is set.
type Target struct {
	UserID  UserID `json:"user_id,omitempty"`
	GroupID string `json:"group_id,omitempty"`
}

// IsGroup reports whether the target is a group.
func (t Target) IsGroup() bool { return t.GroupID != "" }

// Conversation selects the messages of one chat.
type Conversation = Target

// Contains reports whether m belongs to the conversation as seen by self.
func (t Target) Contains(m Message, self UserID) bool {
	if t.GroupID != "" {
		return m.GroupID == t.GroupID
	}
	if m.GroupID != "" || t.UserID == "" {
		return false
	}
	return (m.SenderID == t.UserID && m.RecipientID == self) ||
		(m.SenderID == self && m.RecipientID == t.UserID)
}

// FileDescriptor is the content of a file message.
type FileDescriptor struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
	URL      string `json:"url"`
}

// Page bounds a history fetch.
type Page struct {
	Since time.Time
	Limit int
}

// Frame types exchanged over the realtime connection.
const (
	FrameNewMessage      = "new_message"
	FrameMessageReceipt  = "message_receipt"
	FramePing            = "ping"
	FramePong            = "pong"
	FrameMessageReceived = "message_received"
)

// Frame is a realtime notification.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewFrame marshals payload into a Frame of the given type.
func NewFrame(typ string, payload any) (Frame, error) {
	if payload == nil {
		return Frame{Type: typ}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: typ, Payload: b}, nil
}
