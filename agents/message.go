package agents

import (
	"fmt"
	"strings"
)

// MessageType is the kind of an inbound chat message.
type MessageType string

const (
	MessageText        MessageType = "text"
	MessageImage       MessageType = "image"
	MessageInteractive MessageType = "interactive"
	MessageLocation    MessageType = "location"
	MessageVideo       MessageType = "video"
	MessageAudio       MessageType = "audio"
	MessageDocument    MessageType = "document"
)

// ParseMessageType maps a channel type string onto a MessageType. Unknown
// kinds are reported as text.
func ParseMessageType(s string) MessageType {
	switch t := MessageType(strings.ToLower(strings.TrimSpace(s))); t {
	case MessageImage, MessageInteractive, MessageLocation, MessageVideo, MessageAudio, MessageDocument:
		return t
	default:
		return MessageText
	}
}

// InboundMessage is one user message from any channel. SenderID is the raw
// identifier (phone number); UserID is the derived pseudonymous id and is
// filled in by FinanceAgent when empty.
type InboundMessage struct {
	UserID     string      `json:"user_id,omitempty"`
	SenderID   string      `json:"sender_id"`
	SenderName string      `json:"sender_name,omitempty"`
	Type       MessageType `json:"type"`
	Content    string      `json:"content"`
	ImageURL   string      `json:"image_url,omitempty"`
	ImagePath  string      `json:"image_path,omitempty"`
	Source     string      `json:"source,omitempty"`
}

// Context renders the message as the loop input. The raw sender id is shown
// as the User ID; the model derives the stored id through get_user_id.
func (m InboundMessage) Context() string {
	typ := m.Type
	if typ == "" {
		typ = MessageText
	}
	var b strings.Builder
	fmt.Fprintf(&b, "User ID: %s\n", m.SenderID)
	fmt.Fprintf(&b, "Message Type: %s\n", typ)
	fmt.Fprintf(&b, "Message Content: %s\n", m.Content)
	fmt.Fprintf(&b, "Image URL: %s\n", m.ImageURL)
	fmt.Fprintf(&b, "Image File Path: %s\n", m.ImagePath)
	fmt.Fprintf(&b, "Source: %s", m.Source)
	return b.String()
}
