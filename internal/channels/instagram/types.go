// Package instagram is the Instagram DM channel adapter: it verifies and
// parses Meta webhook events, feeds them into the message pipeline and sends
// the generated replies back through the Graph API.
package instagram

import "time"

// WebhookEvent is the top-level structure received from Meta's webhook.
type WebhookEvent struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is a single entry in the webhook payload, one per Instagram account.
type Entry struct {
	ID        string      `json:"id"`
	Time      int64       `json:"time"`
	Messaging []Messaging `json:"messaging"`
}

// Messaging is a single messaging event.
type Messaging struct {
	Sender    Party    `json:"sender"`
	Recipient Party    `json:"recipient"`
	Timestamp int64    `json:"timestamp"`
	Message   *Message `json:"message,omitempty"`
}

// Party identifies a messaging participant by Instagram-scoped id.
type Party struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
}

// Message is the inbound message content. Echo events are the page's own
// outbound messages mirrored back and must be skipped.
type Message struct {
	MID    string `json:"mid"`
	Text   string `json:"text"`
	IsEcho bool   `json:"is_echo,omitempty"`
}

// InboundMessage is the normalized result of parsing a webhook event.
type InboundMessage struct {
	SenderID       string
	SenderUsername string
	RecipientID    string
	Text           string
	MessageID      string
	Timestamp      time.Time
}

// SendRequest is the payload sent to the Graph API to send a reply.
type SendRequest struct {
	Recipient Party       `json:"recipient"`
	Message   SendMessage `json:"message"`
}

// SendMessage is the outbound message content.
type SendMessage struct {
	Text string `json:"text"`
}

// SendResponse is the Graph API's answer to a send request.
type SendResponse struct {
	RecipientID string     `json:"recipient_id"`
	MessageID   string     `json:"message_id"`
	Error       *SendError `json:"error,omitempty"`
}

// SendError is an error object returned by the Graph API.
type SendError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
}
