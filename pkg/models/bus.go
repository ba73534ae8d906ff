package models

import "time"

// RecipientKind distinguishes a direct bot-to-bot message from a
// channel broadcast.
type RecipientKind string

const (
	RecipientDirect  RecipientKind = "direct"
	RecipientChannel RecipientKind = "channel"
)

// Recipient names a BotMessage's destination: either a specific bot (for
// direct mailbox delivery) or a named channel (for broadcast).
type Recipient struct {
	Kind    RecipientKind `json:"kind"`
	BotID   string        `json:"bot_id,omitempty"`
	Channel string        `json:"channel,omitempty"`
}

// BotMessage is the envelope exchanged over the inter-bot message bus
// (spec.md §3, §4.11).
type BotMessage struct {
	ID          string         `json:"id"`
	SenderBotID string         `json:"sender_bot_id"`
	SenderName  string         `json:"sender_name"`
	Recipient   Recipient      `json:"recipient"`
	MessageType string         `json:"message_type"`
	Payload     map[string]any `json:"payload,omitempty"`
	ReplyTo     string         `json:"reply_to,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
