package models

import "time"

// Email represents a message returned by an inbound message source
type Email struct {
	ID      string    `json:"id"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`   // plain-text body
	Sender  string    `json:"sender"` // raw From header
	Date    time.Time `json:"date"`
}

// Reminder is a one-shot notification scheduled ahead of an appointment.
// FireTime is always EventTime minus the configured lead time.
type Reminder struct {
	SourceID  string    `json:"sourceId"`
	Subject   string    `json:"subject"`
	EventTime time.Time `json:"eventTime"`
	FireTime  time.Time `json:"fireTime"`
}

// IsDue reports whether the reminder should be dispatched at now
func (r Reminder) IsDue(now time.Time) bool {
	return !now.Before(r.FireTime)
}

// WebhookPayload is the message body posted to the chat webhook
type WebhookPayload struct {
	Content string  `json:"content"`
	Embeds  []Embed `json:"embeds"`
}

// Embed is a single rich card inside a webhook payload.
// Color is 24-bit RGB and Timestamp is ISO-8601.
type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Fields      []EmbedField `json:"fields"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

// EmbedField is a name/value row inside an embed
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}
