// Package whatsapp is the channel boundary: inbound webhook payload shapes,
// the webhook handler, and the outbound send client. Payloads vary across
// provider versions, so every field here is optional and accessors tolerate
// absence.
package whatsapp

import "strings"

// Envelope is the webhook body. Event distinguishes message deliveries from
// status callbacks.
type Envelope struct {
	Event string `json:"event"`
	Data  Data   `json:"data"`
}

// MediaObject is one shape media arrives in.
type MediaObject struct {
	URL      string `json:"url"`
	FileURL  string `json:"fileUrl"`
	Mimetype string `json:"mimetype"`
	Filename string `json:"filename"`
}

// InnerText is the nested text shape (message.text.body).
type InnerText struct {
	Body string `json:"body"`
}

// InnerMessage is the nested message object some providers wrap content in.
type InnerMessage struct {
	Text     *InnerText   `json:"text"`
	Media    *MediaObject `json:"media"`
	URL      string       `json:"url"`
	Mimetype string       `json:"mimetype"`
}

// Data is the message payload. At minimum an id and one of the sender
// fields are expected; everything else depends on the message kind and the
// provider mood of the day.
type Data struct {
	ID         string        `json:"id"`
	FromNumber string        `json:"fromNumber"`
	From       string        `json:"from"`
	Body       string        `json:"body"`
	FromMe     bool          `json:"fromMe"`
	Self       bool          `json:"self"`
	Flow       string        `json:"flow"`
	Type       string        `json:"type"`
	Media      *MediaObject  `json:"media"`
	Message    *InnerMessage `json:"message"`
	URL        string        `json:"url"`
	FileURL    string        `json:"fileUrl"`
	Mimetype   string        `json:"mimetype"`
}

// Phone returns the sender phone, preferring fromNumber over from.
func (d Data) Phone() string {
	if strings.TrimSpace(d.FromNumber) != "" {
		return d.FromNumber
	}
	return d.From
}

// Text returns the message text, preferring the top-level body over the
// nested message.text.body.
func (d Data) Text() string {
	if strings.TrimSpace(d.Body) != "" {
		return d.Body
	}
	if d.Message != nil && d.Message.Text != nil {
		return d.Message.Text.Body
	}
	return ""
}

// Outbound is the send-message API body.
type Outbound struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}
