// Package whatsapp adapts the WhatsApp Cloud API: webhook intake and message delivery.
package whatsapp

import (
	"errors"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// ObjectType is the webhook "object" value of WhatsApp Business notifications.
const ObjectType = "whatsapp_business_account"

// ErrUnknownObject is returned for webhook payloads not emitted by WhatsApp Business.
var ErrUnknownObject = errors.New("webhook object is not a whatsapp business account")

// ErrMalformedPayload is returned when the webhook body is not JSON.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// Inbound is the part of a webhook notification the runtime consumes.
type Inbound struct {
	PhoneNumberID string
	From          string
	MessageID     string
	Text          string
	ButtonReplyID string
	ButtonTitle   string
}

// ParseWebhook extracts the first message of a notification. ok is false for
// notifications that carry no usable message (status updates, media, reactions),
// which callers acknowledge without processing.
func ParseWebhook(body []byte) (in Inbound, ok bool, err error) {
	if !gjson.ValidBytes(body) {
		return Inbound{}, false, ErrMalformedPayload
	}
	root := gjson.ParseBytes(body)
	if root.Get("object").String() != ObjectType {
		return Inbound{}, false, ErrUnknownObject
	}

	value := root.Get("entry.0.changes.0.value")
	msg := value.Get("messages.0")
	in = Inbound{
		PhoneNumberID: value.Get("metadata.phone_number_id").String(),
		From:          msg.Get("from").String(),
		MessageID:     msg.Get("id").String(),
		Text:          msg.Get("text.body").String(),
		ButtonReplyID: msg.Get("interactive.button_reply.id").String(),
		ButtonTitle:   msg.Get("interactive.button_reply.title").String(),
	}
	// Quick-reply buttons of template messages arrive as type "button".
	if in.ButtonReplyID == "" && msg.Get("type").String() == "button" {
		in.ButtonReplyID = msg.Get("button.payload").String()
		in.ButtonTitle = msg.Get("button.text").String()
	}

	if in.PhoneNumberID == "" || in.From == "" || !msg.Exists() {
		return in, false, nil
	}
	if in.Text == "" && in.ButtonReplyID == "" {
		return in, false, nil
	}
	return in, true, nil
}

// Verify answers the subscription handshake. It returns the challenge to echo and
// true when hub.mode is "subscribe" and the token matches.
func Verify(query url.Values, verifyToken string) (string, bool) {
	if verifyToken == "" {
		return "", false
	}
	if query.Get("hub.mode") != "subscribe" || query.Get("hub.verify_token") != verifyToken {
		return "", false
	}
	return strings.TrimSpace(query.Get("hub.challenge")), true
}
