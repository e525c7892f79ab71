package whatsapp_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chatflow/pkg/adapters/whatsapp"
)

const textNotification = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "15550001111", "phone_number_id": "1029384756"},
        "messages": [{"from": "5511999990000", "id": "wamid.A1", "type": "text", "text": {"body": "hello there"}}]
      }
    }]
  }]
}`

const buttonNotification = `{
  "object": "whatsapp_business_account",
  "entry": [{"changes": [{"value": {
    "metadata": {"phone_number_id": "1029384756"},
    "messages": [{"from": "5511999990000", "id": "wamid.B1", "type": "interactive",
      "interactive": {"type": "button_reply", "button_reply": {"id": "btn_2_talk_to_sales", "title": "Talk to sales"}}}]
  }}]}]
}`

const statusNotification = `{
  "object": "whatsapp_business_account",
  "entry": [{"changes": [{"value": {
    "metadata": {"phone_number_id": "1029384756"},
    "statuses": [{"id": "wamid.A1", "status": "delivered"}]
  }}]}]
}`

func TestParseWebhook_Text(t *testing.T) {
	in, ok, err := whatsapp.ParseWebhook([]byte(textNotification))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1029384756", in.PhoneNumberID)
	assert.Equal(t, "5511999990000", in.From)
	assert.Equal(t, "wamid.A1", in.MessageID)
	assert.Equal(t, "hello there", in.Text)
	assert.Empty(t, in.ButtonReplyID)
}

func TestParseWebhook_ButtonReply(t *testing.T) {
	in, ok, err := whatsapp.ParseWebhook([]byte(buttonNotification))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "btn_2_talk_to_sales", in.ButtonReplyID)
	assert.Equal(t, "Talk to sales", in.ButtonTitle)
	assert.Empty(t, in.Text)
}

func TestParseWebhook_TemplateQuickReply(t *testing.T) {
	body := `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{
		"metadata":{"phone_number_id":"1"},
		"messages":[{"from":"55","id":"wamid.C","type":"button","button":{"payload":"YES","text":"Yes"}}]}}]}]}`
	in, ok, err := whatsapp.ParseWebhook([]byte(body))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "YES", in.ButtonReplyID)
}

func TestParseWebhook_Ignored(t *testing.T) {
	_, ok, err := whatsapp.ParseWebhook([]byte(statusNotification))
	require.NoError(t, err)
	assert.False(t, ok)

	media := `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{
		"metadata":{"phone_number_id":"1"},
		"messages":[{"from":"55","id":"wamid.D","type":"image","image":{"id":"x"}}]}}]}]}`
	_, ok, err = whatsapp.ParseWebhook([]byte(media))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseWebhook_Rejected(t *testing.T) {
	_, _, err := whatsapp.ParseWebhook([]byte(`{"object":"page","entry":[]}`))
	assert.ErrorIs(t, err, whatsapp.ErrUnknownObject)

	_, _, err = whatsapp.ParseWebhook([]byte(`not json`))
	assert.ErrorIs(t, err, whatsapp.ErrMalformedPayload)
}

func TestVerify(t *testing.T) {
	q := url.Values{}
	q.Set("hub.mode", "subscribe")
	q.Set("hub.verify_token", "s3cret")
	q.Set("hub.challenge", "1158201444")

	challenge, ok := whatsapp.Verify(q, "s3cret")
	assert.True(t, ok)
	assert.Equal(t, "1158201444", challenge)

	_, ok = whatsapp.Verify(q, "other")
	assert.False(t, ok)

	_, ok = whatsapp.Verify(q, "")
	assert.False(t, ok, "an unset token never verifies")

	q.Set("hub.mode", "unsubscribe")
	_, ok = whatsapp.Verify(q, "s3cret")
	assert.False(t, ok)
}
