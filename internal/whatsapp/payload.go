package whatsapp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// IncomingMessage is one user message extracted from a webhook delivery.
type IncomingMessage struct {
	ID        string
	From      string
	Name      string
	Type      string
	Text      string
	MediaID   string
	MimeType  string
	Timestamp string
}

// ErrInvalidPayload is returned for bodies that are not valid JSON.
var ErrInvalidPayload = errors.New("invalid webhook payload")

// ParseWebhook extracts every user message from a Cloud API webhook body.
// Status callbacks carry no messages and yield an empty slice.
func ParseWebhook(body []byte) ([]IncomingMessage, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidPayload
	}
	var out []IncomingMessage
	gjson.GetBytes(body, "entry").ForEach(func(_, entry gjson.Result) bool {
		entry.Get("changes").ForEach(func(_, change gjson.Result) bool {
			value := change.Get("value")
			names := map[string]string{}
			value.Get("contacts").ForEach(func(_, c gjson.Result) bool {
				names[c.Get("wa_id").String()] = c.Get("profile.name").String()
				return true
			})
			value.Get("messages").ForEach(func(_, m gjson.Result) bool {
				msg := parseMessage(m)
				msg.Name = names[msg.From]
				out = append(out, msg)
				return true
			})
			return true
		})
		return true
	})
	return out, nil
}

func parseMessage(m gjson.Result) IncomingMessage {
	msg := IncomingMessage{
		ID:        m.Get("id").String(),
		From:      m.Get("from").String(),
		Type:      m.Get("type").String(),
		Timestamp: m.Get("timestamp").String(),
	}
	switch msg.Type {
	case "text":
		msg.Text = m.Get("text.body").String()
	case "image", "video", "audio", "document":
		media := m.Get(msg.Type)
		msg.MediaID = media.Get("id").String()
		msg.MimeType = media.Get("mime_type").String()
		msg.Text = media.Get("caption").String()
	case "interactive":
		msg.Text = firstString(m, "interactive.button_reply.title", "interactive.list_reply.title")
	case "button":
		msg.Text = m.Get("button.text").String()
	case "location":
		loc := m.Get("location")
		parts := []string{fmt.Sprintf("%v,%v", loc.Get("latitude").Float(), loc.Get("longitude").Float())}
		for _, key := range []string{"name", "address"} {
			if v := loc.Get(key).String(); v != "" {
				parts = append(parts, v)
			}
		}
		msg.Text = strings.Join(parts, " ")
	}
	return msg
}

func firstString(m gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := m.Get(p).String(); v != "" {
			return v
		}
	}
	return ""
}
