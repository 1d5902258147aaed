package handler

import (
	"time"

	"metro-assistant/internal/domain"
)

// webhookPayload is the subset of the WhatsApp Cloud API webhook body the
// assistant reads.
type webhookPayload struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID      string   `json:"id"`
	Changes []change `json:"changes"`
}

type change struct {
	Field string      `json:"field"`
	Value changeValue `json:"value"`
}

type changeValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Messages         []inboundMessage `json:"messages"`
}

type inboundMessage struct {
	From        string       `json:"from"`
	ID          string       `json:"id"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *textPart    `json:"text,omitempty"`
	Interactive *interactive `json:"interactive,omitempty"`
	Button      *buttonPart  `json:"button,omitempty"`
}

type textPart struct {
	Body string `json:"body"`
}

type interactive struct {
	Type        string     `json:"type"`
	ButtonReply *replyPart `json:"button_reply,omitempty"`
	ListReply   *replyPart `json:"list_reply,omitempty"`
}

type replyPart struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type buttonPart struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

// inboundMessages flattens the payload into router messages, skipping
// status callbacks and message types the assistant does not handle.
func (p webhookPayload) inboundMessages(now func() time.Time) []domain.InboundMessage {
	var out []domain.InboundMessage
	for _, e := range p.Entry {
		for _, c := range e.Changes {
			for _, m := range c.Value.Messages {
				if msg, ok := m.toDomain(now); ok {
					out = append(out, msg)
				}
			}
		}
	}
	return out
}

func (m inboundMessage) toDomain(now func() time.Time) (domain.InboundMessage, bool) {
	msg := domain.InboundMessage{
		ID:        m.ID,
		Sender:    m.From,
		ArrivedAt: parseTimestamp(m.Timestamp, now),
	}
	if m.From == "" {
		return domain.InboundMessage{}, false
	}
	switch m.Type {
	case "text":
		if m.Text == nil || m.Text.Body == "" {
			return domain.InboundMessage{}, false
		}
		msg.Kind = domain.KindText
		msg.Body = m.Text.Body
	case "interactive":
		if m.Interactive == nil {
			return domain.InboundMessage{}, false
		}
		reply := m.Interactive.ButtonReply
		if m.Interactive.Type == "list_reply" {
			reply = m.Interactive.ListReply
		}
		if reply == nil || reply.ID == "" {
			return domain.InboundMessage{}, false
		}
		msg.Kind = domain.KindButton
		msg.Body = reply.ID
	case "button":
		if m.Button == nil || m.Button.Payload == "" {
			return domain.InboundMessage{}, false
		}
		msg.Kind = domain.KindButton
		msg.Body = m.Button.Payload
	default:
		return domain.InboundMessage{}, false
	}
	return msg, true
}
