package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"metro-assistant/internal/domain"
)

type stubRouter struct {
	outcomes map[string]domain.Outcome // keyed by message body
	seen     []domain.InboundMessage
}

func (s *stubRouter) Route(_ context.Context, msg domain.InboundMessage) domain.Outcome {
	s.seen = append(s.seen, msg)
	if o, ok := s.outcomes[msg.Body]; ok {
		return o
	}
	return domain.Outcome{Kind: domain.OutcomeReplied, Reply: domain.Reply{Text: "reply to " + msg.Body}}
}

type sentMessage struct {
	to      string
	text    string
	options []string
}

type stubMessenger struct {
	sent []sentMessage
	err  error
}

func (s *stubMessenger) SendText(_ context.Context, to, text string) error {
	s.sent = append(s.sent, sentMessage{to: to, text: text})
	return s.err
}

func (s *stubMessenger) SendOptions(_ context.Context, to, text string, options []string) error {
	s.sent = append(s.sent, sentMessage{to: to, text: text, options: options})
	return s.err
}

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/webhook",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

const textDelivery = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "messages": [
          {"from": "919800000001", "id": "wamid.1", "timestamp": "1756717200", "type": "text", "text": {"body": "hi"}},
          {"from": "919800000001", "id": "wamid.2", "timestamp": "1756717201", "type": "interactive",
           "interactive": {"type": "button_reply", "button_reply": {"id": "qr_1", "title": "Fares"}}},
          {"from": "919800000002", "id": "wamid.3", "timestamp": "1756717202", "type": "interactive",
           "interactive": {"type": "list_reply", "list_reply": {"id": "qr_3", "title": "Festival Info"}}},
          {"from": "919800000002", "id": "wamid.4", "timestamp": "1756717203", "type": "button",
           "button": {"payload": "btn_2", "text": "Schedules"}},
          {"from": "919800000003", "id": "wamid.5", "timestamp": "1756717204", "type": "image"}
        ]
      }
    }]
  }]
}`

func TestNewHandler_ValidatesDependencies(t *testing.T) {
	_, err := NewHandler(nil, &stubMessenger{})
	require.Error(t, err)
	_, err = NewHandler(&stubRouter{}, nil)
	require.Error(t, err)
}

func TestHandle_RoutesEveryMessage(t *testing.T) {
	r := &stubRouter{}
	m := &stubMessenger{}
	h, err := NewHandler(r, m)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(textDelivery))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])

	require.Len(t, r.seen, 4)
	require.Equal(t, domain.InboundMessage{
		ID: "wamid.1", Sender: "919800000001", Kind: domain.KindText, Body: "hi",
		ArrivedAt: time.Unix(1756717200, 0),
	}, r.seen[0])
	require.Equal(t, domain.KindButton, r.seen[1].Kind)
	require.Equal(t, "qr_1", r.seen[1].Body)
	require.Equal(t, "qr_3", r.seen[2].Body)
	require.Equal(t, "btn_2", r.seen[3].Body)

	require.Len(t, m.sent, 4)
	require.Equal(t, sentMessage{to: "919800000001", text: "reply to hi"}, m.sent[0])

	out := parseBody[webhookResponse](t, resp.Body)
	require.Equal(t, webhookResponse{Status: "ok", Received: 4}, out)
}

func TestHandle_SuppressedAndOptions(t *testing.T) {
	r := &stubRouter{outcomes: map[string]domain.Outcome{
		"hi":   {Kind: domain.OutcomeReplied, Reply: domain.Reply{Text: "Welcome", Options: []string{"A", "B", "C"}}},
		"qr_1": {Kind: domain.OutcomeSuppressed},
	}}
	m := &stubMessenger{}
	h, err := NewHandler(r, m)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(textDelivery))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, m.sent, 3)
	require.Equal(t, []string{"A", "B", "C"}, m.sent[0].options)

	out := parseBody[webhookResponse](t, resp.Body)
	require.Equal(t, 1, out.Suppressed)
}

func TestHandle_SendFailureStillOK(t *testing.T) {
	h, err := NewHandler(&stubRouter{}, &stubMessenger{err: errors.New("graph api down")})
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(textDelivery))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandle_StatusCallbackOnly(t *testing.T) {
	r := &stubRouter{}
	h, err := NewHandler(r, &stubMessenger{})
	require.NoError(t, err)

	body := `{"object":"whatsapp_business_account","entry":[{"changes":[{"field":"messages","value":{"statuses":[{"id":"wamid.x","status":"delivered"}]}}]}]}`
	resp, err := h.Handle(context.Background(), makeEvent(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, r.seen)
}

func TestHandle_InvalidBody(t *testing.T) {
	h, err := NewHandler(&stubRouter{}, &stubMessenger{})
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(`not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(errorInvalidInput), out.Error)
}

func TestHandle_Base64Body(t *testing.T) {
	r := &stubRouter{}
	h, err := NewHandler(r, &stubMessenger{})
	require.NoError(t, err)

	event := makeEvent(base64.StdEncoding.EncodeToString([]byte(textDelivery)))
	event.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, r.seen, 4)

	event = makeEvent("%%%")
	event.IsBase64Encoded = true
	resp, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h, err := NewHandler(&stubRouter{}, &stubMessenger{})
	require.NoError(t, err)

	event := makeEvent(`{"entry":[]}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

func TestHandle_GeneratesCorrelationID(t *testing.T) {
	orig := newUUID
	newUUID = func() string { return "generated-id" }
	t.Cleanup(func() { newUUID = orig })

	h, err := NewHandler(&stubRouter{}, &stubMessenger{})
	require.NoError(t, err)
	resp, err := h.Handle(context.Background(), makeEvent(`{}`))
	require.NoError(t, err)
	require.Equal(t, "generated-id", resp.Headers["X-Correlation-Id"])
}

func TestParseTimestamp(t *testing.T) {
	fixed := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return fixed }
	require.Equal(t, time.Unix(1756717200, 0), parseTimestamp("1756717200", now))
	require.Equal(t, fixed, parseTimestamp("", now))
	require.Equal(t, fixed, parseTimestamp("soon", now))
}
