// Package handler adapts WhatsApp webhook deliveries arriving through API
// Gateway to the message router.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"metro-assistant/internal/domain"
)

type errorCode string

const (
	errorInvalidInput errorCode = "INVALID_INPUT"

	correlationHeader = "X-Correlation-Id"
)

// Router decides the reply for one inbound message.
type Router interface {
	Route(ctx context.Context, msg domain.InboundMessage) domain.Outcome
}

// Messenger transmits replies to a WhatsApp user.
type Messenger interface {
	SendText(ctx context.Context, to, text string) error
	SendOptions(ctx context.Context, to, text string, options []string) error
}

type Handler struct {
	router    Router
	messenger Messenger
	logger    *slog.Logger
	now       func() time.Time
}

type webhookResponse struct {
	Status     string `json:"status"`
	Received   int    `json:"received"`
	Suppressed int    `json:"suppressed"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHandler(r Router, m Messenger) (*Handler, error) {
	if r == nil {
		return nil, errors.New("handler: router must not be nil")
	}
	if m == nil {
		return nil, errors.New("handler: messenger must not be nil")
	}
	return &Handler{router: r, messenger: m, logger: slog.Default(), now: time.Now}, nil
}

// Handle routes every message in a webhook delivery and sends the replies.
// Valid payloads always get 200 so the provider does not redeliver; send
// failures are logged.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(event.Headers)
	logger := h.logger.With("correlation_id", corrID)

	body := event.Body
	if event.IsBase64Encoded {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			logger.Warn("invalid base64 webhook body", "err", err)
			return jsonResponse(http.StatusBadRequest, corrID, errorResponse{Error: string(errorInvalidInput)}), nil
		}
		body = string(raw)
	}

	var payload webhookPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		logger.Warn("invalid webhook payload", "err", err)
		return jsonResponse(http.StatusBadRequest, corrID, errorResponse{Error: string(errorInvalidInput)}), nil
	}

	out := webhookResponse{Status: "ok"}
	for _, msg := range payload.inboundMessages(h.now) {
		out.Received++
		outcome := h.router.Route(ctx, msg)
		if outcome.Suppressed() {
			out.Suppressed++
			continue
		}
		if err := h.send(ctx, msg.Sender, outcome.Reply); err != nil {
			logger.Error("failed to send reply",
				"sender", msg.Sender,
				"message_id", msg.ID,
				"intent", string(outcome.Intent),
				"err", err,
			)
		}
	}
	return jsonResponse(http.StatusOK, corrID, out), nil
}

func (h *Handler) send(ctx context.Context, to string, reply domain.Reply) error {
	if len(reply.Options) > 0 {
		return h.messenger.SendOptions(ctx, to, reply.Text, reply.Options)
	}
	return h.messenger.SendText(ctx, to, reply.Text)
}

func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return newUUID()
}

func jsonResponse(status int, corrID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: corrID,
		},
		Body: string(body),
	}
}

var newUUID = func() string {
	return uuid.NewString()
}

// parseTimestamp reads the provider's unix-seconds timestamp.
func parseTimestamp(s string, now func() time.Time) time.Time {
	sec, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || sec <= 0 {
		return now()
	}
	return time.Unix(sec, 0)
}
