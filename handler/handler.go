package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"order-agent/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	errorInternal     = "INTERNAL_ERROR"
)

// ConversationService is the engine surface exposed over HTTP.
type ConversationService interface {
	StartConversation(ctx context.Context, orderID, lang string) (string, error)
	ProcessMessage(ctx context.Context, orderID, text, lang string) (string, error)
	ResetConversation(ctx context.Context, orderID string) (usecase.ResetOutput, error)
}

type startRequest struct {
	Language string `json:"language"`
}

type messageRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type replyResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type Handler struct {
	svc    ConversationService
	logger *zap.Logger
}

type Option func(*Handler)

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHandler(svc ConversationService, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: conversation service must not be nil")
	}
	h := &Handler{svc: svc, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle serves API Gateway proxy requests for the conversation routes.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := h.logger.With(zap.String("correlation_id", correlationID))

	if req.HTTPMethod != http.MethodPost {
		return respond(http.StatusMethodNotAllowed, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "method_not_allowed"}, correlationID), nil
	}
	orderID, action, ok := parseRoute(req)
	if !ok {
		return respond(http.StatusNotFound, errorResponse{Error: "NOT_FOUND", Reason: "unknown_route"}, correlationID), nil
	}

	switch action {
	case "conversation":
		var in startRequest
		if !decodeOptional(req.Body, &in) {
			return invalidBody(correlationID), nil
		}
		msg, err := h.svc.StartConversation(ctx, orderID, in.Language)
		if err != nil {
			return h.errorResponse(log, err, correlationID), nil
		}
		return respond(http.StatusOK, messageResponse{Message: msg}, correlationID), nil

	case "messages":
		var in messageRequest
		if err := json.Unmarshal([]byte(req.Body), &in); err != nil {
			return invalidBody(correlationID), nil
		}
		reply, err := h.svc.ProcessMessage(ctx, orderID, in.Text, in.Language)
		if err != nil {
			return h.errorResponse(log, err, correlationID), nil
		}
		return respond(http.StatusOK, replyResponse{Reply: reply}, correlationID), nil

	default: // reset
		out, err := h.svc.ResetConversation(ctx, orderID)
		if err != nil {
			return h.errorResponse(log, err, correlationID), nil
		}
		return respond(http.StatusOK, messageResponse{Message: out.Message}, correlationID), nil
	}
}

// parseRoute matches /orders/{id}/conversation, /orders/{id}/messages and
// /orders/{id}/conversation/reset, tolerating a stage prefix.
func parseRoute(req events.APIGatewayProxyRequest) (orderID, action string, ok bool) {
	segs := strings.Split(strings.Trim(req.Path, "/"), "/")
	for i, s := range segs {
		if s != "orders" || i+2 >= len(segs) {
			continue
		}
		orderID = segs[i+1]
		if id := req.PathParameters["id"]; id != "" {
			orderID = id
		}
		rest := strings.Join(segs[i+2:], "/")
		switch rest {
		case "conversation", "messages":
			return orderID, rest, orderID != ""
		case "conversation/reset":
			return orderID, "reset", orderID != ""
		}
		return "", "", false
	}
	return "", "", false
}

// StatusFor maps engine error codes to HTTP statuses.
func StatusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorOrderNotFound:
		return http.StatusNotFound
	case usecase.ErrorConversationTerminal:
		return http.StatusConflict
	case usecase.ErrorBackendQuota:
		return http.StatusTooManyRequests
	case usecase.ErrorBackendUnavailable, usecase.ErrorUnrecoverableParse:
		return http.StatusBadGateway
	case usecase.ErrorModificationNotApplicable, usecase.ErrorUnmatchedShape:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) errorResponse(log *zap.Logger, err error, correlationID string) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		status := StatusFor(ucErr.Code)
		if status >= 500 {
			log.Error("request failed", zap.String("code", string(ucErr.Code)), zap.Error(err))
		}
		return respond(status, errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason}, correlationID)
	}
	log.Error("unexpected error", zap.Error(err))
	return respond(http.StatusInternalServerError, errorResponse{Error: errorInternal}, correlationID)
}

func invalidBody(correlationID string) events.APIGatewayProxyResponse {
	return respond(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"}, correlationID)
}

// decodeOptional accepts an empty body.
func decodeOptional(body string, v any) bool {
	if strings.TrimSpace(body) == "" {
		return true
	}
	return json.Unmarshal([]byte(body), v) == nil
}

func respond(status int, body any, correlationID string) events.APIGatewayProxyResponse {
	payload, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		payload = []byte(`{"error":"` + errorInternal + `"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(payload),
	}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
