package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"order-agent/internal/domain"
	"order-agent/internal/language"
	"order-agent/internal/lock"
	"order-agent/internal/modification"
)

const (
	defaultIdleThreshold    = 30 * time.Minute
	defaultMaxTokens        = 256
	defaultMaxMessageLength = 1000
)

type OrderStore interface {
	// GetOrder returns nil and no error when the order does not exist.
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	UpdateOrder(ctx context.Context, orderID string, update domain.OrderUpdate) error
}

type ConversationStore interface {
	// GetConversation returns nil and no error when no conversation exists.
	GetConversation(ctx context.Context, orderID string) (*domain.ConversationState, error)
	UpdateConversation(ctx context.Context, state *domain.ConversationState) error
	DeleteConversation(ctx context.Context, orderID string) error
}

type Store interface {
	OrderStore
	ConversationStore
}

// Generator is the text generation backend.
type Generator interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// TurnLocker serialises turns of one order.
type TurnLocker interface {
	Lock(ctx context.Context, orderID string) (unlock func(), err error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event domain.OrderStatusEvent) error
}

// Metrics receives per-turn measurements.
type Metrics interface {
	TurnHandled(path string, d time.Duration)
	BackendFailure(code string)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type ConfirmationService struct {
	store      Store
	gen        Generator
	locker     TurnLocker
	publisher  EventPublisher
	metrics    Metrics
	logger     *zap.Logger
	tracer     trace.Tracer
	normalizer *modification.Normalizer
	now        func() time.Time

	idleThreshold time.Duration
	maxTokens     int
	maxMessageLen int
	defaultLang   language.Lang
}

type Option func(*ConfirmationService)

func WithLogger(l *zap.Logger) Option {
	return func(s *ConfirmationService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithLocker(l TurnLocker) Option {
	return func(s *ConfirmationService) {
		if l != nil {
			s.locker = l
		}
	}
}

func WithPublisher(p EventPublisher) Option {
	return func(s *ConfirmationService) {
		s.publisher = p
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *ConfirmationService) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *ConfirmationService) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIdleThreshold(d time.Duration) Option {
	return func(s *ConfirmationService) {
		if d > 0 {
			s.idleThreshold = d
		}
	}
}

func WithMaxTokens(n int) Option {
	return func(s *ConfirmationService) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

func WithMaxMessageLength(n int) Option {
	return func(s *ConfirmationService) {
		if n > 0 {
			s.maxMessageLen = n
		}
	}
}

// WithDefaultLanguage sets the language used when nothing else decides it.
func WithDefaultLanguage(lang string) Option {
	return func(s *ConfirmationService) {
		s.defaultLang = language.Normalize(lang, language.French)
	}
}

func NewConfirmationService(store Store, gen Generator, opts ...Option) (*ConfirmationService, error) {
	if store == nil {
		return nil, errors.New("usecase: store must not be nil")
	}
	if gen == nil {
		return nil, errors.New("usecase: generator must not be nil")
	}
	s := &ConfirmationService{
		store:         store,
		gen:           gen,
		locker:        lock.NewLocal(),
		metrics:       nopMetrics{},
		logger:        zap.NewNop(),
		tracer:        otel.Tracer("order-agent/usecase"),
		now:           time.Now,
		idleThreshold: defaultIdleThreshold,
		maxTokens:     defaultMaxTokens,
		maxMessageLen: defaultMaxMessageLength,
		defaultLang:   language.French,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.normalizer = modification.NewNormalizer(s.logger)
	return s, nil
}

type ResetOutput struct {
	Message string
}

// StartConversation opens a fresh conversation for the order and returns the greeting.
func (s *ConfirmationService) StartConversation(ctx context.Context, orderID, lang string) (string, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", newError(ErrorInvalidInput, "missing_order_id", nil)
	}
	ctx, span := s.tracer.Start(ctx, "conversation.start", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	l := language.Normalize(lang, s.defaultLang)
	msgs := messagesFor(l)

	unlock, err := s.locker.Lock(ctx, orderID)
	if err != nil {
		s.logFailure(newError(ErrorStore, "turn_lock", err), orderID)
		return msgs.apology, nil
	}
	defer unlock()

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		s.logFailure(newError(ErrorStore, "get_order", err), orderID)
		return msgs.apology, nil
	}
	if reply, code, done := closedReply(order, nil, msgs); done {
		s.logRejected(newError(code, "closed", nil), orderID)
		return reply, nil
	}

	greeting, err := s.openConversation(ctx, order, l)
	if err != nil {
		s.logFailure(newError(ErrorStore, "update_conversation", err), orderID)
		return msgs.apology, nil
	}
	return greeting, nil
}

// ResetConversation drops the stored conversation and starts over in the default language.
func (s *ConfirmationService) ResetConversation(ctx context.Context, orderID string) (ResetOutput, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return ResetOutput{}, newError(ErrorInvalidInput, "missing_order_id", nil)
	}
	ctx, span := s.tracer.Start(ctx, "conversation.reset", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	msgs := messagesFor(s.defaultLang)

	unlock, err := s.locker.Lock(ctx, orderID)
	if err != nil {
		s.logFailure(newError(ErrorStore, "turn_lock", err), orderID)
		return ResetOutput{Message: msgs.apology}, nil
	}
	defer unlock()

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		s.logFailure(newError(ErrorStore, "get_order", err), orderID)
		return ResetOutput{Message: msgs.apology}, nil
	}
	if order == nil {
		s.logRejected(newError(ErrorOrderNotFound, "reset", nil), orderID)
		return ResetOutput{Message: msgs.notFound}, nil
	}
	if err := s.store.DeleteConversation(ctx, orderID); err != nil {
		s.logFailure(newError(ErrorStore, "delete_conversation", err), orderID)
		return ResetOutput{Message: msgs.apology}, nil
	}
	greeting, err := s.openConversation(ctx, order, s.defaultLang)
	if err != nil {
		s.logFailure(newError(ErrorStore, "update_conversation", err), orderID)
		return ResetOutput{Message: msgs.apology}, nil
	}
	return ResetOutput{Message: msgs.resetPrefix + greeting}, nil
}

func (s *ConfirmationService) openConversation(ctx context.Context, order *domain.Order, l language.Lang) (string, error) {
	now := s.now()
	greeting := messagesFor(l).greeting(order)
	state := domain.NewConversation(order.ID, string(l), now)
	state.Append(domain.RoleAssistant, greeting, now)
	state.Step = domain.StepConfirmingItems
	if err := s.store.UpdateConversation(ctx, state); err != nil {
		return "", err
	}
	return greeting, nil
}

// closedReply answers turns for orders that no longer accept changes.
func closedReply(order *domain.Order, state *domain.ConversationState, msgs catalog) (string, ErrorCode, bool) {
	switch {
	case order == nil:
		return msgs.notFound, ErrorOrderNotFound, true
	case order.Status == domain.OrderConfirmed:
		return msgs.alreadyConfirmed, ErrorConversationTerminal, true
	case order.Status == domain.OrderCancelled:
		return msgs.closed, ErrorConversationTerminal, true
	case state != nil && state.Step.Terminal():
		return msgs.closed, ErrorConversationTerminal, true
	}
	return "", "", false
}

func (s *ConfirmationService) logFailure(e *Error, orderID string) {
	s.logger.Error("conversation turn failed",
		zap.String("order_id", orderID),
		zap.String("code", string(e.Code)),
		zap.String("reason", e.Reason),
		zap.Error(e.Err),
	)
}

// logRejected records turns answered without running the engine.
func (s *ConfirmationService) logRejected(e *Error, orderID string) {
	s.logger.Info("conversation turn rejected",
		zap.String("order_id", orderID),
		zap.String("code", string(e.Code)),
		zap.String("reason", e.Reason),
	)
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

func isQuotaError(err error) bool {
	if errors.Is(err, domain.ErrQuotaExceeded) {
		return true
	}
	status, ok := upstreamStatusCode(err)
	return ok && status == 429
}

var newUUID = func() string {
	return uuid.NewString()
}

type nopMetrics struct{}

func (nopMetrics) TurnHandled(string, time.Duration) {}
func (nopMetrics) BackendFailure(string)             {}
