package usecase

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"order-agent/internal/domain"
	"order-agent/internal/language"
	"order-agent/internal/llmresponse"
	"order-agent/internal/modification"
)

const (
	pathClosed   = "closed"
	pathAddress  = "address"
	pathFast     = "fast_path"
	pathBackend  = "backend"
	pathFallback = "fallback"
	pathQuota    = "quota"
)

// turn carries the working state of one ProcessMessage call. Nothing is
// written to the store until the turn has produced its reply.
type turn struct {
	orderID string
	text    string
	now     time.Time
	order   *domain.Order
	state   *domain.ConversationState
	lang    language.Lang
	msgs    catalog
	path    string
	update  domain.OrderUpdate
	event   *domain.OrderStatusEvent
}

// ProcessMessage runs one customer turn and returns the reply. The error is
// only set for invalid input; every other failure is answered with a reply.
func (s *ConfirmationService) ProcessMessage(ctx context.Context, orderID, text, lang string) (string, error) {
	orderID = strings.TrimSpace(orderID)
	text = strings.TrimSpace(text)
	if orderID == "" {
		return "", newError(ErrorInvalidInput, "missing_order_id", nil)
	}
	if text == "" || len(text) > s.maxMessageLen {
		reason := "empty_message"
		if text != "" {
			reason = "message_too_long"
		}
		s.logRejected(newError(ErrorInvalidInput, reason, nil), orderID)
		return messagesFor(s.resolveLanguage(text, nil, lang)).clarify, nil
	}

	ctx, span := s.tracer.Start(ctx, "conversation.turn", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()
	started := s.now()

	unlock, err := s.locker.Lock(ctx, orderID)
	if err != nil {
		s.logFailure(newError(ErrorStore, "turn_lock", err), orderID)
		return messagesFor(s.resolveLanguage(text, nil, lang)).apology, nil
	}
	defer unlock()

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		s.logFailure(newError(ErrorStore, "get_order", err), orderID)
		return messagesFor(s.resolveLanguage(text, nil, lang)).apology, nil
	}
	state, err := s.store.GetConversation(ctx, orderID)
	if err != nil {
		s.logFailure(newError(ErrorStore, "get_conversation", err), orderID)
		return messagesFor(s.resolveLanguage(text, nil, lang)).apology, nil
	}

	l := s.resolveLanguage(text, state, lang)
	msgs := messagesFor(l)
	if reply, code, done := closedReply(order, state, msgs); done {
		s.logRejected(newError(code, "closed", nil), orderID)
		s.metrics.TurnHandled(pathClosed, s.now().Sub(started))
		return reply, nil
	}

	now := s.now()
	if state == nil {
		state = domain.NewConversation(orderID, string(l), now)
	}
	var prefix string
	if len(state.Turns) > 0 && now.Sub(state.LastActive) > s.idleThreshold {
		prefix = msgs.resume(state.Step)
	}
	state.Language = string(l)
	state.Append(domain.RoleUser, text, now)

	t := &turn{
		orderID: orderID,
		text:    text,
		now:     now,
		order:   order.Clone(),
		state:   state,
		lang:    l,
		msgs:    msgs,
	}

	var reply string
	if state.Step == domain.StepConfirmingAddress {
		t.path = pathAddress
		reply = s.handleAddress(t)
	} else if r, ok := s.fastPath(t); ok {
		t.path = pathFast
		reply = r
	} else {
		reply = s.backendTurn(ctx, t)
	}
	reply = prefix + reply
	span.SetAttributes(attribute.String("turn.path", t.path), attribute.String("conversation.step", string(state.Step)))

	if !t.update.Empty() {
		if err := s.store.UpdateOrder(ctx, orderID, t.update); err != nil {
			s.logFailure(newError(ErrorStore, "update_order", err), orderID)
			return msgs.apology, nil
		}
	}
	state.Append(domain.RoleAssistant, reply, s.now())
	if err := s.store.UpdateConversation(ctx, state); err != nil {
		s.logFailure(newError(ErrorStore, "update_conversation", err), orderID)
		return msgs.apology, nil
	}
	if t.event != nil {
		s.publish(ctx, *t.event)
	}

	s.metrics.TurnHandled(t.path, s.now().Sub(started))
	s.logger.Info("conversation turn handled",
		zap.String("order_id", orderID),
		zap.String("path", t.path),
		zap.String("step", string(state.Step)),
		zap.String("language", string(l)),
	)
	return reply, nil
}

// resolveLanguage prefers a decisive reading of the message, then the
// conversation language, then the caller hint.
func (s *ConfirmationService) resolveLanguage(text string, state *domain.ConversationState, hint string) language.Lang {
	if l, ok := language.Decisive(text); ok {
		return l
	}
	if state != nil && state.Language != "" {
		return language.Normalize(state.Language, s.defaultLang)
	}
	if l := language.Normalize(hint, ""); l != "" {
		return l
	}
	return language.Detect(text)
}

// handleAddress collects and confirms the delivery address without the backend.
func (s *ConfirmationService) handleAddress(t *turn) string {
	switch strictYesNo(t.text) {
	case intentConfirm:
		if p := t.state.PendingAddress; p != nil && *p != "" {
			addr := *p
			t.order.DeliveryAddress = addr
			t.update.DeliveryAddress = &addr
			t.state.PendingAddress = nil
			t.state.Step = domain.StepConfirmingDetails
			return t.msgs.addressCommitted
		}
		return t.msgs.askAddress
	case intentDeny:
		t.state.PendingAddress = nil
		return t.msgs.addressRetry
	}
	addr := normalizePromptInput(t.text)
	t.state.PendingAddress = &addr
	return t.msgs.confirmAddress(addr)
}

func (s *ConfirmationService) fastPath(t *turn) (string, bool) {
	if p := t.state.PendingModification; p != nil && p.Action == domain.ModCancel {
		t.state.PendingModification = nil
		switch yesNo(t.text) {
		case intentConfirm:
			return s.cancelOrder(t), true
		case intentDeny:
			t.state.Step = domain.StepConfirmingItems
			return t.msgs.orderKept + " " + t.msgs.summary(t.order), true
		}
	}

	switch classify(t.text) {
	case intentConfirm:
		return s.advance(t), true
	case intentDeny:
		switch t.state.Step {
		case domain.StepGreeting, domain.StepConfirmingItems, domain.StepModifyingItems:
			t.state.Step = domain.StepModifyingItems
			return t.msgs.askChange, true
		case domain.StepFinalConfirmation:
			t.state.Step = domain.StepConfirmingItems
			return t.msgs.summary(t.order), true
		}
	}

	if name, qty, ok := onlyWant(t.text, t.order); ok {
		if err := modification.Isolate(t.order, name, qty); err == nil {
			t.update.WithItems(t.order.Items)
			t.state.Step = domain.StepConfirmingItems
			return t.msgs.summary(t.order), true
		}
	}
	return "", false
}

// advance moves the conversation one step forward after a confirmation.
func (s *ConfirmationService) advance(t *turn) string {
	switch t.state.Step {
	case domain.StepGreeting, domain.StepConfirmingItems, domain.StepModifyingItems:
		t.state.Step = domain.StepConfirmingAddress
		t.state.PendingAddress = nil
		return t.msgs.askAddress
	case domain.StepConfirmingDetails:
		t.state.Step = domain.StepFinalConfirmation
		return t.msgs.recap(t.order)
	case domain.StepFinalConfirmation:
		return s.completeOrder(t)
	}
	return t.msgs.clarify
}

func (s *ConfirmationService) completeOrder(t *turn) string {
	t.state.Step = domain.StepCompleted
	t.state.PendingAddress = nil
	t.state.PendingModification = nil
	s.setStatus(t, domain.OrderConfirmed)
	return t.msgs.completed
}

func (s *ConfirmationService) cancelOrder(t *turn) string {
	t.state.Step = domain.StepCancelled
	t.state.PendingModification = nil
	s.setStatus(t, domain.OrderCancelled)
	return t.msgs.cancelled
}

func (s *ConfirmationService) setStatus(t *turn, status domain.OrderStatus) {
	at := t.now
	t.order.Status = status
	t.update.Status = &status
	switch status {
	case domain.OrderConfirmed:
		t.order.ConfirmedAt = &at
		t.update.ConfirmedAt = &at
	case domain.OrderCancelled:
		t.order.CancelledAt = &at
		t.update.CancelledAt = &at
	}
	t.event = &domain.OrderStatusEvent{
		EventID:    newUUID(),
		OrderID:    t.orderID,
		Status:     status,
		Total:      t.order.TotalAmount,
		OccurredAt: at,
	}
}

func (s *ConfirmationService) backendTurn(ctx context.Context, t *turn) string {
	// The current message was already appended; it goes in its own prompt section.
	history := t.state.Turns[:len(t.state.Turns)-1]
	prompt := buildPrompt(promptContext{order: t.order, step: t.state.Step, history: history, lang: t.lang, text: t.text})
	raw, err := s.gen.Complete(ctx, prompt, s.maxTokens)
	if err != nil {
		if isQuotaError(err) {
			s.backendFailure(newError(ErrorBackendQuota, "generate", err), t.orderID)
			t.path = pathQuota
			return t.msgs.quota
		}
		s.backendFailure(newError(ErrorBackendUnavailable, "generate", err), t.orderID)
		t.path = pathFallback
		return s.fallback(t)
	}

	resp, err := llmresponse.Parse(raw)
	if err != nil {
		s.backendFailure(newError(ErrorUnrecoverableParse, "parse_response", err), t.orderID)
		t.path = pathFallback
		return s.fallback(t)
	}

	t.path = pathBackend
	switch resp.Action {
	case "confirm":
		return s.completeOrder(t)
	case "cancel":
		return s.cancelOrder(t)
	case "add", "remove", "replace", "modify":
		return s.applyBackendModification(t, resp)
	case "", "none":
	default:
		if resp.Modification != nil {
			return s.applyBackendModification(t, resp)
		}
	}
	if resp.Message == "" || resp.Partial {
		return t.msgs.clarify
	}
	return resp.Message
}

// applyBackendModification canonicalises and applies every change in the
// response on a copy of the order. The copy replaces the order only when all
// changes succeed.
func (s *ConfirmationService) applyBackendModification(t *turn, resp llmresponse.Response) string {
	if len(resp.Modification) == 0 {
		s.logFailure(newError(ErrorUnmatchedShape, "missing_modification", nil), t.orderID)
		return t.msgs.clarify
	}
	work := t.order.Clone()
	var notes strings.Builder
	var last domain.Modification
	for _, raw := range modification.SplitDeltas(resp.Modification) {
		m := s.normalizer.Normalize(raw, resp.Action)
		if m.IsNull() {
			s.logFailure(newError(ErrorUnmatchedShape, modification.Describe(raw), nil), t.orderID)
			return t.msgs.clarify
		}
		if m.Action == domain.ModCancel {
			return s.cancelOrder(t)
		}
		res, err := modification.Apply(work, m)
		if err != nil {
			s.logFailure(newError(ErrorModificationNotApplicable, m.String(), err), t.orderID)
			return t.msgs.notApplicable
		}
		if res.Clamped() {
			notes.WriteString(t.msgs.removedNote(res.Removed, m.OldItem))
		}
		last = m
	}

	t.order = work
	t.update.WithItems(work.Items)
	t.state.LastModification = &last
	t.state.Step = domain.StepConfirmingItems
	return t.msgs.summary(work) + notes.String()
}

// fallback answers deterministically when the backend cannot be used.
func (s *ConfirmationService) fallback(t *turn) string {
	if mentionsCancel(t.text) {
		t.state.PendingModification = &domain.Modification{Action: domain.ModCancel}
		return t.msgs.cancelQuestion
	}
	switch classify(t.text) {
	case intentConfirm:
		return s.advance(t)
	case intentDeny:
		if t.state.Step == domain.StepConfirmingDetails {
			t.state.Step = domain.StepConfirmingAddress
			t.state.PendingAddress = nil
			return t.msgs.askAddress
		}
		t.state.Step = domain.StepModifyingItems
		return t.msgs.askChange
	}
	return t.msgs.clarify
}

func (s *ConfirmationService) backendFailure(e *Error, orderID string) {
	s.metrics.BackendFailure(string(e.Code))
	s.logFailure(e, orderID)
}

func (s *ConfirmationService) publish(ctx context.Context, event domain.OrderStatusEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish order status event failed",
			zap.String("order_id", event.OrderID),
			zap.String("status", string(event.Status)),
			zap.Error(err),
		)
	}
}
