package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"order-agent/internal/domain"
)

type fakeStore struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
	convs  map[string]*domain.ConversationState

	getOrderErr    error
	updateOrderErr error
	getConvErr     error
	updateConvErr  error
	deleteErr      error

	orderUpdates []domain.OrderUpdate
	convUpdates  int
	deleted      []string
}

func newFakeStore(orders ...*domain.Order) *fakeStore {
	s := &fakeStore{
		orders: make(map[string]*domain.Order),
		convs:  make(map[string]*domain.ConversationState),
	}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (f *fakeStore) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getOrderErr != nil {
		return nil, f.getOrderErr
	}
	o, ok := f.orders[id]
	if !ok {
		return nil, nil
	}
	return o.Clone(), nil
}

func (f *fakeStore) UpdateOrder(_ context.Context, id string, u domain.OrderUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateOrderErr != nil {
		return f.updateOrderErr
	}
	o, ok := f.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	u.ApplyTo(o)
	f.orderUpdates = append(f.orderUpdates, u)
	return nil
}

func (f *fakeStore) GetConversation(_ context.Context, id string) (*domain.ConversationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getConvErr != nil {
		return nil, f.getConvErr
	}
	c, ok := f.convs[id]
	if !ok {
		return nil, nil
	}
	return copyState(c), nil
}

func (f *fakeStore) UpdateConversation(_ context.Context, c *domain.ConversationState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateConvErr != nil {
		return f.updateConvErr
	}
	f.convs[c.OrderID] = copyState(c)
	f.convUpdates++
	return nil
}

func (f *fakeStore) DeleteConversation(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.convs, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStore) order(t *testing.T, id string) *domain.Order {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	require.True(t, ok)
	return o.Clone()
}

func (f *fakeStore) conversation(t *testing.T, id string) *domain.ConversationState {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	require.True(t, ok, "conversation %s not stored", id)
	return copyState(c)
}

func copyState(c *domain.ConversationState) *domain.ConversationState {
	b, err := json.Marshal(c)
	if err != nil {
		panic(err)
	}
	var out domain.ConversationState
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return &out
}

type genResponse struct {
	text string
	err  error
}

type fakeGenerator struct {
	responses []genResponse
	prompts   []string
	maxTokens int
}

func (g *fakeGenerator) Complete(_ context.Context, prompt string, maxTokens int) (string, error) {
	g.prompts = append(g.prompts, prompt)
	g.maxTokens = maxTokens
	if len(g.responses) == 0 {
		return "", errors.New("no generator response configured")
	}
	idx := len(g.prompts) - 1
	if idx >= len(g.responses) {
		idx = len(g.responses) - 1
	}
	return g.responses[idx].text, g.responses[idx].err
}

func (g *fakeGenerator) calls() int { return len(g.prompts) }

func replying(texts ...string) *fakeGenerator {
	g := &fakeGenerator{}
	for _, t := range texts {
		g.responses = append(g.responses, genResponse{text: t})
	}
	return g
}

func failing(err error) *fakeGenerator {
	return &fakeGenerator{responses: []genResponse{{err: err}}}
}

type fakePublisher struct {
	events []domain.OrderStatusEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, e domain.OrderStatusEvent) error {
	p.events = append(p.events, e)
	return p.err
}

type fakeMetrics struct {
	paths    []string
	failures []string
}

func (m *fakeMetrics) TurnHandled(path string, _ time.Duration) { m.paths = append(m.paths, path) }
func (m *fakeMetrics) BackendFailure(code string)              { m.failures = append(m.failures, code) }

type statusError struct{ code int }

func (e *statusError) Error() string       { return fmt.Sprintf("status %d", e.code) }
func (e *statusError) HTTPStatusCode() int { return e.code }

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func furnitureOrder() *domain.Order {
	o := &domain.Order{
		ID:            "order-1",
		CustomerName:  "Alice",
		CustomerPhone: "+33600000000",
		Status:        domain.OrderPending,
		Items: []domain.OrderItem{
			{Name: "Table", Quantity: 2, Price: 2000},
			{Name: "Chair", Quantity: 4, Price: 500},
		},
		CreatedAt: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
	}
	o.Recompute()
	return o
}

// withConversation seeds a conversation at step for the order.
func withConversation(s *fakeStore, orderID string, step domain.Step, lang string, at time.Time) {
	c := domain.NewConversation(orderID, lang, at)
	c.Append(domain.RoleAssistant, "Hello Alice, I'm confirming your order.", at)
	c.Step = step
	s.convs[orderID] = c
}

type harness struct {
	svc   *ConfirmationService
	store *fakeStore
	gen   *fakeGenerator
	pub   *fakePublisher
	met   *fakeMetrics
	clock *clock
}

func newHarness(t *testing.T, store *fakeStore, gen *fakeGenerator, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store: store,
		gen:   gen,
		pub:   &fakePublisher{},
		met:   &fakeMetrics{},
		clock: &clock{now: time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)},
	}
	all := append([]Option{
		WithPublisher(h.pub),
		WithMetrics(h.met),
		WithClock(h.clock.Now),
	}, opts...)
	svc, err := NewConfirmationService(store, gen, all...)
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) say(t *testing.T, text string) string {
	t.Helper()
	reply, err := h.svc.ProcessMessage(context.Background(), "order-1", text, "")
	require.NoError(t, err)
	return reply
}
