// Package memory is a process-local order and conversation store for
// development and tests.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"order-agent/internal/domain"
)

type Store struct {
	mu            sync.RWMutex
	orders        map[string]*domain.Order
	conversations map[string][]byte
}

func New() *Store {
	return &Store{
		orders:        map[string]*domain.Order{},
		conversations: map[string][]byte{},
	}
}

// PutOrder stores a copy of o.
func (s *Store) PutOrder(_ context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return errors.New("memory: order id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *Store) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}
	return o.Clone(), nil
}

func (s *Store) UpdateOrder(_ context.Context, orderID string, u domain.OrderUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("memory: update %s: %w", orderID, domain.ErrOrderNotFound)
	}
	u.ApplyTo(o)
	return nil
}

func (s *Store) GetConversation(_ context.Context, orderID string) (*domain.ConversationState, error) {
	s.mu.RLock()
	raw, ok := s.conversations[orderID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var state domain.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("memory: decode conversation: %w", err)
	}
	return &state, nil
}

func (s *Store) UpdateConversation(_ context.Context, state *domain.ConversationState) error {
	if state == nil || state.OrderID == "" {
		return errors.New("memory: conversation order id is required")
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("memory: encode conversation: %w", err)
	}
	s.mu.Lock()
	s.conversations[state.OrderID] = raw
	s.mu.Unlock()
	return nil
}

func (s *Store) DeleteConversation(_ context.Context, orderID string) error {
	s.mu.Lock()
	delete(s.conversations, orderID)
	s.mu.Unlock()
	return nil
}
