package domain

import "time"

// Step is the position of a conversation in the confirmation flow.
type Step string

const (
	StepGreeting          Step = "greeting"
	StepConfirmingItems   Step = "confirming_items"
	StepModifyingItems    Step = "modifying_items"
	StepConfirmingAddress Step = "confirming_address"
	StepConfirmingDetails Step = "confirming_details"
	StepFinalConfirmation Step = "final_confirmation"
	StepCompleted         Step = "completed"
	StepCancelled         Step = "cancelled"
)

// Terminal reports whether no further turns are accepted at this step.
func (s Step) Terminal() bool {
	return s == StepCompleted || s == StepCancelled
}

// Valid reports whether s is one of the known steps.
func (s Step) Valid() bool {
	switch s {
	case StepGreeting, StepConfirmingItems, StepModifyingItems, StepConfirmingAddress,
		StepConfirmingDetails, StepFinalConfirmation, StepCompleted, StepCancelled:
		return true
	}
	return false
}

// ConversationState is the persisted per-order conversation.
type ConversationState struct {
	OrderID             string        `json:"orderId"`
	Turns               []Turn        `json:"turns"`
	Step                Step          `json:"step"`
	LastActive          time.Time     `json:"lastActive"`
	Language            string        `json:"language,omitempty"`
	PendingAddress      *string       `json:"pendingAddress,omitempty"`
	PendingModification *Modification `json:"pendingModification,omitempty"`
	LastModification    *Modification `json:"lastModification,omitempty"`
}

// NewConversation returns a fresh state positioned at the greeting step.
func NewConversation(orderID, language string, now time.Time) *ConversationState {
	return &ConversationState{
		OrderID:    orderID,
		Step:       StepGreeting,
		LastActive: now,
		Language:   language,
	}
}

// Append records a turn and bumps the activity timestamp.
func (c *ConversationState) Append(role Role, text string, at time.Time) {
	c.Turns = append(c.Turns, Turn{Role: role, Text: text, At: at})
	c.LastActive = at
}

// RecentTurns returns at most n of the latest turns in chronological order.
func (c *ConversationState) RecentTurns(n int) []Turn {
	if n <= 0 || len(c.Turns) <= n {
		return c.Turns
	}
	return c.Turns[len(c.Turns)-n:]
}
