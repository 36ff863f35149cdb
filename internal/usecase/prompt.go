package usecase

import (
	"fmt"
	"strings"

	"order-agent/internal/domain"
	"order-agent/internal/language"
)

const historyWindow = 10

type promptContext struct {
	order *domain.Order
	step  domain.Step
	// history holds the turns before the current message.
	history []domain.Turn
	lang    language.Lang
	text    string
}

func buildPrompt(pc promptContext) string {
	return strings.Join([]string{
		"Role:",
		"You are a professional and friendly order confirmation agent talking to a customer.",
		"",
		"Language:",
		languageInstruction(pc.lang),
		"",
		"Order:",
		orderContext(pc.order, pc.lang),
		"",
		"Current Step:",
		stepInstruction(pc.step),
		"",
		"Conversation History:",
		conversationHistory(pc.history),
		"",
		"Customer Message:",
		normalizePromptInput(pc.text),
		"",
		"Behavior Rules:",
		behaviorRules(),
		"",
		"Output Contract:",
		outputContract(),
	}, "\n")
}

func languageInstruction(lang language.Lang) string {
	if lang == language.English {
		return "Always reply in English. The customer may switch languages at any time."
	}
	return "Réponds toujours en français. Le client peut changer de langue à tout moment."
}

func orderContext(o *domain.Order, lang language.Lang) string {
	each := messagesFor(lang).eachWord
	lines := []string{
		"Customer: " + strings.TrimSpace(o.CustomerName),
		"Status: " + string(o.Status),
		"Items:",
	}
	for _, it := range o.Items {
		lines = append(lines, fmt.Sprintf("- %s x%d (%s€ %s)", it.Name, it.Quantity, it.Price, each))
	}
	lines = append(lines, fmt.Sprintf("Total: %s€", o.TotalAmount))
	if o.DeliveryAddress != "" {
		lines = append(lines, "Delivery address: "+o.DeliveryAddress)
	}
	return strings.Join(lines, "\n")
}

func stepInstruction(step domain.Step) string {
	switch step {
	case domain.StepGreeting, domain.StepConfirmingItems:
		return "The customer is reviewing the items of the order."
	case domain.StepModifyingItems:
		return "The customer wants to change the items of the order."
	case domain.StepConfirmingDetails:
		return "The delivery address is confirmed. The customer is confirming name and delivery details."
	case domain.StepFinalConfirmation:
		return "The customer is giving the final confirmation of the whole order."
	}
	return "Help the customer with the order."
}

// conversationHistory renders the last turns with a marker for older ones.
func conversationHistory(turns []domain.Turn) string {
	if len(turns) == 0 {
		return "(none)"
	}
	var lines []string
	if len(turns) > historyWindow {
		lines = append(lines, fmt.Sprintf("[conversation started %d messages ago]", len(turns)))
		turns = turns[len(turns)-historyWindow:]
	}
	for _, t := range turns {
		who := "Customer"
		if t.Role == domain.RoleAssistant {
			who = "Agent"
		}
		lines = append(lines, who+": "+normalizePromptInput(t.Text))
	}
	return strings.Join(lines, "\n")
}

func behaviorRules() string {
	return strings.Join([]string{
		"1) Never use action \"confirm\" to skip the delivery address; the address is collected separately.",
		"2) Use action \"cancel\" only when the customer clearly asks to cancel the whole order.",
		"3) For item changes use add, remove, replace or modify and describe the change in modification.",
		"4) modify sets the absolute quantity of one item.",
		"5) If the request is ambiguous or a help request, use action \"none\" and ask for clarification.",
	}, "\n")
}

func outputContract() string {
	return strings.Join([]string{
		"Return a single JSON object only, using double quotes and no trailing commas.",
		"Keys: message (string), action (one of confirm, cancel, add, remove, replace, modify, none), modification (object or null).",
		"modification keys: old_item, new_item, item, quantity. Set unused keys to null.",
		`Example: {"message": "...", "action": "replace", "modification": {"old_item": "Table", "new_item": "Chair", "quantity": 2, "item": null}}`,
		`Example: {"message": "...", "action": "remove", "modification": {"old_item": "Chair", "quantity": 1, "new_item": null, "item": null}}`,
	}, "\n")
}

func normalizePromptInput(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}
