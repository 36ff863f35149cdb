package usecase

import (
	"fmt"
	"strings"

	"order-agent/internal/domain"
	"order-agent/internal/language"
)

// catalog holds every fixed reply in both supported languages.
type catalog struct {
	notFound, alreadyConfirmed, closed, apology, quota string
	clarify, notApplicable, askChange, askAddress      string
	addressRetry, addressCommitted                     string
	completed, cancelled, cancelQuestion, orderKept    string
	emptyOrder, resetPrefix, confirmAddressFmt         string
	greetingFmt, orderedFmt, eachWord, summaryFmt      string
	recapFmt, resumeFmt, removedNoteFmt                string
	stepLabels                                         map[domain.Step]string
}

var catalogs = map[language.Lang]catalog{
	language.English: {
		notFound:          "Sorry, I can't find this order. Could you check the order number?",
		alreadyConfirmed:  "Your order has already been confirmed. Thank you!",
		closed:            "This conversation is over. Thank you!",
		apology:           "Sorry, something went wrong on our side. Please try again in a moment.",
		quota:             "Our assistant is temporarily unavailable (quota exceeded). Please try again later or contact support.",
		clarify:           "Sorry, I had trouble understanding your last message. Could you please rephrase or clarify?",
		notApplicable:     "I couldn't apply that change to your order. Could you tell me which item and quantity you mean?",
		askChange:         "What would you like to change in your order?",
		askAddress:        "Could you please provide your delivery address?",
		addressRetry:      "Okay, please provide the correct delivery address.",
		addressCommitted:  "Thank you! Now, could you confirm your name and any other delivery details?",
		completed:         "Perfect, we are now preparing your order. Thank you!",
		cancelled:         "Your order has been cancelled. Feel free to contact us again. Have a nice day!",
		cancelQuestion:    "Do you really want to cancel your order? (yes/no)",
		orderKept:         "Alright, your order is kept.",
		emptyOrder:        "Your order is now empty. Would you like to add something or cancel the order?",
		resetPrefix:       "Conversation reset. ",
		confirmAddressFmt: "Just to confirm, is this your delivery address: '%s'? (yes/no)",
		greetingFmt:       "Hello %s, I'm confirming your order. %s Is this correct?",
		orderedFmt:        "You ordered %s for a total of %s€.",
		eachWord:          "each",
		summaryFmt:        "Your order now contains: %s. The total is %s€. Is your order now correct?",
		recapFmt:          "Here is your order: %s. The total is %s€, delivered to '%s'. Do you confirm everything is correct?",
		resumeFmt:         "Welcome back! We were at this step: %s. ",
		removedNoteFmt:    " Note: Only %d %s(s) were removed because that was all that remained in your order.",
		stepLabels: map[domain.Step]string{
			domain.StepGreeting:          "greeting",
			domain.StepConfirmingItems:   "confirming your items",
			domain.StepModifyingItems:    "changing your items",
			domain.StepConfirmingAddress: "confirming your delivery address",
			domain.StepConfirmingDetails: "confirming your delivery details",
			domain.StepFinalConfirmation: "final confirmation",
		},
	},
	language.French: {
		notFound:          "Désolé, je ne trouve pas cette commande. Pouvez-vous vérifier le numéro de commande ?",
		alreadyConfirmed:  "Votre commande a déjà été confirmée. Merci !",
		closed:            "Cette conversation est terminée. Merci !",
		apology:           "Désolé, un problème est survenu de notre côté. Merci de réessayer dans un instant.",
		quota:             "Notre assistant est temporairement indisponible (quota dépassé). Merci de réessayer plus tard ou de contacter le support.",
		clarify:           "Je suis désolé, je n'ai pas compris. Pouvez-vous clarifier votre demande ?",
		notApplicable:     "Je n'ai pas pu appliquer cette modification à votre commande. Pouvez-vous préciser l'article et la quantité ?",
		askChange:         "Que souhaitez-vous modifier dans votre commande ?",
		askAddress:        "Pouvez-vous me donner votre adresse de livraison, s'il vous plaît ?",
		addressRetry:      "D'accord, merci de fournir la bonne adresse de livraison.",
		addressCommitted:  "Merci ! Maintenant, pouvez-vous confirmer votre nom et d'autres détails de livraison ?",
		completed:         "Parfait, nous procédons à la préparation de votre commande. Merci !",
		cancelled:         "Très bien, votre commande est annulée. N'hésitez pas à nous recontacter. Bonne journée !",
		cancelQuestion:    "Voulez-vous vraiment annuler votre commande ? (oui/non)",
		orderKept:         "Très bien, votre commande est conservée.",
		emptyOrder:        "Votre commande est maintenant vide. Souhaitez-vous ajouter un article ou annuler la commande ?",
		resetPrefix:       "Conversation réinitialisée. ",
		confirmAddressFmt: "Pour confirmer, est-ce bien votre adresse de livraison : '%s' ? (oui/non)",
		greetingFmt:       "Bonjour %s, je vous appelle pour confirmer votre commande. %s Est-ce que c'est correct ?",
		orderedFmt:        "Vous avez commandé %s pour un total de %s€.",
		eachWord:          "chacun",
		summaryFmt:        "Votre commande contient maintenant : %s. Le total est de %s€. Est-ce correct ?",
		recapFmt:          "Voici votre commande : %s. Le total est de %s€, livrée à '%s'. Confirmez-vous que tout est correct ?",
		resumeFmt:         "Bon retour ! Nous en étions à l'étape : %s. ",
		removedNoteFmt:    " Note : Seulement %d %s(s) ont été supprimé(s) car c'est tout ce qui restait dans votre commande.",
		stepLabels: map[domain.Step]string{
			domain.StepGreeting:          "accueil",
			domain.StepConfirmingItems:   "confirmation des articles",
			domain.StepModifyingItems:    "modification des articles",
			domain.StepConfirmingAddress: "confirmation de l'adresse de livraison",
			domain.StepConfirmingDetails: "confirmation des détails de livraison",
			domain.StepFinalConfirmation: "confirmation finale",
		},
	},
}

func messagesFor(lang language.Lang) catalog {
	if c, ok := catalogs[lang]; ok {
		return c
	}
	return catalogs[language.French]
}

// itemList renders "Table x2, Chair x4".
func itemList(items []domain.OrderItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("%s x%d", it.Name, it.Quantity))
	}
	return strings.Join(parts, ", ")
}

func (c catalog) greeting(o *domain.Order) string {
	parts := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		parts = append(parts, fmt.Sprintf("%dx %s (%s€ %s)", it.Quantity, it.Name, it.Price, c.eachWord))
	}
	ordered := fmt.Sprintf(c.orderedFmt, strings.Join(parts, ", "), o.TotalAmount)
	return fmt.Sprintf(c.greetingFmt, strings.TrimSpace(o.CustomerName), ordered)
}

func (c catalog) summary(o *domain.Order) string {
	if len(o.Items) == 0 {
		return c.emptyOrder
	}
	return fmt.Sprintf(c.summaryFmt, itemList(o.Items), o.TotalAmount)
}

func (c catalog) recap(o *domain.Order) string {
	return fmt.Sprintf(c.recapFmt, itemList(o.Items), o.TotalAmount, o.DeliveryAddress)
}

func (c catalog) confirmAddress(addr string) string {
	return fmt.Sprintf(c.confirmAddressFmt, addr)
}

func (c catalog) resume(step domain.Step) string {
	label, ok := c.stepLabels[step]
	if !ok {
		label = string(step)
	}
	return fmt.Sprintf(c.resumeFmt, label)
}

func (c catalog) removedNote(removed int, item string) string {
	return fmt.Sprintf(c.removedNoteFmt, removed, item)
}
