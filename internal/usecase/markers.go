package usecase

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"order-agent/internal/domain"
)

// intent is the deterministic reading of a short customer message.
type intent int

const (
	intentOther intent = iota
	intentConfirm
	intentDeny
)

// maxMarkerTokens bounds how long a message may be and still count as a
// plain yes or no.
const maxMarkerTokens = 6

var (
	confirmWords = set("yes", "yeah", "yep", "ok", "okay", "correct", "right", "perfect", "sure", "confirm", "confirmed",
		"fine", "good", "great", "oui", "ouais", "d'accord", "parfait", "exact", "exactement", "confirme", "confirmé",
		"bien", "bon", "impeccable", "nickel")
	denyWords = set("no", "nope", "not", "wrong", "incorrect", "non", "pas", "faux", "fausse", "erreur")
	modificationWords = set("add", "remove", "delete", "replace", "change", "instead", "more", "less", "without",
		"only", "swap", "extra", "ajouter", "ajoute", "ajoutez", "retirer", "retire", "retirez", "enlever", "enlève",
		"enlevez", "supprimer", "supprime", "supprimez", "remplacer", "remplace", "remplacez", "changer", "change",
		"changez", "modifier", "modifie", "modifiez", "plutôt", "moins", "sans", "seulement", "uniquement")
	cancelWords = set("cancel", "cancelled", "canceled", "annuler", "annule", "annulez", "annulation")
	// politeWords may surround a yes or no without turning it into an address.
	politeWords = set("please", "thanks", "thank", "you", "it", "is", "that's", "that", "merci", "c'est", "ça", "ca",
		"s'il", "vous", "plaît", "plait", "te")
)

var onlyWantPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bonly\s+(?:want|need|keep|take)?\s*(?:(\d+)\s+)?(?:the\s+)?(.+)$`),
	regexp.MustCompile(`\bje\s+(?:ne\s+)?(?:veux|voudrais|garde)\s+(?:que|seulement|uniquement)\s+(?:(\d+)\s+)?(.+)$`),
	regexp.MustCompile(`\b(?:seulement|uniquement)\s+(?:(\d+)\s+)?(.+)$`),
}

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func tokens(text string) []string {
	text = strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'')
	})
}

func containsAny(toks []string, words map[string]struct{}) bool {
	for _, t := range toks {
		if _, ok := words[t]; ok {
			return true
		}
	}
	return false
}

func hasDigit(toks []string) bool {
	for _, t := range toks {
		if strings.IndexFunc(t, unicode.IsDigit) >= 0 {
			return true
		}
	}
	return false
}

// classify reads confirmations and negations from short messages. Anything
// carrying quantities or change or cancel vocabulary is left to the backend.
func classify(text string) intent {
	toks := tokens(text)
	if len(toks) == 0 || len(toks) > maxMarkerTokens || hasDigit(toks) {
		return intentOther
	}
	if containsAny(toks, modificationWords) || containsAny(toks, cancelWords) {
		return intentOther
	}
	if containsAny(toks, denyWords) {
		return intentDeny
	}
	if containsAny(toks, confirmWords) {
		return intentConfirm
	}
	return intentOther
}

// yesNo reads the answer to a yes/no question, ignoring change vocabulary.
func yesNo(text string) intent {
	toks := tokens(text)
	if len(toks) == 0 || len(toks) > maxMarkerTokens || hasDigit(toks) {
		return intentOther
	}
	if containsAny(toks, denyWords) {
		return intentDeny
	}
	if containsAny(toks, confirmWords) {
		return intentConfirm
	}
	return intentOther
}

// strictYesNo is used while collecting an address: every word must be a
// marker or a polite filler, so "Great North Road" stays an address.
func strictYesNo(text string) intent {
	toks := tokens(text)
	var confirm, deny bool
	for _, t := range toks {
		_, isConfirm := confirmWords[t]
		_, isDeny := denyWords[t]
		_, isPolite := politeWords[t]
		switch {
		case isConfirm:
			confirm = true
		case isDeny:
			deny = true
		case !isPolite:
			return intentOther
		}
	}
	switch {
	case confirm && !deny:
		return intentConfirm
	case deny && !confirm:
		return intentDeny
	}
	return intentOther
}

func mentionsCancel(text string) bool {
	return containsAny(tokens(text), cancelWords)
}

// onlyWant recognises "I only want the table" style requests and returns the
// matching order line and an optional quantity.
func onlyWant(text string, order *domain.Order) (string, int, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, re := range onlyWantPatterns {
		m := re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		qty := 0
		if m[1] != "" {
			qty, _ = strconv.Atoi(m[1])
		}
		name, ok := matchItem(m[2], order)
		if !ok {
			return "", 0, false
		}
		return name, qty, true
	}
	return "", 0, false
}

// matchItem finds exactly one order line mentioned in phrase.
func matchItem(phrase string, order *domain.Order) (string, bool) {
	phrase = " " + strings.Join(tokens(phrase), " ") + " "
	var found []string
	for _, it := range order.Items {
		name := strings.ToLower(strings.TrimSpace(it.Name))
		singular := strings.TrimSuffix(name, "s")
		if strings.Contains(phrase, " "+name+" ") || strings.Contains(phrase, " "+singular+" ") ||
			strings.Contains(phrase, " "+name+"s ") || strings.Contains(phrase, " "+singular+"s ") {
			found = append(found, it.Name)
		}
	}
	if len(found) != 1 {
		return "", false
	}
	return found[0], true
}
