// Package language guesses whether a customer message is English or French.
package language

import "strings"

// Lang is a supported reply language.
type Lang string

const (
	English Lang = "en"
	French  Lang = "fr"
)

var (
	englishMarkers = []string{"yes", "no", "ok", "correct", "thanks", "thank you", "please", "order", "remove", "add", "help", "cancel"}
	frenchMarkers  = []string{"oui", "non", "d'accord", "merci", "commande", "retirer", "ajouter", "supprimer", "aider", "annuler"}
)

// Score counts how many markers of each language occur in text as substrings.
func Score(text string) (en, fr int) {
	lower := strings.ToLower(text)
	for _, w := range englishMarkers {
		if strings.Contains(lower, w) {
			en++
		}
	}
	for _, w := range frenchMarkers {
		if strings.Contains(lower, w) {
			fr++
		}
	}
	return en, fr
}

// Detect returns the most likely language of text. Ties fall back to the share
// of ASCII characters: above 90% means English.
func Detect(text string) Lang {
	if lang, ok := Decisive(text); ok {
		return lang
	}
	return tieBreak(text)
}

// Decisive reports the language when the marker counts differ.
func Decisive(text string) (Lang, bool) {
	en, fr := Score(text)
	switch {
	case en > fr:
		return English, true
	case fr > en:
		return French, true
	}
	return "", false
}

func tieBreak(text string) Lang {
	runes := []rune(text)
	if len(runes) == 0 {
		return French
	}
	ascii := 0
	for _, r := range runes {
		if r < 128 {
			ascii++
		}
	}
	if float64(ascii)/float64(len(runes)) > 0.9 {
		return English
	}
	return French
}

// Normalize maps a caller supplied hint such as "en-US" or "FR" onto a
// supported language. Unknown or empty hints yield def.
func Normalize(hint string, def Lang) Lang {
	h := strings.ToLower(strings.TrimSpace(hint))
	switch {
	case strings.HasPrefix(h, "en"):
		return English
	case strings.HasPrefix(h, "fr"):
		return French
	}
	return def
}
