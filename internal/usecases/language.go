package usecases

import "strings"

var italianMarkers = []string{
	"ciao", "grazie", "buongiorno", "buonasera", "buonanotte", "salve",
	"nome", "cognome", "documento", "firma", "codice", "come", "cosa",
	"residenza", "comune", "registrati", "verifica", "email", "italiano",
	"esempio", "posso", "aiuto", "piacere", "scusa", "prego", "certo",
}

var englishMarkers = []string{
	"hello", "hi", "hey", "thanks", "thank", "good morning", "good evening",
	"good night", "name", "surname", "document", "signature", "code",
	"how", "what", "where", "register", "verify", "email", "english",
	"example", "can", "help", "please", "sorry", "sure", "yes", "no",
}

var italianPatterns = []string{
	"è", "à", "é", "ù", "ò", "perché", "che", "del", "della", "gli", "le",
}

const italianDiacritics = "àèéìòù"

// DetectLanguage classifies free text as "it" or "en" by marker scoring.
// It never fails; empty or unrecognized input defaults to English. The
// conversation language may switch mid-stream, so this runs per message.
func DetectLanguage(text string) string {
	if text == "" {
		return "en"
	}
	t := strings.ToLower(strings.TrimSpace(text))

	itScore, enScore := 0, 0
	for _, m := range italianMarkers {
		if strings.Contains(t, m) {
			itScore++
		}
	}
	for _, m := range englishMarkers {
		if strings.Contains(t, m) {
			enScore++
		}
	}
	for _, p := range italianPatterns {
		if strings.Contains(t, p) {
			itScore += 2
			break
		}
	}

	switch {
	case itScore > enScore && itScore > 0:
		return "it"
	case enScore > itScore && enScore > 0:
		return "en"
	case itScore == enScore && itScore > 0:
		if strings.ContainsAny(t, italianDiacritics) {
			return "it"
		}
		return "en"
	}
	return "en"
}
