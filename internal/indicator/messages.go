package indicator

import (
	"os"
	"strings"
)

type locale string

const (
	localeEnglish locale = "en"
	localeFrench  locale = "fr"
)

type messages struct {
	recording string
	narrating string
	listening string
	uploading string
	errorText string
	// errors maps session error text to its localized form.
	errors map[string]string
}

func indicatorMessagesFromEnv() messages {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
			return indicatorMessages(resolveLocale(raw))
		}
	}
	return indicatorMessages(localeEnglish)
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "fr") {
		return localeFrench
	}
	return localeEnglish
}

func indicatorMessages(tag locale) messages {
	switch tag {
	case localeFrench:
		return messages{
			recording: "Enregistrement…",
			narrating: "Lecture de la question…",
			listening: "À l'écoute…",
			uploading: "Envoi de l'entretien…",
			errorText: "Erreur pendant l'entretien",
			errors: map[string]string{
				"Camera or microphone unavailable": "Caméra ou micro indisponible",
				"Unable to start recording":        "Impossible de démarrer l'enregistrement",
				"Nothing was recorded":             "Aucun enregistrement",
				"No recording to upload":           "Aucun enregistrement à envoyer",
				"Narration failed":                 "Échec de la lecture",
				"Speech recognition unavailable":   "Reconnaissance vocale indisponible",
			},
		}
	case localeEnglish:
		fallthrough
	default:
		return messages{
			recording: "Recording…",
			narrating: "Reading question…",
			listening: "Listening…",
			uploading: "Uploading interview…",
			errorText: "Interview error",
		}
	}
}

// translate localizes known session messages; server text passes through.
func (m messages) translate(text string) string {
	if localized, ok := m.errors[text]; ok {
		return localized
	}
	return text
}
