package templates

import "strings"

const (
	LangEN = "en"
	LangDE = "de"
)

// FormStrings are the user-facing responses of the contact endpoint.
type FormStrings struct {
	Error     string
	RateLimit string
	Invalid   string
	Reasons   map[string]string
}

type AutoReplyStrings struct {
	Subject     string
	Greeting    string
	Lead        string
	YourMessage string
	Closing     string
	Regards     string
	Separator   string
	FollowMe    string
}

type Locale struct {
	Form      FormStrings
	AutoReply AutoReplyStrings
}

var locales = map[string]Locale{
	LangEN: {
		Form: FormStrings{
			Error:     "Oops! Something went wrong. Please try again.",
			RateLimit: "You’re sending messages too quickly. Please wait a moment before trying again.",
			Invalid:   "Invalid data provided. Please check your input.",
			Reasons: map[string]string{
				"recruitment":   "Job Opportunity",
				"collaboration": "Collaboration",
				"speaking":      "Event / Speaking",
				"interview":     "Interview Request",
				"other":         "Other (specify)",
			},
		},
		AutoReply: AutoReplyStrings{
			Subject:     "Thanks for reaching out!",
			Greeting:    "Hi",
			Lead:        "Thanks for your message! I truly appreciate you taking the time to write me. I usually reply within 1–2 business days.",
			YourMessage: "Here’s what you sent me:",
			Closing:     "Talk soon.",
			Regards:     "Best regards,",
			Separator:   "────────────────────────────",
			FollowMe:    "Follow me on:",
		},
	},
	LangDE: {
		Form: FormStrings{
			Error:     "Hoppla! Etwas ist schief gelaufen. Bitte versuche es erneut.",
			RateLimit: "Du sendest Nachrichten zu schnell. Bitte warte einen Moment, bevor du es erneut versuchst.",
			Invalid:   "Ungültige Daten eingegeben. Bitte überprüfe deine Eingabe.",
			Reasons: map[string]string{
				"recruitment":   "Jobangebot",
				"collaboration": "Zusammenarbeit",
				"speaking":      "Einladung / Vortrag",
				"interview":     "Interviewanfrage",
				"other":         "Sonstiges (Text)",
			},
		},
		AutoReply: AutoReplyStrings{
			Subject:     "Danke für deine Nachricht!",
			Greeting:    "Hallo",
			Lead:        "Danke für deine Nachricht! Ich schätze es sehr, dass du dir die Zeit genommen hast, mir zu schreiben. In der Regel melde ich mich innerhalb von 1–2 Werktagen zurück.",
			YourMessage: "Hier ist, was du mir geschickt hast:",
			Closing:     "Bis bald.",
			Regards:     "Beste Grüße,",
			Separator:   "────────────────────────────",
			FollowMe:    "Folge mir auf:",
		},
	},
}

// NormalizeLang maps anything starting with "de" to German and everything
// else to English.
func NormalizeLang(lang string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(lang)), LangDE) {
		return LangDE
	}
	return LangEN
}

func Strings(lang string) Locale {
	return locales[NormalizeLang(lang)]
}

func LangFullName(lang string) string {
	if NormalizeLang(lang) == LangDE {
		return "German"
	}
	return "English"
}

// ReasonLabel returns the localized label for a reason key, the key itself
// when it has no label, or "" for no reason.
func ReasonLabel(lang, reason string) string {
	if reason == "" {
		return ""
	}
	if label, ok := Strings(lang).Form.Reasons[reason]; ok {
		return label
	}
	return reason
}
