package dispatch

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/couchcryptid/hazard-alert-service/internal/domain"
)

// speedCameraAhead is the catalog key for the spoken alert.
const speedCameraAhead = "Attention, speed camera ahead. Speed limit %d kilometres per hour."

// Order matches domain.Languages; the first entry is the fallback.
var supportedTags = []language.Tag{
	language.Portuguese,
	language.English,
	language.Spanish,
	language.French,
	language.German,
}

var (
	phrases = newPhraseCatalog()
	matcher = language.NewMatcher(supportedTags)
)

func newPhraseCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.Portuguese))
	for tag, msg := range map[language.Tag]string{
		language.Portuguese: "Atenção, radar de velocidade à frente. Limite de %d quilómetros por hora.",
		language.English:    speedCameraAhead,
		language.Spanish:    "Atención, radar de velocidad más adelante. Límite de %d kilómetros por hora.",
		language.French:     "Attention, radar de vitesse devant. Limite de %d kilomètres par heure.",
		language.German:     "Achtung, Blitzer voraus. Tempolimit %d Kilometer pro Stunde.",
	} {
		if err := b.SetString(tag, speedCameraAhead, msg); err != nil {
			panic(err)
		}
	}
	return b
}

// ResolveLanguage maps a requested language to one the catalog speaks,
// falling back to Portuguese.
func ResolveLanguage(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return domain.DefaultLanguage
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return domain.DefaultLanguage
	}
	base, _ := supportedTags[idx].Base()
	return base.String()
}

// Phrase renders the spoken alert for a speed limit in km/h.
func Phrase(lang string, speedLimit int) string {
	p := message.NewPrinter(language.Make(ResolveLanguage(lang)), message.Catalog(phrases))
	return p.Sprintf(speedCameraAhead, speedLimit)
}

// SupportedLanguages lists the announcement languages, default first.
func SupportedLanguages() []string {
	return append([]string(nil), domain.Languages...)
}
