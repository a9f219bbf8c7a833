package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

const (
	minLetters = 20
	// listing pages are long; the head of the document is enough to tell the language.
	maxSampleRunes = 4000
)

// Languages event listings are commonly published in.
var candidates = []lingua.Language{
	lingua.English,
	lingua.Spanish,
	lingua.Portuguese,
	lingua.French,
	lingua.German,
	lingua.Italian,
	lingua.Dutch,
	lingua.Turkish,
	lingua.Russian,
	lingua.Japanese,
	lingua.Korean,
	lingua.Chinese,
	lingua.Vietnamese,
	lingua.Thai,
	lingua.Indonesian,
}

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// Language is a detected document language.
type Language struct {
	Code string // ISO 639-1
	Name string
}

func (l Language) IsEnglish() bool { return l.Code == "en" }

// Detect returns the language of text, or false when the sample is too short or
// ambiguous.
func Detect(text string) (Language, bool) {
	sample := sampleOf(text)
	if sample == "" {
		return Language{}, false
	}

	language, exists := getDetector().DetectLanguageOf(sample)
	if !exists {
		return Language{}, false
	}

	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return Language{}, false
	}
	return Language{Code: code, Name: language.String()}, true
}

func sampleOf(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}

	runes := []rune(trimmed)
	if len(runes) > maxSampleRunes {
		runes = runes[:maxSampleRunes]
	}

	letters := 0
	for _, r := range runes {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters < minLetters {
		return ""
	}
	return string(runes)
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(candidates...).
			WithMinimumRelativeDistance(0.1).
			Build()
	})
	return detector
}
