package extractors

import (
	"crypto/sha256"
	"fmt"

	"github.com/abadojack/whatlanggo"
)

// LanguageDetector returns an ISO 639-1 code, or "" when unsure.
type LanguageDetector func(text string) string

// minDetectRunes is the shortest text worth classifying.
const minDetectRunes = 20

// DetectLanguage classifies text with whatlanggo, returning "" for short or
// unreliable input.
func DetectLanguage(text string) string {
	if len([]rune(text)) < minDetectRunes {
		return ""
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

// ContentHash is the lowercase hex SHA-256 of the text.
func ContentHash(text string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(text)))
}
