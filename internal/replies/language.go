// Package replies holds the user-facing copy of the bot in every supported language.
package replies

import (
	"strings"
	"unicode"
)

type Language string

const (
	EN Language = "en"
	RU Language = "ru"
)

// ParseLanguage accepts "en"/"ru" in any case; anything else reports false.
func ParseLanguage(s string) (Language, bool) {
	switch Language(strings.ToLower(strings.TrimSpace(s))) {
	case EN:
		return EN, true
	case RU:
		return RU, true
	default:
		return "", false
	}
}

// Detect picks RU when Cyrillic letters outnumber Latin ones, EN when Latin wins,
// and fallback on a tie (including text without letters).
func Detect(text string, fallback Language) Language {
	var cyr, lat int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyr++
		case unicode.Is(unicode.Latin, r):
			lat++
		}
	}
	switch {
	case cyr > lat:
		return RU
	case lat > cyr:
		return EN
	default:
		return fallback
	}
}
