package domain

import (
	"errors"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

const DefaultLanguage Language = "en"

var (
	ErrLanguageEmpty       = errors.New("language empty")
	ErrLanguageInvalid     = errors.New("language invalid")
	ErrLanguageUnsupported = errors.New("language unsupported")
)

// Language is a lower-case ISO 639-1 code.
type Language string

func (l Language) String() string { return string(l) }

var catalog = map[Language]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"ru": "Russian",
	"ja": "Japanese",
	"ko": "Korean",
	"zh": "Chinese",
}

// ParseLanguage accepts any BCP 47 tag ("es", "pt-BR", "zh-Hans") and
// reduces it to the base language, which must be in the catalog.
func ParseLanguage(raw string) (Language, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrLanguageEmpty
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return "", ErrLanguageInvalid
	}
	base, _ := tag.Base()
	l := Language(strings.ToLower(base.String()))
	if _, ok := catalog[l]; !ok {
		return "", ErrLanguageUnsupported
	}
	return l, nil
}

type LanguageInfo struct {
	Code Language `json:"code"`
	Name string   `json:"name"`
}

// SupportedLanguages lists the catalog sorted by code.
func SupportedLanguages() []LanguageInfo {
	out := make([]LanguageInfo, 0, len(catalog))
	for code, name := range catalog {
		out = append(out, LanguageInfo{Code: code, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
