package moderation

import (
	"fmt"
	"log/slog"

	"github.com/abadojack/whatlanggo"
)

// LanguageModerator censors a body with the dictionary of the language it is
// written in, so that a word harmless in one language is not masked in another.
// Bodies whose language cannot be told reliably among the dictionary languages
// go through every dictionary.
type LanguageModerator struct {
	log      *slog.Logger
	options  whatlanggo.Options
	byLang   map[whatlanggo.Lang]*Moderator
	fallback *Moderator
}

// NewLanguageModerator builds one moderator per dictionary language plus one
// for the merged dictionary. A dictionary whose tag is not a known ISO 639
// code only takes part in the merged one.
func NewLanguageModerator(data *CensoredData, censoredChar rune, log *slog.Logger) (*LanguageModerator, error) {
	m := &LanguageModerator{
		log:     log,
		options: whatlanggo.Options{Whitelist: make(map[whatlanggo.Lang]bool)},
		byLang:  make(map[whatlanggo.Lang]*Moderator),
	}
	for tag, words := range data.ByLanguage {
		lang, ok := langFromTag(tag)
		if !ok {
			log.Warn("Unknown dictionary language, merged dictionary only", "language", tag)
			continue
		}
		mod, err := NewModerator(words, censoredChar, log)
		if err != nil {
			return nil, fmt.Errorf("dictionary %s: %w", tag, err)
		}
		m.byLang[lang] = mod
		m.options.Whitelist[lang] = true
	}

	fallback, err := NewModerator(data.Words, censoredChar, log)
	if err != nil {
		return nil, err
	}
	m.fallback = fallback
	return m, nil
}

func (m *LanguageModerator) Censor(original string) (string, []string) {
	info := whatlanggo.DetectWithOptions(original, m.options)
	if mod, ok := m.byLang[info.Lang]; ok && info.IsReliable() {
		censored, words := mod.Censor(original)
		if len(words) > 0 {
			m.log.Debug("Censored with language dictionary", "lang", info.Lang.Iso6391())
		}
		return censored, words
	}
	return m.fallback.Censor(original)
}

// langFromTag accepts ISO 639-1 ("fr") and ISO 639-3 ("fra") tags.
func langFromTag(tag string) (whatlanggo.Lang, bool) {
	for lang := whatlanggo.Afr; lang <= whatlanggo.Zul; lang++ {
		if lang.Iso6391() == tag || lang.Iso6393() == tag {
			return lang, true
		}
	}
	return -1, false
}
