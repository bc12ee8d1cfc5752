package moderation

import (
	"log/slog"
	"testing"

	"github.com/abadojack/whatlanggo"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newLanguageModerator(t *testing.T, byLanguage map[string][]string) *LanguageModerator {
	t.Helper()
	var words []string
	for _, list := range byLanguage {
		words = append(words, list...)
	}
	data := &CensoredData{Words: words, ByLanguage: byLanguage}
	m, err := NewLanguageModerator(data, mask, logs.GetLoggerFromLevel(slog.LevelDebug))
	require.NoError(t, err)
	return m
}

func TestLanguageModerator_UsesDictionaryOfDetectedLanguage(t *testing.T) {
	req := require.New(t)
	m := newLanguageModerator(t, map[string][]string{"en": {"bollocks"}, "fr": {"con"}})

	// Given an English message holding the French word inside English ones
	english := "The second conference call was a load of bollocks, we should schedule another meeting tomorrow"

	// Then only the English dictionary applies
	got, words := m.Censor(english)
	req.Equal("The second conference call was a load of ********, we should schedule another meeting tomorrow", got)
	req.Equal([]string{"bollocks"}, words)

	// Given a French message
	french := "Franchement, ce con a encore oublié la réunion de demain matin et personne ne lui a rien dit"

	// Then the French dictionary applies
	got, words = m.Censor(french)
	req.Equal("Franchement, ce *** a encore oublié la réunion de demain matin et personne ne lui a rien dit", got)
	req.Equal([]string{"con"}, words)
}

func TestLanguageModerator_UndetectedLanguageUsesEveryDictionary(t *testing.T) {
	req := require.New(t)
	m := newLanguageModerator(t, map[string][]string{"en": {"bollocks"}, "fr": {"con"}})

	// When the body is mostly in a script no dictionary covers
	got, words := m.Censor("Привет, как дела? con bollocks")

	// Then every dictionary is searched
	req.Equal("Привет, как дела? *** ********", got)
	req.Equal([]string{"con", "bollocks"}, words)

	got, words = m.Censor("")
	req.Empty(got)
	req.Nil(words)
}

func TestLanguageModerator_UnknownTagOnlyMerged(t *testing.T) {
	req := require.New(t)

	// Given a dictionary named after no language
	m := newLanguageModerator(t, map[string][]string{"slang": {"spam"}})
	req.Empty(m.byLang)

	// Then its words are still masked through the merged dictionary
	got, words := m.Censor("please stop sending spam to the whole channel")
	req.Equal("please stop sending **** to the whole channel", got)
	req.Equal([]string{"spam"}, words)
}

func TestLanguageModerator_EmbeddedDictionaries(t *testing.T) {
	req := require.New(t)
	data, err := NewCensoredLoader(Dictionaries).LoadAll(DictionaryDir)
	req.NoError(err)

	m, err := NewLanguageModerator(data, mask, logs.GetLoggerFromLevel(slog.LevelDebug))

	req.NoError(err)
	req.Len(m.byLang, 2)
	req.Contains(m.byLang, whatlanggo.Eng)
	req.Contains(m.byLang, whatlanggo.Fra)
	req.True(m.options.Whitelist[whatlanggo.Fra])
}
