package moderation

import (
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const mask = '*'

func TestModerator_Censor(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	mod, err := NewModerator([]string{"spam", "scam", "idiot"}, mask, log)
	req.NoError(err)

	tests := []struct {
		name  string
		input string
		want  string
		words []string
	}{
		{name: "single word", input: "this is spam", want: "this is ****", words: []string{"spam"}},
		{name: "repeated word", input: "scam scam", want: "**** ****", words: []string{"scam", "scam"}},
		{name: "leet digits", input: "you 1d10t", want: "you *****", words: []string{"idiot"}},
		{name: "dotted capitals", input: "S.P.A.M in #general", want: "******* in #general", words: []string{"spam"}},
		{name: "accented neighbours", input: "Un été avec un scam", want: "Un été avec un ****", words: []string{"scam"}},
		{name: "trailing punctuation kept", input: "what a scam!", want: "what a ****!", words: []string{"scam"}},
		{name: "clean message", input: "see you in #random", want: "see you in #random"},
		{name: "empty body", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, words := mod.Censor(tt.input)
			req.Equal(tt.want, got)
			req.Equal(tt.words, words)
		})
	}
}

func TestModerator_NoiseOnlyEntriesIgnored(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given a dictionary polluted with punctuation
	mod, err := NewModerator([]string{"...", "--", "", "spam"}, mask, log)
	req.NoError(err)

	// Then real words are still masked
	got, words := mod.Censor("no spam here")
	req.Equal("no **** here", got)
	req.Equal([]string{"spam"}, words)

	// And punctuation in messages is left alone
	got, words = mod.Censor("wait ...")
	req.Equal("wait ...", got)
	req.Nil(words)
}

func TestModerator_EmptyDictionary(t *testing.T) {
	req := require.New(t)

	// Given no dictionary at all
	mod, err := NewModerator(nil, mask, logs.GetLoggerFromLevel(slog.LevelDebug))
	req.NoError(err)

	// When censoring anything
	got, words := mod.Censor("spam scam idiot")

	// Then the body is returned untouched
	req.Equal("spam scam idiot", got)
	req.Nil(words)
}
