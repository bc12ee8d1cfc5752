package domain

import (
	"chat-sync/errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateDraft(t *testing.T) {
	req := require.New(t)

	content, err := ValidateDraft("  hello  ")
	req.NoError(err)
	req.Equal("hello", content)

	_, err = ValidateDraft("   ")
	req.ErrorIs(err, errors.ErrValidation)

	_, err = ValidateDraft(strings.Repeat("é", MaxContentLength))
	req.NoError(err)

	_, err = ValidateDraft(strings.Repeat("a", MaxContentLength+1))
	req.ErrorIs(err, errors.ErrValidation)
}

func TestCompareMessages(t *testing.T) {
	req := require.New(t)
	at := time.Now()

	req.Negative(CompareMessages(Message{ID: "b", CreatedAt: at}, Message{ID: "a", CreatedAt: at.Add(time.Millisecond)}))
	req.Negative(CompareMessages(Message{ID: "a", CreatedAt: at}, Message{ID: "b", CreatedAt: at}))
	req.Zero(CompareMessages(Message{ID: "a", CreatedAt: at}, Message{ID: "a", CreatedAt: at}))
}

func TestGroupReactions(t *testing.T) {
	req := require.New(t)
	groups := GroupReactions([]Reaction{
		{UserID: "u1", Emoji: "🔥"},
		{UserID: "u2", Emoji: "👍"},
		{UserID: "u3", Emoji: "🔥"},
	})

	req.Equal([]ReactionGroup{
		{Emoji: "🔥", Count: 2, UserIDs: []string{"u1", "u3"}},
		{Emoji: "👍", Count: 1, UserIDs: []string{"u2"}},
	}, groups)

	m := Message{Reactions: []Reaction{{ID: "r1", UserID: "u1", Emoji: "🔥"}}}
	r, ok := m.ReactionBy("u1", "🔥")
	req.True(ok)
	req.Equal("r1", r.ID)
	_, ok = m.ReactionBy("u2", "🔥")
	req.False(ok)
}
