package projection

import (
	"chat-sync/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func entries(ids ...string) []domain.PresenceEntry {
	var out []domain.PresenceEntry
	for _, id := range ids {
		out = append(out, domain.PresenceEntry{UserID: id, DisplayName: id, OnlineAt: time.Now()})
	}
	return out
}

func TestRoster_Apply_OnlyNewUsersJoin(t *testing.T) {
	req := require.New(t)
	roster := NewRoster()

	// Given roster A = {u1, u2}
	req.Empty(roster.Apply(entries("u1", "u2"), "me"))

	// When roster B = {u1, u2, u3}
	joined := roster.Apply(entries("u1", "u2", "u3"), "me")

	// Then exactly one join, for u3
	req.Len(joined, 1)
	req.Equal("u3", joined[0].UserID)
}

func TestRoster_Apply_SelfCountedButHidden(t *testing.T) {
	req := require.New(t)
	roster := NewRoster()

	roster.Apply(entries("me", "u1"), "me")
	joined := roster.Apply(entries("me", "u1", "u2", "u2"), "me")

	req.Equal(3, roster.Count())
	req.Equal([]string{"u1", "u2"}, roster.IDs())
	req.Len(joined, 1)
}

func TestRoster_FirstSnapshotOnlyPrimes(t *testing.T) {
	req := require.New(t)
	roster := NewRoster()

	// Given the first snapshot of a room
	req.Empty(roster.Apply(entries("u1", "u2", "u3"), "me"))
	req.Equal(3, roster.Count())

	// When u3 leaves then comes back
	req.Empty(roster.Apply(entries("u1", "u2"), "me"))
	joined := roster.Apply(entries("u1", "u2", "u3"), "me")

	// Then u3 is announced again
	req.Len(joined, 1)
	req.Equal("u3", joined[0].UserID)
}
