package domain

import (
	"strings"
	"time"
	"unicode"

	"github.com/samber/lo"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RoomID is the URL-safe identifier of a room.
type RoomID string

const DefaultRoom RoomID = "general"

// FixedRooms are open to every signed-in user.
var FixedRooms = []RoomID{DefaultRoom, "random", "tech"}

func (r RoomID) String() string { return string(r) }

// IsFixed reports whether r is one of the rooms open to everyone.
func (r RoomID) IsFixed() bool {
	return lo.Contains(FixedRooms, r)
}

// PrivateRoom is the metadata of a dynamically created room.
// SecretHash is an argon2id encoded hash, never the plain secret.
type PrivateRoom struct {
	ID         RoomID    `json:"id"`
	Name       string    `json:"name"`
	SecretHash string    `json:"secret_hash"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

const maxSlugLength = 48

// Slugify normalizes a room name into a RoomID: accents are stripped, letters
// lowered, and every run of other characters collapses into a single dash.
func Slugify(name string) RoomID {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, name)
	if err != nil {
		plain = name
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(plain) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteRune('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimSuffix(slug[:maxSlugLength], "-")
	}
	return RoomID(slug)
}
