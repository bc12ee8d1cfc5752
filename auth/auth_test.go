package auth

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestHashAndCompare(t *testing.T) {
	req := require.New(t)
	secret := "open-sesame"

	hash, err := HashSecret(secret)
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$"))
	req.NotContains(hash, secret)

	match, err := CompareSecret(secret, hash)
	req.NoError(err)
	req.True(match)

	// Wrong secret
	match, err = CompareSecret("open-barley", hash)
	req.NoError(err)
	req.False(match)
	req.ErrorIs(VerifySecret("open-barley", hash), errors.ErrWrongSecret)
	req.ErrorIs(VerifySecret("open-barley", hash), errors.ErrAuthorization)

	_, err = CompareSecret(secret, "plain")
	req.ErrorIs(err, ErrInvalidHash)
}

func TestPrivateRoomValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     PrivateRoomRequest
		wantErr bool
	}{
		{"Valid request", PrivateRoomRequest{"Book club", "s3cret"}, false},
		{"Blank name", PrivateRoomRequest{"   ", "s3cret"}, true},
		{"Name too long", PrivateRoomRequest{strings.Repeat("a", 51), "s3cret"}, true},
		{"Secret too short", PrivateRoomRequest{"Book club", "abc"}, true},
		{"Blank secret", PrivateRoomRequest{"Book club", "      "}, true},
		{"Secret too long (edge case)", PrivateRoomRequest{"Book club", strings.Repeat("a", 73)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			err := ValidatePrivateRoom(tt.req)
			if tt.wantErr {
				req.ErrorIs(err, errors.ErrValidation)
			} else {
				req.NoError(err)
			}
		})
	}
}

func TestToken_IssueAndParse(t *testing.T) {
	req := require.New(t)
	tokens := NewTokenIssuer([]byte("test-key"), time.Hour)
	user := domain.User{ID: "u1", DisplayName: "alice", Color: "#ff0000", AvatarStyle: "bottts"}

	token, err := tokens.Issue(user)
	req.NoError(err)

	got, err := tokens.Parse(token)
	req.NoError(err)
	req.Equal(user, got)

	// Another key
	_, err = NewTokenIssuer([]byte("other-key"), time.Hour).Parse(token)
	req.ErrorIs(err, errors.ErrAuthorization)

	// Expired
	expired, err := NewTokenIssuer([]byte("test-key"), -time.Minute).Issue(user)
	req.NoError(err)
	_, err = tokens.Parse(expired)
	req.ErrorIs(err, errors.ErrAuthorization)
}

func TestSession_SignInSignOut(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	tokens := NewTokenIssuer([]byte("test-key"), time.Hour)
	session := NewSession(log, tokens)

	_, ok := session.Current()
	req.False(ok)

	token, err := tokens.Issue(domain.User{ID: "u1", DisplayName: "alice"})
	req.NoError(err)

	// When signing in
	user, err := session.SignIn(token)
	req.NoError(err)
	req.Equal(domain.DefaultAvatarStyle, user.AvatarStyle)

	current, ok := session.Current()
	req.True(ok)
	req.Equal(user, current)
	evt := <-session.Events()
	req.Equal(contract.SignedIn, evt.Kind)

	// When signing out twice
	session.SignOut()
	session.SignOut()
	_, ok = session.Current()
	req.False(ok)
	evt = <-session.Events()
	req.Equal(contract.SignedOut, evt.Kind)
	req.Empty(session.Events())

	// A bad token leaves the session signed out
	_, err = session.SignIn("garbage")
	req.ErrorIs(err, errors.ErrAuthorization)
	_, ok = session.Current()
	req.False(ok)
}

func BenchmarkHashSecret(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = HashSecret("A-room-secret-for-bench-123!")
	}
}
