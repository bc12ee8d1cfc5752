package auth

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"log/slog"
	"sync"

	"github.com/samber/lo"
)

const sessionEventsBuffer = 16

// Session is the signed-in identity of the local client.
// It satisfies contract.AuthProvider.
type Session struct {
	log    *slog.Logger
	tokens *TokenIssuer
	mu     sync.RWMutex
	user   *domain.User
	events chan contract.AuthEvent
}

func NewSession(log *slog.Logger, tokens *TokenIssuer) *Session {
	return &Session{
		log:    log,
		tokens: tokens,
		events: make(chan contract.AuthEvent, sessionEventsBuffer),
	}
}

// SignIn validates token and makes its user current.
func (s *Session) SignIn(token string) (domain.User, error) {
	user, err := s.tokens.Parse(token)
	if err != nil {
		return domain.User{}, err
	}
	user.AvatarStyle = lo.CoalesceOrEmpty(user.AvatarStyle, domain.DefaultAvatarStyle)

	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()

	s.publish(contract.AuthEvent{Kind: contract.SignedIn, User: user})
	return user, nil
}

// SignOut clears the session. Signing out twice is a no-op.
func (s *Session) SignOut() {
	s.mu.Lock()
	user := s.user
	s.user = nil
	s.mu.Unlock()

	if user == nil {
		return
	}
	s.publish(contract.AuthEvent{Kind: contract.SignedOut, User: *user})
}

func (s *Session) Current() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return domain.User{}, false
	}
	return *s.user, true
}

func (s *Session) Events() <-chan contract.AuthEvent {
	return s.events
}

func (s *Session) publish(evt contract.AuthEvent) {
	select {
	case s.events <- evt:
	default:
		s.log.Warn("Auth event channel full, dropping event", "user", evt.User.ID, "kind", evt.Kind)
	}
}
