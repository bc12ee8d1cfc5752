//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-sync/domain"
	"chat-sync/domain/event"
	"context"
)

// Handle is one open subscription to a room channel.
// Send, Track and Untrack never wait for delivery.
type Handle interface {
	Room() domain.RoomID
	Events() <-chan event.DomainEvent
	// Send broadcasts an ephemeral payload. It returns errors.ErrNotSubscribed
	// while the handle is not subscribed.
	Send(kind string, payload any) error
	Track(entry domain.PresenceEntry) error
	Untrack() error
	// Close is idempotent.
	Close() error
}

// Transport opens room channels. It never retries on its own.
// A client holds at most one open handle per room.
type Transport interface {
	Open(ctx context.Context, room domain.RoomID, presenceKey string) (Handle, error)
}

// Store is the authoritative backing store.
type Store interface {
	InsertMessage(ctx context.Context, message domain.Message) (domain.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	DeleteRoomMessages(ctx context.Context, room domain.RoomID) error
	LatestMessages(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error)
	MessagesByID(ctx context.Context, ids []string) ([]domain.Message, error)
	ReactionsFor(ctx context.Context, messageIDs []string) ([]domain.Reaction, error)
	InsertReaction(ctx context.Context, reaction domain.Reaction) (domain.Reaction, error)
	DeleteReaction(ctx context.Context, id string) error
	CreateRoom(ctx context.Context, room domain.PrivateRoom) error
	GetRoom(ctx context.Context, id domain.RoomID) (domain.PrivateRoom, error)
}

// ProfileLookup resolves display fields for a batch of users in one query.
// Unknown ids are absent from the returned map.
type ProfileLookup interface {
	Profiles(ctx context.Context, userIDs []string) (map[string]domain.Profile, error)
	UpdateAvatar(ctx context.Context, userID, avatarStyle string) error
}

type AuthEventKind int

const (
	SignedIn AuthEventKind = iota
	SignedOut
)

type AuthEvent struct {
	Kind AuthEventKind
	User domain.User
}

// AuthProvider exposes the current session and its transitions.
type AuthProvider interface {
	Current() (domain.User, bool)
	Events() <-chan AuthEvent
}

// JoinedRooms is the per-user list of private rooms already unlocked.
// Add is a set union, never an overwrite.
type JoinedRooms interface {
	Add(userID string, room domain.RoomID) ([]domain.RoomID, error)
	List(userID string) ([]domain.RoomID, error)
}

// StateSink receives the unified state on every change.
type StateSink interface {
	Consume(state domain.State)
	Notify(notification domain.Notification)
}
