// Package domain contains core concepts of the chat system.
// This file defines participants: the signed-in user, profiles, presence and typing.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

const (
	DefaultAvatarStyle = "avataaars"
	UnknownDisplayName = "Unknown"
)

// User is the identity of the current session.
type User struct {
	ID          string
	DisplayName string
	Color       string
	AvatarStyle string
}

// Profile is what the profile collaborator knows about a user.
type Profile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"username"`
	Color       string    `json:"color"`
	AvatarStyle string    `json:"avatar_style"`
	CreatedAt   time.Time `json:"created_at"`
}

// WithProfile overrides the session fields with the stored profile.
func (u User) WithProfile(p Profile) User {
	if p.DisplayName != "" {
		u.DisplayName = p.DisplayName
	}
	if p.Color != "" {
		u.Color = p.Color
	}
	if p.AvatarStyle != "" {
		u.AvatarStyle = p.AvatarStyle
	}
	return u
}

// PresenceEntry is one user of a room roster.
// Entries live as long as the channel subscription, nothing is persisted.
type PresenceEntry struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"username"`
	AvatarStyle string    `json:"avatar_style"`
	OnlineAt    time.Time `json:"online_at"`
}

// Presence builds the entry announced by u.
func (u User) Presence(at time.Time) PresenceEntry {
	return PresenceEntry{
		UserID:      u.ID,
		DisplayName: u.DisplayName,
		AvatarStyle: u.AvatarStyle,
		OnlineAt:    at,
	}
}

// TypingSignal is a transient "is composing" marker, stamped with the local receipt time.
type TypingSignal struct {
	UserID      string
	DisplayName string
	ReceivedAt  time.Time
}
