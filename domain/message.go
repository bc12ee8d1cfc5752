// Package domain contains core concepts of the chat system.
// This file defines Message and Reaction records and their ordering rules.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"cmp"
	"strings"
	"time"
)

// HistoryLimit is the number of most recent messages loaded when entering a room.
const HistoryLimit = 100

// MaxContentLength is the maximum number of characters of a message body.
const MaxContentLength = 500

// ReactionEmojis is the set offered by the reaction picker.
var ReactionEmojis = []string{"👍", "❤️", "😂", "😮", "🔥"}

// ReplyRef is the snippet of the replied-to message, copied at send time.
// It is not refreshed if the target is later edited or deleted.
type ReplyRef struct {
	MessageID  string `json:"message_id"`
	AuthorName string `json:"author_name"`
	Content    string `json:"content"`
}

// Message is a chat record as returned by the backing store.
type Message struct {
	ID          string     `json:"id"`
	Room        RoomID     `json:"room"`
	AuthorID    string     `json:"user_id"`
	AuthorName  string     `json:"username"`
	AuthorColor string     `json:"user_color"`
	Content     string     `json:"content"`
	Reply       *ReplyRef  `json:"reply,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Reactions   []Reaction `json:"reactions,omitempty"`
}

// Reaction is one emoji put by one user on one message.
// At most one reaction per (MessageID, UserID, Emoji) is meaningful.
type Reaction struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// CompareMessages orders messages by creation time, then by id.
func CompareMessages(a, b Message) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// ReactionBy returns the reaction of userID with emoji, if any.
func (m Message) ReactionBy(userID, emoji string) (Reaction, bool) {
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			return r, true
		}
	}
	return Reaction{}, false
}

// ReplySnippet denormalizes m into a reply reference.
func (m Message) ReplySnippet() *ReplyRef {
	return &ReplyRef{
		MessageID:  m.ID,
		AuthorName: m.AuthorName,
		Content:    m.Content,
	}
}

// ReactionGroup is the aggregated view of one emoji on a message.
type ReactionGroup struct {
	Emoji   string
	Count   int
	UserIDs []string
}

// GroupReactions aggregates reactions by emoji, keeping first-seen order.
func GroupReactions(reactions []Reaction) []ReactionGroup {
	var groups []ReactionGroup
	index := make(map[string]int)
	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(groups)
			index[r.Emoji] = i
			groups = append(groups, ReactionGroup{Emoji: r.Emoji})
		}
		groups[i].Count++
		groups[i].UserIDs = append(groups[i].UserIDs, r.UserID)
	}
	return groups
}

// NormalizeContent trims the surrounding whitespace of a message body.
func NormalizeContent(content string) string {
	return strings.TrimSpace(content)
}
