// Package event defines what a room channel delivers to the client.
package event

import (
	"chat-sync/domain"
	"encoding/json"
)

// DomainEvent is anything delivered by a room channel.
type DomainEvent interface {
	RoomID() domain.RoomID
}

// Table names the store table a record event comes from.
type Table string

const (
	TableMessages  Table = "messages"
	TableReactions Table = "reactions"
)

// BroadcastTyping is the broadcast kind of typing signals.
const BroadcastTyping = "typing"

// RecordInserted carries the raw JSON of a new row.
type RecordInserted struct {
	Room   domain.RoomID
	Table  Table
	Record json.RawMessage
}

// RecordDeleted only carries the id of the removed row.
type RecordDeleted struct {
	Room  domain.RoomID
	Table Table
	ID    string
}

// RecordChanged carries the raw JSON of an updated row.
type RecordChanged struct {
	Room   domain.RoomID
	Table  Table
	Record json.RawMessage
}

// PresenceSynced is the full roster of the room, not a delta.
type PresenceSynced struct {
	Room   domain.RoomID
	Roster []domain.PresenceEntry
}

// BroadcastReceived is an ephemeral message sent to every subscriber.
type BroadcastReceived struct {
	Room    domain.RoomID
	Kind    string
	Payload json.RawMessage
}

// StatusChanged reports a subscription transition. Err is set for error and timedOut.
type StatusChanged struct {
	Room   domain.RoomID
	Status domain.ConnectionStatus
	Err    error
}

// TypingPayload is the body of a typing broadcast.
type TypingPayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"username"`
}

func (e RecordInserted) RoomID() domain.RoomID    { return e.Room }
func (e RecordDeleted) RoomID() domain.RoomID     { return e.Room }
func (e RecordChanged) RoomID() domain.RoomID     { return e.Room }
func (e PresenceSynced) RoomID() domain.RoomID    { return e.Room }
func (e BroadcastReceived) RoomID() domain.RoomID { return e.Room }
func (e StatusChanged) RoomID() domain.RoomID     { return e.Room }

// Kind is a short label used in logs and metrics.
func Kind(e DomainEvent) string {
	switch evt := e.(type) {
	case RecordInserted:
		return "insert:" + string(evt.Table)
	case RecordDeleted:
		return "delete:" + string(evt.Table)
	case RecordChanged:
		return "update:" + string(evt.Table)
	case PresenceSynced:
		return "presence"
	case BroadcastReceived:
		return "broadcast:" + evt.Kind
	case StatusChanged:
		return "status:" + string(evt.Status)
	default:
		return "unknown"
	}
}
