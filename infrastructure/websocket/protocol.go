// Package websocket carries room channels over gorilla websocket connections:
// Server exposes any contract.Transport over HTTP, Transport dials it.
package websocket

import (
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
	"encoding/json"
	"fmt"
	"time"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Frame types. The first six travel from server to client, the last two from
// client to server. Broadcasts travel both ways.
const (
	FrameInsert    = "INSERT"
	FrameUpdate    = "UPDATE"
	FrameDelete    = "DELETE"
	FramePresence  = "presence_sync"
	FrameBroadcast = "broadcast"
	FrameStatus    = "system"
	FrameTrack     = "track"
	FrameUntrack   = "untrack"
)

// Frame is the JSON envelope of every websocket message.
type Frame struct {
	Type    string                  `json:"type"`
	Room    domain.RoomID           `json:"room,omitempty"`
	Table   event.Table             `json:"table,omitempty"`
	Record  json.RawMessage         `json:"record,omitempty"`
	ID      string                  `json:"id,omitempty"`
	Roster  []domain.PresenceEntry  `json:"roster,omitempty"`
	Entry   *domain.PresenceEntry   `json:"entry,omitempty"`
	Kind    string                  `json:"kind,omitempty"`
	Payload json.RawMessage         `json:"payload,omitempty"`
	Status  domain.ConnectionStatus `json:"status,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

// Encode turns a channel event into its frame.
func Encode(evt event.DomainEvent) (Frame, error) {
	switch e := evt.(type) {
	case event.RecordInserted:
		return Frame{Type: FrameInsert, Room: e.Room, Table: e.Table, Record: e.Record}, nil
	case event.RecordChanged:
		return Frame{Type: FrameUpdate, Room: e.Room, Table: e.Table, Record: e.Record}, nil
	case event.RecordDeleted:
		return Frame{Type: FrameDelete, Room: e.Room, Table: e.Table, ID: e.ID}, nil
	case event.PresenceSynced:
		return Frame{Type: FramePresence, Room: e.Room, Roster: e.Roster}, nil
	case event.BroadcastReceived:
		return Frame{Type: FrameBroadcast, Room: e.Room, Kind: e.Kind, Payload: e.Payload}, nil
	case event.StatusChanged:
		f := Frame{Type: FrameStatus, Room: e.Room, Status: e.Status}
		if e.Err != nil {
			f.Error = e.Err.Error()
		}
		return f, nil
	default:
		return Frame{}, fmt.Errorf("%w: cannot encode %T", errors.ErrValidation, evt)
	}
}

// Decode turns a server frame back into a channel event.
func Decode(f Frame) (event.DomainEvent, error) {
	switch f.Type {
	case FrameInsert:
		return event.RecordInserted{Room: f.Room, Table: f.Table, Record: f.Record}, nil
	case FrameUpdate:
		return event.RecordChanged{Room: f.Room, Table: f.Table, Record: f.Record}, nil
	case FrameDelete:
		return event.RecordDeleted{Room: f.Room, Table: f.Table, ID: f.ID}, nil
	case FramePresence:
		return event.PresenceSynced{Room: f.Room, Roster: f.Roster}, nil
	case FrameBroadcast:
		return event.BroadcastReceived{Room: f.Room, Kind: f.Kind, Payload: f.Payload}, nil
	case FrameStatus:
		evt := event.StatusChanged{Room: f.Room, Status: f.Status}
		if f.Error != "" {
			evt.Err = fmt.Errorf("%w: %s", errors.ErrTransientTransport, f.Error)
		}
		return evt, nil
	default:
		return nil, fmt.Errorf("%w: unknown frame type %q", errors.ErrValidation, f.Type)
	}
}
