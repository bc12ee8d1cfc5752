package websocket

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
	"chat-sync/infrastructure/hub"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T) (*hub.Hub, *httptest.Server, *Transport) {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	h := hub.New(log, 0)
	srv := httptest.NewServer(NewServer(log, h))
	t.Cleanup(srv.Close)
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime"
	return h, srv, NewTransport(log, endpoint, 0)
}

func next(t *testing.T, handle contract.Handle) event.DomainEvent {
	t.Helper()
	select {
	case evt, ok := <-handle.Events():
		require.True(t, ok, "channel closed")
		return evt
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no event")
		return nil
	}
}

func open(t *testing.T, transport *Transport, room domain.RoomID, key string) contract.Handle {
	t.Helper()
	handle, err := transport.Open(context.Background(), room, key)
	require.NoError(t, err)
	t.Cleanup(func() { _ = handle.Close() })
	require.Equal(t, domain.StatusSubscribed, next(t, handle).(event.StatusChanged).Status)
	next(t, handle)
	return handle
}

func TestFrame_EncodeDecode(t *testing.T) {
	req := require.New(t)
	events := []event.DomainEvent{
		event.RecordInserted{Room: "general", Table: event.TableMessages, Record: json.RawMessage(`{"id":"m1"}`)},
		event.RecordChanged{Room: "general", Table: event.TableMessages, Record: json.RawMessage(`{"id":"m1"}`)},
		event.RecordDeleted{Room: "general", Table: event.TableReactions, ID: "r1"},
		event.PresenceSynced{Room: "general", Roster: []domain.PresenceEntry{{UserID: "alice"}}},
		event.BroadcastReceived{Room: "general", Kind: event.BroadcastTyping, Payload: json.RawMessage(`{}`)},
		event.StatusChanged{Room: "general", Status: domain.StatusSubscribed},
	}
	for _, evt := range events {
		frame, err := Encode(evt)
		req.NoError(err)
		data, err := json.Marshal(frame)
		req.NoError(err)
		var decoded Frame
		req.NoError(json.Unmarshal(data, &decoded))
		back, err := Decode(decoded)
		req.NoError(err)
		req.Equal(evt, back)
	}

	// Errors cross the wire as transient failures
	frame, err := Encode(event.StatusChanged{Room: "general", Status: domain.StatusError, Err: errors.New("boom")})
	req.NoError(err)
	back, err := Decode(frame)
	req.NoError(err)
	req.ErrorIs(back.(event.StatusChanged).Err, errors.ErrTransientTransport)

	_, err = Decode(Frame{Type: "nope"})
	req.ErrorIs(err, errors.ErrValidation)
}

func TestTransport_PresenceAndBroadcast(t *testing.T) {
	req := require.New(t)
	_, _, transport := serve(t)
	alice := open(t, transport, "general", "alice")
	bob := open(t, transport, "general", "bob")

	// When alice announces herself
	req.NoError(alice.Track(domain.PresenceEntry{UserID: "alice", DisplayName: "Alice"}))

	// Then bob sees her in the roster
	synced := next(t, bob).(event.PresenceSynced)
	req.Equal("alice", synced.Roster[0].UserID)
	next(t, alice)

	// When bob types
	req.NoError(bob.Send(event.BroadcastTyping, event.TypingPayload{UserID: "bob", DisplayName: "Bob"}))

	// Then alice receives the signal
	received := next(t, alice).(event.BroadcastReceived)
	var payload event.TypingPayload
	req.NoError(json.Unmarshal(received.Payload, &payload))
	req.Equal("Bob", payload.DisplayName)
}

func TestTransport_PublishedRecordsReachClients(t *testing.T) {
	req := require.New(t)
	h, _, transport := serve(t)
	alice := open(t, transport, "general", "alice")

	h.Publish(event.RecordDeleted{Room: "general", Table: event.TableMessages, ID: "m1"})

	req.Equal(event.RecordDeleted{Room: "general", Table: event.TableMessages, ID: "m1"}, next(t, alice))
}

func TestTransport_CloseReleasesServerSide(t *testing.T) {
	req := require.New(t)
	h, _, transport := serve(t)
	alice := open(t, transport, "general", "alice")

	req.NoError(alice.Close())
	req.NoError(alice.Close())
	req.ErrorIs(alice.Track(domain.PresenceEntry{UserID: "alice"}), errors.ErrNotSubscribed)

	require.Eventually(t, func() bool {
		_, handles := h.Stats()
		return handles == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTransport_InterruptIsReported(t *testing.T) {
	req := require.New(t)
	h, _, transport := serve(t)
	alice := open(t, transport, "general", "alice")

	h.Interrupt("general", domain.StatusTimedOut, errors.New("heartbeat missed"))

	status := next(t, alice).(event.StatusChanged)
	req.Equal(domain.StatusTimedOut, status.Status)
	req.ErrorIs(status.Err, errors.ErrTransientTransport)

	// Then nothing more is written on the failed channel
	req.ErrorIs(alice.Send(event.BroadcastTyping, event.TypingPayload{UserID: "alice"}), errors.ErrNotSubscribed)
	req.ErrorIs(alice.Track(domain.PresenceEntry{UserID: "alice"}), errors.ErrNotSubscribed)
}

func TestTransport_SilentChannelTimesOut(t *testing.T) {
	req := require.New(t)
	_, _, transport := serve(t)
	transport.WithReadTimeout(200 * time.Millisecond)
	alice := open(t, transport, "general", "alice")

	// When the server stays silent past the read timeout
	status := next(t, alice).(event.StatusChanged)

	// Then the channel reports a timeout and refuses writes
	req.Equal(domain.StatusTimedOut, status.Status)
	req.ErrorIs(status.Err, errors.ErrTransientTransport)
	req.ErrorIs(alice.Untrack(), errors.ErrNotSubscribed)
}

func TestTransport_DialFailure(t *testing.T) {
	req := require.New(t)
	transport := NewTransport(logs.GetLoggerFromLevel(slog.LevelDebug), "ws://127.0.0.1:1/realtime", 0)

	_, err := transport.Open(context.Background(), "general", "alice")
	req.ErrorIs(err, errors.ErrTransientTransport)
}
