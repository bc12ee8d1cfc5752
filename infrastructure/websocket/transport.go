package websocket

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport opens room channels on a remote Server. It satisfies contract.Transport.
type Transport struct {
	log         *slog.Logger
	url         string
	dialer      *websocket.Dialer
	buffer      int
	readTimeout time.Duration
}

// NewTransport dials the Server mounted at endpoint, e.g. ws://host:8080/realtime.
func NewTransport(log *slog.Logger, endpoint string, buffer int) *Transport {
	if buffer <= 0 {
		buffer = 256
	}
	return &Transport{
		log:         log,
		url:         endpoint,
		dialer:      &websocket.Dialer{HandshakeTimeout: writeWait},
		buffer:      buffer,
		readTimeout: pongWait,
	}
}

// WithReadTimeout sets how long a channel may stay silent before it is
// reported as timed out. The server pings well within the default.
func (t *Transport) WithReadTimeout(d time.Duration) *Transport {
	t.readTimeout = d
	return t
}

func (t *Transport) Open(ctx context.Context, room domain.RoomID, presenceKey string) (contract.Handle, error) {
	u, err := url.Parse(t.url)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint: %v", errors.ErrValidation, err)
	}
	query := u.Query()
	query.Set("room", string(room))
	query.Set("key", presenceKey)
	u.RawQuery = query.Encode()

	ws, _, err := t.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", errors.ErrTransientTransport, room, err)
	}
	h := &clientHandle{
		log:         t.log.With("room", room),
		room:        room,
		ws:          ws,
		events:      make(chan event.DomainEvent, t.buffer),
		readTimeout: t.readTimeout,
		done:        make(chan struct{}),
	}
	go h.readPump()
	return h, nil
}

type clientHandle struct {
	log         *slog.Logger
	room        domain.RoomID
	ws          *websocket.Conn
	events      chan event.DomainEvent
	readTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}

	// Last status reported to the consumer. Writes are refused unless subscribed.
	statusMu sync.RWMutex
	status   domain.ConnectionStatus
}

func (h *clientHandle) Room() domain.RoomID { return h.room }

func (h *clientHandle) Events() <-chan event.DomainEvent { return h.events }

func (h *clientHandle) Send(kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	return h.write(Frame{Type: FrameBroadcast, Room: h.room, Kind: kind, Payload: data})
}

func (h *clientHandle) Track(entry domain.PresenceEntry) error {
	return h.write(Frame{Type: FrameTrack, Room: h.room, Entry: &entry})
}

func (h *clientHandle) Untrack() error {
	return h.write(Frame{Type: FrameUntrack, Room: h.room})
}

// Close sends a close frame and releases the connection. It is idempotent.
func (h *clientHandle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.done)
		h.writeMu.Lock()
		_ = h.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = h.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		h.writeMu.Unlock()
		err = h.ws.Close()
	})
	return err
}

func (h *clientHandle) closing() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *clientHandle) setStatus(status domain.ConnectionStatus) {
	h.statusMu.Lock()
	defer h.statusMu.Unlock()
	h.status = status
}

func (h *clientHandle) subscribed() bool {
	h.statusMu.RLock()
	defer h.statusMu.RUnlock()
	return h.status == domain.StatusSubscribed
}

func (h *clientHandle) write(frame Frame) error {
	if h.closing() || !h.subscribed() {
		return errors.ErrNotSubscribed
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	_ = h.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := h.ws.WriteJSON(frame); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrTransientTransport, err)
	}
	return nil
}

// readPump decodes the server frames into events. A connection lost without a
// local Close is reported as a failed status before the channel closes: timedOut
// when the read deadline expired, closed on a clean close, error otherwise.
func (h *clientHandle) readPump() {
	defer close(h.events)

	h.ws.SetReadLimit(maxMessageSize)
	_ = h.ws.SetReadDeadline(time.Now().Add(h.readTimeout))
	h.ws.SetPingHandler(func(data string) error {
		_ = h.ws.SetReadDeadline(time.Now().Add(h.readTimeout))
		err := h.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		_, data, err := h.ws.ReadMessage()
		if err != nil {
			if h.closing() {
				return
			}
			status := lostStatus(err)
			h.setStatus(status)
			h.log.Warn("Channel lost", "status", status, "error", err)
			h.deliver(event.StatusChanged{
				Room:   h.room,
				Status: status,
				Err:    fmt.Errorf("%w: %v", errors.ErrTransientTransport, err),
			})
			return
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.log.Debug("Dropping undecodable frame", "error", err)
			continue
		}
		evt, err := Decode(frame)
		if err != nil {
			h.log.Debug("Dropping frame", "error", err)
			continue
		}
		if changed, ok := evt.(event.StatusChanged); ok {
			h.setStatus(changed.Status)
		}
		if !h.deliver(evt) {
			return
		}
	}
}

func (h *clientHandle) deliver(evt event.DomainEvent) bool {
	select {
	case h.events <- evt:
		return true
	case <-h.done:
		return false
	}
}

func lostStatus(err error) domain.ConnectionStatus {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return domain.StatusTimedOut
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return domain.StatusClosed
	default:
		return domain.StatusError
	}
}
