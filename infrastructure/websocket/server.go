package websocket

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Server upgrades HTTP requests to room channels opened on transport.
// The room and the presence key are read from the "room" and "key" query
// parameters.
type Server struct {
	log       *slog.Logger
	transport contract.Transport
	upgrader  websocket.Upgrader
}

func NewServer(log *slog.Logger, transport contract.Transport) *Server {
	return &Server{
		log:       log,
		transport: transport,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	room := domain.RoomID(r.URL.Query().Get("room"))
	key := r.URL.Query().Get("key")
	if room == "" || key == "" {
		http.Error(w, "room and key are required", http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("Upgrade failed", "error", err)
		return
	}

	handle, err := s.transport.Open(r.Context(), room, key)
	if err != nil {
		s.log.Warn("Opening channel failed", "room", room, "key", key, "error", err)
		frame := Frame{Type: FrameStatus, Room: room, Status: domain.StatusError, Error: err.Error()}
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = ws.WriteJSON(frame)
		_ = ws.Close()
		return
	}

	conn := &serverConn{log: s.log.With("room", room, "key", key), ws: ws, handle: handle}
	go conn.writePump()
	conn.readPump()
}

type serverConn struct {
	log    *slog.Logger
	ws     *websocket.Conn
	handle contract.Handle
}

// readPump applies the client frames until the connection drops.
func (c *serverConn) readPump() {
	defer func() {
		_ = c.handle.Close()
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Read error", "error", err)
			}
			return
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Debug("Dropping undecodable frame", "error", err)
			continue
		}
		if err := c.apply(frame); err != nil {
			c.log.Debug("Client frame rejected", "type", frame.Type, "error", err)
		}
	}
}

func (c *serverConn) apply(frame Frame) error {
	switch frame.Type {
	case FrameBroadcast:
		return c.handle.Send(frame.Kind, frame.Payload)
	case FrameTrack:
		if frame.Entry == nil {
			return nil
		}
		return c.handle.Track(*frame.Entry)
	case FrameUntrack:
		return c.handle.Untrack()
	default:
		c.log.Debug("Ignoring client frame", "type", frame.Type)
		return nil
	}
}

// writePump forwards the channel events and keeps the connection alive.
func (c *serverConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	events := c.handle.Events()
	for {
		select {
		case evt, ok := <-events:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			frame, err := Encode(evt)
			if err != nil {
				c.log.Debug("Skipping event", "error", err)
				continue
			}
			if err := c.ws.WriteJSON(frame); err != nil {
				c.log.Debug("Write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
