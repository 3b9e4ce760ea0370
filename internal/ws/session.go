package ws

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"edu-chat-service/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

// Session is one connected websocket client. Outbound frames go through a
// bounded queue so a slow reader can never stall a publisher; when the
// queue is full the oldest frame is dropped and the client recovers the
// gap by re-fetching history on its next page load.
type Session struct {
	info Info
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	done chan struct{}
}

// Info is the registry view of a session.
type Info struct {
	ConnInfo
}

func newSession(hub *Hub, conn *websocket.Conn, info ConnInfo, queueSize int) *Session {
	return &Session{
		info: Info{ConnInfo: info},
		conn: conn,
		send: make(chan []byte, queueSize),
		hub:  hub,
		done: make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.info.SessionID }

// UserID returns the authenticated user behind the session.
func (s *Session) UserID() int { return s.info.UserID }

// enqueue offers a frame without ever blocking the caller. On overflow
// the oldest queued frame is evicted to make room.
func (s *Session) enqueue(payload []byte) {
	for {
		select {
		case <-s.done:
			return
		case s.send <- payload:
			return
		default:
		}
		select {
		case <-s.send:
			observability.IncWSDroppedFrame()
		default:
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case <-s.done:
			return
		case payload := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("websocket write error session=%s: %v", s.info.SessionID, err)
				s.hub.Deregister(s, err.Error())
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.hub.Deregister(s, err.Error())
				return
			}
		}
	}
}

// clientFrame is what clients send upstream.
type clientFrame struct {
	Action         string `json:"action"`
	ConversationID int    `json:"conversation_id"`
	Typing         bool   `json:"typing"`
}

func (s *Session) readPump() {
	defer func() {
		s.hub.Deregister(s, "read loop closed")
		s.conn.Close()
	}()
	s.conn.SetReadLimit(4096)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("session", "ws_error")
			}
			return
		}
		var frame clientFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}
		s.hub.handleFrame(s, frame)
	}
}
