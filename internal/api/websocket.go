package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/shopkeep/internal/events"
	"github.com/nugget/shopkeep/internal/workflow"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsReadLimit  = 64 * 1024
)

// WebSocket message types.
const (
	wsTypeEvent  = "event"
	wsTypeResume = "resume"
	wsTypeResult = "result"
	wsTypeError  = "error"
)

// wsMessage is the envelope for both directions of the approval
// channel. Clients send "resume"; the server sends "event", "result"
// and "error".
type wsMessage struct {
	Type   string                 `json:"type"`
	Event  *events.Event          `json:"event,omitempty"`
	Resume *workflow.ResumeSignal `json:"resume,omitempty"`
	Result *ChatResponse          `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// relayed lists the event kinds an approver sees.
var relayed = []string{
	events.KindInterrupt,
	events.KindDecision,
	events.KindTurnComplete,
	events.KindOrderCommitted,
}

// handleWebSocket streams workflow events to an approver and accepts
// resume decisions. ?thread_id= narrows the stream to one thread.
// GET /v1/ws
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "event stream not configured")
		return
	}
	threadID := r.URL.Query().Get("thread_id")

	// Subscribe before the handshake completes so no event published
	// after the client sees the upgrade is missed.
	sub := s.bus.Subscribe(events.Filter{ThreadID: threadID, Kinds: relayed}, 64)
	defer s.bus.Unsubscribe(sub)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.logger.Info("approval channel opened", "remote", r.RemoteAddr, "thread_id", threadID)

	ctx, cancel := context.WithCancel(r.Context())
	out := make(chan wsMessage, 16)
	done := make(chan struct{})
	go s.wsWriter(ctx, cancel, conn, sub, out, done)

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("approval channel read failed", "error", err)
			}
			break
		}
		reply := s.wsHandle(ctx, msg)
		select {
		case out <- reply:
		case <-ctx.Done():
		}
	}

	cancel()
	<-done
	s.logger.Info("approval channel closed", "remote", r.RemoteAddr, "dropped_events", sub.Dropped())
}

// wsHandle answers one client message.
func (s *Server) wsHandle(ctx context.Context, msg wsMessage) wsMessage {
	if msg.Type != wsTypeResume || msg.Resume == nil {
		return wsMessage{Type: wsTypeError, Error: "expected a resume message"}
	}
	res, err := s.engine.Resume(ctx, *msg.Resume)
	if err != nil {
		if statusFor(err) >= http.StatusInternalServerError {
			s.logger.Error("resume over websocket failed", "thread_id", msg.Resume.ThreadID, "error", err)
			return wsMessage{Type: wsTypeError, Error: http.StatusText(http.StatusInternalServerError)}
		}
		return wsMessage{Type: wsTypeError, Error: err.Error()}
	}
	cr := chatResponse(res)
	return wsMessage{Type: wsTypeResult, Result: &cr}
}

// wsWriter owns all writes to conn. When a write fails it closes the
// connection, which ends the read loop.
func (s *Server) wsWriter(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sub *events.Subscription, out <-chan wsMessage, done chan<- struct{}) {
	defer close(done)
	defer conn.Close()
	defer cancel()
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	write := func(m wsMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(m); err != nil {
			s.logger.Debug("approval channel write failed", "error", err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if !write(wsMessage{Type: wsTypeEvent, Event: &e}) {
				return
			}
		case m := <-out:
			if !write(m) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
