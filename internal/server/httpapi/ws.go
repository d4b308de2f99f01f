package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/campusfix/campusfix/internal/models"
	"github.com/campusfix/campusfix/internal/server/feedhub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The CLI and test clients carry no Origin worth checking.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	subscribeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

// subscribeFrame is the first message a client sends on a fresh channel.
type subscribeFrame struct {
	Collection models.Collection  `json:"collection"`
	Predicate  *feedhub.Predicate `json:"predicate,omitempty"`
}

// handleRealtime upgrades the connection, reads one subscribe frame and then
// streams matching change events until either side closes.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the request.
		return
	}
	defer conn.Close()

	var frame subscribeFrame
	_ = conn.SetReadDeadline(time.Now().Add(subscribeTimeout))
	if err := conn.ReadJSON(&frame); err != nil {
		s.logger.Warn(r.Context(), "bad subscribe frame", "error", err)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	if !frame.Collection.Valid() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown collection"),
			time.Now().Add(writeTimeout))
		return
	}

	sub := s.hub.Subscribe(frame.Collection, frame.Predicate)
	defer sub.Close()

	// Reader only detects teardown from the client side.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				// Dropped by the hub for falling behind.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber too slow"),
					time.Now().Add(writeTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
