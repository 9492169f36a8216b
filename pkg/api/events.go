package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Auth already happened in the middleware; the feed is same-host
	// tooling, not a browser page.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// handleEvents upgrades to a websocket and streams activity entries as
// they are recorded. The connection is write-only; inbound frames are
// drained solely to detect the peer going away.
func (s *Server) handleEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WarnWith("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	feed, cancel := s.state.Activity().Subscribe()
	defer cancel()

	// Recent history first so the client starts with context.
	for _, entry := range s.state.Activity().Recent(20) {
		if err := writeEntry(conn, entry); err != nil {
			return
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-feed:
			if !ok {
				return
			}
			if err := writeEntry(conn, entry); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeEntry(conn *websocket.Conn, entry any) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(entry)
}
