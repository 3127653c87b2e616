package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/satindergrewal/segue/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// handleProgressSocket streams reporter samples as JSON text frames. The
// client never sends anything but control frames.
func (s *Server) handleProgressSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("progress socket upgrade failed", logger.Err(err))
		return
	}
	defer conn.Close()

	obs := s.Reporter.Subscribe()
	defer s.Reporter.Unsubscribe(obs)
	logger.Debug("progress observer connected", logger.Int("observers", s.Reporter.ObserverCount()))

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// the read loop only notices close frames and dead peers
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug("progress socket closed", logger.Err(err))
				}
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-obs.Done():
			return
		case p := <-obs.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(p); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
