package broadcast

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Handler upgrades requests to WebSocket connections and attaches each one
// to the hub as a subscriber for its lifetime.
func Handler(hub *Hub) http.HandlerFunc {
	up := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 8192,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already replied with an HTTP error.
			hub.logger.Warn("WebSocket upgrade failed",
				zap.String("remote", r.RemoteAddr),
				zap.Error(err))
			return
		}
		defer conn.Close()

		sub := hub.NewSubscriber()
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			writePump(conn, sub, hub.logger)
		}()

		// Bootstrap messages are queued while the write pump is already
		// draining, so a slow bootstrap never fills the queue.
		hub.Attach(sub)
		readPump(conn)
		hub.Detach(sub)
		<-writerDone
	}
}

// readPump discards client frames and returns once the connection is gone.
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on conn.
func writePump(conn *websocket.Conn, sub *Subscriber, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	// Closing unblocks readPump when the write side fails first.
	defer conn.Close()

	for {
		select {
		case msg := <-sub.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("WebSocket write failed", zap.Uint64("id", sub.ID()), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sub.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
