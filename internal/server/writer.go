package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	wsWriteDeadline = 5 * time.Second
	wsPingInterval  = 30 * time.Second
	wsPongDeadline  = 60 * time.Second
	wsSendBuffer    = 16
)

// wsWriter serializes all writes to one WebSocket connection on a
// single goroutine. gorilla/websocket forbids concurrent writers, so
// pings and data frames both go through here.
type wsWriter struct {
	conn     *websocket.Conn
	clock    clockwork.Clock
	sendCh   chan []byte
	doneCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newWSWriter(conn *websocket.Conn, clock clockwork.Clock) *wsWriter {
	w := &wsWriter{
		conn:   conn,
		clock:  clock,
		sendCh: make(chan []byte, wsSendBuffer),
		doneCh: make(chan struct{}),
	}
	w.conn.SetReadDeadline(w.clock.Now().Add(wsPongDeadline))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(w.clock.Now().Add(wsPongDeadline))
	})
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *wsWriter) run() {
	defer w.wg.Done()

	ticker := w.clock.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-w.sendCh:
			if !ok {
				return
			}
			w.conn.SetWriteDeadline(w.clock.Now().Add(wsWriteDeadline))
			if err := w.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.Chan():
			w.conn.SetWriteDeadline(w.clock.Now().Add(wsWriteDeadline))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-w.doneCh:
			return
		}
	}
}

// send queues a message without blocking. A false return means the
// client cannot keep up and should be disconnected.
func (w *wsWriter) send(msg []byte) bool {
	select {
	case w.sendCh <- msg:
		return true
	default:
		return false
	}
}

// stop sends a close frame and tears the connection down. Idempotent.
func (w *wsWriter) stop(reason string) {
	w.stopOnce.Do(func() {
		close(w.doneCh)
		w.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		w.conn.SetWriteDeadline(w.clock.Now().Add(wsWriteDeadline))
		_ = w.conn.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = w.conn.Close()
	})
}
