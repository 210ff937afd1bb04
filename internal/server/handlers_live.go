package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/domain"
	apperrors "github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/errors"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/hub"
)

const sseKeepaliveInterval = 25 * time.Second

// liveEnvelope is the wire format shared by SSE and WebSocket: an init
// message with the full state plus a history backfill first, then one
// tick per cycle carrying the snapshot alone.
type liveEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type initPayload struct {
	State   snapshotPayload      `json:"state"`
	History []domain.SamplePoint `json:"history"`
}

func (s *Server) encodeLive(ctx context.Context, eventID string, msg hub.Message) ([]byte, error) {
	if msg.Kind != hub.KindInit {
		return json.Marshal(liveEnvelope{Type: string(msg.Kind), Data: toSnapshotPayload(msg.Snapshot)})
	}
	since := s.clock.Now().Add(-s.config.HistoryWindow)
	history, err := s.samples.TotalsSince(ctx, eventID, since, defaultSampleLimit)
	if err != nil {
		// A failed backfill read should not cost the client its live feed.
		slog.Warn("history backfill failed", "event_id", eventID, "error", err)
		history = nil
	}
	if history == nil {
		history = []domain.SamplePoint{}
	}
	payload := initPayload{State: toSnapshotPayload(msg.Snapshot), History: history}
	return json.Marshal(liveEnvelope{Type: string(msg.Kind), Data: payload})
}

func (s *Server) handleSSE(c echo.Context) error {
	sub, err := s.hub.Subscribe(c.Param("id"))
	if err != nil {
		return apperrors.FromDomain(err)
	}
	defer s.hub.Unsubscribe(sub)

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	// Periodic comment lines keep proxies from closing a quiet stream,
	// e.g. while the event is paused.
	keepalive := s.clock.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case msg, ok := <-sub.C:
			if !ok {
				return nil
			}
			data, err := s.encodeLive(ctx, sub.EventID(), msg)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(res, "data: %s\n\n", data); err != nil {
				return nil
			}
			res.Flush()
		case <-keepalive.Chan():
			if _, err := fmt.Fprint(res, ": keepalive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Server) wsUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(s.config.CORSAllowedOrigins) == 0 {
				return true
			}
			for _, allowed := range s.config.CORSAllowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

func (s *Server) handleWebSocket(c echo.Context) error {
	// Subscribe before upgrading so an unknown event still gets a
	// proper 404 instead of a dropped socket.
	sub, err := s.hub.Subscribe(c.Param("id"))
	if err != nil {
		return apperrors.FromDomain(err)
	}

	upgrader := s.wsUpgrader()
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.hub.Unsubscribe(sub)
		return nil
	}
	defer s.hub.Unsubscribe(sub)

	writer := newWSWriter(conn, s.clock)
	defer writer.stop("connection closed")

	// The read pump discards client frames but notices disconnects and
	// feeds the pong handler.
	readClosed := make(chan struct{})
	go func() {
		defer close(readClosed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request().Context()
	for {
		select {
		case msg, ok := <-sub.C:
			if !ok {
				writer.stop("event closed")
				return nil
			}
			data, err := s.encodeLive(ctx, sub.EventID(), msg)
			if err != nil {
				return err
			}
			if !writer.send(data) {
				slog.Warn("disconnecting slow websocket client", "event_id", sub.EventID())
				return nil
			}
		case <-readClosed:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
