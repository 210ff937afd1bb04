package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/domain"
	apperrors "github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/errors"
)

type eventRequest struct {
	Name                string `json:"name"`
	PollIntervalSeconds int    `json:"pollIntervalSeconds"`
}

type eventResponse struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	PollIntervalSeconds int       `json:"pollIntervalSeconds"`
	Paused              bool      `json:"paused"`
	CreatedAt           time.Time `json:"createdAt"`
}

func toEventResponse(ev domain.Event) eventResponse {
	return eventResponse{
		ID:                  ev.ID,
		Name:                ev.Name,
		PollIntervalSeconds: int(ev.PollInterval.Seconds()),
		Paused:              ev.Paused,
		CreatedAt:           ev.CreatedAt,
	}
}

// snapshotPayload is the wire form of a snapshot: the stream map
// flattened into a stable, favorites-first list.
type snapshotPayload struct {
	Ts      time.Time            `json:"ts"`
	Total   int                  `json:"total"`
	Streams []domain.StreamState `json:"streams"`
}

func toSnapshotPayload(snap *domain.Snapshot) snapshotPayload {
	return snapshotPayload{Ts: snap.Ts, Total: snap.Total, Streams: snap.StreamList()}
}

func (s *Server) handleListEvents(c echo.Context) error {
	events := s.registry.Events()
	out := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, toEventResponse(ev))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetEvent(c echo.Context) error {
	ev, err := s.registry.Event(c.Param("id"))
	if err != nil {
		return apperrors.FromDomain(err)
	}
	return c.JSON(http.StatusOK, toEventResponse(ev))
}

func (s *Server) handleCreateEvent(c echo.Context) error {
	var req eventRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	ev, err := s.registry.CreateEvent(c.Request().Context(), req.Name,
		time.Duration(req.PollIntervalSeconds)*time.Second)
	if err != nil {
		return apperrors.FromDomain(err)
	}
	return c.JSON(http.StatusCreated, toEventResponse(ev))
}

func (s *Server) handleUpdateEvent(c echo.Context) error {
	var req eventRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	ev, err := s.registry.UpdateEvent(c.Request().Context(), c.Param("id"), req.Name,
		time.Duration(req.PollIntervalSeconds)*time.Second)
	if err != nil {
		return apperrors.FromDomain(err)
	}
	return c.JSON(http.StatusOK, toEventResponse(ev))
}

func (s *Server) handleDeleteEvent(c echo.Context) error {
	if err := s.registry.DeleteEvent(c.Request().Context(), c.Param("id")); err != nil {
		return apperrors.FromDomain(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handlePauseEvent(c echo.Context) error {
	if err := s.registry.PauseEvent(c.Request().Context(), c.Param("id")); err != nil {
		return apperrors.FromDomain(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleResumeEvent(c echo.Context) error {
	if err := s.registry.ResumeEvent(c.Request().Context(), c.Param("id")); err != nil {
		return apperrors.FromDomain(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleEventNow returns the current snapshot without subscribing.
func (s *Server) handleEventNow(c echo.Context) error {
	snap, err := s.registry.Snapshot(c.Param("id"))
	if err != nil {
		return apperrors.FromDomain(err)
	}
	return c.JSON(http.StatusOK, toSnapshotPayload(snap))
}
