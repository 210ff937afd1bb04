package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/domain"
	apperrors "github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/errors"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/youtube"
)

type addStreamRequest struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

type updateStreamRequest struct {
	Label       *string `json:"label"`
	CustomTitle *string `json:"customTitle"`
}

type streamResponse struct {
	ID            string     `json:"id"`
	EventID       string     `json:"eventId"`
	VideoID       string     `json:"videoId"`
	Label         string     `json:"label"`
	CustomTitle   string     `json:"customTitle,omitempty"`
	Favorite      bool       `json:"favorite"`
	Paused        bool       `json:"paused"`
	Disabled      bool       `json:"disabled"`
	FailureCount  int        `json:"failureCount,omitempty"`
	LastFailureAt *time.Time `json:"lastFailureAt,omitempty"`
}

func toStreamResponse(st domain.Stream) streamResponse {
	return streamResponse{
		ID:            st.ID,
		EventID:       st.EventID,
		VideoID:       st.VideoID,
		Label:         st.Label,
		CustomTitle:   st.CustomTitle,
		Favorite:      st.Favorite,
		Paused:        st.Paused,
		Disabled:      st.Disabled,
		FailureCount:  st.FailureCount,
		LastFailureAt: st.LastFailureAt,
	}
}

func (s *Server) handleListStreams(c echo.Context) error {
	streams, err := s.registry.Streams(c.Param("id"))
	if err != nil {
		return apperrors.FromDomain(err)
	}
	out := make([]streamResponse, 0, len(streams))
	for _, st := range streams {
		out = append(out, toStreamResponse(st))
	}
	return c.JSON(http.StatusOK, out)
}

// handleAddStream accepts a full YouTube URL or a bare video id. When
// no label is given one is derived from the URL, or from the video
// title if that lookup succeeds.
func (s *Server) handleAddStream(c echo.Context) error {
	var req addStreamRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	videoID, err := youtube.ExtractVideoID(req.URL)
	if err != nil {
		return apperrors.FromDomain(err)
	}

	label := req.Label
	if label == "" {
		if title, err := s.titles.VideoTitle(c.Request().Context(), videoID); err == nil {
			label = title
		} else {
			label = youtube.AutoLabel(req.URL)
		}
	}

	st, err := s.registry.AddStream(c.Request().Context(), c.Param("id"), videoID, label)
	if err != nil {
		return apperrors.FromDomain(err)
	}
	return c.JSON(http.StatusCreated, toStreamResponse(st))
}

func (s *Server) handleUpdateStream(c echo.Context) error {
	var req updateStreamRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	st, err := s.registry.UpdateStream(c.Request().Context(), c.Param("id"), c.Param("streamID"),
		func(st *domain.Stream) {
			if req.Label != nil && *req.Label != "" {
				st.Label = *req.Label
			}
			if req.CustomTitle != nil {
				st.CustomTitle = *req.CustomTitle
			}
		})
	if err != nil {
		return apperrors.FromDomain(err)
	}
	return c.JSON(http.StatusOK, toStreamResponse(st))
}

func (s *Server) handleRemoveStream(c echo.Context) error {
	if err := s.registry.RemoveStream(c.Request().Context(), c.Param("id"), c.Param("streamID")); err != nil {
		return apperrors.FromDomain(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handlePauseStream(c echo.Context) error {
	return s.setStreamPaused(c, true)
}

func (s *Server) handleStartStream(c echo.Context) error {
	return s.setStreamPaused(c, false)
}

func (s *Server) setStreamPaused(c echo.Context, paused bool) error {
	st, err := s.registry.SetStreamPaused(c.Request().Context(), c.Param("id"), c.Param("streamID"), paused)
	if err != nil {
		return apperrors.FromDomain(err)
	}
	return c.JSON(http.StatusOK, toStreamResponse(st))
}

func (s *Server) handleFavoriteStream(c echo.Context) error {
	return s.setStreamFavorite(c, true)
}

func (s *Server) handleUnfavoriteStream(c echo.Context) error {
	return s.setStreamFavorite(c, false)
}

func (s *Server) setStreamFavorite(c echo.Context, favorite bool) error {
	st, err := s.registry.SetStreamFavorite(c.Request().Context(), c.Param("id"), c.Param("streamID"), favorite)
	if err != nil {
		return apperrors.FromDomain(err)
	}
	return c.JSON(http.StatusOK, toStreamResponse(st))
}

func (s *Server) handleReactivateStream(c echo.Context) error {
	st, err := s.registry.ReactivateStream(c.Request().Context(), c.Param("id"), c.Param("streamID"))
	if err != nil {
		return apperrors.FromDomain(err)
	}
	return c.JSON(http.StatusOK, toStreamResponse(st))
}

func (s *Server) handleVideoTitle(c echo.Context) error {
	videoID, err := youtube.ExtractVideoID(c.Param("videoID"))
	if err != nil {
		return apperrors.FromDomain(err)
	}
	title, err := s.titles.VideoTitle(c.Request().Context(), videoID)
	if err != nil {
		return apperrors.FromDomain(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"videoId": videoID, "title": title})
}
