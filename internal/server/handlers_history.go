package server

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/domain"
	apperrors "github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/errors"
)

const (
	defaultSampleLimit = 5000
	maxSampleLimit     = 50000
)

// historyRange resolves the query parameters shared by the history and
// export endpoints. Either an explicit from/to range or a trailing
// minutes window, clamped to the configured maximum.
type historyRange struct {
	from     time.Time
	to       time.Time
	windowed bool
	limit    int
}

func (s *Server) parseHistoryRange(c echo.Context) (historyRange, error) {
	r := historyRange{limit: defaultSampleLimit}

	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return r, apperrors.ValidationError("limit must be a positive integer")
		}
		r.limit = min(limit, maxSampleLimit)
	}

	fromRaw, toRaw := c.QueryParam("from"), c.QueryParam("to")
	if fromRaw != "" || toRaw != "" {
		if fromRaw == "" || toRaw == "" {
			return r, apperrors.ValidationError("from and to must be given together")
		}
		from, err := time.Parse(time.RFC3339, fromRaw)
		if err != nil {
			return r, apperrors.ValidationError("from must be RFC 3339")
		}
		to, err := time.Parse(time.RFC3339, toRaw)
		if err != nil {
			return r, apperrors.ValidationError("to must be RFC 3339")
		}
		if !from.Before(to) {
			return r, apperrors.ValidationError("from must be before to")
		}
		r.from, r.to = from, to
		return r, nil
	}

	window := s.config.HistoryWindow
	if raw := c.QueryParam("minutes"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			return r, apperrors.ValidationError("minutes must be a positive integer")
		}
		window = time.Duration(minutes) * time.Minute
		if window > s.config.MaxHistoryWindow {
			window = s.config.MaxHistoryWindow
		}
	}
	r.windowed = true
	r.from = s.clock.Now().Add(-window)
	return r, nil
}

func (s *Server) totalsFor(c echo.Context, eventID string, r historyRange) ([]domain.SamplePoint, error) {
	ctx := c.Request().Context()
	if r.windowed {
		return s.samples.TotalsSince(ctx, eventID, r.from, r.limit)
	}
	return s.samples.TotalsBetween(ctx, eventID, r.from, r.to, r.limit)
}

func (s *Server) streamSamplesFor(c echo.Context, eventID string, r historyRange) ([]domain.StreamSamplePoint, error) {
	ctx := c.Request().Context()
	if streamID := c.QueryParam("streamId"); streamID != "" && r.windowed {
		return s.samples.StreamSamplesForStream(ctx, eventID, streamID, r.from, r.limit)
	}
	if r.windowed {
		return s.samples.StreamSamplesSince(ctx, eventID, r.from, r.limit)
	}
	return s.samples.StreamSamplesBetween(ctx, eventID, r.from, r.to, r.limit)
}

// requireEvent rejects history requests for events that do not exist,
// so an empty result always means "no samples", never "no event".
func (s *Server) requireEvent(eventID string) error {
	if _, err := s.registry.Event(eventID); err != nil {
		return apperrors.FromDomain(err)
	}
	return nil
}

func (s *Server) handleEventHistory(c echo.Context) error {
	eventID := c.Param("id")
	if err := s.requireEvent(eventID); err != nil {
		return err
	}
	r, err := s.parseHistoryRange(c)
	if err != nil {
		return err
	}
	samples, err := s.totalsFor(c, eventID, r)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"samples": samples})
}

func (s *Server) handleStreamHistory(c echo.Context) error {
	eventID := c.Param("id")
	if err := s.requireEvent(eventID); err != nil {
		return err
	}
	r, err := s.parseHistoryRange(c)
	if err != nil {
		return err
	}
	samples, err := s.streamSamplesFor(c, eventID, r)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"samples": samples})
}

func (s *Server) handleExportTotalsCSV(c echo.Context) error {
	eventID := c.Param("id")
	if err := s.requireEvent(eventID); err != nil {
		return err
	}
	r, err := s.parseHistoryRange(c)
	if err != nil {
		return err
	}
	samples, err := s.totalsFor(c, eventID, r)
	if err != nil {
		return err
	}

	setCSVHeaders(c, fmt.Sprintf("event-%s-totals.csv", eventID))
	w := csv.NewWriter(c.Response())
	if err := w.Write([]string{"ts", "total"}); err != nil {
		return err
	}
	for _, sample := range samples {
		record := []string{sample.Ts.UTC().Format(time.RFC3339), strconv.Itoa(sample.Total)}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (s *Server) handleExportStreamsCSV(c echo.Context) error {
	eventID := c.Param("id")
	if err := s.requireEvent(eventID); err != nil {
		return err
	}
	r, err := s.parseHistoryRange(c)
	if err != nil {
		return err
	}
	samples, err := s.streamSamplesFor(c, eventID, r)
	if err != nil {
		return err
	}

	labels := make(map[string]string)
	if streams, err := s.registry.Streams(eventID); err == nil {
		for _, st := range streams {
			labels[st.ID] = st.DisplayLabel()
		}
	}

	setCSVHeaders(c, fmt.Sprintf("event-%s-streams.csv", eventID))
	w := csv.NewWriter(c.Response())
	if err := w.Write([]string{"ts", "stream_id", "label", "concurrent_viewers"}); err != nil {
		return err
	}
	for _, sample := range samples {
		record := []string{
			sample.Ts.UTC().Format(time.RFC3339),
			sample.StreamID,
			labels[sample.StreamID],
			strconv.Itoa(sample.Viewers),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func setCSVHeaders(c echo.Context, filename string) {
	header := c.Response().Header()
	header.Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	header.Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	c.Response().WriteHeader(http.StatusOK)
}
