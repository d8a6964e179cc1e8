package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ppiankov/veritas/internal/model"
	"github.com/ppiankov/veritas/internal/pipeline"
	"github.com/ppiankov/veritas/internal/report"
	"github.com/ppiankov/veritas/internal/store"
)

const defaultHistoryLimit = 50

type analyzeRequest struct {
	Input string `json:"input"`
}

func (s *Server) analyze(c echo.Context) error {
	if s.analyzer == nil {
		return jsonError(c, http.StatusServiceUnavailable, "analysis is not configured")
	}

	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Input) == "" {
		return jsonError(c, http.StatusBadRequest, "input is required")
	}

	item, err := s.analyzer.Analyze(c.Request().Context(), ownerID(c), req.Input)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, item)
}

// listHistory returns the caller's verdicts, newest first. Query parameters:
// label, since (RFC 3339 or YYYY-MM-DD), limit, format=csv.
func (s *Server) listHistory(c echo.Context) error {
	if s.history == nil {
		return jsonError(c, http.StatusServiceUnavailable, pipeline.ErrNoStore.Error())
	}

	filter, err := parseFilter(c)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}

	records, err := s.history.History(c.Request().Context(), ownerID(c), filter)
	if err != nil {
		return s.storeError(c, err)
	}

	if c.QueryParam("format") == "csv" {
		var b strings.Builder
		if err := s.exporter.WriteHistory(&b, records); err != nil {
			return jsonError(c, http.StatusInternalServerError, err.Error())
		}
		c.Response().Header().Set(echo.HeaderContentDisposition,
			fmt.Sprintf("attachment; filename=%q", report.HistoryFileName(s.now())))
		return c.Blob(http.StatusOK, "text/csv; charset=utf-8", []byte(b.String()))
	}

	if records == nil {
		records = []model.VerdictRecord{}
	}
	return c.JSON(http.StatusOK, records)
}

func (s *Server) listRuns(c echo.Context) error {
	if s.history == nil {
		return jsonError(c, http.StatusServiceUnavailable, pipeline.ErrNoStore.Error())
	}

	limit, err := parseLimit(c.QueryParam("limit"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}

	runs, err := s.history.Runs(c.Request().Context(), ownerID(c), limit)
	if err != nil {
		return s.storeError(c, err)
	}
	if runs == nil {
		runs = []model.RunSummary{}
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) storeError(c echo.Context, err error) error {
	if errors.Is(err, pipeline.ErrNoStore) {
		return jsonError(c, http.StatusServiceUnavailable, err.Error())
	}
	s.logger.Error("history query failed", "error", err)
	return jsonError(c, http.StatusInternalServerError, "history unavailable")
}

func parseFilter(c echo.Context) (store.Filter, error) {
	filter := store.Filter{NewestFirst: true}

	if v := c.QueryParam("label"); v != "" {
		label, err := model.ParseLabel(v)
		if err != nil {
			return filter, err
		}
		filter.Label = label
	}

	if v := c.QueryParam("since"); v != "" {
		since, err := parseSince(v)
		if err != nil {
			return filter, err
		}
		filter.Since = since
	}

	limit, err := parseLimit(c.QueryParam("limit"))
	if err != nil {
		return filter, err
	}
	filter.Limit = limit

	return filter, nil
}

func parseSince(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid since %q (want RFC 3339 or YYYY-MM-DD)", v)
}

func parseLimit(v string) (int, error) {
	if v == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", v)
	}
	return n, nil
}
