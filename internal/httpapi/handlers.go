package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"horse.fit/echocave/internal/db"
	"horse.fit/echocave/internal/globaltime"
	"horse.fit/echocave/internal/review"
)

type submitElement struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
	Ext  string `json:"ext,omitempty"`
}

type submitRequest struct {
	ChannelID string          `json:"channel_id"`
	UserID    string          `json:"user_id"`
	Elements  []submitElement `json:"elements"`
}

type submitResponse struct {
	ID       int64  `json:"id"`
	Status   string `json:"status"`
	Rejected bool   `json:"rejected"`
	Message  string `json:"message"`
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.pool.Ping(c.Request().Context()); err != nil {
		return internalError(c, fmt.Sprintf("database unreachable: %v", err))
	}
	return success(c, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmit(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid JSON body", nil)
	}

	fieldErrors := map[string]string{}
	if strings.TrimSpace(req.ChannelID) == "" {
		fieldErrors["channel_id"] = "required"
	}
	if strings.TrimSpace(req.UserID) == "" {
		fieldErrors["user_id"] = "required"
	}
	if len(req.Elements) == 0 {
		fieldErrors["elements"] = "at least one element required"
	}
	if len(fieldErrors) > 0 {
		return fail(c, http.StatusBadRequest, "validation failed", map[string]any{"validation_errors": fieldErrors})
	}

	ctx := c.Request().Context()
	id, err := s.idPool.Allocate(ctx)
	if err != nil {
		return internalError(c, fmt.Sprintf("allocate entry id: %v", err))
	}

	inputs := make([]review.ElementInput, len(req.Elements))
	for i, el := range req.Elements {
		inputs[i] = review.ElementInput{Type: el.Type, Text: el.Text, URL: el.URL, Ext: el.Ext}
	}
	sub, sources, err := review.BuildSubmission(id, req.ChannelID, req.UserID, inputs, globaltime.UTC())
	if err != nil {
		return fail(c, http.StatusBadRequest, err.Error(), nil)
	}
	if err := s.pool.UpsertCave(ctx, sub); err != nil {
		return internalError(c, fmt.Sprintf("insert entry: %v", err))
	}

	result, err := s.orchestrator.Ingest(ctx, review.Request{Submission: sub, MediaSources: sources})
	if err != nil {
		return internalError(c, result.Message)
	}

	return success(c, submitResponse{
		ID:       id,
		Status:   string(result.Status),
		Rejected: result.Rejected,
		Message:  result.Message,
	})
}

func (s *Server) handleGetSubmission(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return fail(c, http.StatusBadRequest, "invalid entry id", nil)
	}

	cave, err := s.pool.GetCave(c.Request().Context(), id)
	if err != nil {
		if db.IsNotFound(err) {
			return failNotFound(c, "entry not found")
		}
		return internalError(c, fmt.Sprintf("load entry: %v", err))
	}
	return success(c, cave)
}

func (s *Server) handleReport(c echo.Context) error {
	records, err := s.pool.ListHashes(c.Request().Context(), "")
	if err != nil {
		return internalError(c, fmt.Sprintf("load hashes: %v", err))
	}
	report := review.GenerateReport(records, s.cfg.TextThreshold, s.cfg.ImageThreshold)
	return success(c, map[string]string{"report": report})
}

func (s *Server) handleKeywordReport(c echo.Context) error {
	metas, err := s.pool.ListAllMeta(c.Request().Context())
	if err != nil {
		return internalError(c, fmt.Sprintf("load metadata: %v", err))
	}
	report := review.GenerateKeywordReport(metas, 80)
	return success(c, map[string]string{"report": report})
}
