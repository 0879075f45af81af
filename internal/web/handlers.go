package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lucasnoah/triagegate/internal/decision"
	"github.com/lucasnoah/triagegate/internal/discord"
	"github.com/lucasnoah/triagegate/internal/triage"
)

const maxInteractionBody = 1 << 20

type healthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return JSON(c, http.StatusOK, healthResponse{
		Status:    "healthy",
		Service:   serviceName,
		Version:   s.cfg.Version,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	return JSON(c, http.StatusOK, s.stats.Snapshot())
}

// handleInteractions answers Discord with the raw interaction response; it
// does not use the envelope because Discord parses the body.
func (s *Server) handleInteractions(c echo.Context) error {
	if s.interact == nil || s.verifier == nil {
		return ErrDisabled
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxInteractionBody))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrInvalidInput, err)
	}
	sig := c.Request().Header.Get("X-Signature-Ed25519")
	ts := c.Request().Header.Get("X-Signature-Timestamp")
	if !s.verifier.Verify(sig, ts, body) {
		return ErrBadSignature
	}

	var in discord.Interaction
	if err := json.Unmarshal(body, &in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return c.JSON(http.StatusOK, s.interact.HandleInteraction(in))
}

func (s *Server) handleListResults(c echo.Context) error {
	if s.store == nil {
		return ErrDisabled
	}
	results, err := s.store.List(c.QueryParam("repo"), c.QueryParam("status"))
	if err != nil {
		return fmt.Errorf("list results: %w", err)
	}
	if results == nil {
		results = []triage.Result{}
	}
	return JSON(c, http.StatusOK, results)
}

func (s *Server) handleGetResult(c echo.Context) error {
	if s.store == nil {
		return ErrDisabled
	}
	issue, err := strconv.Atoi(c.Param("issue"))
	if err != nil || issue <= 0 {
		return &ValidationError{Field: "issue", Message: "must be a positive integer"}
	}
	repo := c.QueryParam("repo")
	if repo == "" {
		return &ValidationError{Field: "repo", Message: "query parameter is required"}
	}
	res, err := s.store.Get(repo, issue)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, res)
}

func (s *Server) handlePending(c echo.Context) error {
	if s.pending == nil {
		return JSON(c, http.StatusOK, []decision.PendingDecision{})
	}
	return JSON(c, http.StatusOK, s.pending.Pending())
}
