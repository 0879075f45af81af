package web

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/lucasnoah/triagegate/internal/decision"
)

// APIPublisher is the decision channel used when no chat integration is
// configured: requests are logged and answered through
// POST /api/decisions/:issue.
type APIPublisher struct {
	log *slog.Logger
}

var _ decision.Publisher = (*APIPublisher)(nil)

// NewAPIPublisher creates an APIPublisher.
func NewAPIPublisher(log *slog.Logger) *APIPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &APIPublisher{log: log}
}

// Publish logs the request.
func (p *APIPublisher) Publish(_ context.Context, req decision.Request) error {
	p.log.Info("decision required",
		"issue", req.Issue,
		"repo", req.Repo,
		"severity", req.Severity,
		"is_duplicate", req.IsDuplicate,
		"deadline", req.Deadline,
		"resolve", "POST /api/decisions/"+strconv.Itoa(req.Issue),
	)
	return nil
}

// resolveRequest is the body of POST /api/decisions/:issue.
type resolveRequest struct {
	Kind     string `json:"kind" validate:"required,oneof=approve reject"`
	Actor    string `json:"actor" validate:"max=100"`
	Severity string `json:"severity" validate:"omitempty,oneof=Critical High Medium Low Info"`
	Summary  string `json:"summary" validate:"max=2000"`
	Comment  string `json:"comment" validate:"max=4000"`
}

type resolveResponse struct {
	Issue    int    `json:"issue"`
	Kind     string `json:"kind"`
	Accepted bool   `json:"accepted"`
}

func (r resolveRequest) record() decision.Record {
	actor := r.Actor
	if actor == "" {
		actor = "api"
	}
	if r.Kind == string(decision.KindReject) {
		return decision.Reject(actor)
	}
	if r.Severity == "" && r.Summary == "" && r.Comment == "" {
		return decision.Approve(actor, nil)
	}
	return decision.Approve(actor, &decision.Override{
		Severity: r.Severity,
		Summary:  r.Summary,
		Comment:  r.Comment,
		Modified: true,
	})
}

func (s *Server) handleResolve(c echo.Context) error {
	if s.resolver == nil || s.cfg.APIToken == "" {
		return ErrDisabled
	}
	issue, err := strconv.Atoi(c.Param("issue"))
	if err != nil || issue <= 0 {
		return &ValidationError{Field: "issue", Message: "must be a positive integer"}
	}
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return ErrInvalidInput
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	rec := req.record()
	if !s.resolver.Resolve(issue, rec) {
		return JSON(c, http.StatusConflict, resolveResponse{Issue: issue, Kind: req.Kind})
	}
	s.log.Info("decision received", "issue", issue, "decision", rec.Kind, "actor", rec.Actor)
	return JSON(c, http.StatusOK, resolveResponse{Issue: issue, Kind: req.Kind, Accepted: true})
}
