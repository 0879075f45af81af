package web

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lucasnoah/triagegate/internal/triage"
)

const maxWebhookBody = 5 << 20

// issuesEvent is the subset of GitHub's "issues" webhook payload we read.
type issuesEvent struct {
	Action     string          `json:"action" validate:"required"`
	Issue      webhookIssue    `json:"issue"`
	Repository webhookRepo     `json:"repository"`
	Sender     *webhookAccount `json:"sender,omitempty"`
}

type webhookIssue struct {
	Number  int             `json:"number" validate:"gt=0"`
	Title   string          `json:"title" validate:"required"`
	Body    string          `json:"body"`
	HTMLURL string          `json:"html_url"`
	User    *webhookAccount `json:"user,omitempty"`
}

type webhookRepo struct {
	FullName string `json:"full_name" validate:"required"`
}

type webhookAccount struct {
	Login string `json:"login"`
}

// acceptedResponse is returned when a report has been queued.
type acceptedResponse struct {
	Status string `json:"status"`
	Issue  int    `json:"issue"`
	Repo   string `json:"repo"`
}

type ignoredResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// VerifyGitHubSignature checks an X-Hub-Signature-256 header against body.
func VerifyGitHubSignature(secret, header string, body []byte) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func (s *Server) handleWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrInvalidInput, err)
	}

	if s.cfg.WebhookSecret == "" {
		s.log.Warn("webhook secret not configured, accepting unsigned delivery")
	} else if !VerifyGitHubSignature(s.cfg.WebhookSecret, c.Request().Header.Get("X-Hub-Signature-256"), body) {
		s.log.Warn("webhook signature mismatch", "delivery", c.Request().Header.Get("X-GitHub-Delivery"))
		return ErrBadSignature
	}
	s.stats.webhookReceived()

	if event := c.Request().Header.Get("X-GitHub-Event"); event != "issues" {
		return JSON(c, http.StatusOK, ignoredResponse{Status: "ignored", Reason: fmt.Sprintf("event %q", event)})
	}

	var ev issuesEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if ev.Action != "opened" {
		return JSON(c, http.StatusOK, ignoredResponse{Status: "ignored", Reason: fmt.Sprintf("action %q", ev.Action)})
	}
	if err := c.Validate(&ev); err != nil {
		return err
	}

	report := triage.Report{
		Issue: ev.Issue.Number,
		Repo:  ev.Repository.FullName,
		Title: ev.Issue.Title,
		Body:  ev.Issue.Body,
		URL:   ev.Issue.HTMLURL,
	}
	if ev.Issue.User != nil {
		report.Author = ev.Issue.User.Login
	}
	if err := c.Validate(&report); err != nil {
		return err
	}

	if err := s.dispatcher.Submit(report); err != nil {
		if errors.Is(err, ErrSaturated) {
			s.log.Warn("rejecting webhook, triage capacity exhausted", "issue", report.Issue)
		}
		return err
	}
	s.log.Info("issue accepted for triage", "issue", report.Issue, "repo", report.Repo)
	return JSON(c, http.StatusAccepted, acceptedResponse{Status: "accepted", Issue: report.Issue, Repo: report.Repo})
}
