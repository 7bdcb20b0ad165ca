package httpapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/playbookd/internal/apperr"
	"github.com/fyrsmithlabs/playbookd/internal/playbook"
	"github.com/fyrsmithlabs/playbookd/internal/ranker"
)

// ContextRequest is the request body for POST /api/v1/context: the
// context ranker's inputs (spec.md §4.G).
type ContextRequest struct {
	Task      string `json:"task"`
	Workspace string `json:"workspace"`
}

// ContextResponse mirrors ranker.ContextResult for JSON transport.
type ContextResponse struct {
	Task                    string                 `json:"task"`
	RelevantBullets         []RankedBulletResponse `json:"relevantBullets"`
	AntiPatterns            []RankedBulletResponse `json:"antiPatterns"`
	HistorySnippets         []historySnippetJSON   `json:"historySnippets"`
	DeprecatedWarnings      []string               `json:"deprecatedWarnings"`
	SuggestedHistoryQueries []string               `json:"suggestedHistoryQueries"`
}

// RankedBulletResponse pairs a bullet with the score it earned.
type RankedBulletResponse struct {
	Bullet    *playbook.Bullet `json:"bullet"`
	Relevance float64          `json:"relevance"`
	Final     float64          `json:"final"`
}

type historySnippetJSON struct {
	SourcePath string  `json:"sourcePath"`
	LineNumber int     `json:"lineNumber"`
	Agent      string  `json:"agent"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

// handleContext loads the cascaded playbook for the given workspace
// and ranks it against the task, exposing internal/ranker.Rank over
// HTTP.
func (s *Server) handleContext(c echo.Context) error {
	var req ContextRequest
	if err := c.Bind(&req); err != nil {
		return apperrHTTPError(apperr.New(apperr.CodeInvalidInput, "invalid request body"))
	}
	if req.Task == "" {
		return apperrHTTPError(apperr.New(apperr.CodeInvalidInput, "task field is required"))
	}

	ctx := c.Request().Context()
	pb, err := s.store.LoadCascaded(ctx, req.Workspace)
	if err != nil {
		return apperrHTTPError(apperr.Wrap(apperr.CodeCorruptState, "failed to load playbook", err))
	}

	result := ranker.Rank(ctx, pb, req.Task, req.Workspace, s.searcher, s.rankerCfg, s.scoringCfg, time.Now().UTC())

	return c.JSON(http.StatusOK, toContextResponse(result))
}

func toContextResponse(r ranker.ContextResult) ContextResponse {
	resp := ContextResponse{
		Task:                    r.Task,
		DeprecatedWarnings:      r.DeprecatedWarnings,
		SuggestedHistoryQueries: r.SuggestedHistoryQueries,
	}
	resp.RelevantBullets = make([]RankedBulletResponse, 0, len(r.RelevantBullets))
	for _, rb := range r.RelevantBullets {
		resp.RelevantBullets = append(resp.RelevantBullets, RankedBulletResponse{Bullet: rb.Bullet, Relevance: rb.Relevance, Final: rb.Final})
	}
	resp.AntiPatterns = make([]RankedBulletResponse, 0, len(r.AntiPatterns))
	for _, rb := range r.AntiPatterns {
		resp.AntiPatterns = append(resp.AntiPatterns, RankedBulletResponse{Bullet: rb.Bullet, Relevance: rb.Relevance, Final: rb.Final})
	}
	resp.HistorySnippets = make([]historySnippetJSON, 0, len(r.HistorySnippets))
	for _, snip := range r.HistorySnippets {
		resp.HistorySnippets = append(resp.HistorySnippets, historySnippetJSON{
			SourcePath: snip.SourcePath,
			LineNumber: snip.LineNumber,
			Agent:      snip.Agent,
			Snippet:    snip.Snippet,
			Score:      snip.Score,
		})
	}
	return resp
}

// FeedbackRequest is the request body for POST /api/v1/feedback: the
// Feedback API from spec.md §4.L.
type FeedbackRequest struct {
	BulletID    string  `json:"bulletId"`
	Type        string  `json:"type"`
	SessionPath string  `json:"sessionPath,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	Context     string  `json:"context,omitempty"`
	Weight      float64 `json:"weight,omitempty"`
}

// FeedbackResponse confirms the recorded event.
type FeedbackResponse struct {
	Applied bool `json:"applied"`
}

// handleFeedback records a feedback event against a bullet and
// persists the global playbook.
func (s *Server) handleFeedback(c echo.Context) error {
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return apperrHTTPError(apperr.New(apperr.CodeInvalidInput, "invalid request body"))
	}
	if req.BulletID == "" {
		return apperrHTTPError(apperr.New(apperr.CodeInvalidInput, "bulletId field is required"))
	}

	var feedbackType playbook.FeedbackType
	switch req.Type {
	case string(playbook.FeedbackHelpful):
		feedbackType = playbook.FeedbackHelpful
	case string(playbook.FeedbackHarmful):
		feedbackType = playbook.FeedbackHarmful
	default:
		return apperrHTTPError(apperr.New(apperr.CodeInvalidInput, "type must be \"helpful\" or \"harmful\""))
	}

	ctx := c.Request().Context()
	pb, err := s.store.Load(ctx)
	if err != nil {
		return apperrHTTPError(apperr.Wrap(apperr.CodeCorruptState, "failed to load playbook", err))
	}

	applied := playbook.RecordFeedbackEvent(pb, req.BulletID, feedbackType, playbook.FeedbackOptions{
		SessionPath: req.SessionPath,
		Reason:      req.Reason,
		Context:     req.Context,
		Weight:      req.Weight,
	})
	if !applied {
		return apperrHTTPError(apperr.NotFound("bullet", req.BulletID))
	}

	if err := s.store.Save(ctx, pb); err != nil {
		return apperrHTTPError(apperr.Wrap(apperr.CodeCorruptState, "failed to save playbook", err))
	}

	return c.JSON(http.StatusOK, FeedbackResponse{Applied: true})
}

// apperrHTTPError maps a structured apperr.Error to an echo HTTP
// error, matching spec.md §7's {code, message, hint} error shape.
func apperrHTTPError(e *apperr.Error) *echo.HTTPError {
	return echo.NewHTTPError(statusForCode(e.Code), map[string]string{
		"code":    string(e.Code),
		"message": e.Message,
		"hint":    e.Hint,
	})
}

func statusForCode(code apperr.Code) int {
	switch code {
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeInvalidInput:
		return http.StatusBadRequest
	case apperr.CodeLockTimeout:
		return http.StatusConflict
	case apperr.CodePolicyViolation:
		return http.StatusForbidden
	case apperr.CodeExternalUnavail:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
