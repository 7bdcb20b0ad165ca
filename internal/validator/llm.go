package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// Config mirrors pkg/embeddings.Config's env-driven provider shape:
// any OpenAI-compatible endpoint (a local inference server or the
// OpenAI API itself) works without a separate code path.
type Config struct {
	BaseURL string
	Model   string
	APIKey  string
}

// LLMValidator implements Validator by prompting a langchaingo model
// and parsing its JSON response.
type LLMValidator struct {
	model  llms.Model
	logger *zap.Logger
}

// New constructs an LLMValidator from Config.
func New(cfg Config, logger *zap.Logger) (*LLMValidator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &LLMValidator{model: model, logger: logger}, nil
}

type validateResponse struct {
	Valid               bool     `json:"valid"`
	Verdict             string   `json:"verdict"`
	Confidence          float64  `json:"confidence"`
	Evidence            []string `json:"evidence"`
	SuggestedRefinement string   `json:"suggestedRefinement"`
}

// Validate prompts the model to judge candidateRule against
// evidenceText and normalizes the response.
func (v *LLMValidator) Validate(ctx context.Context, candidateRule, evidenceText string) (Result, error) {
	prompt := fmt.Sprintf(validatePromptTemplate, candidateRule, evidenceText)

	raw, err := llms.GenerateFromSinglePrompt(ctx, v.model, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var resp validateResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		v.logger.Warn("validator: malformed validate response", zap.Error(err))
		return Result{}, fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
	}

	return Normalize(Result{
		Valid:               resp.Valid,
		Verdict:             Verdict(resp.Verdict),
		Confidence:          resp.Confidence,
		Evidence:            resp.Evidence,
		SuggestedRefinement: resp.SuggestedRefinement,
	}), nil
}

type diaryResponse struct {
	Status          string   `json:"status"`
	Accomplishments []string `json:"accomplishments"`
	Decisions       []string `json:"decisions"`
	Challenges      []string `json:"challenges"`
	Preferences     []string `json:"preferences"`
	KeyLearnings    []string `json:"keyLearnings"`
	Tags            []string `json:"tags"`
	SearchAnchors   []string `json:"searchAnchors"`
}

// ExtractDiary prompts the model to summarize a sanitized session
// transcript into the diary document shape (spec.md §6).
func (v *LLMValidator) ExtractDiary(ctx context.Context, sanitizedSessionText string, metadata map[string]string) (Diary, error) {
	prompt := fmt.Sprintf(diaryPromptTemplate, formatMetadata(metadata), sanitizedSessionText)

	raw, err := llms.GenerateFromSinglePrompt(ctx, v.model, prompt)
	if err != nil {
		return Diary{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var resp diaryResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		v.logger.Warn("validator: malformed diary response", zap.Error(err))
		return Diary{}, fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
	}

	return Diary{
		Status:          resp.Status,
		Accomplishments: resp.Accomplishments,
		Decisions:       resp.Decisions,
		Challenges:      resp.Challenges,
		Preferences:     resp.Preferences,
		KeyLearnings:    resp.KeyLearnings,
		Tags:            resp.Tags,
		SearchAnchors:   resp.SearchAnchors,
	}, nil
}

const validatePromptTemplate = `You are validating a candidate procedural-memory rule against historical evidence.

Candidate rule:
%s

Evidence:
%s

Respond with JSON only, matching this shape:
{"valid": bool, "verdict": "ACCEPT"|"REJECT"|"ACCEPT_WITH_CAUTION"|"REFINE", "confidence": 0.0-1.0, "evidence": ["..."], "suggestedRefinement": "..."}`

const diaryPromptTemplate = `Summarize the following sanitized coding session into a diary entry.

Metadata:
%s

Session transcript:
%s

Respond with JSON only, matching this shape:
{"status": "...", "accomplishments": ["..."], "decisions": ["..."], "challenges": ["..."], "preferences": ["..."], "keyLearnings": ["..."], "tags": ["..."], "searchAnchors": ["..."]}`

func formatMetadata(metadata map[string]string) string {
	var sb strings.Builder
	for k, v := range metadata {
		fmt.Fprintf(&sb, "%s: %s\n", k, v)
	}
	return sb.String()
}

// extractJSON strips leading/trailing prose and code fences a model may
// wrap its JSON answer in, returning the first balanced {...} block.
func extractJSON(raw string) string {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start == -1 || end == -1 || end < start {
		return raw
	}
	return raw[start : end+1]
}

var _ Validator = (*LLMValidator)(nil)
