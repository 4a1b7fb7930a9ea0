package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/mfcarvalho/legalconsult/internal/gcp"
	"github.com/mfcarvalho/legalconsult/internal/models"
)

// contextWindow is the number of trailing turns serialized into a
// contextual query. Fixed constant bounding prompt growth.
const contextWindow = 10

// maxSuggestedTerms hard-caps cross-reference suggestions per answer.
const maxSuggestedTerms = 3

const (
	// FallbackAnswer replaces answers that could not be recovered from
	// the model response at all.
	FallbackAnswer = "Unable to obtain a valid answer from the model. Please try rephrasing your question."

	// EmptyAnswer replaces structurally valid but empty answers.
	EmptyAnswer = "The model returned an empty response. Please rephrase your question."
)

// AnswerBackend is the generate surface the engine drives. gcp.GenAI
// implements it.
type AnswerBackend interface {
	GenerateCached(ctx context.Context, cacheName, prompt string) (*genai.GenerateContentResponse, error)
}

// QueryEngine turns user questions into structured answers against the
// conversation's cached session. Every remote call is attempted exactly
// once; there are no retries.
type QueryEngine struct {
	backend AnswerBackend
}

func NewQueryEngine(backend AnswerBackend) *QueryEngine {
	return &QueryEngine{backend: backend}
}

// Query issues one single-shot question against the live session.
func (e *QueryEngine) Query(ctx context.Context, conv *models.Conversation, question string) (*models.QueryResult, error) {
	if conv.Cache == nil {
		return nil, ErrNoActiveSession
	}
	return e.generate(ctx, conv, question)
}

// QueryWithContext is Query with the trailing conversation window
// serialized ahead of the question, plus the cross-reference instruction.
func (e *QueryEngine) QueryWithContext(ctx context.Context, conv *models.Conversation, question string) (*models.QueryResult, error) {
	if conv.Cache == nil {
		return nil, ErrNoActiveSession
	}
	window := conv.Window(contextWindow)
	if len(window) == 0 {
		return e.generate(ctx, conv, question)
	}
	return e.generate(ctx, conv, contextualPrompt(window, question))
}

// ExpandCrossReferences issues exactly one consolidated query relating
// all suggested terms back to the original question. It returns nil
// without any remote call when terms is empty.
func (e *QueryEngine) ExpandCrossReferences(ctx context.Context, conv *models.Conversation, terms []string, originalQuestion string) (*models.QueryResult, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	if conv.Cache == nil {
		return nil, ErrNoActiveSession
	}
	return e.generate(ctx, conv, expansionPrompt(terms, originalQuestion))
}

func (e *QueryEngine) generate(ctx context.Context, conv *models.Conversation, prompt string) (*models.QueryResult, error) {
	resp, err := e.backend.GenerateCached(ctx, conv.Cache.Name, prompt)
	if err != nil {
		return nil, fmt.Errorf("cached query failed: %w", err)
	}
	result := decodeResult(resp)
	if result.Usage != nil {
		// Response metadata does not break out cached input tokens; every
		// call against the session consumes the count captured at create.
		result.Usage.CachedTokens = conv.Cache.TokenCount
	}
	return result, nil
}

// decodeResult normalizes a model response into a QueryResult. Decoding
// never fails: a structured decode is attempted first, then the raw
// response text, then the fixed fallback string.
func decodeResult(resp *genai.GenerateContentResponse) *models.QueryResult {
	raw := extractText(resp)
	answer, ok := decodeStructured(raw)

	result := &models.QueryResult{
		Usage:      usageFrom(resp),
		Structured: ok,
	}
	if ok {
		result.AnswerText = answer.AnswerText
		result.CitedPages = answer.CitedPages
		result.SuggestedTerms = answer.SuggestedTerms
		if len(result.SuggestedTerms) > maxSuggestedTerms {
			result.SuggestedTerms = result.SuggestedTerms[:maxSuggestedTerms]
		}
		if strings.TrimSpace(result.AnswerText) == "" {
			result.AnswerText = EmptyAnswer
		}
	} else if raw != "" {
		result.AnswerText = raw
	} else {
		result.AnswerText = FallbackAnswer
	}

	if result.CitedPages == nil {
		result.CitedPages = []int{}
	}
	if result.SuggestedTerms == nil {
		result.SuggestedTerms = []string{}
	}
	return result
}

// decodeStructured parses raw response text against the structured
// answer contract. The bool reports whether the decode succeeded.
func decodeStructured(raw string) (models.StructuredAnswer, bool) {
	var answer models.StructuredAnswer
	if raw == "" {
		return answer, false
	}
	if err := json.Unmarshal([]byte(raw), &answer); err != nil {
		slog.Warn("Structured decode failed, falling back to raw text.", "error", err)
		return models.StructuredAnswer{}, false
	}
	return answer, true
}

// extractText robustly gets the text content from the first candidate,
// stripping markdown fences the model sometimes adds around JSON.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}

	s := strings.TrimSpace(b.String())
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// usageFrom reads the provider's token accounting, never recomputing it.
func usageFrom(resp *genai.GenerateContentResponse) *models.Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return nil
	}
	m := resp.UsageMetadata
	return &models.Usage{
		TotalTokens:    m.TotalTokenCount,
		PromptTokens:   m.PromptTokenCount,
		ResponseTokens: m.CandidatesTokenCount,
	}
}

func contextualPrompt(window []models.Turn, question string) string {
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, t := range window {
		b.WriteString(roleLabel(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteByte('\n')
	}
	b.WriteString("\nNew question: ")
	b.WriteString(question)
	b.WriteString("\n\n")
	b.WriteString(gcp.ContextInstruction)
	return b.String()
}

func expansionPrompt(terms []string, originalQuestion string) string {
	var b strings.Builder
	b.WriteString(gcp.ExpansionInstruction)
	b.WriteString("\n\nOriginal question: ")
	b.WriteString(originalQuestion)
	b.WriteString("\nCross references:\n")
	for _, t := range terms {
		b.WriteString("- ")
		b.WriteString(t)
		b.WriteByte('\n')
	}
	return b.String()
}

func roleLabel(r models.Role) string {
	switch r {
	case models.RoleUser:
		return "User"
	case models.RoleAssistant:
		return "Assistant"
	case models.RoleSystem:
		return "System"
	}
	return string(r)
}
