package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mfcarvalho/legalconsult/internal/models"
)

// ChatService runs one user question through the whole pipeline:
// contextual query, transcript append, and the single consolidated
// cross-reference follow-up when the answer suggested any terms.
type ChatService struct {
	engine *QueryEngine
}

func NewChatService(engine *QueryEngine) *ChatService {
	return &ChatService{engine: engine}
}

// Ask answers a question against the conversation's cached session and
// returns the turns it appended. With no live session it returns
// ErrNoActiveSession and appends nothing. A remote failure is recorded
// as a system turn in the transcript, not returned as an error; the
// conversation stays usable.
func (s *ChatService) Ask(ctx context.Context, conv *models.Conversation, question string) ([]models.Turn, error) {
	if conv.Cache == nil {
		return nil, ErrNoActiveSession
	}
	logCtx := slog.With("conversationId", conv.ID)

	result, err := s.engine.QueryWithContext(ctx, conv, question)
	if err != nil {
		logCtx.Error("Query failed; recording an error turn.", "error", err)
		appended := []models.Turn{
			{Role: models.RoleUser, Content: question},
			{Role: models.RoleSystem, Content: fmt.Sprintf("Error: %v", err)},
		}
		for _, t := range appended {
			conv.Append(t)
		}
		return appended, nil
	}

	appended := []models.Turn{
		{Role: models.RoleUser, Content: question},
		{
			Role:        models.RoleAssistant,
			Content:     result.AnswerText,
			Pages:       result.CitedPages,
			Usage:       result.Usage,
			Suggestions: result.SuggestedTerms,
		},
	}

	if len(result.SuggestedTerms) > 0 {
		expansion, err := s.engine.ExpandCrossReferences(ctx, conv, result.SuggestedTerms, question)
		if err != nil {
			logCtx.Warn("Cross-reference expansion failed; keeping the primary answer.", "error", err)
		} else if expansion != nil {
			appended = append(appended, models.Turn{
				Role:           models.RoleAssistant,
				Content:        expansion.AnswerText,
				Pages:          expansion.CitedPages,
				Usage:          expansion.Usage,
				Suggestions:    expansion.SuggestedTerms,
				IsConsolidated: true,
			})
		}
	}

	for _, t := range appended {
		conv.Append(t)
	}
	logCtx.Info("Question answered.", "appendedTurns", len(appended), "suggestions", len(result.SuggestedTerms), "structured", result.Structured)
	return appended, nil
}
