package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/mfcarvalho/legalconsult/internal/models"
	"google.golang.org/api/iterator"
)

// --- Consultation Prompts ---

// ConsultSystemPrompt is stored inside every cached session alongside the
// document bytes, so it applies to all queries against that session.
const ConsultSystemPrompt = `You are a specialist assistant for the analysis of legal documents. Answer questions strictly from the content of the attached PDF document.

For every answer:
1. Base the answer only on the document. If the information is not in the document, say so clearly instead of guessing.
2. List the page numbers of the document that support the answer.
3. List 0 to 3 cross-reference terms (specific clauses, articles, annexes or sections) that your answer explicitly mentions and that could be looked up for more detail. Exclude generic terms such as "the contract" or "the law"; an empty list is acceptable.
Respond in the same language the question was asked in.`

// ContextInstruction is appended after the serialized conversation window
// and the new question on every contextual query.
const ContextInstruction = `Answer the new question taking the conversation above into account. Answer the question directly, cite the supporting page numbers, and list 0 to 3 specific cross-reference terms explicitly mentioned in your answer. Exclude generic terms; an empty list is acceptable.`

// ExpansionInstruction heads the single consolidated cross-reference query.
const ExpansionInstruction = `The previous answer mentioned the cross references listed below. Produce one consolidated explanation that relates each of them back to the original question. Do not quote raw document text; summarize in your own words.`

// answerSchema is the structured output contract requested on every
// generate call. It mirrors models.StructuredAnswer.
var answerSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"answer_text": {
			Type:        genai.TypeString,
			Description: "The answer to the question, based only on the document.",
		},
		"cited_pages": {
			Type:        genai.TypeArray,
			Items:       &genai.Schema{Type: genai.TypeInteger},
			Description: "Page numbers of the document that support the answer.",
		},
		"suggested_terms": {
			Type:        genai.TypeArray,
			Items:       &genai.Schema{Type: genai.TypeString},
			Description: "0 to 3 specific cross-reference terms explicitly mentioned in the answer.",
		},
	},
	Required: []string{"answer_text"},
}

// GenAI wraps the Vertex AI client with the single model this service
// drives. All cached-content operations and generate calls go through it.
type GenAI struct {
	client *genai.Client
	model  string
}

// NewGenAI creates the Vertex AI client for the given project and region.
func NewGenAI(ctx context.Context, projectID, region, model string) (*GenAI, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewGenAI: projectID and region cannot be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("NewGenAI: model cannot be empty")
	}

	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	return &GenAI{client: client, model: model}, nil
}

// Model reports the model name all sessions are created against.
func (g *GenAI) Model() string {
	return g.model
}

func (g *GenAI) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// CreateDocumentCache stores the document plus the fixed system
// instruction provider-side and returns the handle of the new session.
func (g *GenAI) CreateDocumentCache(ctx context.Context, pdf []byte, displayName string, ttl time.Duration) (*models.CacheInfo, error) {
	instruction := genai.Text(ConsultSystemPrompt)
	document := genai.Blob{MIMEType: "application/pdf", Data: pdf}

	cc := &genai.CachedContent{
		Model: g.model,
		SystemInstruction: &genai.Content{
			Parts: []genai.Part{instruction},
		},
		Contents: []*genai.Content{
			{
				Role:  "user",
				Parts: []genai.Part{document},
			},
		},
		Expiration: genai.ExpireTimeOrTTL{TTL: ttl},
	}

	created, err := g.client.CreateCachedContent(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("CreateCachedContent: %w", err)
	}

	info := &models.CacheInfo{
		Name:        created.Name,
		DisplayName: displayName,
		Model:       g.model,
		CreatedAt:   created.CreateTime,
		ExpiresAt:   created.Expiration.ExpireTime,
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now()
	}
	if info.ExpiresAt.IsZero() {
		info.ExpiresAt = time.Now().Add(ttl)
	}

	// Per-response usage metadata does not break out cached input tokens,
	// so the count for the stored content is captured once here.
	if counted, err := g.client.GenerativeModel(g.model).CountTokens(ctx, instruction, document); err != nil {
		slog.Warn("Failed to count cached content tokens.", "cacheName", created.Name, "error", err)
	} else {
		info.TokenCount = counted.TotalTokens
	}

	return info, nil
}

// RenewCache extends the TTL of an existing session and returns the new
// expiry timestamp.
func (g *GenAI) RenewCache(ctx context.Context, name string, ttl time.Duration) (time.Time, error) {
	cc := &genai.CachedContent{Name: name}
	updated, err := g.client.UpdateCachedContent(ctx, cc, &genai.CachedContentToUpdate{
		Expiration: &genai.ExpireTimeOrTTL{TTL: ttl},
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("UpdateCachedContent: %w", err)
	}

	expires := updated.Expiration.ExpireTime
	if expires.IsZero() {
		expires = time.Now().Add(ttl)
	}
	return expires, nil
}

// DeleteCache destroys a provider-side session.
func (g *GenAI) DeleteCache(ctx context.Context, name string) error {
	if err := g.client.DeleteCachedContent(ctx, name); err != nil {
		return fmt.Errorf("DeleteCachedContent: %w", err)
	}
	return nil
}

// ListCaches returns all cached contents visible to the project.
func (g *GenAI) ListCaches(ctx context.Context) ([]models.CacheInfo, error) {
	var infos []models.CacheInfo
	it := g.client.ListCachedContents(ctx)
	for {
		cc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListCachedContents: %w", err)
		}
		infos = append(infos, models.CacheInfo{
			Name:      cc.Name,
			Model:     cc.Model,
			CreatedAt: cc.CreateTime,
			ExpiresAt: cc.Expiration.ExpireTime,
		})
	}
	return infos, nil
}

// GenerateCached issues one generate call against a cached session,
// requesting the structured answer schema at low temperature.
func (g *GenAI) GenerateCached(ctx context.Context, cacheName, prompt string) (*genai.GenerateContentResponse, error) {
	model := g.client.GenerativeModel(g.model)
	model.CachedContentName = cacheName
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   answerSchema,
		Temperature:      genai.Ptr[float32](0.2),
	}
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("GenerateContent: %w", err)
	}
	return resp, nil
}
