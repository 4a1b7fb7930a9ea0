package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/mfcarvalho/legalconsult/internal/gcp"
	"github.com/mfcarvalho/legalconsult/internal/models"
)

// fakeAnswerBackend replays scripted responses and records every prompt
// it was asked to generate against.
type fakeAnswerBackend struct {
	responses  []*genai.GenerateContentResponse
	errs       []error
	prompts    []string
	cacheNames []string
}

func (f *fakeAnswerBackend) GenerateCached(_ context.Context, cacheName, prompt string) (*genai.GenerateContentResponse, error) {
	i := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	f.cacheNames = append(f.cacheNames, cacheName)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return textResponse(`{"answer_text":"ok"}`), nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text(text)}}},
		},
	}
}

func liveConversation(id string) *models.Conversation {
	conv := models.NewConversation(id)
	conv.Cache = &models.CacheInfo{Name: "projects/p/locations/l/cachedContents/" + id}
	return conv
}

func TestQueryRequiresSession(t *testing.T) {
	backend := &fakeAnswerBackend{}
	engine := NewQueryEngine(backend)
	conv := models.NewConversation("c1")

	if _, err := engine.Query(context.Background(), conv, "q"); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("Query error = %v, want ErrNoActiveSession", err)
	}
	if _, err := engine.QueryWithContext(context.Background(), conv, "q"); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("QueryWithContext error = %v, want ErrNoActiveSession", err)
	}
	if _, err := engine.ExpandCrossReferences(context.Background(), conv, []string{"Clause 4"}, "q"); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("ExpandCrossReferences error = %v, want ErrNoActiveSession", err)
	}
	if len(backend.prompts) != 0 {
		t.Errorf("backend saw %d calls, want 0", len(backend.prompts))
	}
}

func TestQueryDecodesStructuredAnswer(t *testing.T) {
	resp := textResponse(`{"answer_text":"See clause 4.","cited_pages":[2,7],"suggested_terms":["Clause 4","Annex B"]}`)
	resp.UsageMetadata = &genai.UsageMetadata{
		PromptTokenCount:     120,
		CandidatesTokenCount: 30,
		TotalTokenCount:      150,
	}
	backend := &fakeAnswerBackend{responses: []*genai.GenerateContentResponse{resp}}
	engine := NewQueryEngine(backend)
	conv := liveConversation("c1")
	conv.Cache.TokenCount = 100

	result, err := engine.Query(context.Background(), conv, "What does clause 4 say?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !result.Structured {
		t.Error("Structured = false, want true")
	}
	if result.AnswerText != "See clause 4." {
		t.Errorf("AnswerText = %q", result.AnswerText)
	}
	if !reflect.DeepEqual(result.CitedPages, []int{2, 7}) {
		t.Errorf("CitedPages = %v, want [2 7]", result.CitedPages)
	}
	if !reflect.DeepEqual(result.SuggestedTerms, []string{"Clause 4", "Annex B"}) {
		t.Errorf("SuggestedTerms = %v", result.SuggestedTerms)
	}
	if result.Usage == nil {
		t.Fatal("Usage = nil, want the provider accounting")
	}
	if result.Usage.TotalTokens != 150 || result.Usage.PromptTokens != 120 || result.Usage.ResponseTokens != 30 {
		t.Errorf("Usage = %+v, want total 150 prompt 120 response 30", result.Usage)
	}
	if result.Usage.CachedTokens != 100 {
		t.Errorf("CachedTokens = %d, want the session's create-time count 100", result.Usage.CachedTokens)
	}
}

func TestQueryStripsMarkdownFences(t *testing.T) {
	fenced := "```json\n{\"answer_text\":\"Fenced.\",\"cited_pages\":[1]}\n```"
	backend := &fakeAnswerBackend{responses: []*genai.GenerateContentResponse{textResponse(fenced)}}
	engine := NewQueryEngine(backend)

	result, err := engine.Query(context.Background(), liveConversation("c1"), "q")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !result.Structured || result.AnswerText != "Fenced." {
		t.Errorf("got structured=%v answer=%q", result.Structured, result.AnswerText)
	}
}

func TestQueryDecodeFallbacks(t *testing.T) {
	tests := []struct {
		name           string
		resp           *genai.GenerateContentResponse
		wantAnswer     string
		wantStructured bool
	}{
		{
			name:           "plain text response",
			resp:           textResponse("The deposit is refundable within 30 days."),
			wantAnswer:     "The deposit is refundable within 30 days.",
			wantStructured: false,
		},
		{
			name:           "no candidates",
			resp:           &genai.GenerateContentResponse{},
			wantAnswer:     FallbackAnswer,
			wantStructured: false,
		},
		{
			name:           "candidate without parts",
			resp:           &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{}}}},
			wantAnswer:     FallbackAnswer,
			wantStructured: false,
		},
		{
			name:           "structured but blank answer",
			resp:           textResponse(`{"answer_text":"   ","cited_pages":[3]}`),
			wantAnswer:     EmptyAnswer,
			wantStructured: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeAnswerBackend{responses: []*genai.GenerateContentResponse{tt.resp}}
			engine := NewQueryEngine(backend)

			result, err := engine.Query(context.Background(), liveConversation("c1"), "q")
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if result.AnswerText != tt.wantAnswer {
				t.Errorf("AnswerText = %q, want %q", result.AnswerText, tt.wantAnswer)
			}
			if result.Structured != tt.wantStructured {
				t.Errorf("Structured = %v, want %v", result.Structured, tt.wantStructured)
			}
			if result.CitedPages == nil || result.SuggestedTerms == nil {
				t.Error("CitedPages and SuggestedTerms must never be nil")
			}
			if result.Usage != nil {
				t.Errorf("Usage = %+v, want nil without response metadata", result.Usage)
			}
		})
	}
}

func TestQueryCapsSuggestedTerms(t *testing.T) {
	resp := textResponse(`{"answer_text":"a","suggested_terms":["t1","t2","t3","t4","t5"]}`)
	backend := &fakeAnswerBackend{responses: []*genai.GenerateContentResponse{resp}}
	engine := NewQueryEngine(backend)

	result, err := engine.Query(context.Background(), liveConversation("c1"), "q")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !reflect.DeepEqual(result.SuggestedTerms, []string{"t1", "t2", "t3"}) {
		t.Errorf("SuggestedTerms = %v, want the first 3", result.SuggestedTerms)
	}
}

func TestQueryRemoteError(t *testing.T) {
	backend := &fakeAnswerBackend{errs: []error{errors.New("quota exhausted")}}
	engine := NewQueryEngine(backend)

	_, err := engine.Query(context.Background(), liveConversation("c1"), "q")
	if err == nil || !strings.Contains(err.Error(), "quota exhausted") {
		t.Errorf("error = %v, want wrapped remote error", err)
	}
}

func TestQueryWithContextSerializesWindow(t *testing.T) {
	backend := &fakeAnswerBackend{}
	engine := NewQueryEngine(backend)
	conv := liveConversation("c1")
	for i := 1; i <= 15; i++ {
		conv.Append(models.Turn{Role: models.RoleUser, Content: fmt.Sprintf("q%d", i)})
	}

	if _, err := engine.QueryWithContext(context.Background(), conv, "q16"); err != nil {
		t.Fatalf("QueryWithContext: %v", err)
	}

	prompt := backend.prompts[0]
	if !strings.Contains(prompt, "User: q6\n") || !strings.Contains(prompt, "User: q15\n") {
		t.Errorf("prompt is missing window turns:\n%s", prompt)
	}
	if strings.Contains(prompt, "User: q5\n") {
		t.Errorf("prompt contains turns outside the window:\n%s", prompt)
	}
	if !strings.Contains(prompt, "New question: q16") {
		t.Errorf("prompt is missing the new question:\n%s", prompt)
	}
	if !strings.Contains(prompt, gcp.ContextInstruction) {
		t.Error("prompt is missing the context instruction")
	}
	if backend.cacheNames[0] != conv.Cache.Name {
		t.Errorf("cacheName = %q, want %q", backend.cacheNames[0], conv.Cache.Name)
	}
}

func TestQueryWithContextEmptyTranscript(t *testing.T) {
	backend := &fakeAnswerBackend{}
	engine := NewQueryEngine(backend)

	if _, err := engine.QueryWithContext(context.Background(), liveConversation("c1"), "first question"); err != nil {
		t.Fatalf("QueryWithContext: %v", err)
	}
	if backend.prompts[0] != "first question" {
		t.Errorf("prompt = %q, want the bare question", backend.prompts[0])
	}
}

func TestExpandCrossReferencesEmptyTerms(t *testing.T) {
	backend := &fakeAnswerBackend{}
	engine := NewQueryEngine(backend)

	result, err := engine.ExpandCrossReferences(context.Background(), liveConversation("c1"), nil, "q")
	if err != nil {
		t.Fatalf("ExpandCrossReferences: %v", err)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil", result)
	}
	if len(backend.prompts) != 0 {
		t.Errorf("backend saw %d calls, want 0", len(backend.prompts))
	}
}

func TestExpandCrossReferencesPrompt(t *testing.T) {
	backend := &fakeAnswerBackend{}
	engine := NewQueryEngine(backend)

	_, err := engine.ExpandCrossReferences(context.Background(), liveConversation("c1"),
		[]string{"Clause 9", "Annex II"}, "What about termination?")
	if err != nil {
		t.Fatalf("ExpandCrossReferences: %v", err)
	}
	if len(backend.prompts) != 1 {
		t.Fatalf("backend saw %d calls, want exactly 1", len(backend.prompts))
	}

	prompt := backend.prompts[0]
	if !strings.Contains(prompt, gcp.ExpansionInstruction) {
		t.Error("prompt is missing the expansion instruction")
	}
	if !strings.Contains(prompt, "- Clause 9\n") || !strings.Contains(prompt, "- Annex II\n") {
		t.Errorf("prompt is missing the terms:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Original question: What about termination?") {
		t.Errorf("prompt is missing the original question:\n%s", prompt)
	}
}
