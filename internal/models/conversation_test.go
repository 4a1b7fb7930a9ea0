package models

import (
	"fmt"
	"reflect"
	"testing"
)

func TestWindowReturnsTrailingTurns(t *testing.T) {
	conv := NewConversation("c1")
	for i := 1; i <= 15; i++ {
		conv.Append(Turn{Role: RoleUser, Content: fmt.Sprintf("q%d", i)})
	}

	got := conv.Window(10)
	if len(got) != 10 {
		t.Fatalf("Window(10) returned %d turns, want 10", len(got))
	}
	if got[0].Content != "q6" || got[9].Content != "q15" {
		t.Errorf("Window(10) = [%s..%s], want [q6..q15]", got[0].Content, got[9].Content)
	}
}

func TestWindowShortTranscript(t *testing.T) {
	conv := NewConversation("c1")
	conv.Append(Turn{Role: RoleUser, Content: "only"})

	got := conv.Window(10)
	if len(got) != 1 || got[0].Content != "only" {
		t.Errorf("Window(10) on 1-turn transcript = %v, want the single turn", got)
	}
	if conv.Window(0) != nil {
		t.Errorf("Window(0) should be nil")
	}
}

func TestLastCitedPages(t *testing.T) {
	tests := []struct {
		name  string
		turns []Turn
		want  []int
	}{
		{
			name: "most recent assistant turn with pages wins",
			turns: []Turn{
				{Role: RoleAssistant, Pages: []int{1, 2}},
				{Role: RoleUser},
				{Role: RoleAssistant, Pages: []int{7}},
			},
			want: []int{7},
		},
		{
			name: "assistant turn without pages is skipped",
			turns: []Turn{
				{Role: RoleAssistant, Pages: []int{3, 4}},
				{Role: RoleAssistant},
			},
			want: []int{3, 4},
		},
		{
			name: "non-assistant roles never match",
			turns: []Turn{
				{Role: RoleUser, Pages: []int{9}},
				{Role: RoleSystem, Pages: []int{9}},
			},
			want: nil,
		},
		{
			name:  "empty transcript",
			turns: nil,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := NewConversation("c1")
			for _, turn := range tt.turns {
				conv.Append(turn)
			}
			got := conv.LastCitedPages()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("LastCitedPages() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClearKeepsDocumentAndCache(t *testing.T) {
	conv := NewConversation("c1")
	conv.Document = &Document{Name: "contract.pdf"}
	conv.Cache = &CacheInfo{Name: "caches/abc"}
	conv.Append(Turn{Role: RoleUser, Content: "hi"})
	conv.Append(Turn{Role: RoleAssistant, Content: "hello"})

	conv.Clear()

	if conv.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", conv.Len())
	}
	if conv.Document == nil || conv.Cache == nil {
		t.Errorf("Clear must not drop the document or the cached session")
	}
}
