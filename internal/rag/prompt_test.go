package rag

import (
	"strings"
	"testing"

	"rag-service/internal/models"
)

func TestRenderContextsFormatting(t *testing.T) {
	hits := []Hit{
		{Score: 0.912, Text: "alpha", Payload: map[string]any{"document_name": "report.pdf"}},
		{Score: 0.5, Text: "beta", Payload: map[string]any{}},
	}

	got, kept := renderContexts(hits, DefaultMaxContextChars)
	if !strings.Contains(got, "[1] (score=0.912, doc=report.pdf) alpha") {
		t.Errorf("missing named context line: %q", got)
	}
	if !strings.Contains(got, "[2] (score=0.500) beta") {
		t.Errorf("missing unnamed context line: %q", got)
	}
	if len(kept) != 2 {
		t.Errorf("expected both hits kept, got %d", len(kept))
	}
}

func TestRenderContextsBudget(t *testing.T) {
	hits := []Hit{
		{Score: 0.9, Text: strings.Repeat("a", 400)},
		{Score: 0.8, Text: strings.Repeat("b", 400)},
		{Score: 0.7, Text: strings.Repeat("c", 400)},
	}

	// Budget admits whole contexts in retrieval order only.
	got, kept := renderContexts(hits, 900)
	if !strings.Contains(got, "aaa") || !strings.Contains(got, "bbb") {
		t.Error("first two contexts should fit the budget")
	}
	if strings.Contains(got, "ccc") {
		t.Error("third context should be cut by the budget")
	}
	if len(kept) != 2 || kept[0].Score != 0.9 || kept[1].Score != 0.8 {
		t.Errorf("kept subset should mirror the rendered contexts, got %+v", kept)
	}
}

func TestRenderContextsBudgetSmallerThanFirst(t *testing.T) {
	hits := []Hit{{Score: 0.9, Text: strings.Repeat("a", 5000)}}

	got, kept := renderContexts(hits, MinContextChars)
	if got != "No context available." {
		t.Errorf("expected the empty-context sentinel, got %q", got)
	}
	if len(kept) != 0 {
		t.Errorf("no hit fits the budget, kept should be empty, got %d", len(kept))
	}
}

func TestRenderContextsNoHits(t *testing.T) {
	if got, _ := renderContexts(nil, DefaultMaxContextChars); got != "No context available." {
		t.Errorf("expected the empty-context sentinel, got %q", got)
	}
}

func TestRenderHistoryTrimsToNewest(t *testing.T) {
	var history []models.ChatMessage
	for i := 0; i < 15; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		history = append(history, models.ChatMessage{Role: role, Content: strings.Repeat("m", 1) + string(rune('a'+i))})
	}

	got := renderHistory(history, 10)
	lines := strings.Split(got, "\n")
	if len(lines) != 10 {
		t.Fatalf("expected 10 lines, got %d", len(lines))
	}
	// The oldest five turns are dropped, order is preserved.
	if !strings.HasSuffix(lines[0], string(rune('a'+5))) {
		t.Errorf("unexpected first line: %q", lines[0])
	}
	if !strings.HasPrefix(lines[0], "assistant: ") {
		t.Errorf("expected role prefix, got %q", lines[0])
	}
}

func TestBuildUserPrompt(t *testing.T) {
	got := buildUserPrompt("CTX", "user: hi", "what now?")
	for _, want := range []string{"Context:\nCTX", "Conversation so far:\nuser: hi", "Question: what now?"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}

	noHistory := buildUserPrompt("CTX", "", "q")
	if strings.Contains(noHistory, "Conversation so far") {
		t.Error("history section should be omitted when empty")
	}
}
