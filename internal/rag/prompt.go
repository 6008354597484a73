package rag

import (
	"fmt"
	"strings"

	"rag-service/internal/models"
)

const (
	// DefaultMaxContextChars caps the total size of context passed to the
	// model.
	DefaultMaxContextChars = 6000
	MinContextChars        = 500
	MaxContextChars        = 20000

	// DefaultMaxHistoryMessages caps how many prior turns reach the prompt.
	DefaultMaxHistoryMessages = 10
)

// systemPrompt instructs the model to stay grounded in retrieved context.
const systemPrompt = `You are a helpful assistant answering questions about the user's documents.
Answer using only the provided context. If the context does not contain
the answer, say so instead of guessing. Cite the chunk indices you used,
like [1] or [2], when they support your answer.`

// renderContexts formats hits as numbered context lines, keeping whole
// contexts in retrieval order until the character budget is spent. A
// budget smaller than the first context yields no context at all. The
// kept subset is also returned: it is what the caller sees as sources.
func renderContexts(hits []Hit, maxChars int) (string, []Hit) {
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}

	var lines []string
	var kept []Hit
	used := 0
	for _, hit := range hits {
		line := contextLine(len(kept)+1, hit)
		if used+len(line) > maxChars {
			break
		}
		lines = append(lines, line)
		kept = append(kept, hit)
		used += len(line)
	}
	if len(kept) == 0 {
		return "No context available.", nil
	}
	return strings.Join(lines, "\n\n"), kept
}

func contextLine(idx int, hit Hit) string {
	if name, ok := hit.Payload["document_name"].(string); ok && name != "" {
		return fmt.Sprintf("[%d] (score=%.3f, doc=%s) %s", idx, hit.Score, name, hit.Text)
	}
	return fmt.Sprintf("[%d] (score=%.3f) %s", idx, hit.Score, hit.Text)
}

// renderHistory formats the last maxMessages turns as "role: content"
// lines, oldest first.
func renderHistory(history []models.ChatMessage, maxMessages int) string {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxHistoryMessages
	}
	if len(history) > maxMessages {
		history = history[len(history)-maxMessages:]
	}
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}
	return strings.Join(lines, "\n")
}

// buildUserPrompt assembles the final user turn from context, history and
// the question.
func buildUserPrompt(contexts, history, question string) string {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	sb.WriteString(contexts)
	if history != "" {
		sb.WriteString("\n\nConversation so far:\n")
		sb.WriteString(history)
	}
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	return sb.String()
}
