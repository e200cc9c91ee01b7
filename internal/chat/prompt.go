package chat

import (
	"strings"

	"github.com/repolens/repolens/internal/models"
	"github.com/repolens/repolens/internal/retrieval"
)

const promptPreamble = `You are an expert software engineer answering questions about one specific repository. Ground every answer in the material below. If the material does not cover the question, say so instead of guessing.`

// BuildPrompt assembles the layered prompt for one chat turn: repository
// summary, prior conversation, retrieved file summaries, retrieved code,
// then the question. Each layer is delimited so the model can tell the
// sources apart.
func BuildPrompt(session *models.Session, rc *retrieval.Context, question string) string {
	var b strings.Builder
	b.WriteString(promptPreamble)

	if session.RepositorySummary != "" {
		b.WriteString("\n\n=== REPOSITORY OVERVIEW ===\n")
		b.WriteString(session.RepositorySummary)
	}

	if len(session.History) > 0 {
		b.WriteString("\n\n=== CONVERSATION SO FAR ===\n")
		for _, turn := range session.History {
			b.WriteString(string(turn.Role))
			b.WriteString(": ")
			b.WriteString(turn.Content)
			b.WriteString("\n")
		}
	}

	if rc.SummaryContext != "" {
		b.WriteString("\n\n=== RELEVANT FILE SUMMARIES ===\n")
		b.WriteString(rc.SummaryContext)
	}

	b.WriteString("\n\n=== RELEVANT CODE ===\n")
	b.WriteString(rc.CodeContext)

	b.WriteString("\n\n=== QUESTION ===\n")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}
