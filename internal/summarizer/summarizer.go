// Package summarizer produces file and repository digests and suggested
// questions via the generation capability, with deterministic fallbacks.
package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/repolens/repolens/internal/genai"
	"go.uber.org/zap"
)

// RepoSummaryFallback is returned when repository summarization fails, so
// downstream retrieval always has non-empty summary text.
const RepoSummaryFallback = "A summary could not be generated for this repository."

// maxSuggestionLen is the character limit for one suggested question.
const maxSuggestionLen = 60

// fallbackQuestions is the built-in suggestion list used when the model's
// output fails validation. Two domain questions, two engineering questions.
var fallbackQuestions = []string{
	"What is the main purpose of this project?",
	"Who are the intended users of this application?",
	"How is the codebase structured?",
	"Which frameworks and libraries does it depend on?",
}

// Summarizer wraps a Generator with fallback selection. Summarization
// failures never propagate; every method returns usable text.
type Summarizer struct {
	generator genai.Generator
	logger    *zap.Logger
}

// NewSummarizer creates a summarizer with the given generator.
func NewSummarizer(generator genai.Generator, logger *zap.Logger) *Summarizer {
	return &Summarizer{generator: generator, logger: logger}
}

// genResult carries a generation outcome to an explicit fallback-selection
// step, instead of recovering inside an error branch.
type genResult struct {
	text string
	err  error
}

func (r genResult) usable() bool {
	return r.err == nil && strings.TrimSpace(r.text) != ""
}

func (s *Summarizer) generate(ctx context.Context, prompt string) genResult {
	text, err := s.generator.Generate(ctx, prompt)
	return genResult{text: text, err: err}
}

// SummarizeFile returns a one-paragraph digest of one file. On generation
// failure or empty output it returns a deterministic fallback naming the
// path; it never returns an error.
func (s *Summarizer) SummarizeFile(ctx context.Context, path, content string) string {
	res := s.generate(ctx, fileSummaryPrompt(path, content))
	if !res.usable() {
		s.logger.Warn("file summary fell back",
			zap.String("path", path),
			zap.Error(res.err),
		)
		return "Summary unavailable for " + path
	}
	return strings.TrimSpace(res.text)
}

// SummarizeRepository returns a structured digest of the whole repository
// from the concatenation of all files. Returns RepoSummaryFallback on failure.
func (s *Summarizer) SummarizeRepository(ctx context.Context, corpus string) string {
	res := s.generate(ctx, repoSummaryPrompt(corpus))
	if !res.usable() {
		s.logger.Warn("repository summary fell back", zap.Error(res.err))
		return RepoSummaryFallback
	}
	return strings.TrimSpace(res.text)
}

// SuggestQuestions returns exactly four suggested questions derived from the
// repository summary, each at most 60 characters. The model output must be a
// JSON array of exactly four strings; anything else selects the built-in list.
func (s *Summarizer) SuggestQuestions(ctx context.Context, repoSummary string) []string {
	res := s.generate(ctx, suggestionsPrompt(repoSummary))
	if !res.usable() {
		s.logger.Warn("question suggestions fell back", zap.Error(res.err))
		return fallback()
	}
	questions, err := parseSuggestions(res.text)
	if err != nil {
		s.logger.Warn("question suggestions failed validation", zap.Error(err))
		return fallback()
	}
	return questions
}

func fallback() []string {
	out := make([]string, len(fallbackQuestions))
	copy(out, fallbackQuestions)
	return out
}

// parseSuggestions validates the model output: a JSON array of exactly four
// non-empty strings, each at most maxSuggestionLen characters after trimming.
func parseSuggestions(raw string) ([]string, error) {
	payload := stripCodeFence(raw)
	var questions []string
	if err := json.Unmarshal([]byte(payload), &questions); err != nil {
		return nil, fmt.Errorf("output is not a JSON string array: %w", err)
	}
	if len(questions) != 4 {
		return nil, fmt.Errorf("expected 4 questions, got %d", len(questions))
	}
	for i, q := range questions {
		q = strings.TrimSpace(q)
		if q == "" {
			return nil, fmt.Errorf("question %d is empty", i)
		}
		if utf8.RuneCountInString(q) > maxSuggestionLen {
			return nil, fmt.Errorf("question %d exceeds %d characters", i, maxSuggestionLen)
		}
		questions[i] = q
	}
	return questions, nil
}

// stripCodeFence removes a surrounding markdown code fence, which models
// often add around JSON even when told not to.
func stripCodeFence(raw string) string {
	t := strings.TrimSpace(raw)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}
