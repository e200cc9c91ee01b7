package genai

import "context"

// StaticGenerator is a canned Generator for tests and offline runs.
// Generate returns Response (or Err); GenerateStream emits Tokens in order.
type StaticGenerator struct {
	Response string
	Tokens   []string
	Err      error
	// Calls counts Generate and GenerateStream invocations.
	Calls int
}

// Generate returns the canned response.
func (g *StaticGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.Calls++
	if g.Err != nil {
		return "", g.Err
	}
	return g.Response, nil
}

// GenerateStream emits the canned tokens and closes the channel.
func (g *StaticGenerator) GenerateStream(ctx context.Context, prompt string) (<-chan StreamToken, error) {
	g.Calls++
	if g.Err != nil {
		return nil, g.Err
	}
	ch := make(chan StreamToken, len(g.Tokens))
	for _, t := range g.Tokens {
		ch <- StreamToken{Content: t}
	}
	close(ch)
	return ch, nil
}
