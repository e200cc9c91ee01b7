// Package chat drives the per-connection question/answer loop over an
// indexed session.
package chat

import (
	"context"
	"strings"

	"github.com/repolens/repolens/internal/genai"
	"github.com/repolens/repolens/internal/models"
	"github.com/repolens/repolens/internal/retrieval"
	"github.com/repolens/repolens/internal/store"
	"go.uber.org/zap"
)

// Conn is the transport the controller talks through. ReadQuestion blocks
// until the client sends the next question; an error means the connection
// is gone and the loop should end.
type Conn interface {
	ReadQuestion() (string, error)
	WriteToken(content string) error
	WriteDone() error
	WriteError(message string) error
}

// Retriever maps a question to its supporting context within a session.
type Retriever interface {
	Retrieve(ctx context.Context, sessionID, question string) (*retrieval.Context, error)
}

// Controller runs the chat loop for one connection. Each turn re-reads the
// session so history appended by other connections is visible, streams the
// answer token by token, and persists the user/model pair only once the
// full answer has been produced and delivered.
type Controller struct {
	store     store.Store
	retriever Retriever
	generator genai.Generator
	logger    *zap.Logger
}

// NewController creates a chat controller.
func NewController(st store.Store, retriever Retriever, generator genai.Generator, logger *zap.Logger) *Controller {
	return &Controller{store: st, retriever: retriever, generator: generator, logger: logger}
}

// Run serves questions on conn until the client disconnects or ctx is
// cancelled. A failed turn emits one error event and appends nothing; the
// loop then waits for the next question.
func (c *Controller) Run(ctx context.Context, sessionID string, conn Conn) {
	for {
		question, err := conn.ReadQuestion()
		if err != nil {
			c.logger.Debug("chat connection closed",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			return
		}
		question = strings.TrimSpace(question)
		if question == "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if !c.answer(ctx, sessionID, question, conn) {
			return
		}
	}
}

// answer handles one turn. It returns false when the connection is no
// longer writable and the loop should stop.
func (c *Controller) answer(ctx context.Context, sessionID, question string, conn Conn) bool {
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		c.logger.Warn("session lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		return conn.WriteError("session not found") == nil
	}

	rc, err := c.retriever.Retrieve(ctx, sessionID, question)
	if err != nil {
		c.logger.Error("retrieval failed", zap.String("session_id", sessionID), zap.Error(err))
		return conn.WriteError("failed to search the repository index") == nil
	}

	stream, err := c.generator.GenerateStream(ctx, BuildPrompt(session, rc, question))
	if err != nil {
		c.logger.Error("generation failed", zap.String("session_id", sessionID), zap.Error(err))
		return conn.WriteError("failed to generate an answer") == nil
	}

	var answer strings.Builder
	for tok := range stream {
		if tok.Err != nil {
			c.logger.Error("stream failed", zap.String("session_id", sessionID), zap.Error(tok.Err))
			drain(stream)
			return conn.WriteError("answer generation was interrupted") == nil
		}
		if err := conn.WriteToken(tok.Content); err != nil {
			// Client is gone mid-answer: consume the rest of the stream
			// and persist nothing.
			drain(stream)
			c.logger.Debug("client dropped mid-stream", zap.String("session_id", sessionID), zap.Error(err))
			return false
		}
		answer.WriteString(tok.Content)
	}

	if err := conn.WriteDone(); err != nil {
		return false
	}

	turns := []models.Turn{
		{Role: models.RoleUser, Content: question},
		{Role: models.RoleModel, Content: answer.String()},
	}
	if err := c.store.AppendHistory(ctx, sessionID, turns); err != nil {
		c.logger.Error("failed to append history", zap.String("session_id", sessionID), zap.Error(err))
		return conn.WriteError("failed to save the conversation") == nil
	}
	return true
}

func drain(stream <-chan genai.StreamToken) {
	for range stream {
	}
}
