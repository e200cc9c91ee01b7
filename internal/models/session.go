// Package models defines core data structures for sessions, turns, and chunks.
package models

import "time"

// SessionStatus is the lifecycle state of an indexing/chat session.
type SessionStatus string

const (
	// StatusPreparing means the background indexing job is still running.
	StatusPreparing SessionStatus = "preparing"
	// StatusReady means indexing finished and the session accepts chat.
	StatusReady SessionStatus = "ready"
	// StatusError means indexing failed; the session never becomes usable.
	StatusError SessionStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusPreparing, StatusReady, StatusError:
		return true
	}
	return false
}

// TurnRole identifies who produced a history turn.
type TurnRole string

const (
	RoleUser  TurnRole = "user"
	RoleModel TurnRole = "model"
)

// Turn is one entry in a session's conversation history.
// Turns are appended in user/model pairs; ordering is append order.
type Turn struct {
	Role    TurnRole `json:"role"`
	Content string   `json:"content"`
}

// Session is the unit of indexing plus conversation state for one repository.
// Status only moves preparing->ready or preparing->error, never backward.
type Session struct {
	ID                string        `json:"id"`
	Status            SessionStatus `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
	RepositorySummary string        `json:"repository_summary,omitempty"`
	AISuggestions     []string      `json:"ai_suggestions,omitempty"`
	History           []Turn        `json:"history"`
}
