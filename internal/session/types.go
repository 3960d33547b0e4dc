// Package session persists chat sessions and their message history in
// PostgreSQL. Each session is an isolated conversation: messages carry a
// per-session sequence number and history queries never cross sessions.
package session

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the requested session does not exist.
var ErrNotFound = errors.New("session not found")

// Message roles. The store rejects anything else.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// titleLimit is the maximum rune length of a derived session title.
const titleLimit = 28

// Session is one conversation.
type Session struct {
	ID        uuid.UUID
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one turn in a session.
type Message struct {
	ID             int64
	SessionID      uuid.UUID
	Role           string
	Content        string
	SequenceNumber int
	CreatedAt      time.Time
}

// Exchange pairs a user question with the assistant's answer.
type Exchange struct {
	Question string
	Answer   string
}

// DeriveTitle builds a session title from its first user message:
// whitespace collapsed and truncated to a short label.
func DeriveTitle(firstMessage string) string {
	title := strings.Join(strings.Fields(firstMessage), " ")
	if title == "" {
		return "New session"
	}
	runes := []rune(title)
	if len(runes) > titleLimit {
		title = string(runes[:titleLimit])
	}
	return title
}
