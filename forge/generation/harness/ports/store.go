package harnessports

import (
	"context"
	"time"
)

// Turn is one committed transcript message as persisted.
type Turn struct {
	Ordinal   int
	Speaker   string
	Role      string // "system" | "agent" | "tool-result"
	Content   string
	CreatedAt time.Time
}

// ConversationStore persists conversation messages and tool artifacts.
type ConversationStore interface {
	SaveTurn(ctx context.Context, conversationID string, turn Turn) error
	LoadContext(ctx context.Context, conversationID string, k int) ([]Turn, error) // last-k turns, oldest first
	AppendToolArtifact(ctx context.Context, conversationID, name string, payload []byte) error
}
