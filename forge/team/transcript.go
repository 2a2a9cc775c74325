package team

import (
	"strings"
	"sync"
	"time"
)

// Role tags a transcript message.
type Role string

const (
	RoleSystem     Role = "system"
	RoleAgent      Role = "agent"
	RoleToolResult Role = "tool-result"
)

// Message is one committed transcript entry. Messages are never modified
// after they are appended.
type Message struct {
	Ordinal   int
	Speaker   string
	Role      Role
	Text      string
	CreatedAt time.Time
}

// Transcript is the append-only log of one conversation. Ordinals start at 0
// and increase by one per message.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
	now      func() time.Time
}

func NewTranscript() *Transcript {
	return &Transcript{now: time.Now}
}

// Append commits a message and returns it with its ordinal.
func (t *Transcript) Append(speaker string, role Role, text string) Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := Message{
		Ordinal:   len(t.messages),
		Speaker:   speaker,
		Role:      role,
		Text:      text,
		CreatedAt: t.now().UTC(),
	}
	t.messages = append(t.messages, m)
	return m
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Messages returns a snapshot of the log.
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// LastByRole returns the most recent message with the given role.
func (t *Transcript) LastByRole(role Role) (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].Role == role {
			return t.messages[i], true
		}
	}
	return Message{}, false
}

// LastBySpeaker returns the most recent message from speaker.
func (t *Transcript) LastBySpeaker(speaker string) (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].Speaker == speaker {
			return t.messages[i], true
		}
	}
	return Message{}, false
}

// AgentText joins every agent reply, in order, for extraction.
func (t *Transcript) AgentText() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var b strings.Builder
	for _, m := range t.messages {
		if m.Role != RoleAgent {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Text)
	}
	return b.String()
}

// Render formats the log as "speaker: text" blocks, the form selection
// prompts and transcript exports use.
func Render(messages []Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Speaker)
		b.WriteString(": ")
		b.WriteString(m.Text)
	}
	return b.String()
}
