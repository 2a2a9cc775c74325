package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
)

// LibSQLConversationStore persists transcripts into the conversation_messages and
// tool_artifacts tables created by forge/db migrations.
type LibSQLConversationStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewLibSQLConversationStore creates a new LibSQL conversation store.
func NewLibSQLConversationStore(db *sql.DB) *LibSQLConversationStore {
	return &LibSQLConversationStore{db: db, now: time.Now}
}

// SaveTurn upserts one message by (conversation, ordinal).
func (s *LibSQLConversationStore) SaveTurn(ctx context.Context, conversationID string, turn ports.Turn) error {
	created := turn.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	const query = `
		INSERT OR REPLACE INTO conversation_messages
			(conversation_id, ordinal, speaker, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query,
		conversationID, turn.Ordinal, turn.Speaker, turn.Role, turn.Content, created.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("failed to save turn %d: %w", turn.Ordinal, err)
	}
	return nil
}

// LoadContext loads the last k messages of a conversation, oldest first. k <= 0 loads all.
func (s *LibSQLConversationStore) LoadContext(ctx context.Context, conversationID string, k int) ([]ports.Turn, error) {
	if k <= 0 {
		k = -1 // sqlite: no limit
	}

	const query = `
		SELECT ordinal, speaker, role, content, created_at FROM conversation_messages
		WHERE conversation_id = ?
		ORDER BY ordinal DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []ports.Turn
	for rows.Next() {
		var (
			t       ports.Turn
			created string
		)
		if err := rows.Scan(&t.Ordinal, &t.Speaker, &t.Role, &t.Content, &created); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// AppendToolArtifact records the raw payload of one tool invocation.
func (s *LibSQLConversationStore) AppendToolArtifact(ctx context.Context, conversationID, name string, payload []byte) error {
	const query = `
		INSERT INTO tool_artifacts (conversation_id, tool_name, payload, created_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, conversationID, name, string(payload), s.now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to append tool artifact for %s: %w", name, err)
	}
	return nil
}

// CountToolArtifacts returns how many tool payloads a conversation recorded.
func (s *LibSQLConversationStore) CountToolArtifacts(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tool_artifacts WHERE conversation_id = ?", conversationID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count tool artifacts: %w", err)
	}
	return n, nil
}

var _ ports.ConversationStore = (*LibSQLConversationStore)(nil)
