package collectors

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/semdex/internal/core/domain"
	"github.com/custodia-labs/semdex/internal/core/ports/driven"
)

var _ driven.Collector = (*ConversationsCollector)(nil)

// ConversationsCollector reads conversational transcripts turn by turn.
// The embeddable text pairs the user message with a bounded preview of
// the assistant reply, so the record captures the exchange without
// embedding entire long answers.
type ConversationsCollector struct {
	db     *sql.DB
	opts   Options
	logger *zap.Logger
}

func NewConversationsCollector(db *sql.DB, opts Options, logger *zap.Logger) *ConversationsCollector {
	return &ConversationsCollector{db: db, opts: opts, logger: logger}
}

func (c *ConversationsCollector) Domain() domain.Domain {
	return domain.DomainConversations
}

func (c *ConversationsCollector) Collect(ctx context.Context, scope string) ([]domain.Record, domain.CollectorStats, error) {
	query := "SELECT session_id, turn_index, user_text, assistant_text, created_at FROM conversation_turns"
	var args []any
	if scope != "" {
		query += " WHERE session_id = ?"
		args = append(args, scope)
	}
	query += " ORDER BY session_id, turn_index"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.CollectorStats{}, fmt.Errorf("%w: querying conversation turns: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	b := newBuilder(c.opts.MinContentLength)
	sessions := make(map[string]struct{})

	for rows.Next() {
		var sessionID string
		var turnIndex int
		var userText string
		var assistantText sql.NullString
		var createdAt sql.NullTime
		if err := rows.Scan(&sessionID, &turnIndex, &userText, &assistantText, &createdAt); err != nil {
			c.logger.Warn("skipping malformed conversation turn", zap.Error(err))
			b.malformed()
			continue
		}
		if sessionID == "" || userText == "" {
			c.logger.Warn("skipping turn with empty session or user text",
				zap.String("session_id", sessionID),
				zap.Int("turn_index", turnIndex))
			b.malformed()
			continue
		}
		sessions[sessionID] = struct{}{}

		text := "[USER]: " + userText
		if assistantText.Valid && assistantText.String != "" {
			text += "\n[ASSISTANT]: " + truncate(assistantText.String, c.opts.ReplyPreviewChars)
		}

		metadata := map[string]any{
			"session_id": sessionID,
		}
		if createdAt.Valid {
			metadata["created_at"] = createdAt.Time.UTC().Format(time.RFC3339)
		}

		identity := domain.NewIdentity(
			"session_id", sessionID,
			"turn_index", strconv.Itoa(turnIndex),
		)
		b.add(domain.DomainConversations, identity, text, metadata)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.CollectorStats{}, fmt.Errorf("iterating conversation turns: %w", err)
	}

	records, stats := b.finish(len(sessions))
	return records, stats, nil
}
