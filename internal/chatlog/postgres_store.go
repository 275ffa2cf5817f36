package chatlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore persists entries in the chat_log_entries table.
type PostgresStore struct {
	db     querier
	tracer trace.Tracer
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("chatlog: pgx pool required")
	}
	return newPostgresStoreWithQuerier(pool)
}

func newPostgresStoreWithQuerier(db querier) *PostgresStore {
	return &PostgresStore{db: db, tracer: otel.Tracer("chatmod.internal.chatlog.postgres")}
}

const entryColumns = `id, conversation_id, speaker, message, viewer_response, verdict, outcome, cleared, created_at`

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	entry, err := prepare(entry)
	if err != nil {
		return err
	}
	verdict, err := json.Marshal(entry.Verdict)
	if err != nil {
		return fmt.Errorf("chatlog: marshal verdict: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "chatlog.postgres.append")
	defer span.End()

	query := `
		INSERT INTO chat_log_entries (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := s.db.Exec(ctx, query,
		entry.ID, entry.ConversationID, entry.Speaker, entry.Message, entry.ViewerResponse,
		verdict, entry.Outcome, entry.Cleared, entry.Timestamp,
	); err != nil {
		span.RecordError(err)
		return fmt.Errorf("chatlog: insert entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDay(ctx context.Context, conversationID string, day time.Time) ([]Entry, error) {
	ctx, span := s.tracer.Start(ctx, "chatlog.postgres.list_day")
	defer span.End()

	start := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	query := `
		SELECT ` + entryColumns + `
		FROM chat_log_entries
		WHERE conversation_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at
	`
	entries, err := s.query(ctx, query, conversationID, start, start.AddDate(0, 0, 1))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return entries, nil
}

func (s *PostgresStore) Recent(ctx context.Context, conversationID string, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	ctx, span := s.tracer.Start(ctx, "chatlog.postgres.recent")
	defer span.End()

	query := `
		SELECT ` + entryColumns + `
		FROM chat_log_entries
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	entries, err := s.query(ctx, query, conversationID, int32(n))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]Entry, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("chatlog: query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var verdict []byte
		if err := rows.Scan(
			&entry.ID, &entry.ConversationID, &entry.Speaker, &entry.Message, &entry.ViewerResponse,
			&verdict, &entry.Outcome, &entry.Cleared, &entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("chatlog: scan entry: %w", err)
		}
		if len(verdict) > 0 {
			if err := json.Unmarshal(verdict, &entry.Verdict); err != nil {
				return nil, fmt.Errorf("chatlog: decode verdict: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
