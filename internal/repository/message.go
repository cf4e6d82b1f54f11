package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/model"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Append persists a message with its already-assigned sequence number.
// The UNIQUE (chat_id, seq) constraint is the storage-level backstop for the
// sequencer: a duplicate seq is a bug upstream and surfaces as an error here.
func (r *MessageRepository) Append(ctx context.Context, m *model.ChatMessage) error {
	defer logger.DeferLogDuration("msg.Append", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, chat_id, sender_id, content, language_code, seq, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ChatID, m.SenderID, m.Content, m.LanguageCode, m.Seq, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Append: %w", err)
	}
	return nil
}

// LastSeq returns the highest assigned sequence number for a chat, 0 if none.
func (r *MessageRepository) LastSeq(ctx context.Context, chatID string) (int64, error) {
	defer logger.DeferLogDuration("msg.LastSeq", time.Now())()
	var seq int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE chat_id = $1`, chatID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("msgRepo.LastSeq: %w", err)
	}
	return seq, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.ChatMessage, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.ChatMessage{}
	sender := &model.UserPublic{}
	err := r.pool.QueryRow(ctx,
		`SELECT m.id, m.chat_id, m.sender_id, m.content, m.language_code, m.seq, m.created_at,
		        u.id, u.username, u.language_code
		 FROM messages m
		 JOIN users u ON u.id = m.sender_id
		 WHERE m.id = $1`, id,
	).Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &m.LanguageCode, &m.Seq, &m.CreatedAt,
		&sender.ID, &sender.Username, &sender.LanguageCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	m.Sender = sender
	return m, nil
}

// GetChatMessages returns messages ordered by seq (ascending from afterSeq).
func (r *MessageRepository) GetChatMessages(ctx context.Context, chatID string, afterSeq int64, limit int) ([]model.ChatMessage, error) {
	defer logger.DeferLogDuration("msg.GetChatMessages", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT m.id, m.chat_id, m.sender_id, m.content, m.language_code, m.seq, m.created_at,
		        u.id, u.username, u.language_code
		 FROM messages m
		 JOIN users u ON u.id = m.sender_id
		 WHERE m.chat_id = $1 AND m.seq > $2
		 ORDER BY m.seq
		 LIMIT $3`, chatID, afterSeq, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GetChatMessages query: %w", err)
	}
	defer rows.Close()

	messages := make([]model.ChatMessage, 0, limit)
	for rows.Next() {
		var m model.ChatMessage
		sender := &model.UserPublic{}
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &m.LanguageCode, &m.Seq, &m.CreatedAt,
			&sender.ID, &sender.Username, &sender.LanguageCode); err != nil {
			return nil, fmt.Errorf("msgRepo.GetChatMessages scan: %w", err)
		}
		m.Sender = sender
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.GetChatMessages rows: %w", err)
	}
	return messages, nil
}
