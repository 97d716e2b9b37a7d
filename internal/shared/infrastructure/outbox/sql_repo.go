package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

const messageColumns = `id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
	payload, metadata, created_at, published_at, next_retry_at, retry_count,
	last_error, dead_lettered_at, dead_letter_reason`

// SQLRepository implements Repository on any database.Connection.
type SQLRepository struct {
	conn database.Connection
	now  func() time.Time
}

// NewSQLRepository creates a new outbox repository.
func NewSQLRepository(conn database.Connection) *SQLRepository {
	return &SQLRepository{
		conn: conn,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Save stores a new outbox message.
func (r *SQLRepository) Save(ctx context.Context, msg *Message) error {
	return r.insert(ctx, database.ExecutorFromContext(ctx, r.conn), msg)
}

// SaveBatch stores multiple outbox messages atomically. Inside a unit of
// work it joins the caller's transaction.
func (r *SQLRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}

	if tx := database.TxFromContext(ctx); tx != nil {
		for _, msg := range msgs {
			if err := r.insert(ctx, tx, msg); err != nil {
				return err
			}
		}
		return nil
	}

	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := r.insert(ctx, tx, msg); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *SQLRepository) insert(ctx context.Context, exec database.Executor, msg *Message) error {
	metadata := string(msg.Metadata)
	if metadata == "" {
		metadata = "{}"
	}
	err := exec.QueryRow(ctx, `
		INSERT INTO outbox (
			event_id, aggregate_type, aggregate_id, event_type, routing_key,
			payload, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		msg.EventID.String(),
		msg.AggregateType,
		msg.AggregateID.String(),
		msg.EventType,
		msg.RoutingKey,
		string(msg.Payload),
		metadata,
		msg.CreatedAt,
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("insert outbox message %s: %w", msg.RoutingKey, err)
	}
	return nil
}

// GetUnpublished retrieves publishable messages in insertion order.
func (r *SQLRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+messageColumns+`
		FROM outbox
		WHERE published_at IS NULL
		  AND dead_lettered_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY id
		LIMIT $2`,
		r.now(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// MarkPublished marks a message as successfully published.
func (r *SQLRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.conn.Exec(ctx,
		`UPDATE outbox SET published_at = $1, dead_lettered_at = NULL WHERE id = $2`,
		r.now(), id,
	)
	return err
}

// MarkFailed records a publish failure with error message.
func (r *SQLRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	_, err := r.conn.Exec(ctx, `
		UPDATE outbox
		SET retry_count = retry_count + 1,
			last_error = $1,
			next_retry_at = $2
		WHERE id = $3`,
		errMsg, nextRetryAt, id,
	)
	return err
}

// MarkDead marks a message as dead-lettered.
func (r *SQLRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := r.conn.Exec(ctx, `
		UPDATE outbox
		SET dead_lettered_at = $1,
			dead_letter_reason = $2
		WHERE id = $3`,
		r.now(), reason, id,
	)
	return err
}

// DeleteOld removes successfully published messages older than the retention period.
func (r *SQLRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := r.now().AddDate(0, 0, -olderThanDays)
	result, err := r.conn.Exec(ctx,
		`DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanMessages(rows database.Rows) ([]*Message, error) {
	var messages []*Message

	for rows.Next() {
		var (
			msg                         Message
			eventID, aggregateID        string
			payload, metadata           string
			createdAt                   database.Time
			publishedAt, nextRetryAt    database.Time
			deadLetteredAt              database.Time
			lastError, deadLetterReason sql.NullString
		)
		err := rows.Scan(
			&msg.ID,
			&eventID,
			&msg.AggregateType,
			&aggregateID,
			&msg.EventType,
			&msg.RoutingKey,
			&payload,
			&metadata,
			&createdAt,
			&publishedAt,
			&nextRetryAt,
			&msg.RetryCount,
			&lastError,
			&deadLetteredAt,
			&deadLetterReason,
		)
		if err != nil {
			return nil, err
		}
		if msg.EventID, err = uuid.Parse(eventID); err != nil {
			return nil, fmt.Errorf("outbox %d: invalid event id: %w", msg.ID, err)
		}
		if msg.AggregateID, err = uuid.Parse(aggregateID); err != nil {
			return nil, fmt.Errorf("outbox %d: invalid aggregate id: %w", msg.ID, err)
		}
		msg.Payload = json.RawMessage(payload)
		msg.Metadata = json.RawMessage(metadata)
		msg.CreatedAt = createdAt.Time
		msg.PublishedAt = publishedAt.Ptr()
		msg.NextRetryAt = nextRetryAt.Ptr()
		msg.DeadLetteredAt = deadLetteredAt.Ptr()
		if lastError.Valid {
			msg.LastError = &lastError.String
		}
		if deadLetterReason.Valid {
			msg.DeadLetterReason = &deadLetterReason.String
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}
