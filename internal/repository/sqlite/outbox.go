package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/recruitflow/api/internal/models"
	"github.com/recruitflow/api/internal/outbox"
)

const outboxColumns = `id, event_type, dedupe_key, payload, status, attempts, next_attempt_at, last_error, created, updated`

func scanOutboxItem(row interface{ Scan(...any) error }) (*models.OutboxItem, error) {
	var item models.OutboxItem
	var payloadJSON string
	var lastError sql.NullString
	var nextAttempt, created, updated int64
	err := row.Scan(&item.ID, &item.EventType, &item.DedupeKey, &payloadJSON, &item.Status, &item.Attempts, &nextAttempt, &lastError, &created, &updated)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(payloadJSON), &item.Payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	item.LastError = lastError.String
	item.NextAttemptAt = fromTS(nextAttempt)
	item.Created = fromTS(created)
	item.Updated = fromTS(updated)

	return &item, nil
}

func (r *SQLiteRepo) Enqueue(ctx context.Context, item *models.OutboxItem) (*models.OutboxItem, error) {
	if item == nil {
		return nil, fmt.Errorf("outbox item is nil")
	}

	payloadJSON, err := json.Marshal(item.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	n := now()
	_, err = r.conn.Exec(ctx,
		`INSERT INTO webhook_outbox (id, event_type, dedupe_key, payload, status, attempts, next_attempt_at, created, updated)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)
		 ON CONFLICT(dedupe_key) DO UPDATE SET updated = excluded.updated`,
		item.ID, item.EventType, item.DedupeKey, string(payloadJSON), item.Status, ts(item.NextAttemptAt), n, n)
	if err != nil {
		return nil, err
	}

	row := r.conn.QueryRow(ctx,
		`SELECT `+outboxColumns+` FROM webhook_outbox WHERE dedupe_key = ?`, item.DedupeKey)
	return scanOutboxItem(row)
}

func (r *SQLiteRepo) ListPending(ctx context.Context, limit int) ([]models.OutboxItem, error) {
	return r.listOutbox(ctx,
		`SELECT `+outboxColumns+` FROM webhook_outbox WHERE status = 'pending' ORDER BY created, id LIMIT ?`, limit)
}

func (r *SQLiteRepo) ListDue(ctx context.Context, nowTime time.Time, limit int) ([]models.OutboxItem, error) {
	return r.listOutbox(ctx,
		`SELECT `+outboxColumns+` FROM webhook_outbox WHERE status = 'pending' AND next_attempt_at <= ? ORDER BY next_attempt_at, id LIMIT ?`,
		ts(nowTime), limit)
}

func (r *SQLiteRepo) listOutbox(ctx context.Context, query string, args ...any) ([]models.OutboxItem, error) {
	rows, err := r.conn.QueryRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.OutboxItem{}
	for rows.Next() {
		item, err := scanOutboxItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	return items, rows.Err()
}

func (r *SQLiteRepo) ClaimDue(ctx context.Context, id string, attempts int, nowTime, leaseUntil time.Time) (bool, error) {
	res, err := r.conn.Exec(ctx,
		`UPDATE webhook_outbox SET next_attempt_at = ?, updated = ?
		 WHERE id = ? AND status = 'pending' AND attempts = ? AND next_attempt_at <= ?`,
		ts(leaseUntil), ts(nowTime), id, attempts, ts(nowTime))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

func (r *SQLiteRepo) MarkSent(ctx context.Context, id string, nowTime time.Time) error {
	_, err := r.conn.Exec(ctx,
		`UPDATE webhook_outbox SET status = 'sent', last_error = NULL, updated = ? WHERE id = ?`,
		ts(nowTime), id)
	return err
}

func (r *SQLiteRepo) MarkRetry(ctx context.Context, id, errorMessage string, nowTime time.Time) error {
	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var attempts int
	if err := tx.QueryRowContext(ctx,
		`SELECT attempts FROM webhook_outbox WHERE id = ?`, id).Scan(&attempts); err != nil {
		return err
	}

	attempts++
	if attempts >= outbox.MaxAttempts {
		_, err = tx.ExecContext(ctx,
			`UPDATE webhook_outbox SET status = 'failed', attempts = ?, last_error = ?, updated = ? WHERE id = ?`,
			attempts, errorMessage, ts(nowTime), id)
	} else {
		next := nowTime.Add(outbox.RetryDelay(attempts))
		_, err = tx.ExecContext(ctx,
			`UPDATE webhook_outbox SET attempts = ?, last_error = ?, next_attempt_at = ?, updated = ? WHERE id = ?`,
			attempts, errorMessage, ts(next), ts(nowTime), id)
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}
