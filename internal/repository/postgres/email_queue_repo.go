package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"guestlist/internal/domain"
)

// enqueueChunkSize keeps a single INSERT well below Postgres' bind parameter limit.
const enqueueChunkSize = 1000

type emailQueueRepository struct {
	DB *sql.DB
}

func NewEmailQueueRepository(db *sql.DB) domain.EmailQueueRepository {
	return &emailQueueRepository{DB: db}
}

const queueInsertColumns = `mailing_id, event_id, to_email, to_name, subject, html, plain_text, status, error, created_at, sent_at`

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (r *emailQueueRepository) Enqueue(ctx context.Context, items []*domain.EmailQueueItem) error {
	for start := 0; start < len(items); start += enqueueChunkSize {
		end := start + enqueueChunkSize
		if end > len(items) {
			end = len(items)
		}
		if err := r.insert(ctx, items[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *emailQueueRepository) insert(ctx context.Context, items []*domain.EmailQueueItem) error {
	const cols = 11
	values := make([]string, 0, len(items))
	args := make([]any, 0, len(items)*cols)
	for i, it := range items {
		ph := make([]string, cols)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", i*cols+j+1)
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
		args = append(args,
			it.MailingID, it.EventID, it.ToEmail, it.ToName, it.Subject, it.HTML, it.PlainText,
			string(it.Status), nullableString(it.Error), it.CreatedAt, nullableTime(it.SentAt),
		)
	}
	query := `INSERT INTO email_queue (` + queueInsertColumns + `) VALUES ` + strings.Join(values, ", ")
	_, err := conn(ctx, r.DB).ExecContext(ctx, query, args...)
	return err
}

func (r *emailQueueRepository) ClaimPending(ctx context.Context, limit int, claimedAt, staleBefore time.Time) ([]*domain.EmailQueueItem, error) {
	query := `
		WITH claimable AS (
			SELECT id FROM email_queue
			WHERE status = 'pending' AND (claimed_at IS NULL OR claimed_at < $2)
			ORDER BY created_at ASC, id ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE email_queue q SET claimed_at = $1
		FROM claimable
		WHERE q.id = claimable.id
		RETURNING q.id, q.mailing_id, q.event_id, q.to_email, q.to_name, q.subject, q.html, q.plain_text, q.status, q.error, q.created_at, q.sent_at
	`
	rows, err := conn(ctx, r.DB).QueryContext(ctx, query, claimedAt, staleBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*domain.EmailQueueItem, 0)
	for rows.Next() {
		it := &domain.EmailQueueItem{}
		var errMsg sql.NullString
		var sentAt sql.NullTime
		if err := rows.Scan(&it.ID, &it.MailingID, &it.EventID, &it.ToEmail, &it.ToName, &it.Subject, &it.HTML, &it.PlainText,
			&it.Status, &errMsg, &it.CreatedAt, &sentAt); err != nil {
			return nil, err
		}
		if errMsg.Valid {
			it.Error = &errMsg.String
		}
		if sentAt.Valid {
			it.SentAt = &sentAt.Time
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// RETURNING does not keep the subquery order.
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (r *emailQueueRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	query := `UPDATE email_queue SET status = 'sent', sent_at = $1, error = NULL WHERE id = $2 AND status = 'pending'`
	return r.transition(ctx, query, sentAt, id)
}

func (r *emailQueueRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	query := `UPDATE email_queue SET status = 'failed', error = $1 WHERE id = $2 AND status = 'pending'`
	return r.transition(ctx, query, errMsg, id)
}

func (r *emailQueueRepository) transition(ctx context.Context, query string, args ...any) error {
	result, err := conn(ctx, r.DB).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *emailQueueRepository) ListEmailsByMailing(ctx context.Context, mailingID string) ([]string, error) {
	query := `SELECT DISTINCT to_email FROM email_queue WHERE mailing_id = $1`
	rows, err := conn(ctx, r.DB).QueryContext(ctx, query, mailingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	emails := make([]string, 0)
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

func (r *emailQueueRepository) StatsByMailing(ctx context.Context, mailingID string) (domain.QueueStats, error) {
	query := `SELECT status, COUNT(*) FROM email_queue WHERE mailing_id = $1 GROUP BY status`
	rows, err := conn(ctx, r.DB).QueryContext(ctx, query, mailingID)
	if err != nil {
		return domain.QueueStats{}, err
	}
	defer rows.Close()
	var stats domain.QueueStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return domain.QueueStats{}, err
		}
		switch domain.QueueStatus(status) {
		case domain.QueuePending:
			stats.Pending = count
		case domain.QueueSent:
			stats.Sent = count
		case domain.QueueFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}
