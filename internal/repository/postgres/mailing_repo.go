package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"guestlist/internal/domain"
)

type mailingRepository struct {
	DB *sql.DB
}

func NewMailingRepository(db *sql.DB) domain.MailingRepository {
	return &mailingRepository{DB: db}
}

const mailingColumns = `id, event_id, subject, html, plain_text, filter_statuses, filter_category, status, sent_at, created_at, updated_at`

func scanMailing(row rowScanner) (*domain.Mailing, error) {
	m := &domain.Mailing{}
	var statuses []string
	var sentAt sql.NullTime
	if err := row.Scan(&m.ID, &m.EventID, &m.Subject, &m.HTML, &m.PlainText, pq.Array(&statuses), &m.Filter.Category, &m.Status, &sentAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Filter.Statuses = make([]domain.ParticipantStatus, len(statuses))
	for i, s := range statuses {
		m.Filter.Statuses[i] = domain.ParticipantStatus(s)
	}
	if sentAt.Valid {
		m.SentAt = &sentAt.Time
	}
	return m, nil
}

func statusStrings(statuses []domain.ParticipantStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *mailingRepository) Create(ctx context.Context, m *domain.Mailing) error {
	query := `
		INSERT INTO mailings (event_id, subject, html, plain_text, filter_statuses, filter_category, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	return conn(ctx, r.DB).QueryRowContext(ctx, query,
		m.EventID, m.Subject, m.HTML, m.PlainText, pq.Array(statusStrings(m.Filter.Statuses)), m.Filter.Category,
		string(m.Status), m.CreatedAt, m.UpdatedAt,
	).Scan(&m.ID)
}

func (r *mailingRepository) GetByID(ctx context.Context, eventID, id string) (*domain.Mailing, error) {
	query := `SELECT ` + mailingColumns + ` FROM mailings WHERE event_id = $1 AND id = $2`
	m, err := scanMailing(conn(ctx, r.DB).QueryRowContext(ctx, query, eventID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidUUID(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *mailingRepository) ListByEventID(ctx context.Context, eventID string) ([]*domain.Mailing, error) {
	query := `SELECT ` + mailingColumns + ` FROM mailings WHERE event_id = $1 ORDER BY created_at DESC`
	rows, err := conn(ctx, r.DB).QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	mailings := make([]*domain.Mailing, 0)
	for rows.Next() {
		m, err := scanMailing(rows)
		if err != nil {
			return nil, err
		}
		mailings = append(mailings, m)
	}
	return mailings, rows.Err()
}

// Update only touches drafts so a concurrent send cannot be edited underneath.
func (r *mailingRepository) Update(ctx context.Context, m *domain.Mailing) error {
	query := `
		UPDATE mailings
		SET subject = $1, html = $2, plain_text = $3, filter_statuses = $4, filter_category = $5, updated_at = $6
		WHERE id = $7 AND status = 'draft'
	`
	result, err := conn(ctx, r.DB).ExecContext(ctx, query,
		m.Subject, m.HTML, m.PlainText, pq.Array(statusStrings(m.Filter.Statuses)), m.Filter.Category, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrMailingNotDraft
	}
	return nil
}

func (r *mailingRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	query := `UPDATE mailings SET status = 'sent', sent_at = $1, updated_at = $1 WHERE id = $2 AND status = 'draft'`
	result, err := conn(ctx, r.DB).ExecContext(ctx, query, sentAt, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrMailingNotDraft
	}
	return nil
}
