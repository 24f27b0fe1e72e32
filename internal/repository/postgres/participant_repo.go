package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"guestlist/internal/domain"
)

type participantRepository struct {
	DB *sql.DB
}

func NewParticipantRepository(db *sql.DB) domain.ParticipantRepository {
	return &participantRepository{
		DB: db,
	}
}

const participantColumns = `id, event_id, name, email, category, status, queue_position, token, extra_fields, created_at, updated_at`

func scanParticipant(row rowScanner) (*domain.Participant, error) {
	p := &domain.Participant{}
	var posNull sql.NullInt64
	var extra []byte
	if err := row.Scan(&p.ID, &p.EventID, &p.Name, &p.Email, &p.Category, &p.Status, &posNull, &p.Token, &extra, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if posNull.Valid {
		v := int(posNull.Int64)
		p.QueuePosition = &v
	}
	if len(extra) > 0 {
		p.ExtraFields = extra
	}
	return p, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (r *participantRepository) Create(ctx context.Context, p *domain.Participant) error {
	query := `
		INSERT INTO participants (event_id, name, email, category, status, queue_position, token, extra_fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	err := conn(ctx, r.DB).QueryRowContext(ctx, query,
		p.EventID, p.Name, p.Email, p.Category, string(p.Status), nullableInt(p.QueuePosition),
		p.Token, nullableJSON(p.ExtraFields), p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *participantRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Participant, error) {
	p, err := scanParticipant(conn(ctx, r.DB).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidUUID(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *participantRepository) GetByID(ctx context.Context, eventID, id string) (*domain.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE event_id = $1 AND id = $2`
	return r.getOne(ctx, query, eventID, id)
}

func (r *participantRepository) GetByToken(ctx context.Context, token string) (*domain.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE token = $1`
	return r.getOne(ctx, query, token)
}

func (r *participantRepository) GetByEmail(ctx context.Context, eventID, email string) (*domain.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE event_id = $1 AND email = $2`
	return r.getOne(ctx, query, eventID, email)
}

// filterClause builds the WHERE clause for an event's participants. Placeholders start at $1.
func filterClause(eventID string, filter domain.ParticipantFilter) (string, []any) {
	clauses := []string{"event_id = $1"}
	args := []any{eventID}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		clauses = append(clauses, fmt.Sprintf("category = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d)", len(args), len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func (r *participantRepository) List(ctx context.Context, eventID string, filter domain.ParticipantFilter, params domain.PaginationParams) ([]*domain.Participant, int, error) {
	where, args := filterClause(eventID, filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM participants WHERE ` + where
	if err := conn(ctx, r.DB).QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`
		SELECT %s
		FROM participants
		WHERE %s
		ORDER BY created_at ASC, id ASC
		LIMIT $%d OFFSET $%d
	`, participantColumns, where, n+1, n+2)
	args = append(args, params.PageSize, params.Offset())
	ps, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return ps, total, nil
}

func (r *participantRepository) ListAll(ctx context.Context, eventID string, filter domain.ParticipantFilter) ([]*domain.Participant, error) {
	where, args := filterClause(eventID, filter)
	query := `SELECT ` + participantColumns + ` FROM participants WHERE ` + where + ` ORDER BY created_at ASC, id ASC`
	return r.query(ctx, query, args...)
}

func (r *participantRepository) ListWaitlist(ctx context.Context, eventID string) ([]*domain.Participant, error) {
	query := `
		SELECT ` + participantColumns + `
		FROM participants
		WHERE event_id = $1 AND status = 'waitlisted'
		ORDER BY queue_position ASC
	`
	return r.query(ctx, query, eventID)
}

func (r *participantRepository) query(ctx context.Context, query string, args ...any) ([]*domain.Participant, error) {
	rows, err := conn(ctx, r.DB).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ps := make([]*domain.Participant, 0)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ps, nil
}

func (r *participantRepository) Update(ctx context.Context, p *domain.Participant) error {
	query := `
		UPDATE participants
		SET name = $1, email = $2, category = $3, status = $4, queue_position = $5, extra_fields = $6, updated_at = $7
		WHERE event_id = $8 AND id = $9
	`
	result, err := conn(ctx, r.DB).ExecContext(ctx, query,
		p.Name, p.Email, p.Category, string(p.Status), nullableInt(p.QueuePosition), nullableJSON(p.ExtraFields), p.UpdatedAt,
		p.EventID, p.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *participantRepository) Delete(ctx context.Context, eventID, id string) error {
	query := `DELETE FROM participants WHERE event_id = $1 AND id = $2`
	result, err := conn(ctx, r.DB).ExecContext(ctx, query, eventID, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *participantRepository) CountByStatus(ctx context.Context, eventID string, status domain.ParticipantStatus) (int, error) {
	query := `SELECT COUNT(*) FROM participants WHERE event_id = $1 AND status = $2`
	var n int
	if err := conn(ctx, r.DB).QueryRowContext(ctx, query, eventID, string(status)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *participantRepository) MaxQueuePosition(ctx context.Context, eventID string) (int, error) {
	query := `SELECT COALESCE(MAX(queue_position), 0) FROM participants WHERE event_id = $1 AND status = 'waitlisted'`
	var n int
	if err := conn(ctx, r.DB).QueryRowContext(ctx, query, eventID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *participantRepository) FirstWaitlisted(ctx context.Context, eventID string) (*domain.Participant, error) {
	query := `
		SELECT ` + participantColumns + `
		FROM participants
		WHERE event_id = $1 AND status = 'waitlisted'
		ORDER BY queue_position ASC
		LIMIT 1
	`
	return r.getOne(ctx, query, eventID)
}

func (r *participantRepository) ShiftQueue(ctx context.Context, eventID string, from, to, delta int) error {
	if from > to || delta == 0 {
		return nil
	}
	query := `
		UPDATE participants
		SET queue_position = queue_position + $1
		WHERE event_id = $2 AND status = 'waitlisted' AND queue_position BETWEEN $3 AND $4
	`
	_, err := conn(ctx, r.DB).ExecContext(ctx, query, delta, eventID, from, to)
	return err
}
