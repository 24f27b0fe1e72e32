package postgres

import (
	"context"
	"database/sql"

	"guestlist/internal/domain"
)

type activityRepository struct {
	DB *sql.DB
}

func NewActivityRepository(db *sql.DB) domain.ActivityRepository {
	return &activityRepository{DB: db}
}

// Create writes outside any ambient transaction so a failed audit write never aborts the
// state change that triggered it.
func (r *activityRepository) Create(ctx context.Context, a *domain.ActivityLog) error {
	query := `
		INSERT INTO participant_activity (event_id, participant_id, action, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query, a.EventID, a.ParticipantID, a.Action, a.Detail, a.CreatedAt).Scan(&a.ID)
}

func (r *activityRepository) ListByEventID(ctx context.Context, eventID string, params domain.PaginationParams) ([]*domain.ActivityLog, int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM participant_activity WHERE event_id = $1`, eventID).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `
		SELECT id, event_id, participant_id, action, detail, created_at
		FROM participant_activity
		WHERE event_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.DB.QueryContext(ctx, query, eventID, params.PageSize, params.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := make([]*domain.ActivityLog, 0)
	for rows.Next() {
		a := &domain.ActivityLog{}
		if err := rows.Scan(&a.ID, &a.EventID, &a.ParticipantID, &a.Action, &a.Detail, &a.CreatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
