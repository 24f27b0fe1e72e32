package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guestlist/internal/domain"
)

func queueItems(n int, now time.Time) []*domain.EmailQueueItem {
	items := make([]*domain.EmailQueueItem, n)
	for i := range items {
		items[i] = &domain.EmailQueueItem{
			MailingID: "m-1", EventID: "ev-1", ToEmail: fmt.Sprintf("p%d@example.com", i), Subject: "Hi",
			Status: domain.QueuePending, CreatedAt: now,
		}
	}
	return items
}

func TestEmailQueueRepository_Enqueue(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	t.Run("single statement", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`INSERT INTO email_queue \(mailing_id, event_id, to_email, to_name, subject, html, plain_text, status, error, created_at, sent_at\) VALUES \(\$1, .*\$11\), \(\$12, .*\$22\)$`).
			WithArgs(
				"m-1", "ev-1", "p0@example.com", "", "Hi", "", "", "pending", nil, now, nil,
				"m-1", "ev-1", "p1@example.com", "", "Hi", "", "", "pending", nil, now, nil,
			).
			WillReturnResult(sqlmock.NewResult(0, 2))

		require.NoError(t, NewEmailQueueRepository(db).Enqueue(context.Background(), queueItems(2, now)))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("large batches are chunked", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`INSERT INTO email_queue`).WillReturnResult(sqlmock.NewResult(0, enqueueChunkSize))
		mock.ExpectExec(`INSERT INTO email_queue`).WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewEmailQueueRepository(db).Enqueue(context.Background(), queueItems(enqueueChunkSize+1, now)))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty is a no-op", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, NewEmailQueueRepository(db).Enqueue(context.Background(), nil))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEmailQueueRepository_ClaimPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	stale := now.Add(-15 * time.Minute)
	cols := []string{"id", "mailing_id", "event_id", "to_email", "to_name", "subject", "html", "plain_text", "status", "error", "created_at", "sent_at"}
	mock.ExpectQuery(`WHERE status = 'pending' AND \(claimed_at IS NULL OR claimed_at < \$2\)\s+ORDER BY created_at ASC, id ASC\s+LIMIT \$3\s+FOR UPDATE SKIP LOCKED\s+\)\s+UPDATE email_queue q SET claimed_at = \$1`).
		WithArgs(now, stale, 20).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("q-2", "m-1", "ev-1", "b@example.com", "B", "Hi", "", "Hi", "pending", nil, now.Add(time.Second), nil).
			AddRow("q-1", "m-1", "ev-1", "a@example.com", "A", "Hi", "<p>Hi</p>", "Hi", "pending", nil, now, nil))

	items, err := NewEmailQueueRepository(db).ClaimPending(context.Background(), 20, now, stale)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "q-1", items[0].ID, "oldest first")
	assert.Equal(t, "q-2", items[1].ID)
	assert.Equal(t, domain.QueuePending, items[0].Status)
	assert.Nil(t, items[0].Error)
	assert.Nil(t, items[0].SentAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailQueueRepository_Transitions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE email_queue SET status = 'sent', sent_at = \$1, error = NULL WHERE id = \$2 AND status = 'pending'`).
		WithArgs(now, "q-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE email_queue SET status = 'failed', error = \$1 WHERE id = \$2 AND status = 'pending'`).
		WithArgs("mailbox unavailable", "q-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewEmailQueueRepository(db)
	require.NoError(t, repo.MarkSent(context.Background(), "q-1", now))
	require.ErrorIs(t, repo.MarkFailed(context.Background(), "q-1", "mailbox unavailable"), domain.ErrNotFound, "terminal rows are not rewritten")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailQueueRepository_MailingQueries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT DISTINCT to_email FROM email_queue WHERE mailing_id = \$1`).
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows([]string{"to_email"}).AddRow("a@example.com").AddRow("b@example.com"))
	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM email_queue WHERE mailing_id = \$1 GROUP BY status`).
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 3).AddRow("sent", 10).AddRow("failed", 1))

	repo := NewEmailQueueRepository(db)
	emails, err := repo.ListEmailsByMailing(context.Background(), "m-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, emails)

	stats, err := repo.StatsByMailing(context.Background(), "m-1")
	require.NoError(t, err)
	assert.Equal(t, domain.QueueStats{Pending: 3, Sent: 10, Failed: 1}, stats)
	require.NoError(t, mock.ExpectationsWereMet())
}
