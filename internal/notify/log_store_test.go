package notify

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresLogStore_CreateAndMark(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresLogStoreWithQuerier(mock)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO notification_logs").
		WithArgs(pgxmock.AnyArg(), "EMAIL", "WELCOME_EMAIL", "p@example.com", "", "PENDING", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	entry := &Log{Type: ChannelEmail, Template: TemplateWelcomeEmail, RecipientEmail: "p@example.com"}
	require.NoError(t, store.Create(ctx, entry))
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, StatusPending, entry.Status)

	sentAt := time.Now().UTC()
	mock.ExpectExec("UPDATE notification_logs SET status").
		WithArgs(entry.ID, "SENT", sentAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.MarkSent(ctx, entry.ID, sentAt))

	mock.ExpectExec("UPDATE notification_logs SET status").
		WithArgs(entry.ID, "FAILED", "boom").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.MarkFailed(ctx, entry.ID, "boom"))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLogStore_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresLogStoreWithQuerier(mock)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("SMS", "FAILED").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT id, type, template").
		WithArgs("SMS", "FAILED", 10, 0).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "type", "template", "recipient_email", "recipient_phone",
			"status", "error", "metadata", "sent_at", "created_at",
		}).AddRow("log-1", "SMS", "APPOINTMENT_REMINDER", "", "+15550001", "FAILED", "gateway down",
			[]byte(`{"priority":"NORMAL"}`), &now, now))

	page, err := store.List(context.Background(), LogFilter{Type: ChannelSMS, Status: StatusFailed, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Logs, 1)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, TemplateAppointmentReminder, page.Logs[0].Template)
	assert.Equal(t, "gateway down", page.Logs[0].Error)
	assert.Equal(t, "NORMAL", page.Logs[0].Metadata["priority"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryLogStore_ListFiltersAndPages(t *testing.T) {
	store := NewMemoryLogStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		ch := ChannelEmail
		if i%2 == 1 {
			ch = ChannelSMS
		}
		require.NoError(t, store.Create(ctx, &Log{Type: ch, Template: TemplateWelcomeEmail, CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	page, err := store.List(ctx, LogFilter{Type: ChannelEmail, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Logs, 2)
	assert.True(t, page.Logs[0].CreatedAt.After(page.Logs[1].CreatedAt))

	page, err = store.List(ctx, LogFilter{Type: ChannelEmail, Limit: 2, Page: 2})
	require.NoError(t, err)
	assert.Len(t, page.Logs, 1)
}

func TestMemoryLogStore_MarkUnknown(t *testing.T) {
	assert.Error(t, NewMemoryLogStore().MarkSent(context.Background(), "missing", time.Now()))
}
