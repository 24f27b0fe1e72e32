package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guestlist/internal/domain"
)

func newEventFixture() (*memStore, domain.EventService, domain.ParticipantService) {
	store := newMemStore()
	svc := NewEventService(fakeEventRepo{store}, fakeParticipantRepo{store}, 5*time.Second)
	admin := NewParticipantService(fakeEventRepo{store}, fakeParticipantRepo{store}, fakeActivityRepo{store}, fakeTx{store}, discardLogger(), 5*time.Second)
	return store, svc, admin
}

func TestEventService_CreateEvent(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		event   *domain.Event
		wantErr bool
	}{
		{name: "bounded", event: domain.NewEvent("Meetup", "", testOwnerID, intPtr(50), 5, time.Time{}, time.Time{})},
		{name: "unbounded", event: domain.NewEvent("Open House", "", testOwnerID, nil, 0, time.Time{}, time.Time{})},
		{name: "missing owner", event: domain.NewEvent("Meetup", "", "", nil, 0, time.Time{}, time.Time{}), wantErr: true},
		{name: "blank name", event: domain.NewEvent("  ", "", testOwnerID, nil, 0, time.Time{}, time.Time{}), wantErr: true},
		{name: "negative max", event: domain.NewEvent("Meetup", "", testOwnerID, intPtr(-1), 0, time.Time{}, time.Time{}), wantErr: true},
		{name: "negative overbooking", event: domain.NewEvent("Meetup", "", testOwnerID, intPtr(1), -2, time.Time{}, time.Time{}), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, svc, _ := newEventFixture()
			err := svc.CreateEvent(ctx, tt.event)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, tt.event.ID)
			assert.False(t, tt.event.CreatedAt.IsZero())
		})
	}
}

func TestEventService_GetEvent_summary(t *testing.T) {
	ctx := context.Background()
	store, svc, admin := newEventFixture()
	event := store.addEvent(testOwnerID, intPtr(2), 1)
	for _, e := range []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"} {
		addParticipant(t, admin, event.ID, e, domain.StatusAttending)
	}

	summary, err := svc.GetEvent(ctx, event.ID, testOwnerID)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.AttendingCount)
	assert.Equal(t, 1, summary.WaitlistedCount)
	require.NotNil(t, summary.RemainingCapacity)
	assert.Equal(t, 0, *summary.RemainingCapacity)

	_, err = svc.GetEvent(ctx, event.ID, "intruder")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.GetEvent(ctx, "missing", testOwnerID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEventService_UpdateEvent(t *testing.T) {
	ctx := context.Background()
	store, svc, admin := newEventFixture()
	event := store.addEvent(testOwnerID, intPtr(1), 0)
	addParticipant(t, admin, event.ID, "a@example.com", domain.StatusAttending)
	w := addParticipant(t, admin, event.ID, "w@example.com", domain.StatusAttending)

	updated, err := svc.UpdateEvent(ctx, event.ID, testOwnerID, domain.EventUpdate{MaxParticipants: intPtr(5), Name: strPtr("Renamed")})
	require.NoError(t, err)
	assert.Equal(t, 5, *updated.MaxParticipants)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, domain.StatusWaitlisted, store.participant(w.Participant.ID).Status, "raising capacity does not promote")

	updated, err = svc.UpdateEvent(ctx, event.ID, testOwnerID, domain.EventUpdate{ClearMaxParticipants: true})
	require.NoError(t, err)
	assert.Nil(t, updated.MaxParticipants)

	_, err = svc.UpdateEvent(ctx, event.ID, testOwnerID, domain.EventUpdate{OverbookingLimit: intPtr(-1)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.UpdateEvent(ctx, event.ID, "intruder", domain.EventUpdate{})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestEventService_DeleteEvent(t *testing.T) {
	ctx := context.Background()
	store, svc, _ := newEventFixture()
	event := store.addEvent(testOwnerID, nil, 0)

	assert.ErrorIs(t, svc.DeleteEvent(ctx, event.ID, "intruder"), domain.ErrForbidden)
	require.NoError(t, svc.DeleteEvent(ctx, event.ID, testOwnerID))
	assert.ErrorIs(t, svc.DeleteEvent(ctx, event.ID, testOwnerID), domain.ErrNotFound)

	list, err := svc.ListEvents(ctx, testOwnerID)
	require.NoError(t, err)
	assert.Empty(t, list)
}
