package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/hospitalops/internal/domain/entities"
	"github.com/zatekoja/hospitalops/internal/domain/providers"
	apperrors "github.com/zatekoja/hospitalops/pkg/errors"
)

const nurseID = int64(100)

func newDispatchFixture(t *testing.T) (*DispatchService, *AdmissionService, *fakeQueueStore, *fakeNotificationRepo, *fakeBus, *fakeClock) {
	t.Helper()
	store := newFakeQueueStore()
	repo := newFakeNotificationRepo()
	bus := newFakeBus()
	clock := &fakeClock{now: time.Date(2025, 6, 11, 10, 0, 0, 0, time.UTC)}
	dispatch := NewDispatchService(store, repo, bus, clock)
	admission := NewAdmissionService(store, repo, bus, clock)
	return dispatch, admission, store, repo, bus, clock
}

func TestStartNextPrefersPriorityLine(t *testing.T) {
	dispatch, admission, store, repo, bus, clock := newDispatchFixture(t)
	openDepartment(t, store, entities.DepartmentOPD)

	_, err := admission.Join(context.Background(), 1, entities.DepartmentOPD, "")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	priorityJoin, err := admission.Join(context.Background(), 2, entities.DepartmentOPD, entities.PriorityPWD)
	require.NoError(t, err)

	result, err := dispatch.StartNext(context.Background(), nurseID, entities.DepartmentOPD)
	require.NoError(t, err)

	require.NotNil(t, result.Started)
	assert.Equal(t, entities.QueueClassPriority, result.Started.Class)
	assert.Equal(t, priorityJoin.QueueNumber, result.Started.QueueNumber)
	assert.Nil(t, result.Completed)
	assert.Equal(t, 1, result.TotalWaiting)

	status, err := store.GetStatus(context.Background(), entities.DepartmentOPD)
	require.NoError(t, err)
	require.NotNil(t, status.CurrentServing)
	assert.Equal(t, priorityJoin.QueueNumber, *status.CurrentServing)

	turns := repo.byUser(2)
	require.NotEmpty(t, turns)
	assert.Equal(t, "Your turn at OPD. Please proceed to the triage room for OPD (Queue #2).", turns[0].Message)

	// the assignment also lands in the cross-subsystem inbox group
	inbox := bus.events(providers.MessagingGroup(2))
	require.Len(t, inbox, 1)
	payload, ok := inbox[0].Payload.(entities.NotificationPayload)
	require.True(t, ok)
	assert.Equal(t, "queue_started", payload.Event)
}

func TestStartNextCompletesCurrentBeforeCalling(t *testing.T) {
	dispatch, admission, _, _, _, clock := newDispatchFixture(t)
	store := admission.store.(*fakeQueueStore)
	openDepartment(t, store, entities.DepartmentOPD)

	first, err := admission.Join(context.Background(), 1, entities.DepartmentOPD, "")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := admission.Join(context.Background(), 2, entities.DepartmentOPD, "")
	require.NoError(t, err)

	_, err = dispatch.StartNext(context.Background(), nurseID, entities.DepartmentOPD)
	require.NoError(t, err)

	result, err := dispatch.StartNext(context.Background(), nurseID, entities.DepartmentOPD)
	require.NoError(t, err)

	require.NotNil(t, result.Completed)
	assert.Equal(t, first.QueueNumber, result.Completed.QueueNumber)
	require.NotNil(t, result.Started)
	assert.Equal(t, second.QueueNumber, result.Started.QueueNumber)
}

func TestStartNextWithEmptyQueue(t *testing.T) {
	dispatch, _, store, _, bus, _ := newDispatchFixture(t)
	openDepartment(t, store, entities.DepartmentOPD)

	result, err := dispatch.StartNext(context.Background(), nurseID, entities.DepartmentOPD)
	require.NoError(t, err)

	assert.Nil(t, result.Started)
	assert.Nil(t, result.Completed)
	assert.Equal(t, "no patients waiting", result.Message)

	status, err := store.GetStatus(context.Background(), entities.DepartmentOPD)
	require.NoError(t, err)
	assert.Nil(t, status.CurrentServing)
	assert.Equal(t, 0, status.TotalWaiting)

	events := bus.eventsOfType(providers.QueueGroup(entities.DepartmentOPD), entities.EventQueueStatusUpdate)
	assert.NotEmpty(t, events)
}

func TestMarkServedByQueueNumberIsIdempotent(t *testing.T) {
	dispatch, admission, store, repo, _, _ := newDispatchFixture(t)
	openDepartment(t, store, entities.DepartmentOPD)

	join, err := admission.Join(context.Background(), 1, entities.DepartmentOPD, "")
	require.NoError(t, err)

	served, err := dispatch.MarkServed(context.Background(), nurseID, entities.DepartmentOPD, join.QueueNumber, entities.QueueClassNormal)
	require.NoError(t, err)
	assert.Equal(t, join.QueueNumber, served.QueueNumber)

	completions := repo.byUser(1)
	var found bool
	for _, n := range completions {
		if n.Message == "Your queue at OPD has been completed (#1)." {
			found = true
		}
	}
	assert.True(t, found, "completion notification persisted")

	_, err = dispatch.MarkServed(context.Background(), nurseID, entities.DepartmentOPD, join.QueueNumber, entities.QueueClassNormal)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestRemoveRenumbersRemainingPositions(t *testing.T) {
	dispatch, admission, store, _, _, clock := newDispatchFixture(t)
	openDepartment(t, store, entities.DepartmentOPD)

	first, err := admission.Join(context.Background(), 1, entities.DepartmentOPD, "")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = admission.Join(context.Background(), 2, entities.DepartmentOPD, "")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = admission.Join(context.Background(), 3, entities.DepartmentOPD, "")
	require.NoError(t, err)

	_, err = dispatch.Remove(context.Background(), nurseID, entities.DepartmentOPD, first.QueueNumber, entities.QueueClassNormal)
	require.NoError(t, err)

	normal, _, err := store.ListEntries(context.Background(), entities.DepartmentOPD)
	require.NoError(t, err)
	require.Len(t, normal, 2)
	assert.Equal(t, 1, normal[0].Position)
	assert.Equal(t, int64(2), normal[0].PatientID)
	assert.Equal(t, 2, normal[1].Position)
	assert.Equal(t, int64(3), normal[1].PatientID)
}

func TestMarkServedClearsCurrentServing(t *testing.T) {
	dispatch, admission, store, _, _, _ := newDispatchFixture(t)
	openDepartment(t, store, entities.DepartmentOPD)

	join, err := admission.Join(context.Background(), 1, entities.DepartmentOPD, "")
	require.NoError(t, err)

	_, err = dispatch.StartNext(context.Background(), nurseID, entities.DepartmentOPD)
	require.NoError(t, err)

	_, err = dispatch.MarkServed(context.Background(), nurseID, entities.DepartmentOPD, join.QueueNumber, entities.QueueClassNormal)
	require.NoError(t, err)

	status, err := store.GetStatus(context.Background(), entities.DepartmentOPD)
	require.NoError(t, err)
	assert.Nil(t, status.CurrentServing)
}

func TestMarkServedRejectsUnknownClass(t *testing.T) {
	dispatch, _, store, _, _, _ := newDispatchFixture(t)
	openDepartment(t, store, entities.DepartmentOPD)

	_, err := dispatch.MarkServed(context.Background(), nurseID, entities.DepartmentOPD, 1, entities.QueueClass("vip"))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}
