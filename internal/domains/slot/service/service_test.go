package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Dis3z/reserve-api/config"
	otelMocks "github.com/Dis3z/reserve-api/infras/otel/mocks"
	pgMocks "github.com/Dis3z/reserve-api/infras/postgres/mocks"
	slotMocks "github.com/Dis3z/reserve-api/internal/domains/slot/mocks"
	"github.com/Dis3z/reserve-api/internal/domains/slot/model"
	"github.com/Dis3z/reserve-api/internal/domains/slot/model/dto"
	"github.com/Dis3z/reserve-api/internal/domains/slot/service"
	"github.com/Dis3z/reserve-api/internal/eventbus"
	cacheMocks "github.com/Dis3z/reserve-api/shared/cache/mocks"
	"github.com/Dis3z/reserve-api/shared/constant"
	"github.com/Dis3z/reserve-api/shared/failure"
)

const (
	testSlotID  = "3b65d9ab-7f9d-4f3e-9e63-1f7a3f2d8c4a"
	testVenueID = "9d7c1f4a-02a6-4f2e-8a25-75d5ab5a7f11"
)

type mocks struct {
	repo  *slotMocks.MockSlot
	tx    *pgMocks.MockTxRunner
	cache *cacheMocks.MockRedisCache
	bus   *eventbus.Bus
}

func newService(t *testing.T) (service.Slot, mocks) {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	cfg := &config.Config{}
	cfg.AvailabilityCacheTTLS = 60

	m := mocks{
		repo:  slotMocks.NewMockSlot(ctrl),
		tx:    pgMocks.NewMockTxRunner(ctrl),
		cache: cacheMocks.NewMockRedisCache(ctrl),
		bus:   eventbus.New(8),
	}

	svc := service.New(m.repo, m.tx, cfg, m.cache, m.bus, otelMocks.NewOtel())

	return svc, m
}

func adminCtx() context.Context {
	ctx := context.WithValue(context.Background(), constant.ContextKeyUserID, "admin-user")

	return context.WithValue(ctx, constant.ContextKeyUserRole, constant.RoleAdmin)
}

func memberCtx() context.Context {
	ctx := context.WithValue(context.Background(), constant.ContextKeyUserID, "member-user")

	return context.WithValue(ctx, constant.ContextKeyUserRole, constant.RoleMember)
}

func passthroughTx(m mocks) {
	m.tx.EXPECT().
		InTx(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(*sqlx.Tx) error) error {
			return fn(nil)
		}).
		AnyTimes()
}

func availableSlot() model.Slot {
	now := time.Now().UTC()

	return model.Slot{
		ID:                testSlotID,
		VenueID:           testVenueID,
		Date:              now.AddDate(0, 0, 1).Truncate(24 * time.Hour),
		StartTime:         now.Add(24 * time.Hour),
		EndTime:           now.Add(25 * time.Hour),
		Capacity:          4,
		RemainingCapacity: 3,
		Status:            model.StatusAvailable,
	}
}

func TestSlotService_GetAvailable_CacheMiss(t *testing.T) {
	svc, m := newService(t)

	date := time.Now().UTC().AddDate(0, 0, 1).Truncate(24 * time.Hour)

	m.cache.EXPECT().
		Get(gomock.Any(), model.AvailabilityCacheKey(testVenueID, date), gomock.Any()).
		Return(assert.AnError)

	m.repo.EXPECT().
		ListAvailable(gomock.Any(), testVenueID, date, gomock.Any()).
		Return([]model.Slot{availableSlot()}, nil)

	m.cache.EXPECT().
		Save(gomock.Any(), model.AvailabilityCacheKey(testVenueID, date), gomock.Any(), 60).
		Return(nil).
		AnyTimes()

	res, err := svc.GetAvailable(context.Background(), testVenueID, date)
	require.NoError(t, err)
	require.Len(t, res.Slots, 1)
	assert.Equal(t, testSlotID, res.Slots[0].ID)
	assert.Equal(t, 3, res.Slots[0].RemainingCapacity)

	// The async cache write races test exit.
	time.Sleep(20 * time.Millisecond)
}

func TestSlotService_GetAvailable_CacheHit(t *testing.T) {
	svc, m := newService(t)

	date := time.Now().UTC().AddDate(0, 0, 1).Truncate(24 * time.Hour)

	m.cache.EXPECT().
		Get(gomock.Any(), model.AvailabilityCacheKey(testVenueID, date), gomock.Any()).
		DoAndReturn(func(ctx context.Context, key string, value any) error {
			res := value.(*dto.GetAvailableSlotsResponse)
			res.Slots = []dto.SlotSnapshot{{ID: testSlotID, RemainingCapacity: 2}}
			return nil
		})

	res, err := svc.GetAvailable(context.Background(), testVenueID, date)
	require.NoError(t, err)
	require.Len(t, res.Slots, 1)
	assert.Equal(t, 2, res.Slots[0].RemainingCapacity)
}

func TestSlotService_BlockUnblockRoundTrip(t *testing.T) {
	svc, m := newService(t)

	passthroughTx(m)

	slot := availableSlot()

	m.repo.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), testSlotID).Return(slot, true, nil)

	var blocked model.Slot
	m.repo.EXPECT().
		UpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, tx *sqlx.Tx, s model.Slot) error {
			blocked = s
			return nil
		})

	m.cache.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	res, err := svc.Block(adminCtx(), testSlotID, "maintenance")
	require.NoError(t, err)
	assert.Equal(t, model.StatusBlocked, res.Status)
	assert.Equal(t, 3, res.RemainingCapacity)

	var meta map[string]string
	require.NoError(t, json.Unmarshal(blocked.Metadata, &meta))
	assert.Equal(t, "admin-user", meta["blocked_by"])
	assert.Equal(t, "maintenance", meta["reason"])

	// Unblock restores the preserved remaining capacity and status.
	m.repo.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), testSlotID).Return(blocked, true, nil)
	m.repo.EXPECT().UpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	res, err = svc.Unblock(adminCtx(), testSlotID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAvailable, res.Status)
	assert.Equal(t, 3, res.RemainingCapacity)
}

func TestSlotService_Block_Idempotent(t *testing.T) {
	svc, m := newService(t)

	passthroughTx(m)

	slot := availableSlot()
	slot.Status = model.StatusBlocked

	m.repo.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), testSlotID).Return(slot, true, nil)
	m.cache.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(nil)

	res, err := svc.Block(adminCtx(), testSlotID, "again")
	require.NoError(t, err)
	assert.Equal(t, model.StatusBlocked, res.Status)
}

func TestSlotService_Block_RequiresAdmin(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Block(memberCtx(), testSlotID, "nope")
	assert.True(t, failure.Is(err, failure.CodeUnauthorized))
}

func TestSlotService_Hold(t *testing.T) {
	svc, m := newService(t)

	passthroughTx(m)

	m.repo.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), testSlotID).Return(availableSlot(), true, nil)

	var held model.Slot
	m.repo.EXPECT().
		UpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, tx *sqlx.Tx, s model.Slot) error {
			held = s
			return nil
		})

	m.cache.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(nil)

	res, err := svc.Hold(adminCtx(), testSlotID, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, model.StatusHeld, res.Status)
	require.NotNil(t, held.HeldUntil)
	assert.True(t, held.HeldUntil.After(time.Now()))
}

func TestSlotService_Hold_RefusedForBookedSlot(t *testing.T) {
	svc, m := newService(t)

	passthroughTx(m)

	slot := availableSlot()
	slot.Status = model.StatusBooked
	slot.RemainingCapacity = 0

	m.repo.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), testSlotID).Return(slot, true, nil)

	_, err := svc.Hold(adminCtx(), testSlotID, 30*time.Minute)
	assert.Error(t, err)
}

func TestSlotService_ReclaimExpiredHolds(t *testing.T) {
	svc, m := newService(t)

	passthroughTx(m)

	now := time.Now().UTC()
	lapsed := now.Add(-10 * time.Minute)

	expired := availableSlot()
	expired.Status = model.StatusHeld
	expired.HeldUntil = &lapsed

	stillHeld := availableSlot()
	stillHeld.ID = "5c76e0bc-8fae-4f4f-af74-2f8b4f3e9d5b"
	future := now.Add(10 * time.Minute)
	stillHeld.Status = model.StatusHeld
	stillHeld.HeldUntil = &future

	m.repo.EXPECT().
		ListExpiredHolds(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]model.Slot{expired, stillHeld}, nil)

	m.repo.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), expired.ID).Return(expired, true, nil)
	// The second candidate's hold was extended between listing and locking.
	m.repo.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), stillHeld.ID).Return(stillHeld, true, nil)

	var reclaimedSlot model.Slot
	m.repo.EXPECT().
		UpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, tx *sqlx.Tx, s model.Slot) error {
			reclaimedSlot = s
			return nil
		})

	m.cache.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := m.bus.Subscribe(ctx, eventbus.TopicSlotUpdated, eventbus.Filter{VenueID: testVenueID})

	reclaimed, err := svc.ReclaimExpiredHolds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	assert.Equal(t, model.StatusAvailable, reclaimedSlot.Status)
	assert.Nil(t, reclaimedSlot.HeldUntil)

	event := (<-events).(eventbus.SlotUpdate)
	assert.Equal(t, expired.ID, event.SlotID)
	assert.Equal(t, model.StatusAvailable, event.Status)
}
