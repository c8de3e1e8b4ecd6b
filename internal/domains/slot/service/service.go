package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/rs/zerolog/log"

	"github.com/Dis3z/reserve-api/config"
	"github.com/Dis3z/reserve-api/infras/otel"
	"github.com/Dis3z/reserve-api/infras/postgres"
	"github.com/Dis3z/reserve-api/internal/domains/slot/model"
	"github.com/Dis3z/reserve-api/internal/domains/slot/model/dto"
	"github.com/Dis3z/reserve-api/internal/domains/slot/repository"
	"github.com/Dis3z/reserve-api/internal/eventbus"
	"github.com/Dis3z/reserve-api/shared/cache"
	"github.com/Dis3z/reserve-api/shared/constant"
	"github.com/Dis3z/reserve-api/shared/failure"
	"github.com/Dis3z/reserve-api/shared/timezone"
)

const (
	reclaimBatchSize = 100
)

type Slot interface {
	GetAvailable(ctx context.Context, venueID string, date time.Time) (dto.GetAvailableSlotsResponse, error)
	Block(ctx context.Context, slotID, reason string) (dto.SlotSnapshot, error)
	Unblock(ctx context.Context, slotID string) (dto.SlotSnapshot, error)
	Hold(ctx context.Context, slotID string, holdFor time.Duration) (dto.SlotSnapshot, error)
	ReclaimExpiredHolds(ctx context.Context) (int, error)
}

type serviceImpl struct {
	repo  repository.Slot
	tx    postgres.TxRunner
	cfg   *config.Config
	cache cache.RedisCache
	bus   *eventbus.Bus
	otel  otel.Otel
}

func New(
	repo repository.Slot,
	tx postgres.TxRunner,
	cfg *config.Config,
	cache cache.RedisCache,
	bus *eventbus.Bus,
	otel otel.Otel,
) Slot {
	return &serviceImpl{
		repo:  repo,
		tx:    tx,
		cfg:   cfg,
		cache: cache,
		bus:   bus,
		otel:  otel,
	}
}

// GetAvailable serves the availability listing for one venue and date,
// reading through the cache. Staleness is bounded by the cache TTL; booking
// attempts revalidate under the row lock regardless.
func (s *serviceImpl) GetAvailable(ctx context.Context, venueID string, date time.Time) (res dto.GetAvailableSlotsResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".GetAvailable")
	defer scope.End()
	defer scope.TraceIfError(err)

	cacheKey := model.AvailabilityCacheKey(venueID, date)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for available slots")

		return res, nil
	}

	slots, err := s.repo.ListAvailable(ctx, venueID, date, timezone.Now())
	if err != nil {
		return res, failure.Mask(err) //nolint:wrapcheck
	}

	res.FromModels(slots)

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.AvailabilityCacheTTLS); err != nil {
			log.Error().Err(err).Str("cacheKey", cacheKey).Msg("failed to save available slots to cache")
		}
	}()

	return res, nil
}

// Block takes a slot out of circulation. Only admins may block; remaining
// capacity is preserved, and blocking an already-blocked slot is a no-op.
func (s *serviceImpl) Block(ctx context.Context, slotID, reason string) (res dto.SlotSnapshot, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Block")
	defer scope.End()
	defer scope.TraceIfError(err)

	if err = s.requireAdmin(ctx); err != nil {
		return res, err
	}

	callerID, _ := ctx.Value(constant.ContextKeyUserID).(string)

	var slot model.Slot

	err = s.tx.InTx(ctx, func(tx *sqlx.Tx) error {
		var found bool

		slot, found, err = s.repo.GetForUpdateTx(ctx, tx, slotID)
		if err != nil {
			return err
		}

		if !found {
			return failure.SlotNotFound() //nolint:wrapcheck
		}

		if slot.Status == model.StatusBlocked {
			return nil
		}

		slot.Block()
		slot.Metadata = blockMetadata(callerID, reason)
		slot.UpdatedAt = timezone.Now()

		return s.repo.UpdateTx(ctx, tx, slot)
	})
	if err != nil {
		return res, failure.Mask(err) //nolint:wrapcheck
	}

	s.afterMutation(ctx, slot)

	res.FromModel(slot)

	return res, nil
}

// Unblock restores a blocked slot. Idempotent: unblocking a slot that is not
// blocked leaves it untouched.
func (s *serviceImpl) Unblock(ctx context.Context, slotID string) (res dto.SlotSnapshot, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Unblock")
	defer scope.End()
	defer scope.TraceIfError(err)

	if err = s.requireAdmin(ctx); err != nil {
		return res, err
	}

	var slot model.Slot

	err = s.tx.InTx(ctx, func(tx *sqlx.Tx) error {
		var found bool

		slot, found, err = s.repo.GetForUpdateTx(ctx, tx, slotID)
		if err != nil {
			return err
		}

		if !found {
			return failure.SlotNotFound() //nolint:wrapcheck
		}

		if slot.Status != model.StatusBlocked {
			return nil
		}

		slot.Unblock()
		slot.Metadata = []byte("{}")
		slot.UpdatedAt = timezone.Now()

		return s.repo.UpdateTx(ctx, tx, slot)
	})
	if err != nil {
		return res, failure.Mask(err) //nolint:wrapcheck
	}

	s.afterMutation(ctx, slot)

	res.FromModel(slot)

	return res, nil
}

// Hold takes an available slot off the market until now+holdFor. Confirming
// the hold is the ordinary booking path; expiry is handled by the reclaimer.
func (s *serviceImpl) Hold(ctx context.Context, slotID string, holdFor time.Duration) (res dto.SlotSnapshot, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Hold")
	defer scope.End()
	defer scope.TraceIfError(err)

	if err = s.requireAdmin(ctx); err != nil {
		return res, err
	}

	var slot model.Slot

	err = s.tx.InTx(ctx, func(tx *sqlx.Tx) error {
		var found bool

		slot, found, err = s.repo.GetForUpdateTx(ctx, tx, slotID)
		if err != nil {
			return err
		}

		if !found {
			return failure.SlotNotFound() //nolint:wrapcheck
		}

		now := timezone.Now()

		if err := slot.Hold(now.Add(holdFor)); err != nil {
			return failure.BadRequestFromString(err.Error()) //nolint:wrapcheck
		}
		slot.UpdatedAt = now

		return s.repo.UpdateTx(ctx, tx, slot)
	})
	if err != nil {
		return res, failure.Mask(err) //nolint:wrapcheck
	}

	s.afterMutation(ctx, slot)

	res.FromModel(slot)

	return res, nil
}

// ReclaimExpiredHolds flips HELD slots whose hold lapsed back to AVAILABLE.
// Invoked by the recurring reclaim job. Returns how many slots it restored.
func (s *serviceImpl) ReclaimExpiredHolds(ctx context.Context) (reclaimed int, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".ReclaimExpiredHolds")
	defer scope.End()
	defer scope.TraceIfError(err)

	now := timezone.Now()

	expired, err := s.repo.ListExpiredHolds(ctx, now, reclaimBatchSize)
	if err != nil {
		return 0, failure.Mask(err) //nolint:wrapcheck
	}

	for _, candidate := range expired {
		var slot model.Slot

		err := s.tx.InTx(ctx, func(tx *sqlx.Tx) error {
			var found bool
			var err error

			slot, found, err = s.repo.GetForUpdateTx(ctx, tx, candidate.ID)
			if err != nil {
				return err
			}

			// Re-check under the row lock: the hold may have been confirmed
			// or already reclaimed since the listing.
			if !found || !slot.HoldExpired(now) {
				return nil
			}

			slot.ReleaseHold()
			slot.UpdatedAt = now

			if err := s.repo.UpdateTx(ctx, tx, slot); err != nil {
				return err
			}

			reclaimed++

			return nil
		})
		if err != nil {
			log.Error().Err(err).Str("slotID", candidate.ID).Msg("failed to reclaim expired hold")

			continue
		}

		if slot.Status == model.StatusAvailable {
			s.afterMutation(ctx, slot)
		}
	}

	return reclaimed, nil
}

func (s *serviceImpl) requireAdmin(ctx context.Context) error {
	role, _ := ctx.Value(constant.ContextKeyUserRole).(string)
	if role != constant.RoleAdmin {
		return failure.Unauthorized("admin role required") //nolint:wrapcheck
	}

	return nil
}

// afterMutation invalidates the availability listing and fans the new slot
// state out to subscribers. Failures log only: committed truth wins.
func (s *serviceImpl) afterMutation(ctx context.Context, slot model.Slot) {
	c := context.WithoutCancel(ctx)

	if err := s.cache.Delete(c, model.AvailabilityCacheKey(slot.VenueID, slot.Date)); err != nil {
		log.Error().Err(err).Str("slotID", slot.ID).Msg("failed to invalidate availability cache")
	}

	s.bus.Publish(eventbus.TopicSlotUpdated, eventbus.SlotUpdate{
		SlotID:            slot.ID,
		VenueID:           slot.VenueID,
		Status:            slot.Status,
		RemainingCapacity: slot.RemainingCapacity,
	})
}

func blockMetadata(blockedBy, reason string) types.JSONText {
	meta, err := json.Marshal(map[string]string{
		"blocked_by": blockedBy,
		"reason":     reason,
	})
	if err != nil {
		return []byte("{}")
	}

	return meta
}
