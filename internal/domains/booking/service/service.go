package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/Dis3z/reserve-api/config"
	"github.com/Dis3z/reserve-api/infras/otel"
	"github.com/Dis3z/reserve-api/infras/postgres"
	"github.com/Dis3z/reserve-api/internal/domains/booking/model"
	"github.com/Dis3z/reserve-api/internal/domains/booking/model/dto"
	"github.com/Dis3z/reserve-api/internal/domains/booking/repository"
	slotModel "github.com/Dis3z/reserve-api/internal/domains/slot/model"
	slotRepo "github.com/Dis3z/reserve-api/internal/domains/slot/repository"
	userRepo "github.com/Dis3z/reserve-api/internal/domains/user/repository"
	"github.com/Dis3z/reserve-api/internal/eventbus"
	"github.com/Dis3z/reserve-api/internal/queue"
	"github.com/Dis3z/reserve-api/shared/cache"
	"github.com/Dis3z/reserve-api/shared/constant"
	"github.com/Dis3z/reserve-api/shared/failure"
	"github.com/Dis3z/reserve-api/shared/lock"
	sharedModel "github.com/Dis3z/reserve-api/shared/model"
	"github.com/Dis3z/reserve-api/shared/timezone"
)

const (
	slotLockKeyPrefix = "booking:slot:"

	JobBookingConfirmed = "booking:confirmed"
	JobBookingCancelled = "booking:cancelled"
)

// ConfirmedJobPayload rides on the booking:confirmed queue.
type ConfirmedJobPayload struct {
	BookingID        string `json:"bookingId"`
	UserID           string `json:"userId"`
	ConfirmationCode string `json:"confirmationCode"`
}

// CancelledJobPayload rides on the booking:cancelled queue.
type CancelledJobPayload struct {
	BookingID        string `json:"bookingId"`
	UserID           string `json:"userId"`
	ConfirmationCode string `json:"confirmationCode"`
	Reason           string `json:"reason,omitempty"`
}

type Booking interface {
	Create(ctx context.Context, req dto.CreateBookingRequest) (dto.BookingResponse, error)
	Cancel(ctx context.Context, bookingID string, req dto.CancelBookingRequest) (dto.BookingResponse, error)
	Get(ctx context.Context, id string) (dto.BookingResponse, error)
	ListByUser(ctx context.Context, userID string) (dto.GetBookingsResponse, error)
}

type serviceImpl struct {
	repo     repository.Booking
	slotRepo slotRepo.Slot
	userRepo userRepo.User
	tx       postgres.TxRunner
	cfg      *config.Config
	cache    cache.RedisCache
	lock     lock.DistributedLock
	queue    queue.Queue
	bus      *eventbus.Bus
	otel     otel.Otel
}

func New(
	repo repository.Booking,
	slotRepository slotRepo.Slot,
	userRepository userRepo.User,
	tx postgres.TxRunner,
	cfg *config.Config,
	cache cache.RedisCache,
	distLock lock.DistributedLock,
	jobQueue queue.Queue,
	bus *eventbus.Bus,
	otel otel.Otel,
) Booking {
	return &serviceImpl{
		repo:     repo,
		slotRepo: slotRepository,
		userRepo: userRepository,
		tx:       tx,
		cfg:      cfg,
		cache:    cache,
		lock:     distLock,
		queue:    jobQueue,
		bus:      bus,
		otel:     otel,
	}
}

// Create books guestCount units of a slot for the calling user. The slot
// lock keeps contending attempts from queueing on the row lock; the
// SERIALIZABLE transaction stays authoritative even if the lease lapses.
func (s *serviceImpl) Create(ctx context.Context, req dto.CreateBookingRequest) (res dto.BookingResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Create")
	defer scope.End()
	defer scope.TraceIfError(err)

	userID, _ := ctx.Value(constant.ContextKeyUserID).(string)
	if userID == constant.Empty {
		return res, failure.UserNotFound() //nolint:wrapcheck
	}

	lockKey := slotLockKeyPrefix + req.SlotID
	lockTTL := time.Duration(s.cfg.SlotLockTTLMS) * time.Millisecond

	token, ok := s.lock.Acquire(ctx, lockKey, lockTTL)
	if !ok {
		return res, failure.SlotLocked() //nolint:wrapcheck
	}

	defer func() {
		if released := s.lock.Release(context.WithoutCancel(ctx), lockKey, token); !released {
			log.Warn().Str("slotID", req.SlotID).Msg("slot lock lease lapsed before release")
		}
	}()

	booking, slot, err := s.createOnce(ctx, userID, req)
	if postgres.IsSerializationFailure(err) || postgres.IsUniqueViolation(err) {
		// A serialization abort is safe to rerun; a unique violation means
		// the minted confirmation code collided, and the rerun mints a fresh
		// one. Either way, one retry under the still-held slot lock.
		log.Warn().Err(err).Str("slotID", req.SlotID).Msg("retrying booking transaction once")

		booking, slot, err = s.createOnce(ctx, userID, req)
		if postgres.IsSerializationFailure(err) {
			return res, failure.SlotLocked() //nolint:wrapcheck
		}
	}

	if err != nil {
		return res, failure.Mask(err) //nolint:wrapcheck
	}

	s.afterCreate(ctx, booking, slot)

	res.FromModel(booking)

	return res, nil
}

// createOnce runs one attempt of the booking transaction.
func (s *serviceImpl) createOnce(ctx context.Context, userID string, req dto.CreateBookingRequest) (model.Booking, slotModel.Slot, error) {
	var (
		booking model.Booking
		slot    slotModel.Slot
	)

	err := s.tx.InSerializableTx(ctx, func(tx *sqlx.Tx) error {
		now := timezone.Now()

		user, found, err := s.userRepo.GetTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		if !found || !user.IsActive {
			return failure.UserNotFound() //nolint:wrapcheck
		}

		confirmed, err := s.repo.CountConfirmedByUserTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		if confirmed >= s.cfg.MaxConcurrentBookingsPerUser {
			return failure.MaxBookingsReached() //nolint:wrapcheck
		}

		slot, found, err = s.slotRepo.GetForUpdateTx(ctx, tx, req.SlotID)
		if err != nil {
			return err
		}

		if !found {
			return failure.SlotNotFound() //nolint:wrapcheck
		}

		// Precondition gauntlet, first failure wins.
		if slot.Status == slotModel.StatusBlocked {
			return failure.SlotBlocked() //nolint:wrapcheck
		}

		if slot.RemainingCapacity < req.GuestCount {
			return failure.InsufficientCapacity() //nolint:wrapcheck
		}

		if !slot.EndTime.After(now) {
			return failure.SlotInPast() //nolint:wrapcheck
		}

		horizon := now.AddDate(0, 0, s.cfg.MaxBookingAdvanceDays)
		if slot.StartTime.After(horizon) {
			return failure.AdvanceLimitExceeded() //nolint:wrapcheck
		}

		duplicate, err := s.repo.ExistConfirmedTx(ctx, tx, userID, req.SlotID)
		if err != nil {
			return err
		}

		if duplicate {
			return failure.DuplicateBooking() //nolint:wrapcheck
		}

		booking = s.mintBooking(userID, req, slot, now)

		if err := slot.Debit(req.GuestCount); err != nil {
			return err
		}
		slot.UpdatedAt = now

		if err := s.repo.InsertTx(ctx, tx, booking); err != nil {
			return err
		}

		return s.slotRepo.UpdateTx(ctx, tx, slot)
	})

	return booking, slot, err
}

func (s *serviceImpl) mintBooking(userID string, req dto.CreateBookingRequest, slot slotModel.Slot, now time.Time) model.Booking {
	var notes *string
	if req.Notes != constant.Empty {
		notes = &req.Notes
	}

	var totalPrice *float64
	if slot.Price != nil {
		price := *slot.Price * float64(req.GuestCount)
		totalPrice = &price
	}

	confirmedAt := now

	return model.Booking{
		ID:               uuid.NewString(),
		UserID:           userID,
		SlotID:           slot.ID,
		VenueID:          slot.VenueID,
		ConfirmationCode: model.NewConfirmationCode(),
		Status:           model.StatusConfirmed,
		GuestCount:       req.GuestCount,
		Notes:            notes,
		BookingDate:      slot.Date,
		ConfirmedAt:      &confirmedAt,
		TotalPrice:       totalPrice,
		Metadata:         []byte("{}"),
		Timestamps: sharedModel.Timestamps{
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// afterCreate runs the post-commit side effects. Each one fails soft: the
// booking is durable, so a lost invalidation or event never fails the call.
func (s *serviceImpl) afterCreate(ctx context.Context, booking model.Booking, slot slotModel.Slot) {
	c := context.WithoutCancel(ctx)

	if err := s.cache.Delete(c, slotModel.AvailabilityCacheKey(slot.VenueID, slot.Date)); err != nil {
		log.Error().Err(err).Str("slotID", slot.ID).Msg("failed to invalidate availability cache")
	}

	_, err := s.queue.Enqueue(c, JobBookingConfirmed, ConfirmedJobPayload{
		BookingID:        booking.ID,
		UserID:           booking.UserID,
		ConfirmationCode: booking.ConfirmationCode,
	}, queue.Options{})
	if err != nil {
		log.Error().Err(err).Str("bookingID", booking.ID).Msg("failed to enqueue confirmation job")
	}

	s.bus.Publish(eventbus.TopicSlotUpdated, eventbus.SlotUpdate{
		SlotID:            slot.ID,
		VenueID:           slot.VenueID,
		Status:            slot.Status,
		RemainingCapacity: slot.RemainingCapacity,
	})

	s.bus.Publish(eventbus.TopicBookingUpdated, eventbus.BookingUpdate{
		BookingID:        booking.ID,
		Status:           booking.Status,
		ConfirmationCode: booking.ConfirmationCode,
		UserID:           booking.UserID,
	})
}

// Cancel voids a booking and credits its guest count back to the slot.
func (s *serviceImpl) Cancel(ctx context.Context, bookingID string, req dto.CancelBookingRequest) (res dto.BookingResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Cancel")
	defer scope.End()
	defer scope.TraceIfError(err)

	callerID, _ := ctx.Value(constant.ContextKeyUserID).(string)
	callerRole, _ := ctx.Value(constant.ContextKeyUserRole).(string)

	booking, found, err := s.repo.Get(ctx, bookingID)
	if err != nil {
		return res, failure.Mask(err) //nolint:wrapcheck
	}

	if !found {
		return res, failure.BookingNotFound() //nolint:wrapcheck
	}

	if booking.UserID != callerID && callerRole != constant.RoleAdmin {
		return res, failure.Unauthorized("only the booking owner or an admin may cancel") //nolint:wrapcheck
	}

	slot, found, err := s.slotRepo.Get(ctx, booking.SlotID)
	if err != nil {
		return res, failure.Mask(err) //nolint:wrapcheck
	}

	if !found {
		return res, failure.SlotNotFound() //nolint:wrapcheck
	}

	now := timezone.Now()
	window := time.Duration(s.cfg.BookingCancellationWindowHours) * time.Hour

	if !booking.IsCancellable(slot.StartTime, window, now) {
		return res, failure.CancellationNotAllowed("booking is terminal or inside the cancellation window") //nolint:wrapcheck
	}

	fromStatus := booking.Status

	err = s.tx.InTx(ctx, func(tx *sqlx.Tx) error {
		cancelled, err := s.repo.MarkCancelledTx(ctx, tx, booking.ID, fromStatus, req.Reason, now)
		if err != nil {
			return err
		}

		if !cancelled {
			// A concurrent writer flipped the status between our read and
			// this update.
			return failure.CancellationNotAllowed("booking is no longer cancellable") //nolint:wrapcheck
		}

		slot, _, err = s.slotRepo.GetForUpdateTx(ctx, tx, booking.SlotID)
		if err != nil {
			return err
		}

		if err := slot.Credit(booking.GuestCount); err != nil {
			return err
		}
		slot.UpdatedAt = now

		return s.slotRepo.UpdateTx(ctx, tx, slot)
	})
	if err != nil {
		return res, failure.Mask(err) //nolint:wrapcheck
	}

	booking.Status = model.StatusCancelled
	booking.CancelledAt = &now
	if req.Reason != constant.Empty {
		booking.CancellationReason = &req.Reason
	}

	s.afterCancel(ctx, booking, slot, req.Reason)

	res.FromModel(booking)

	return res, nil
}

func (s *serviceImpl) afterCancel(ctx context.Context, booking model.Booking, slot slotModel.Slot, reason string) {
	c := context.WithoutCancel(ctx)

	if err := s.cache.Delete(c, slotModel.AvailabilityCacheKey(slot.VenueID, slot.Date)); err != nil {
		log.Error().Err(err).Str("slotID", slot.ID).Msg("failed to invalidate availability cache")
	}

	_, err := s.queue.Enqueue(c, JobBookingCancelled, CancelledJobPayload{
		BookingID:        booking.ID,
		UserID:           booking.UserID,
		ConfirmationCode: booking.ConfirmationCode,
		Reason:           reason,
	}, queue.Options{})
	if err != nil {
		log.Error().Err(err).Str("bookingID", booking.ID).Msg("failed to enqueue cancellation job")
	}

	s.bus.Publish(eventbus.TopicSlotUpdated, eventbus.SlotUpdate{
		SlotID:            slot.ID,
		VenueID:           slot.VenueID,
		Status:            slot.Status,
		RemainingCapacity: slot.RemainingCapacity,
	})

	s.bus.Publish(eventbus.TopicBookingUpdated, eventbus.BookingUpdate{
		BookingID:        booking.ID,
		Status:           booking.Status,
		ConfirmationCode: booking.ConfirmationCode,
		UserID:           booking.UserID,
	})
}

func (s *serviceImpl) Get(ctx context.Context, id string) (res dto.BookingResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Get")
	defer scope.End()
	defer scope.TraceIfError(err)

	booking, found, err := s.repo.Get(ctx, id)
	if err != nil {
		return res, failure.Mask(err) //nolint:wrapcheck
	}

	if !found {
		return res, failure.BookingNotFound() //nolint:wrapcheck
	}

	callerID, _ := ctx.Value(constant.ContextKeyUserID).(string)
	callerRole, _ := ctx.Value(constant.ContextKeyUserRole).(string)

	if booking.UserID != callerID && callerRole != constant.RoleAdmin {
		return res, failure.Unauthorized("only the booking owner or an admin may view this booking") //nolint:wrapcheck
	}

	res.FromModel(booking)

	return res, nil
}

func (s *serviceImpl) ListByUser(ctx context.Context, userID string) (res dto.GetBookingsResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".ListByUser")
	defer scope.End()
	defer scope.TraceIfError(err)

	bookings, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return res, failure.Mask(err) //nolint:wrapcheck
	}

	res.FromModels(bookings)

	return res, nil
}
