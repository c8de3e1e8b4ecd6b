package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Dis3z/reserve-api/config"
	"github.com/Dis3z/reserve-api/infras/kafka"
	bookingService "github.com/Dis3z/reserve-api/internal/domains/booking/service"
	slotService "github.com/Dis3z/reserve-api/internal/domains/slot/service"
	"github.com/Dis3z/reserve-api/internal/queue"
)

const (
	JobReclaimExpiredHolds = "slot:reclaim-expired-holds"

	reclaimCronPattern = "*/5 * * * *"
)

// Registrar binds every background job the engine runs: notification intents
// for booking lifecycle events, and the recurring hold reclaimer.
type Registrar struct {
	cfg     *config.Config
	queue   queue.Queue
	kafka   kafka.Client
	slotSvc slotService.Slot
}

func NewRegistrar(cfg *config.Config, q queue.Queue, kafkaClient kafka.Client, slotSvc slotService.Slot) *Registrar {
	return &Registrar{
		cfg:     cfg,
		queue:   q,
		kafka:   kafkaClient,
		slotSvc: slotSvc,
	}
}

// Register wires all workers and recurring producers.
func (r *Registrar) Register(ctx context.Context) error {
	concurrency := r.cfg.WorkerConcurrency
	limit := queue.RateLimit{
		Max:    r.cfg.QueueRateMax,
		Window: time.Duration(r.cfg.QueueRateWindowMS) * time.Millisecond,
	}

	if err := r.queue.RegisterWorker(bookingService.JobBookingConfirmed, r.handleBookingConfirmed, concurrency, limit); err != nil {
		return fmt.Errorf("failed to register confirmed worker: %w", err)
	}

	if err := r.queue.RegisterWorker(bookingService.JobBookingCancelled, r.handleBookingCancelled, concurrency, limit); err != nil {
		return fmt.Errorf("failed to register cancelled worker: %w", err)
	}

	if err := r.queue.RegisterWorker(JobReclaimExpiredHolds, r.handleReclaimExpiredHolds, 1, queue.RateLimit{}); err != nil {
		return fmt.Errorf("failed to register reclaim worker: %w", err)
	}

	if _, err := r.queue.Enqueue(ctx, JobReclaimExpiredHolds, nil, queue.Options{CronPattern: reclaimCronPattern}); err != nil {
		return fmt.Errorf("failed to schedule reclaim job: %w", err)
	}

	return nil
}

// handleBookingConfirmed publishes the notification intent; delivery to
// push/SMS/email channels happens downstream of the topic.
func (r *Registrar) handleBookingConfirmed(ctx context.Context, job queue.Job) error {
	payload, err := queue.Unmarshal[bookingService.ConfirmedJobPayload](job)
	if err != nil {
		return fmt.Errorf("failed to decode confirmed payload: %w", err)
	}

	err = r.kafka.SendMessages(ctx, r.cfg.Kafka.NotificationTopic, kafka.Message{
		Key: payload.BookingID,
		Value: map[string]any{
			"event":            "booking.confirmed",
			"bookingId":        payload.BookingID,
			"userId":           payload.UserID,
			"confirmationCode": payload.ConfirmationCode,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish confirmation intent: %w", err)
	}

	log.Info().
		Str("bookingID", payload.BookingID).
		Int("attempt", job.Attempt).
		Msg("published booking confirmation intent")

	return nil
}

func (r *Registrar) handleBookingCancelled(ctx context.Context, job queue.Job) error {
	payload, err := queue.Unmarshal[bookingService.CancelledJobPayload](job)
	if err != nil {
		return fmt.Errorf("failed to decode cancelled payload: %w", err)
	}

	err = r.kafka.SendMessages(ctx, r.cfg.Kafka.NotificationTopic, kafka.Message{
		Key: payload.BookingID,
		Value: map[string]any{
			"event":            "booking.cancelled",
			"bookingId":        payload.BookingID,
			"userId":           payload.UserID,
			"confirmationCode": payload.ConfirmationCode,
			"reason":           payload.Reason,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish cancellation intent: %w", err)
	}

	log.Info().
		Str("bookingID", payload.BookingID).
		Int("attempt", job.Attempt).
		Msg("published booking cancellation intent")

	return nil
}

func (r *Registrar) handleReclaimExpiredHolds(ctx context.Context, job queue.Job) error {
	reclaimed, err := r.slotSvc.ReclaimExpiredHolds(ctx)
	if err != nil {
		return fmt.Errorf("failed to reclaim expired holds: %w", err)
	}

	if reclaimed > 0 {
		log.Info().Int("reclaimed", reclaimed).Msg("reclaimed expired slot holds")
	}

	return nil
}
