package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/Dis3z/reserve-api/config"
	"github.com/Dis3z/reserve-api/infras/kafka"
	"github.com/Dis3z/reserve-api/infras/otel"
	"github.com/Dis3z/reserve-api/infras/postgres"
	"github.com/Dis3z/reserve-api/infras/redis"
	"github.com/Dis3z/reserve-api/internal/eventbus"
	bookingHandler "github.com/Dis3z/reserve-api/internal/handlers/booking"
	eventsHandler "github.com/Dis3z/reserve-api/internal/handlers/events"
	slotHandler "github.com/Dis3z/reserve-api/internal/handlers/slot"
	"github.com/Dis3z/reserve-api/internal/jobs"
	"github.com/Dis3z/reserve-api/internal/queue"
	"github.com/Dis3z/reserve-api/shared/cache"
	"github.com/Dis3z/reserve-api/shared/lock"
	"github.com/Dis3z/reserve-api/shared/logger"
	"github.com/Dis3z/reserve-api/transport/http"
	"github.com/Dis3z/reserve-api/transport/http/middleware"
	"github.com/Dis3z/reserve-api/transport/http/router"

	bookingRepo "github.com/Dis3z/reserve-api/internal/domains/booking/repository"
	bookingService "github.com/Dis3z/reserve-api/internal/domains/booking/service"
	slotRepo "github.com/Dis3z/reserve-api/internal/domains/slot/repository"
	slotService "github.com/Dis3z/reserve-api/internal/domains/slot/service"
	userRepo "github.com/Dis3z/reserve-api/internal/domains/user/repository"
)

func main() {
	cfg := config.Get()

	logger.InitLogger()
	logger.SetLogLevel(cfg)

	// Infrastructure.
	ot := otel.New(cfg)
	db := postgres.New(cfg)
	redisClient := redis.New(cfg)
	kafkaClient := kafka.New(cfg)

	// Shared services.
	txRunner := postgres.NewTxRunner(db)
	redisCache := cache.NewRedisCache(redisClient, ot)
	slotLock := lock.NewRedisLock(redisClient, ot)
	bus := eventbus.New(eventbus.DefaultBufferSize)
	jobQueue := queue.NewRedisQueue(redisClient, queue.Config{}, ot)

	// Domains.
	slots := slotRepo.New(db, ot)
	bookings := bookingRepo.New(db, ot)
	users := userRepo.New(db, ot)

	slotSvc := slotService.New(slots, txRunner, cfg, redisCache, bus, ot)
	bookingSvc := bookingService.New(bookings, slots, users, txRunner, cfg, redisCache, slotLock, jobQueue, bus, ot)

	// Background jobs.
	registrar := jobs.NewRegistrar(cfg, jobQueue, kafkaClient, slotSvc)
	if err := registrar.Register(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to register queue workers")
	}

	// Transport.
	handlers := router.DomainHandlers{
		Slot:    slotHandler.New(slotSvc, ot),
		Booking: bookingHandler.New(bookingSvc, ot),
		Events:  eventsHandler.New(bus),
	}

	server := http.New(cfg, router.New(handlers), middleware.NewAppMiddleware(ot))
	server.OnShutdown = append(server.OnShutdown, func(ctx context.Context) {
		if err := jobQueue.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to drain job queue")
		}
	})

	server.Serve()
}
