package main // Entry point package

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/spotmarket/slot-reservation/internal/booking"
	"github.com/spotmarket/slot-reservation/internal/config"
	"github.com/spotmarket/slot-reservation/internal/database"
	"github.com/spotmarket/slot-reservation/internal/handler"
	"github.com/spotmarket/slot-reservation/internal/payment"
	"github.com/spotmarket/slot-reservation/internal/queue"
	"github.com/spotmarket/slot-reservation/internal/repository"
	"github.com/spotmarket/slot-reservation/internal/router"
	"github.com/spotmarket/slot-reservation/internal/worker"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Migrate(migrateCtx, db); err != nil {
		cancel()
		log.Fatalf("migrate: %v", err)
	}
	cancel()

	reservations := repository.NewReservationRepo(db)
	resources := repository.NewResourceRepo(db)
	coupons := repository.NewCouponRepo(db)

	var gateway booking.PaymentGateway
	if cfg.PaymentGatewayURL != "" {
		gateway = payment.NewHTTPGateway(cfg.PaymentGatewayURL, time.Duration(cfg.PaymentTimeoutSec)*time.Second)
	} else {
		log.Println("no payment gateway configured; approving all charges (dev mode)")
		gateway = payment.DevGateway{}
	}

	engine := booking.New(reservations, resources, gateway, coupons,
		time.Duration(cfg.HoldTTLMin)*time.Minute)

	// Redis backs rate limiting and the availability cache.  A nil
	// client disables both.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; rate limiting and response caching disabled")
	}

	publishEvents := cfg.AMQPURL != ""
	if publishEvents {
		go queue.StartBookingConsumer(cfg.AMQPURL)
	} else {
		log.Println("no AMQP_URL configured; booking events disabled")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go worker.NewExpirer(engine, time.Duration(cfg.ExpirySweepSec)*time.Second).Run(ctx)

	e := echo.New()
	e.HideBanner = true
	router.Register(e, router.Deps{
		Booking:      handler.NewBookingHandler(engine, resources, publishEvents),
		Resources:    handler.NewResourceHandler(resources),
		Availability: handler.NewAvailabilityHandler(engine),
		JWTSecret:    cfg.JWTSecret,
		Redis:        rdb,
		RateLimit:    config.LoadRateLimitConfig(),
		Cache:        config.LoadCacheConfig(),
	})

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
