package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/observability"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/realtime"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/router"
	"github.com/iliyamo/event-ticketing/internal/scan"
	"github.com/iliyamo/event-ticketing/internal/service"
)

var version = "dev"

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	addr := pflag.String("addr", "", "listen address, overrides APP_PORT")
	migrate := pflag.Bool("migrate", false, "apply the schema before serving")
	pflag.Parse()

	// A missing file is fine; the environment may be set by the platform.
	_ = godotenv.Load(*envFile)

	if err := run(*addr, *migrate); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(addr string, migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := observability.NewLogger(cfg.IsProd(), cfg.ServiceName)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingOptions{
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    !cfg.IsProd(),
		ServiceName: cfg.ServiceName,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	db, err := database.Open(ctx, database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	})
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	if migrate {
		if err := database.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("schema applied")
	}

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		log.Warn("redis unavailable, rate limiting and caches disabled", zap.Error(err))
	} else {
		defer rdb.Close()
	}

	var publisher service.Publisher
	if cfg.RabbitURL != "" {
		p := queue.NewPublisher(cfg.RabbitURL, log)
		defer p.Close()
		publisher = p
		consumer := queue.NewNotificationConsumer(cfg.RabbitURL, cfg.NotificationLog, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("notification consumer stopped", zap.Error(err))
			}
		}()
	} else {
		log.Info("RABBITMQ_URL not set, domain events are not published")
	}

	var pusher service.OccupancyPusher
	if b := realtime.NewBroadcaster(cfg.PubNubPublishKey, cfg.PubNubSubKey, cfg.PubNubUserID, log); b != nil {
		pusher = b
	}

	issuer := service.NewIssuer(scan.NewSigner(cfg.TokenSecret))
	reservations := repository.NewReservationRepo(db)
	occupancy := service.NewOccupancyService(reservations, repository.NewCredentialRepo(db), rdb, cfg.OccupancyCacheTTL, log)
	sweeper := service.NewSweeper(reservations, occupancy, cfg.HoldWindow, log)

	reservationSvc := service.NewReservationService(db, sweeper, issuer, occupancy, publisher, log)
	checkInSvc := service.NewCheckInService(db, sweeper, issuer, occupancy, pusher, publisher, cfg.CheckInAcceptPending, log)
	paymentSvc := service.NewPaymentService(db, sweeper, occupancy, publisher, log)
	cancellationSvc := service.NewCancellationService(db, occupancy, publisher, log)
	catalogSvc := service.NewCatalogService(db, log)

	go sweeper.Run(ctx, cfg.SweepInterval)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.Tracing())
	e.Use(middleware.RequestLogger(log))

	rl := config.LoadRateLimitConfig()
	limit := middleware.NewTokenBucket(rl, rdb, log)
	scanLimit := middleware.NewScanBucket(rl, rdb, log)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	events := handler.NewEventHandler(catalogSvc, cancellationSvc)
	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db)), cfg.JWTSecret)
	router.RegisterPublic(e, events, cache)
	router.RegisterAttendee(e, handler.NewReservationHandler(reservationSvc), cfg.JWTSecret, limit)
	router.RegisterStaff(e, handler.NewCheckInHandler(checkInSvc, occupancy), cfg.JWTSecret, scanLimit)
	router.RegisterOrganizer(e, events, cfg.JWTSecret)
	router.RegisterPayments(e, handler.NewPaymentHandler(paymentSvc), cfg.PaymentSignalSecret)

	if addr == "" {
		addr = ":" + cfg.Port
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("version", version))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(sctx)
}
