package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/config"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/handler"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/middleware"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/notify"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/obs"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/payment"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/queue"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/router"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: .env: %v", err)
	}
	cfg := config.Load()
	mk, err := config.LoadMarketplace()
	if err != nil {
		log.Fatal(err)
	}
	tz, err := mk.Location()
	if err != nil {
		log.Fatalf("config: TIMEZONE %q: %v", mk.Timezone, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer := obs.InitTracer("marketplace-api", cfg.Env)

	st, err := openStores(ctx, cfg, mk)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()
	seedAdmin(ctx, st.accounts, os.Getenv("ADMIN_EMAIL"), os.Getenv("ADMIN_PASSWORD"), cfg.BcryptCost)

	var rdb *redis.Client
	if c, err := config.NewRedisClient(config.LoadRedisConfig()); err != nil {
		log.Printf("redis: unavailable, rate limiting, caching and realtime notifications disabled: %v", err)
	} else {
		rdb = c
		defer rdb.Close()
	}
	var notifier service.Notifier = notify.LogNotifier{}
	if rdb != nil {
		notifier = notify.NewRedisNotifier(rdb)
	}

	// Activities go through RabbitMQ when configured; the consumer writes
	// them to the store. Without a broker they are written directly.
	var activity service.ActivityLogger = st.activity
	if mk.RabbitURL != "" {
		pub, err := queue.NewPublisher(mk.RabbitURL, mk.ActivityExchange)
		if err != nil {
			log.Printf("rabbitmq: publisher unavailable, logging activities directly: %v", err)
		} else {
			defer pub.Close()
			activity = queue.NewActivityPublisher(pub)
			go func() {
				err := queue.StartActivityConsumer(ctx, queue.ConsumerConfig{
					URL:      mk.RabbitURL,
					Exchange: mk.ActivityExchange,
					Queue:    mk.ActivityQueue,
				}, st.activity)
				log.Printf("activity-consumer: stopped: %v", err)
			}()
		}
	}

	var gateway service.PaymentGateway
	if mk.OmisePublicKey != "" && mk.OmiseSecretKey != "" {
		client, err := payment.NewOmiseClient(mk.OmisePublicKey, mk.OmiseSecretKey)
		if err != nil {
			log.Fatalf("omise: %v", err)
		}
		gateway = payment.NewOmiseGateway(client)
	} else {
		log.Printf("omise: keys not set, payments are disabled")
	}

	svc := service.NewBookingService(service.Deps{
		Bookings:  st.bookings,
		Payments:  st.payments,
		Users:     st.users,
		Directory: st.directory,
		Sequence:  st.sequence,
		Gateway:   gateway,
		Notifier:  notifier,
		Workflow:  st.workflow,
		Activity:  activity,
	}, service.Options{
		Pricing:              service.NewPricingEngine(mk.CommissionRate, mk.SLAPenaltyRate),
		Proximity:            service.NewProximityTracker(mk.ProximityRadiusM, mk.ProximityResetM, mk.ProximityDwell),
		MatchRadiusKm:        mk.MatchRadiusKm,
		ProfileRefreshMeters: mk.ProfileRefreshM,
		Currency:             mk.Currency,
		BookingRefPrefix:     mk.BookingRefPrefix,
		PaymentRefPrefix:     mk.PaymentRefPrefix,
		Location:             tz,
	})

	rl := config.LoadRateLimitConfig()
	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, st.accounts, st.tokens), cfg.JWTSecret)
	router.RegisterBookings(e,
		handler.NewBookingHandler(svc, st.workflows),
		handler.NewPaymentHandler(svc),
		cfg.JWTSecret,
		router.Limits{
			API:      middleware.NewTokenBucket(rl, rdb),
			Location: middleware.NewLocationBucket(rl, rdb),
		},
	)
	router.RegisterCatalog(e, handler.NewCatalogHandler(st.catalog), cache.Middleware(), cfg.JWTSecret)
	router.RegisterAdmin(e, handler.NewAdminHandler(st.catalog, cache, svc.Ledger()), cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s, store=%s)", addr, cfg.Env, cfg.StoreDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if err := shutdownTracer(sctx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
}
