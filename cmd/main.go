package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"towfleet/internal/config"
	"towfleet/internal/drivers"
	"towfleet/internal/negotiation"
	"towfleet/internal/notify"
	"towfleet/internal/pricing"
	"towfleet/internal/requests"
	"towfleet/internal/users"
	"towfleet/migrations"
	"towfleet/pkg/db"
	"towfleet/pkg/jwt"
	"towfleet/pkg/kafka"
	tredis "towfleet/pkg/redis"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()

	// ── 1. JWT secret ──
	if err := jwt.Init(cfg.JWTSecret); err != nil {
		log.Fatal(err)
	}

	// ── 2. PostgreSQL ──
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	if err := database.RunMigrations(ctx, migrations.FS); err != nil {
		log.Fatal("migrations failed:", err)
	}

	// ── 3. Redis ──
	redisClient, err := tredis.NewClient(cfg.RedisAddr)
	if err != nil {
		log.Fatal(err)
	}
	defer redisClient.Close()

	// ── 4. Kafka ──
	kafkaClient := kafka.NewClient(cfg.KafkaBrokers)

	if err := kafkaClient.EnsureTopics(ctx,
		kafka.TopicTowRequested,
		kafka.TopicOfferMade,
		kafka.TopicPriceAgreed,
		kafka.TopicTowAccepted,
		kafka.TopicTowCompleted,
	); err != nil {
		log.Fatal(err)
	}

	// ── 5. Stores and services ──
	userStore := users.NewPgStore(database.Pool)
	driverStore := drivers.NewPgStore(database.Pool)
	pricingStore := pricing.NewPgStore(database.Pool)
	requestStore := requests.NewPgStore(database.Pool)
	offerStore := negotiation.NewPgOfferStore(database.Pool)

	driverSvc := drivers.NewService(driverStore, redisClient)
	userSvc := users.NewService(userStore, driverStore)
	pricingSvc := pricing.NewService(pricingStore, pricing.Defaults{
		PricePerMile: cfg.DefaultPricePerMile,
		PickupFee:    cfg.DefaultPickupFee,
	})

	wsHub := notify.NewHub()

	negotiationSvc := negotiation.NewService(
		offerStore, requestStore, driverSvc, pricingSvc, driverSvc, kafkaClient, wsHub,
		negotiation.Config{
			SearchRadiusKm: cfg.SearchRadiusKm,
			DriverOfferTTL: cfg.DriverOfferTTL,
			NegotiationTTL: cfg.NegotiationOfferTTL,
			SweepInterval:  cfg.SweepInterval,
		})

	requestSvc := requests.NewService(
		requestStore, negotiationSvc, driverSvc, kafkaClient, redisClient,
		cfg.DirectAcceptRadiusKm, cfg.NearbyRadiusKm)

	// ── 6. Background workers ──
	driverSvc.StartCompletedConsumer(ctx, kafkaClient)
	go negotiationSvc.RunExpirySweeper(ctx)

	// ── 7. HTTP router ──
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(jwt.OptionalAuth)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"towfleet"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	pricingHandler := pricing.NewHandler(pricingSvc)
	userHandler := users.NewHandler(userSvc)

	r.Route("/api", func(api chi.Router) {
		api.Mount("/auth", userHandler.Routes())

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(jwt.RequireAuth)
			admin.Use(jwt.RequireRole("admin"))
			userHandler.RegisterAdmin(admin)
			pricingHandler.RegisterAdmin(admin)
		})

		api.Route("/drivers", func(d chi.Router) {
			d.Use(jwt.RequireAuth)
			drivers.NewHandler(driverSvc).Register(d)
			d.Group(func(g chi.Router) {
				g.Use(jwt.RequireRole("driver"))
				pricingHandler.RegisterDriver(g)
			})
		})

		api.Route("/tow-requests", func(t chi.Router) {
			t.Use(jwt.RequireAuth)
			requests.NewHandler(requestSvc).Register(t)
			negotiation.NewHandler(negotiationSvc).Register(t)
		})
	})

	r.Mount("/ws", wsHub.Routes())

	// ── 8. Start server ──
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		log.Printf("towfleet listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// ── 9. Graceful shutdown ──
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	srv.Shutdown(shutCtx)
	cancel() // stop consumers and the sweeper
}
