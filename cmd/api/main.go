package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dheerajbunny/gocomet-ride/internal/database"
	"github.com/dheerajbunny/gocomet-ride/internal/dispatch"
	"github.com/dheerajbunny/gocomet-ride/internal/handlers"
	"github.com/dheerajbunny/gocomet-ride/internal/ingest"
	"github.com/dheerajbunny/gocomet-ride/internal/middleware"
	"github.com/dheerajbunny/gocomet-ride/internal/payments"
	"github.com/dheerajbunny/gocomet-ride/internal/rides"
	"github.com/dheerajbunny/gocomet-ride/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	db, err := database.InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get database instance: %v", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	rdb, err := services.InitRedis()
	if err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}

	cache := services.NewCache(rdb)
	surge := services.NewSurgeEngine(services.NewRedisDemandCounter(rdb))

	hub := services.NewHub()
	go hub.Run()

	var producer *ingest.KafkaProducer
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		topic := os.Getenv("KAFKA_TOPIC")
		if topic == "" {
			topic = "driver-locations"
		}
		producer = ingest.NewKafkaProducer(strings.Split(brokers, ","), topic)
		defer producer.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rideStore := rides.NewGormStore(db)

	dispatcher := &dispatch.Dispatcher{
		Store:      rideStore,
		Matcher:    &dispatch.Matcher{Source: rideStore},
		Cache:      cache,
		Hub:        hub,
		Workers:    envInt("DISPATCH_WORKERS", 4),
		StallAfter: 30 * time.Second,
	}
	dispatcher.Start(ctx)

	rideSvc := &rides.Service{
		Store:    rideStore,
		Surge:    surge,
		Idem:     services.NewRideIdempotencyStore(rdb),
		Cache:    cache,
		Hub:      hub,
		Dispatch: dispatcher,
	}

	paymentSvc := &payments.Service{
		Store:   payments.NewGormStore(db),
		Cache:   cache,
		Idem:    services.NewPaymentIdempotencyStore(rdb),
		Workers: envInt("SETTLEMENT_WORKERS", 2),
	}
	paymentSvc.Start(ctx)

	r := gin.Default()
	r.Use(middleware.RequestLatency())

	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"*"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Idempotency-Key"}
	r.Use(cors.New(config))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		riders := v1.Group("/riders")
		{
			riders.POST("", handlers.RegisterRider(rideSvc))
			riders.GET("/:id", handlers.GetRider(rideSvc))
		}

		drivers := v1.Group("/drivers")
		{
			drivers.POST("", handlers.RegisterDriver(rideSvc))
			drivers.GET("/:id", handlers.GetDriver(rideSvc))
			drivers.POST("/:id/location", handlers.UpdateDriverLocation(rideSvc, producer))
			drivers.PATCH("/:id/status", handlers.SetDriverStatus(rideSvc))
			drivers.POST("/:id/accept", handlers.AcceptRide(rideSvc))
		}

		ridesGroup := v1.Group("/rides")
		{
			ridesGroup.POST("", handlers.CreateRide(rideSvc))
			ridesGroup.GET("/:id", handlers.GetRide(rideSvc))
			ridesGroup.GET("/:id/watch", handlers.WatchRide(hub))
		}

		trips := v1.Group("/trips")
		{
			trips.GET("/:id", handlers.GetTrip(rideSvc))
			trips.POST("/:id/start", handlers.StartTrip(rideSvc))
			trips.POST("/:id/pause", handlers.PauseTrip(rideSvc))
			trips.POST("/:id/end", handlers.EndTrip(rideSvc))
		}

		pay := v1.Group("/payments")
		{
			pay.POST("", handlers.CreatePayment(paymentSvc))
			pay.GET("/:rideId", handlers.GetPaymentForRide(paymentSvc))
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("invalid %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return n
}
