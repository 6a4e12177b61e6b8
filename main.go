package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"report-scoring-pipeline/config"
	"report-scoring-pipeline/database"
	"report-scoring-pipeline/handlers"
	"report-scoring-pipeline/metrics"
	"report-scoring-pipeline/rabbitmq"
	"report-scoring-pipeline/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Register Prometheus metrics
	metrics.Register()

	// Initialize database
	db, err := database.NewDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Initialize service
	scoringService := service.NewService(cfg, db)

	// Initialize handlers
	handlers := handlers.NewHandlers(db, scoringService.Engine())

	// Setup HTTP server
	router := gin.Default()

	// API routes
	api := router.Group("/api/v3")
	{
		api.GET("/health", handlers.HealthCheck)
		api.GET("/status", handlers.GetScoringStatus)
		api.POST("/score", handlers.ScoreReport)
		api.GET("/score/:seq", handlers.GetScoreBySeq)
		api.GET("/stats", handlers.GetScoringStats)
		api.GET("/heatmap", handlers.GetHeatmap)
	}

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start the scoring service (creates tables, runs migrations)
	scoringService.Start()

	// Subscribe to the submitted reports queue
	subscriber, err := rabbitmq.NewSubscriber(
		cfg.RabbitMQ.GetAMQPURL(),
		cfg.RabbitMQ.Exchange,
		cfg.RabbitMQ.SubmittedQueue,
		cfg.RabbitMQ.PrefetchCount,
	)
	if err != nil {
		log.Fatalf("Failed to initialize RabbitMQ subscriber: %v", err)
	}
	defer subscriber.Close()

	if err := subscriber.Start(map[string]rabbitmq.CallbackFunc{
		cfg.RabbitMQ.SubmittedRoutingKey: scoringService.HandleSubmittedReport,
	}); err != nil {
		log.Fatalf("Failed to start RabbitMQ subscriber: %v", err)
	}

	// Start HTTP server in a goroutine
	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Stop the scoring service
	scoringService.Stop()

	// Create a deadline for server shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
