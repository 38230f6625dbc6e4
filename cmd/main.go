package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	depthRepository "github.com/tradewire/dexstream/internal/repository/depth"
	orderRepository "github.com/tradewire/dexstream/internal/repository/order"
	snapshotRepository "github.com/tradewire/dexstream/internal/repository/snapshot"
	"github.com/tradewire/dexstream/internal/router"
	"github.com/tradewire/dexstream/internal/stream"
	depthUseCase "github.com/tradewire/dexstream/internal/usecase/depth"
	"github.com/tradewire/dexstream/internal/websocket"

	_ "github.com/lib/pq"
)

func envInt(key string, def int64) int64 {
	v, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return def
	}
	return v
}

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.Default()
	//load environment variable
	if err := godotenv.Load(); err != nil {
		logger.Println("no .env file, reading environment directly")
	}

	dbUser := os.Getenv("DB_USER")
	dbPass := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")

	port := envInt("PORT", 8080)
	snapshotIntervalMs := envInt("SNAPSHOT_INTERVAL_MS", depthUseCase.DefaultSnapshotIntervalMs)
	retentionMs := envInt("SNAPSHOT_RETENTION_MS", depthUseCase.DefaultRetentionMs)
	ctrlCooldownMs := envInt("WS_CONTROL_COOLDOWN_MS", 200)
	levelCap := envInt("DEPTH_LEVEL_CAP", depthUseCase.DefaultLevelCap)

	// construct DSN
	pgInfo := fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
		dbUser, dbPass, dbHost, dbPort, dbName,
	)
	db, err := sqlx.Connect("postgres", pgInfo)
	if err != nil {
		logger.Fatalf("error connecting postgres: %v", err)
	}

	depthRepo := depthRepository.NewDepthRepository(db)
	snapshotRepo := snapshotRepository.NewSnapshotRepository(db)
	orderRepo := orderRepository.NewOrderRepository(db)

	aggregator := depthUseCase.NewDepthAggregator(rootCtx, depthUseCase.AggregatorOpts{
		DepthRepo:          depthRepo,
		SnapshotRepo:       snapshotRepo,
		OrderRepo:          orderRepo,
		Logger:             logger,
		SnapshotIntervalMs: snapshotIntervalMs,
		RetentionMs:        retentionMs,
		LevelCap:           int(levelCap),
	})

	hub := websocket.NewHub(logger, time.Duration(ctrlCooldownMs)*time.Millisecond)

	serveMux := http.NewServeMux()

	//start ws on servemux: /ws is public, /ws/<key> is user-scoped
	serveMux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWS(hub, w, r)
	})
	serveMux.HandleFunc("/ws/", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWS(hub, w, r)
	})

	// publishers go live; until here they were no-ops. The chain-event
	// consumer drives aggregator.Apply and the typed stream publishers.
	stream.Use(hub, logger)

	router.BindRouter(router.BindRouterOpts{
		ServerRouter: serveMux,
		Books:        hub,
		Depth:        aggregator,
	})
	logger.Println("finished binding router")

	server := http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router.Cors(serveMux),
	}

	// Start server in background.
	go func() {
		logger.Printf("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen error: %v", err)
		}
	}()

	// Block until we get a signal (or parent context canceled).
	<-rootCtx.Done()
	logger.Println("shutdown signal received")

	// Give in-flight requests up to 10s to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		// If graceful shutdown times out, force close.
		logger.Printf("graceful shutdown failed: %v; forcing close", err)
		_ = server.Close()
	}
	hub.Shutdown()

	logger.Println("server stopped")
}
