package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"storefront/internal/config"
	"storefront/internal/store/postgres"
	"storefront/internal/worker"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg := config.Load()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	store := postgres.NewStore(pool)
	w := worker.New(store, worker.Config{BatchSize: cfg.BatchSize})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Start(ctx, cfg.PollInterval, w)

	log.Printf("notification-worker polling every %s", cfg.PollInterval)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
}
