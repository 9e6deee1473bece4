package main

import (
	"context"
	"log"
	"net/http"

	"github.com/jqzhao7/SUPERSONIC/internal/api"
	"github.com/jqzhao7/SUPERSONIC/internal/bootstrap"
	"github.com/jqzhao7/SUPERSONIC/internal/config"
	"github.com/jqzhao7/SUPERSONIC/internal/observability"
)

func main() {
	cfg := config.FromEnv()

	shutdownTrace, err := observability.InitTracingFromEnv("supersonic-schedule-service")
	if err != nil {
		log.Fatalf("init tracing: %v", err)
	}
	defer func() { _ = shutdownTrace(context.Background()) }()

	manager, backends, err := bootstrap.NewManagerFromEnv(cfg)
	if err != nil {
		log.Fatalf("bootstrap schedule service: %v", err)
	}
	defer manager.Shutdown(context.Background())

	server := api.NewServer(manager, backends)
	log.Printf("supersonic schedule service listening on :%s (step deadline %s)", cfg.Port, cfg.StepDeadline)
	if err := http.ListenAndServe(":"+cfg.Port, server.Handler()); err != nil {
		log.Fatalf("schedule service failed: %v", err)
	}
}
