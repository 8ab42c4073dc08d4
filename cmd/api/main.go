package main

import (
	"context"
	"flag"
	"log"

	"github.com/clouddev-platform/auth-service/internal/app/bootstrap"
)

func main() {
	configPath := flag.String("config", "configs/default.yaml", "path to the service configuration file")
	flag.Parse()

	ctx := context.Background()
	runtime, err := bootstrap.NewRuntime(ctx, *configPath)
	if err != nil {
		log.Fatalf("api startup failed: %v", err)
	}
	if err := runtime.RunAPI(ctx); err != nil {
		log.Fatalf("api server exited: %v", err)
	}
}
