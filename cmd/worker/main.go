package main

import (
	"context"
	"flag"
	"log"

	"github.com/clouddev-platform/auth-service/internal/app/bootstrap"
)

// The worker binary runs only the outbox drain loop. It shares the runtime
// wiring with the API so both see identical configuration and adapters.
func main() {
	configPath := flag.String("config", "configs/default.yaml", "path to the service configuration file")
	flag.Parse()

	ctx := context.Background()
	runtime, err := bootstrap.NewRuntime(ctx, *configPath)
	if err != nil {
		log.Fatalf("worker startup failed: %v", err)
	}
	if err := runtime.RunWorker(ctx); err != nil {
		log.Fatalf("outbox worker exited: %v", err)
	}
}
