package main

import (
	"context"
	"log"

	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/app/bootstrap"
)

func main() {
	ctx := context.Background()
	rt, err := bootstrap.NewRuntime(ctx, "configs/default.yaml")
	if err != nil {
		log.Fatal(err)
	}
	if err := rt.RunWorker(ctx); err != nil {
		log.Fatal(err)
	}
}
