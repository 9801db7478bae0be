package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/fasanicam/ferme-dashboard"
)

func main() {
	flow, err := ferme.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := flow.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("dashboard runtime exited: %v", err)
	}
}
