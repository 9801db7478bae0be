package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fasanicam/ferme-dashboard/pkg/ferme"
)

// Feeds a few values through an in-process injector and prints every event.
func main() {
	cfg := ferme.DefaultConfig()
	cfg.Transport.Kind = ferme.TransportLoopback
	cfg.Storage.Path = "./callback.db"
	cfg.WAL.Dir = "./callback-wal"
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Metrics.Addr = ""

	injector := ferme.NewInjector()
	flow, err := ferme.ConfFromConfig(cfg)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	callback := func(ev ferme.Event) {
		fmt.Printf("%s %-12s %+v\n", time.Now().Format(time.RFC3339Nano), ev.Kind, ev.Data)
	}

	go func() {
		time.Sleep(200 * time.Millisecond)
		for _, v := range []string{"21.5", "21.7", ""} {
			if err := injector.InjectValue(ctx, "bzh/mecatro/dashboard/serre/temperature", v); err != nil {
				log.Printf("inject: %v", err)
			}
		}
	}()

	err = flow.StreamIN(ferme.StreamInTransport(injector)).Run(ctx, ferme.StreamOutCallback(callback))
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Fatalf("runtime error: %v", err)
	}
}
