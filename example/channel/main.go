package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/fasanicam/ferme-dashboard"
)

func main() {
	flow, err := ferme.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, events, closeEvents := ferme.NewChannelSubscriber(64)
	defer closeEvents()

	go printUpdates("serre", events)

	if err := flow.Run(ctx, ferme.StreamOutSubscriber(sub)); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("runtime error: %v", err)
	}
}

func printUpdates(name string, events <-chan ferme.Event) {
	for ev := range events {
		switch p := ev.Data.(type) {
		case ferme.UpdateData:
			fmt.Printf("[%s] %s/%s = %s\n", name, p.Module, p.Variable, p.Value)
		case ferme.DeleteData:
			fmt.Printf("[%s] %s/%s removed\n", name, p.Module, p.Variable)
		}
	}
}
