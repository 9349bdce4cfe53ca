package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/ghalamif/sensorflow"
)

func main() {
	cfg := sensorflow.DefaultConfig()
	base, err := sensorflow.OpenStore(cfg.Store, nil)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer base.Close()

	st, readings, closeTap := sensorflow.NewChannelStore(base, 32)
	defer closeTap()

	go fanoutWorker("ingest", readings)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := sensorflow.NewRuntime(cfg, sensorflow.WithStore(st))
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}
	if err := rt.Run(ctx, sensorflow.RoleProducer, sensorflow.RoleConsumer); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("runtime error: %v", err)
	}
}

func fanoutWorker(name string, readings <-chan sensorflow.Reading) {
	counts := map[sensorflow.SensorType]int{}
	for r := range readings {
		counts[r.Type()]++
		fmt.Printf("[%s] %s %s (seen %d of this type)\n", name, r.SensorID, r.Type(), counts[r.Type()])
	}
}
