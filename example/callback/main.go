package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/sensorflow/pkg/sensorflow"
)

func main() {
	flow, err := sensorflow.ConfFromConfig(sensorflow.DefaultConfig())
	if err != nil {
		log.Fatalf("build flow: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(r sensorflow.Reading) {
		fmt.Printf("%s sensor=%s type=%s id=%d\n",
			r.Timestamp.Format(time.RFC3339Nano),
			r.SensorID,
			r.Type(),
			r.ID,
		)
	}

	if err := flow.Run(ctx, sensorflow.StreamOutCallback(callback)); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("runtime error: %v", err)
	}
}
