package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ghalamif/sensorflow/pkg/sensorflow"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "dlq":
		err = dlqCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		slog.Error("sensorflow command failed", "command", cmd, "err", err)
		os.Exit(1)
	}
}

func runCommand(args []string) error {
	fs := newFlagSet("run")
	cfgPath := fs.String("config", "", "Path to configuration file (optional, SENSORFLOW_* env vars also apply)")
	roleNames := fs.StringSlice("role", []string{"all"}, "Roles to run: producer, consumer, api or all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	roles, err := sensorflow.ParseRoles(*roleNames)
	if err != nil {
		return err
	}
	cfg, err := sensorflow.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rt, err := sensorflow.NewRuntime(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rt.Run(ctx, roles...)
}

func printUsage() {
	fmt.Printf(`SensorFlow CLI

Usage:
  sensorflow <command> [flags]

Commands:
  run        Start the producer, consumer and/or API roles
  validate   Validate a config file, or a file of readings against the plausibility rules
  stats      Poll the Prometheus metrics endpoint and print live counters
  dlq        Inspect (list) or republish (replay) dead-lettered messages

Examples:
  sensorflow run --config ./configs/sensorflow.yaml --role producer
  sensorflow run --config ./configs/sensorflow.yaml --role consumer,api
  sensorflow validate --config ./configs/sensorflow.yaml
  sensorflow validate --readings ./readings.ndjson
  sensorflow stats --url http://localhost:9100/metrics --interval 1s
  sensorflow dlq list --config ./configs/sensorflow.yaml
  sensorflow dlq replay --config ./configs/sensorflow.yaml
`)
}
