package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/sensorflow/pkg/sensorflow"
)

func dlqCommand(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: sensorflow dlq list|replay [--config path]")
	}
	sub := args[0]
	if sub != "list" && sub != "replay" {
		return fmt.Errorf("unknown dlq command %q", sub)
	}

	fs := newFlagSet("dlq " + sub)
	cfgPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	cfg, err := sensorflow.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dlq, err := sensorflow.OpenDeadLetterLog(cfg.DeadLetter.Dir)
	if err != nil {
		return err
	}
	defer dlq.Close()

	if sub == "list" {
		return listDeadLetters(dlq, os.Stdout)
	}
	return replayDeadLetters(cfg, dlq)
}

func listDeadLetters(dlq sensorflow.DeadLetterLog, w io.Writer) error {
	var n int
	err := sensorflow.PendingDeadLetters(dlq, func(id sensorflow.DeadLetterID, e sensorflow.DeadLetterEntry) error {
		n++
		fmt.Fprintf(w, "%d\t%s\t%s\tkey=%s attempts=%d\t%s\n",
			id,
			e.FailedAt.Format(time.RFC3339),
			e.Envelope.ID,
			e.Envelope.Key,
			e.Envelope.Attempt,
			e.Error,
		)
		return nil
	})
	if err != nil {
		return err
	}
	st := dlq.Stats()
	fmt.Fprintf(w, "%d pending, %d bytes on disk\n", n, st.SizeBytes)
	return nil
}

func replayDeadLetters(cfg *sensorflow.Config, dlq sensorflow.DeadLetterLog) error {
	if cfg.Transport.Kind == "memory" {
		return errors.New("replay needs a broker transport; the memory transport does not outlive its process")
	}

	log := sensorflow.NewLogger(cfg)
	obs := sensorflow.LogObservability(log)
	tr, err := sensorflow.OpenTransport(cfg, dlq, obs, log)
	if err != nil {
		return err
	}
	defer tr.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := sensorflow.ReplayDeadLetters(ctx, dlq, tr, obs)
	fmt.Printf("replayed %d messages\n", n)
	return err
}
