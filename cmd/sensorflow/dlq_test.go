package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/ghalamif/sensorflow/pkg/sensorflow"
)

func TestListDeadLetters(t *testing.T) {
	dlq, err := sensorflow.OpenDeadLetterLog(t.TempDir())
	if err != nil {
		t.Fatalf("open dlq: %v", err)
	}
	defer dlq.Close()

	for _, key := range []string{"env-001", "air-002"} {
		_, err := dlq.Append(sensorflow.DeadLetterEntry{
			Envelope: sensorflow.Envelope{ID: "msg-" + key, Key: key, Attempt: 4},
			Error:    "store unavailable",
			FailedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	var out bytes.Buffer
	if err := listDeadLetters(dlq, &out); err != nil {
		t.Fatalf("list: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "msg-env-001\tkey=env-001 attempts=4\tstore unavailable") {
		t.Fatalf("first entry missing:\n%s", got)
	}
	if !strings.Contains(got, "2 pending") {
		t.Fatalf("pending count missing:\n%s", got)
	}
}

func TestReplayRejectsMemoryTransport(t *testing.T) {
	cfg := sensorflow.DefaultConfig()
	cfg.Transport.Kind = "memory"
	err := replayDeadLetters(cfg, nil)
	if err == nil || !strings.Contains(err.Error(), "memory transport") {
		t.Fatalf("expected memory transport error, got %v", err)
	}
}

func TestDlqCommandUsage(t *testing.T) {
	if err := dlqCommand(nil); err == nil {
		t.Fatalf("expected usage error")
	}
	err := dlqCommand([]string{"purge"})
	if err == nil || !strings.Contains(err.Error(), "unknown dlq command") {
		t.Fatalf("expected unknown subcommand error, got %v", err)
	}
}
