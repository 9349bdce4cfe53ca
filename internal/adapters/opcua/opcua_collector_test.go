package opcua

import (
	"context"
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"

	"github.com/ghalamif/sensorflow/internal/domain"
)

func TestValidateRejectsForeignField(t *testing.T) {
	cfg := Config{
		Endpoint: "opc.tcp://localhost:4840",
		Nodes:    []NodeConfig{{NodeID: "ns=2;s=Boiler.PH", SensorType: "Environmental", Field: "ph"}},
	}
	if _, err := NewCollector(cfg, nil); err == nil {
		t.Fatalf("expected ph to be rejected for an environmental node")
	}

	cfg.Nodes[0].SensorType = "Water"
	c, err := NewCollector(cfg, nil)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	if c.cfg.Nodes[0].SensorID != "ns=2;s=Boiler.PH" {
		t.Fatalf("expected sensor id to default to node id, got %q", c.cfg.Nodes[0].SensorID)
	}
}

func TestProcessNotificationEmitsReadings(t *testing.T) {
	c, err := NewCollector(Config{
		Endpoint: "opc.tcp://localhost:4840",
		Nodes: []NodeConfig{
			{NodeID: "ns=2;s=Hall.Temp", SensorID: "env-101", SensorType: "Environmental", Field: "temperature"},
		},
	}, nil)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	c.handleMap = map[uint32]NodeConfig{1: c.cfg.Nodes[0]}

	ts := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	notif := &ua.DataChangeNotification{MonitoredItems: []*ua.MonitoredItemNotification{
		{ClientHandle: 1, Value: &ua.DataValue{Value: ua.MustVariant(float32(21.5)), SourceTimestamp: ts}},
		{ClientHandle: 1, Value: &ua.DataValue{Value: ua.MustVariant("warm")}},
		{ClientHandle: 9, Value: &ua.DataValue{Value: ua.MustVariant(1.0)}},
	}}

	out := make(chan *domain.Reading, 4)
	c.processNotification(context.Background(), notif, out)
	close(out)

	var got []*domain.Reading
	for r := range out {
		got = append(got, r)
	}
	if len(got) != 1 {
		t.Fatalf("expected one reading, got %d", len(got))
	}
	r := got[0]
	if r.SensorID != "env-101" || r.Type() != domain.Environmental || !r.Timestamp.Equal(ts) {
		t.Fatalf("unexpected reading %+v", r)
	}
	if v := r.Fields().Temperature; v == nil || *v != 21.5 {
		t.Fatalf("temperature not mapped: %+v", r.Fields())
	}
}

func TestVariantToFloat(t *testing.T) {
	if v, ok := variantToFloat(ua.MustVariant(int32(-4))); !ok || v != -4 {
		t.Fatalf("int32 conversion: %v %v", v, ok)
	}
	if _, ok := variantToFloat(nil); ok {
		t.Fatalf("nil variant must not convert")
	}
}
