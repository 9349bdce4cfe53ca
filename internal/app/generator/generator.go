package generator

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/ghalamif/sensorflow/internal/domain"
	"github.com/ghalamif/sensorflow/internal/ports"
)

// SensorPools lists the sensor ids the generator draws from for each type.
var SensorPools = map[domain.SensorType][]string{
	domain.Environmental: {"env-001", "env-002", "env-003"},
	domain.AirQuality:    {"air-001", "air-002"},
	domain.Water:         {"water-001", "water-002"},
	domain.Energy:        {"energy-001", "energy-002", "energy-003"},
	domain.Motion:        {"motion-001", "motion-002"},
	domain.Light:         {"light-001", "light-002"},
}

type Config struct {
	Interval       time.Duration
	Backoff        time.Duration
	PublishTimeout time.Duration
	Seed           uint64
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 500 * time.Millisecond
	}
	if c.Backoff <= 0 {
		c.Backoff = 5 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 10 * time.Second
	}
}

// Generator emits one synthetic reading per tick: stored locally first, then published.
type Generator struct {
	cfg   Config
	local ports.ReadingStore
	pub   ports.Publisher
	codec ports.Codec
	obs   ports.Observability
	rng   *rand.Rand
	now   func() time.Time
}

// New builds a generator. local may be nil when no local copy is kept.
func New(cfg Config, local ports.ReadingStore, pub ports.Publisher, codec ports.Codec, obs ports.Observability) *Generator {
	cfg.applyDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Generator{
		cfg:   cfg,
		local: local,
		pub:   pub,
		codec: codec,
		obs:   obs,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Run ticks until ctx is cancelled. Failures are logged and followed by a backoff; they
// never stop the loop.
func (g *Generator) Run(ctx context.Context) error {
	g.obs.LogInfo("generator_start", ports.F("interval", g.cfg.Interval.String()))
	ticker := time.NewTicker(g.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.obs.LogInfo("generator_stop")
			return nil
		case <-ticker.C:
		}

		if err := g.Tick(ctx); err != nil {
			g.obs.LogError("generator_tick_failed", err, ports.F("backoff", g.cfg.Backoff.String()))
			select {
			case <-ctx.Done():
				g.obs.LogInfo("generator_stop")
				return nil
			case <-time.After(g.cfg.Backoff):
			}
		}
	}
}

// Tick produces, stores and publishes a single reading.
func (g *Generator) Tick(ctx context.Context) error {
	r := g.Next()

	if g.local != nil {
		if err := g.local.InsertReading(ctx, r); err != nil {
			return fmt.Errorf("local store: %w", err)
		}
	}

	payload, err := g.codec.Encode(r)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}
	env := ports.Envelope{
		ID:          uuid.NewString(),
		Key:         r.SensorID,
		ContentType: g.codec.ContentType(),
		Payload:     payload,
		PublishedAt: r.Timestamp,
	}

	// a publish in flight is allowed to finish after shutdown starts
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.PublishTimeout)
	defer cancel()
	if err := g.pub.Publish(pubCtx, env); err != nil {
		g.obs.IncCounter(ports.MetricPublishFailures, 1)
		return fmt.Errorf("publish %s: %w", r.SensorID, err)
	}

	g.obs.IncCounter(ports.MetricGenerated, 1)
	g.obs.LogInfo("reading_published",
		ports.F("sensor_id", r.SensorID),
		ports.F("sensor_type", string(r.Type())),
		ports.F("message_id", env.ID),
	)
	return nil
}

// Next draws a random reading with values in each field's plausible range.
func (g *Generator) Next() *domain.Reading {
	typ := domain.SensorTypes[g.rng.IntN(len(domain.SensorTypes))]
	pool := SensorPools[typ]

	return &domain.Reading{
		SensorID:    pool[g.rng.IntN(len(pool))],
		Timestamp:   g.now(),
		Measurement: g.measurement(typ),
	}
}

func (g *Generator) measurement(typ domain.SensorType) domain.Measurement {
	u := func(lo, hi float64) *float64 {
		v := lo + g.rng.Float64()*(hi-lo)
		return domain.Float(math.Round(v*100) / 100)
	}
	switch typ {
	case domain.Environmental:
		return domain.EnvironmentalFields{Temperature: u(-10, 30), Humidity: u(0, 100), Pressure: u(970, 1020)}
	case domain.AirQuality:
		return domain.AirQualityFields{CO2: u(400, 1900), VOC: u(0, 1000), PM25: u(0, 50), PM10: u(0, 100)}
	case domain.Water:
		return domain.WaterFields{PH: u(3, 10), Turbidity: u(0, 10), DissolvedOxygen: u(0, 15), Conductivity: u(0, 1000)}
	case domain.Energy:
		return domain.EnergyFields{Voltage: u(220, 240), Current: u(0, 15), PowerConsumption: u(0, 3000)}
	case domain.Motion:
		return domain.MotionFields{AccelerationX: u(-10, 10), AccelerationY: u(-10, 10), AccelerationZ: u(-10, 10), Vibration: u(0, 100)}
	default:
		return domain.LightFields{Illuminance: u(0, 10000), UVIndex: u(0, 11), ColorTemperature: u(2000, 7000)}
	}
}
