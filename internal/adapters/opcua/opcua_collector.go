package opcua

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/ghalamif/sensorflow/internal/domain"
	"github.com/ghalamif/sensorflow/internal/ports"
)

// Config captures the runtime details required to open an OPC UA session.
type Config struct {
	Enabled          bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint         string        `yaml:"endpoint" mapstructure:"endpoint"`
	Username         string        `yaml:"username" mapstructure:"username"`
	Password         string        `yaml:"password" mapstructure:"password"`
	SecurityMode     string        `yaml:"security_mode" mapstructure:"security_mode"`
	SecurityPolicy   string        `yaml:"security_policy" mapstructure:"security_policy"`
	ApplicationName  string        `yaml:"application_name" mapstructure:"application_name"`
	PublishInterval  time.Duration `yaml:"publish_interval" mapstructure:"publish_interval"`
	SamplingInterval time.Duration `yaml:"sampling_interval" mapstructure:"sampling_interval"`
	Nodes            []NodeConfig  `yaml:"nodes" mapstructure:"nodes"`
}

// NodeConfig maps a monitored node onto one measurement field of one sensor.
type NodeConfig struct {
	NodeID     string `yaml:"node_id" mapstructure:"node_id"`
	SensorID   string `yaml:"sensor_id" mapstructure:"sensor_id"`
	SensorType string `yaml:"sensor_type" mapstructure:"sensor_type"`
	Field      string `yaml:"field" mapstructure:"field"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "SensorFlow Collector"
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = 250 * time.Millisecond
	}
	if c.SamplingInterval < 0 {
		c.SamplingInterval = 0
	}
	for i := range c.Nodes {
		if c.Nodes[i].SensorID == "" {
			c.Nodes[i].SensorID = c.Nodes[i].NodeID
		}
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if len(c.Nodes) == 0 {
		return errors.New("at least one node must be configured")
	}
	for _, n := range c.Nodes {
		typ, err := domain.ParseSensorType(n.SensorType)
		if err != nil {
			return fmt.Errorf("node %q: %w", n.NodeID, err)
		}
		if !domain.Owns(typ, n.Field) {
			return fmt.Errorf("node %q: field %q is not a %s field", n.NodeID, n.Field, typ)
		}
	}
	return nil
}

// Collector turns OPC UA data-change notifications into readings, one reading per
// monitored node per change.
type Collector struct {
	cfg       Config
	log       *slog.Logger
	handleMap map[uint32]NodeConfig

	mu   sync.Mutex
	sess *session
	wg   sync.WaitGroup
}

// session is one connected client with its subscription.
type session struct {
	client *opcua.Client
	sub    *opcua.Subscription
	cancel context.CancelFunc
}

func (s *session) close(ctx context.Context) error {
	s.cancel()
	var err error
	if s.sub != nil {
		if e := s.sub.Cancel(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}
	if e := s.client.Close(ctx); e != nil && !errors.Is(e, context.Canceled) {
		err = errors.Join(err, e)
	}
	return err
}

// NewCollector validates cfg. logger may be nil.
func NewCollector(cfg Config, logger *slog.Logger) (*Collector, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Collector{cfg: cfg, log: logger}, nil
}

// Start subscribes to every configured node and emits one reading per data change.
func (c *Collector) Start(out chan<- *domain.Reading) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		return fmt.Errorf("opcua collector already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess, notifications, err := c.connect(ctx, cancel)
	if err != nil {
		return err
	}
	handles, err := c.monitor(ctx, sess.sub)
	if err != nil {
		_ = sess.close(ctx)
		return err
	}

	c.sess = sess
	c.handleMap = handles
	c.log.Info("opcua_collector_started", "endpoint", c.cfg.Endpoint, "nodes", len(handles))

	c.wg.Add(1)
	go c.consume(ctx, notifications, out)
	return nil
}

func (c *Collector) connect(ctx context.Context, cancel context.CancelFunc) (*session, chan *opcua.PublishNotificationData, error) {
	client, err := opcua.NewClient(c.cfg.Endpoint, c.clientOptions()...)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("opcua connect: %w", err)
	}

	sess := &session{client: client, cancel: cancel}
	notifications := make(chan *opcua.PublishNotificationData, len(c.cfg.Nodes)*4)
	sess.sub, err = client.Subscribe(ctx, &opcua.SubscriptionParameters{Interval: c.cfg.PublishInterval}, notifications)
	if err != nil {
		_ = sess.close(ctx)
		return nil, nil, fmt.Errorf("opcua subscribe: %w", err)
	}
	return sess, notifications, nil
}

// monitor registers every node on sub. Client handles start at 1 and follow config order.
func (c *Collector) monitor(ctx context.Context, sub *opcua.Subscription) (map[uint32]NodeConfig, error) {
	handles := make(map[uint32]NodeConfig, len(c.cfg.Nodes))
	for i, node := range c.cfg.Nodes {
		id, err := ua.ParseNodeID(node.NodeID)
		if err != nil {
			return nil, fmt.Errorf("parse node id %q: %w", node.NodeID, err)
		}
		handle := uint32(i + 1)
		req := opcua.NewMonitoredItemCreateRequestWithDefaults(id, ua.AttributeIDValue, handle)
		if c.cfg.SamplingInterval > 0 {
			req.RequestedParameters.SamplingInterval = float64(c.cfg.SamplingInterval.Milliseconds())
		}

		res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
		switch {
		case err != nil:
			return nil, fmt.Errorf("monitor node %q: %w", node.NodeID, err)
		case len(res.Results) == 0:
			return nil, fmt.Errorf("monitor node %q: empty result", node.NodeID)
		case res.Results[0].StatusCode != ua.StatusOK:
			return nil, fmt.Errorf("monitor node %q: %s", node.NodeID, res.Results[0].StatusCode)
		}
		handles[handle] = node
	}
	return handles, nil
}

// Stop cancels the subscription, closes the session and waits for the consume loop.
func (c *Collector) Stop() error {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()
	if sess == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := sess.close(ctx)
	c.wg.Wait()
	return err
}

func (c *Collector) consume(ctx context.Context, ch <-chan *opcua.PublishNotificationData, out chan<- *domain.Reading) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case notif := <-ch:
			if notif == nil {
				continue
			}
			if notif.Error != nil {
				c.log.Warn("opcua_notification_error", "err", notif.Error)
				continue
			}
			c.processNotification(ctx, notif.Value, out)
		}
	}
}

func (c *Collector) processNotification(ctx context.Context, val interface{}, out chan<- *domain.Reading) {
	data, ok := val.(*ua.DataChangeNotification)
	if !ok {
		return
	}

	for _, item := range data.MonitoredItems {
		if item == nil || item.Value == nil {
			continue
		}
		nodeCfg, ok := c.handleMap[item.ClientHandle]
		if !ok {
			continue
		}
		fv, ok := variantToFloat(item.Value.Value)
		if !ok {
			c.log.Warn("opcua_unsupported_value", "node_id", nodeCfg.NodeID, "type", fmt.Sprintf("%T", item.Value.Value))
			continue
		}
		r, err := toReading(nodeCfg, fv, item.Value)
		if err != nil {
			c.log.Warn("opcua_unmapped_node", "node_id", nodeCfg.NodeID, "err", err)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case out <- r:
		}
	}
}

func toReading(n NodeConfig, v float64, dv *ua.DataValue) (*domain.Reading, error) {
	typ, err := domain.ParseSensorType(n.SensorType)
	if err != nil {
		return nil, err
	}
	var fs domain.FieldSet
	if !fs.Set(n.Field, v) {
		return nil, fmt.Errorf("unknown field %q", n.Field)
	}
	m, err := domain.MeasurementFor(typ, fs)
	if err != nil {
		return nil, err
	}

	ts := dv.SourceTimestamp
	if ts.IsZero() {
		ts = dv.ServerTimestamp
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	return &domain.Reading{SensorID: n.SensorID, Timestamp: ts.UTC(), Measurement: m}, nil
}

func (c *Collector) clientOptions() []opcua.Option {
	auth := opcua.AuthAnonymous()
	if c.cfg.Username != "" {
		auth = opcua.AuthUsername(c.cfg.Username, c.cfg.Password)
	}
	policy := c.cfg.SecurityPolicy
	if policy == "" {
		policy = "None"
	}
	return []opcua.Option{
		opcua.ApplicationName(c.cfg.ApplicationName),
		opcua.SecurityModeString(securityMode(c.cfg.SecurityMode)),
		opcua.SecurityPolicy(policy),
		opcua.AutoReconnect(true),
		auth,
	}
}

func securityMode(mode string) string {
	m := strings.NewReplacer("_", "", "+", "", "-", "").Replace(strings.ToLower(mode))
	switch m {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt":
		return "SignAndEncrypt"
	}
	return "None"
}

// variantToFloat widens any numeric variant. Booleans, strings and arrays are rejected.
func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch n := v.Value().(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int8, int16, int32, int64:
		return float64(reflect.ValueOf(n).Int()), true
	case uint8, uint16, uint32, uint64:
		return float64(reflect.ValueOf(n).Uint()), true
	}
	return 0, false
}

var _ ports.Collector = (*Collector)(nil)
