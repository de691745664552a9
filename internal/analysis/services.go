package analysis

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/notematch/internal/api"
	"github.com/tphakala/notematch/internal/conf"
	"github.com/tphakala/notematch/internal/events"
	"github.com/tphakala/notematch/internal/logger"
	"github.com/tphakala/notematch/internal/mqtt"
	"github.com/tphakala/notematch/internal/observability"
	"github.com/tphakala/notematch/internal/session"
)

// busShutdownTimeout bounds delivery of queued events on exit.
const busShutdownTimeout = 5 * time.Second

// Services are the consumers and servers around a session: the event bus
// with its metrics, result cache and MQTT consumers, the HTTP API and the
// standalone metrics endpoint.
type Services struct {
	Bus     *events.Bus
	Metrics *observability.Metrics
	Results *api.ResultStore

	settings    *conf.Settings
	mqttClient  mqtt.Client
	unsubscribe func()
	log         logger.Logger
}

// NewServices creates the bus and registers every enabled consumer. An
// unreachable MQTT broker is logged and skipped.
func NewServices(ctx context.Context, settings *conf.Settings) (*Services, error) {
	m, err := observability.NewMetrics()
	if err != nil {
		return nil, err
	}

	s := &Services{
		Bus:      events.NewBus(events.DefaultConfig()),
		Metrics:  m,
		settings: settings,
		log:      GetLogger(),
	}

	if err := s.Bus.RegisterConsumer(m.Session); err != nil {
		return nil, err
	}

	if settings.API.Enabled {
		s.Results = api.NewResultStore(settings.API.ResultTTL)
		if err := s.Bus.RegisterConsumer(s.Results); err != nil {
			return nil, err
		}
	}

	if settings.MQTT.Enabled {
		s.connectMQTT(ctx)
	}

	return s, nil
}

func (s *Services) connectMQTT(ctx context.Context) {
	cfg := mqtt.DefaultConfig()
	cfg.Broker = s.settings.MQTT.Broker
	cfg.Username = s.settings.MQTT.Username
	cfg.Password = s.settings.MQTT.Password
	if s.settings.MQTT.ClientID != "" {
		cfg.ClientID = s.settings.MQTT.ClientID
	}

	client, err := mqtt.NewClient(cfg, s.Metrics.MQTT)
	if err != nil {
		s.log.Error("MQTT client setup failed", logger.Error(err))
		return
	}
	if err := client.Connect(ctx); err != nil {
		s.log.Warn("MQTT broker unreachable, results will not be published",
			logger.String("broker", cfg.Broker),
			logger.Error(err))
		return
	}

	publisher := mqtt.NewPublisher(client, mqtt.PublisherConfig{
		Topic:         s.settings.MQTT.Topic,
		Retain:        s.settings.MQTT.Retain,
		DetectionRate: s.settings.MQTT.DetectionRate,
		Timeout:       cfg.PublishTimeout,
	}, s.Metrics.MQTT)
	if err := s.Bus.RegisterConsumer(publisher); err != nil {
		s.log.Error("MQTT publisher registration failed", logger.Error(err))
		client.Disconnect()
		return
	}
	s.mqttClient = client
}

// Attach forwards every session event to the bus.
func (s *Services) Attach(sess *session.Session) {
	s.unsubscribe = sess.Subscribe(s.Bus.Publish)
}

// Serve starts the HTTP API and metrics endpoint, when enabled, on g.
// Both stop when ctx is done.
func (s *Services) Serve(ctx context.Context, g *errgroup.Group, sess api.Session) {
	if s.settings.API.Enabled {
		server := api.New(sess,
			api.WithResults(s.Results),
			api.WithMetrics(s.Metrics))
		listen := s.settings.API.Listen
		g.Go(func() error { return server.Run(ctx, listen) })
	}
	if s.settings.Metrics.Enabled {
		endpoint := observability.NewEndpoint(s.settings.Metrics.Listen, s.Metrics)
		g.Go(func() error { return endpoint.Run(ctx) })
	}
}

// Close detaches from the session, delivers queued events and disconnects
// from the broker.
func (s *Services) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if err := s.Bus.Shutdown(busShutdownTimeout); err != nil {
		s.log.Warn("event bus shutdown incomplete", logger.Error(err))
	}
	stats := s.Bus.Stats()
	s.log.Debug("event bus stopped",
		logger.Int64("received", int64(stats.EventsReceived)),
		logger.Int64("dropped", int64(stats.EventsDropped)),
		logger.Int64("consumer_errors", int64(stats.ConsumerErrors)))
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
}
