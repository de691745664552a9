package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/notematch/internal/errors"
	"github.com/tphakala/notematch/internal/events"
	"github.com/tphakala/notematch/internal/logger"
)

// Topic suffixes below the configured base topic.
const (
	TopicState     = "state"
	TopicNote      = "note"
	TopicDetection = "detection"
	TopicResult    = "result"
)

// PublisherMetrics is the subset of the MQTT metrics the publisher records.
type PublisherMetrics interface {
	IncrementMessagesDelivered(kind string)
	IncrementErrors(kind string)
	IncrementThrottled()
}

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	Topic         string  // base topic
	Retain        bool    // retain state and result messages
	DetectionRate float64 // detection messages per second, 0 drops them all
	Timeout       time.Duration
}

// Publisher forwards session events to MQTT. It implements
// events.Consumer and runs on a bus worker.
type Publisher struct {
	client  Client
	cfg     PublisherConfig
	limiter *rate.Limiter
	metrics PublisherMetrics
	log     logger.Logger
}

// NewPublisher returns a publisher sending through c. m may be nil.
func NewPublisher(c Client, cfg PublisherConfig, m PublisherMetrics) *Publisher {
	cfg.Topic = strings.TrimRight(cfg.Topic, "/")
	if cfg.Topic == "" {
		cfg.Topic = "notematch"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().PublishTimeout
	}

	p := &Publisher{client: c, cfg: cfg, metrics: m, log: GetLogger()}
	if cfg.DetectionRate > 0 {
		burst := max(1, int(cfg.DetectionRate))
		p.limiter = rate.NewLimiter(rate.Limit(cfg.DetectionRate), burst)
	}
	return p
}

// Name implements events.Consumer.
func (p *Publisher) Name() string {
	return "mqtt"
}

// ProcessEvent implements events.Consumer.
func (p *Publisher) ProcessEvent(ev events.Event) error {
	var (
		suffix string
		retain bool
	)
	switch ev.Kind {
	case events.KindStateChanged:
		suffix, retain = TopicState, p.cfg.Retain
	case events.KindResult:
		suffix, retain = TopicResult, p.cfg.Retain
	case events.KindNoteStatus:
		suffix = TopicNote
	case events.KindDetection:
		if p.limiter == nil || !p.limiter.Allow() {
			if p.metrics != nil {
				p.metrics.IncrementThrottled()
			}
			return nil
		}
		suffix = TopicDetection
	default:
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("kind", string(ev.Kind)).
			Build()
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()

	topic := p.cfg.Topic + "/" + suffix
	if err := p.client.Publish(ctx, topic, payload, retain); err != nil {
		if p.metrics != nil {
			p.metrics.IncrementErrors(string(ev.Kind))
		}
		p.log.Warn("MQTT publish failed",
			logger.String("topic", topic),
			logger.Error(err))
		return err
	}

	if p.metrics != nil {
		p.metrics.IncrementMessagesDelivered(string(ev.Kind))
	}
	return nil
}
