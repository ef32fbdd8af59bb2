package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type MQTTConfig struct {
	Broker   string
	ClientID string
	Topics   []string
	QoS      byte
	Username string
	Password string
	// ConnectTimeout bounds the initial connect and subscribe. Zero means 10s.
	ConnectTimeout time.Duration
}

// MQTTSource subscribes to one or more topic filters. The tag of a payload
// without a tag field is the last level of its topic.
type MQTTSource struct {
	cfg MQTTConfig
	dec Decoder
	log *slog.Logger

	mu     sync.Mutex
	client mqtt.Client
}

func NewMQTTSource(cfg MQTTConfig, log *slog.Logger) (*MQTTSource, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, errors.New("mqtt broker must not be empty")
	}
	if len(cfg.Topics) == 0 {
		return nil, errors.New("at least one mqtt topic is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt qos %d out of range", cfg.QoS)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "looptune"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &MQTTSource{cfg: cfg, log: componentLog(log, "acquire.mqtt")}, nil
}

func (s *MQTTSource) options() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(false).
		SetConnectTimeout(s.cfg.ConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.log.Warn("mqtt_connection_lost", slog.Any("err", err))
		})
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username).SetPassword(s.cfg.Password)
	}
	return opts
}

func (s *MQTTSource) Run(ctx context.Context, out chan<- Reading) error {
	client := mqtt.NewClient(s.options())
	tok := client.Connect()
	if !tok.WaitTimeout(s.cfg.ConnectTimeout) {
		return fmt.Errorf("mqtt connect %s: timed out", s.cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", s.cfg.Broker, err)
	}
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	defer s.Close()

	filters := make(map[string]byte, len(s.cfg.Topics))
	for _, t := range s.cfg.Topics {
		filters[t] = s.cfg.QoS
	}
	sub := client.SubscribeMultiple(filters, s.handler(ctx, out))
	if !sub.WaitTimeout(s.cfg.ConnectTimeout) {
		return errors.New("mqtt subscribe: timed out")
	}
	if err := sub.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe: %w", err)
	}

	s.log.Info("mqtt_source_started",
		slog.String("broker", s.cfg.Broker),
		slog.String("topics", strings.Join(s.cfg.Topics, ",")),
		slog.Int("qos", int(s.cfg.QoS)),
	)
	defer s.log.Info("mqtt_source_stopped")

	<-ctx.Done()
	return ctx.Err()
}

func (s *MQTTSource) handler(ctx context.Context, out chan<- Reading) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		r, err := s.dec.Decode(msg.Payload(), TagFromTopic(msg.Topic()))
		if err != nil {
			s.log.Warn("mqtt_decode_error", slog.String("topic", msg.Topic()), slog.Any("err", err))
			return
		}
		deliver(ctx, out, r)
	}
}

// Close disconnects the client if Run connected one.
func (s *MQTTSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Disconnect(250)
		s.client = nil
	}
	return nil
}
