// Package rabbitmq provides a telemetry source consuming JSON messages from a
// RabbitMQ queue.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/specialistvlad/formulagrid/internal/ctxlog"
	"github.com/specialistvlad/formulagrid/internal/provider"
)

const maxReconnectDelay = 30 * time.Second

var errNotConnected = errors.New("rabbitmq consumer is not connected")

// Config describes one queue consumer.
type Config struct {
	Name       string `toml:"name"`
	URL        string `toml:"url"`
	Queue      string `toml:"queue"`
	Exchange   string `toml:"exchange"`
	RoutingKey string `toml:"routing_key"`
	Prefetch   int    `toml:"prefetch"`
}

// Enum is a coded value with the names of its codes.
type Enum struct {
	Code  int            `json:"code"`
	Names map[int]string `json:"names"`
}

// Message is the body of a telemetry message:
//
//	{"values": {"Temperature": 21.5}, "enums": {"Roof": {"code": 1, "names": {"0": "Closed", "1": "Open"}}}, "withdraw": ["Humidity"]}
type Message struct {
	Values   map[string]any  `json:"values"`
	Enums    map[string]Enum `json:"enums"`
	Withdraw []string        `json:"withdraw"`
}

// Source keeps the latest values received on its queue.
type Source struct {
	cfg       Config
	values    *provider.Values
	connected atomic.Bool
}

// New validates cfg and creates a source. Run connects it.
func New(cfg Config) (*Source, error) {
	if cfg.Name == "" {
		return nil, errors.New("rabbitmq source requires a name")
	}
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq source requires a url")
	}
	if cfg.Queue == "" {
		return nil, errors.New("rabbitmq source requires a queue")
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	return &Source{cfg: cfg, values: provider.NewValues()}, nil
}

func (s *Source) Name() string { return s.cfg.Name }

func (s *Source) Fields() []provider.Field { return s.values.Fields() }

// Check fails while the consumer is disconnected.
func (s *Source) Check(context.Context) error {
	if !s.connected.Load() {
		return errNotConnected
	}
	return nil
}

// Run consumes until ctx is cancelled, reconnecting with exponential delay
// after connection loss.
func (s *Source) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("source", s.cfg.Name, "queue", s.cfg.Queue)
	delay := time.Second

	for {
		connected, err := s.consume(ctx, logger)
		s.connected.Store(false)
		s.values.Reset()
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			delay = time.Second
		}
		logger.Warn("Connection lost, reconnecting.", "error", err, "delay", delay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

// consume runs one connection. connected reports whether consuming started.
func (s *Source) consume(ctx context.Context, logger *slog.Logger) (connected bool, err error) {
	conn, err := amqp.Dial(s.cfg.URL)
	if err != nil {
		return false, fmt.Errorf("dial amqp: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return false, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		s.cfg.Queue,
		false, // durable
		true,  // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return false, fmt.Errorf("declare queue: %w", err)
	}
	if s.cfg.Exchange != "" {
		if err := ch.QueueBind(q.Name, s.cfg.RoutingKey, s.cfg.Exchange, false, nil); err != nil {
			return false, fmt.Errorf("bind queue: %w", err)
		}
	}
	if err := ch.Qos(s.cfg.Prefetch, 0, false); err != nil {
		return false, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		q.Name,
		"",    // consumer tag (auto-generated)
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return false, fmt.Errorf("consume: %w", err)
	}

	s.connected.Store(true)
	logger.Info("Consumer started.")
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case amqpErr := <-closed:
			if amqpErr != nil {
				return true, amqpErr
			}
			return true, errors.New("connection closed")
		case d, ok := <-deliveries:
			if !ok {
				return true, errors.New("deliveries channel closed")
			}
			if err := s.handle(d.Body); err != nil {
				logger.Error("Failed to decode message.", "error", err, "body", string(d.Body))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// handle applies one message body.
func (s *Source) handle(body []byte) error {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}
	for token, v := range msg.Values {
		switch v.(type) {
		case nil, float64, bool:
		default:
			return fmt.Errorf("value of %q must be a number or boolean, got %T", token, v)
		}
	}
	for token, v := range msg.Values {
		if v == nil {
			s.values.Delete(token)
			continue
		}
		s.values.Set(token, v)
	}
	for token, e := range msg.Enums {
		s.values.SetEnum(token, e.Code, e.Names)
	}
	for _, token := range msg.Withdraw {
		s.values.Delete(token)
	}
	return nil
}
