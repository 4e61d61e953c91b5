// Package socketio provides a telemetry source fed by socket.io events.
package socketio

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/specialistvlad/formulagrid/internal/ctxlog"
	"github.com/specialistvlad/formulagrid/internal/provider"
)

// DefaultEvent is the event carrying telemetry payloads.
const DefaultEvent = "telemetry"

var errNotConnected = errors.New("socket.io client is not connected")

// Config describes one socket.io telemetry connection.
type Config struct {
	Name               string `toml:"name"`
	URL                string `toml:"url"`
	Namespace          string `toml:"namespace"`
	Event              string `toml:"event"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

// Source keeps the latest values received on the telemetry event. Each
// payload is a JSON object mapping tokens to numbers or booleans; a null
// value withdraws the token.
type Source struct {
	cfg       Config
	baseURL   string
	path      string
	values    *provider.Values
	connected atomic.Bool
}

// New validates cfg and creates a source. Run connects it.
func New(cfg Config) (*Source, error) {
	if cfg.Name == "" {
		return nil, errors.New("socket.io source requires a name")
	}
	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("socket.io URL must be absolute: %q", cfg.URL)
	}
	if cfg.Event == "" {
		cfg.Event = DefaultEvent
	}
	return &Source{
		cfg:     cfg,
		baseURL: fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host),
		path:    parsedURL.Path,
		values:  provider.NewValues(),
	}, nil
}

func (s *Source) Name() string { return s.cfg.Name }

func (s *Source) Fields() []provider.Field { return s.values.Fields() }

// Check fails while the client is disconnected.
func (s *Source) Check(context.Context) error {
	if !s.connected.Load() {
		return errNotConnected
	}
	return nil
}

// Run connects and listens until ctx is cancelled. The client reconnects on
// its own after connection loss.
func (s *Source) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("source", s.cfg.Name, "url", s.cfg.URL, "event", s.cfg.Event)

	opts := socket.DefaultOptions()
	opts.SetPath(s.path)
	if s.cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(s.baseURL, opts)
	io := manager.Socket(s.cfg.Namespace, opts)

	io.On(types.EventName("connect"), func(...any) {
		s.connected.Store(true)
		logger.Info("Successfully connected", "sid", io.Id())
	})
	io.On(types.EventName("disconnect"), func(reason ...any) {
		s.connected.Store(false)
		s.values.Reset()
		logger.Warn("Disconnected", "reason", reason)
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		logger.Debug("Connection attempt failed", "error", errs)
	})
	io.On(types.EventName(s.cfg.Event), func(data ...any) {
		if err := s.handle(data...); err != nil {
			logger.Warn("Ignoring malformed telemetry payload", "error", err)
		}
	})

	logger.Debug("Initiating connection...")
	io.Connect()

	<-ctx.Done()
	logger.Debug("Disconnecting socket client")
	io.Disconnect()
	s.connected.Store(false)
	s.values.Reset()
	return nil
}

// handle applies one event payload.
func (s *Source) handle(data ...any) error {
	if len(data) == 0 {
		return errors.New("empty payload")
	}

	var payload map[string]any
	switch v := data[0].(type) {
	case map[string]any:
		payload = v
	case string:
		if err := json.Unmarshal([]byte(v), &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	case []byte:
		if err := json.Unmarshal(v, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	default:
		return fmt.Errorf("unsupported payload type %T", data[0])
	}

	for token, v := range payload {
		switch n := v.(type) {
		case nil:
			s.values.Delete(token)
		case float64, bool:
			s.values.Set(token, n)
		case json.Number:
			if f, err := n.Float64(); err == nil {
				s.values.Set(token, f)
			}
		}
	}
	return nil
}
