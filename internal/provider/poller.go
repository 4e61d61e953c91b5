package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/specialistvlad/formulagrid/internal/ctxlog"
	"github.com/specialistvlad/formulagrid/internal/extdata"
	"github.com/specialistvlad/formulagrid/internal/formula"
	"github.com/specialistvlad/formulagrid/internal/metrics"
)

// DefaultSchedule polls every two seconds.
const DefaultSchedule = "@every 2s"

const (
	resultOK          = "ok"
	resultFailed      = "failed"
	resultUnavailable = "unavailable"
)

// Refresher re-evaluates expressions invalidated by new data.
type Refresher interface {
	Refresh(ctx context.Context) (int, error)
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithSchedule sets the cron schedule, e.g. "@every 5s" or "*/1 * * * *".
func WithSchedule(expr string) PollerOption {
	return func(p *Poller) { p.schedule = expr }
}

// WithMetrics counts poll runs into m.
func WithMetrics(m *metrics.Metrics) PollerOption {
	return func(p *Poller) { p.metrics = m }
}

// WithRefresher sets the component refreshed after every poll.
func WithRefresher(r Refresher) PollerOption {
	return func(p *Poller) { p.refresher = r }
}

type registered struct {
	source    Source
	handle    *extdata.Handle
	published map[string]struct{}
}

// Poller publishes the fields of its sources on a schedule.
type Poller struct {
	ns        *extdata.Namespace
	refresher Refresher
	metrics   *metrics.Metrics
	schedule  string

	mu      sync.Mutex
	sources []*registered
}

// NewPoller creates a poller publishing into ns.
func NewPoller(ns *extdata.Namespace, opts ...PollerOption) (*Poller, error) {
	p := &Poller{ns: ns, schedule: DefaultSchedule}
	for _, opt := range opts {
		opt(p)
	}
	if err := ValidateSchedule(p.schedule); err != nil {
		return nil, err
	}
	return p, nil
}

// ValidateSchedule reports whether expr is a usable cron schedule.
func ValidateSchedule(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid poll schedule %q: %w", expr, err)
	}
	return nil
}

// Add registers src under its name.
func (p *Poller) Add(src Source) error {
	h, err := p.ns.RegisterProvider(src.Name())
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.sources = append(p.sources, &registered{source: src, handle: h, published: make(map[string]struct{})})
	p.mu.Unlock()
	return nil
}

// Sources returns the names of the registered sources.
func (p *Poller) Sources() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.sources))
	for _, r := range p.sources {
		names = append(names, r.source.Name())
	}
	return names
}

// PollOnce reads every source once and refreshes dirty expressions.
func (p *Poller) PollOnce(ctx context.Context) error {
	p.mu.Lock()
	sources := append([]*registered(nil), p.sources...)
	p.mu.Unlock()

	for _, r := range sources {
		p.poll(ctx, r)
	}

	if p.refresher == nil {
		return nil
	}
	n, err := p.refresher.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh after poll: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Poll finished.", "sources", len(sources), "refreshed", n)
	return nil
}

func (p *Poller) poll(ctx context.Context, r *registered) {
	logger := ctxlog.FromContext(ctx).With("source", r.source.Name())

	if c, ok := r.source.(Checker); ok {
		if err := c.Check(ctx); err != nil {
			if len(r.published) > 0 {
				logger.Warn("Source unavailable, withdrawing its data.", "error", err)
			}
			if err := r.handle.WithdrawAll(); err != nil {
				logger.Error("Failed to withdraw source data.", "error", err)
			}
			clear(r.published)
			p.count(r, resultFailed)
			return
		}
	}

	seen := make(map[string]struct{})
	for _, f := range r.source.Fields() {
		if !formula.ValidName(f.Token) {
			logger.Debug("Skipping field with invalid token.", "token", f.Token)
			continue
		}
		v, err := f.Read(ctx)
		if err != nil {
			if !errors.Is(err, ErrUnavailable) {
				logger.Warn("Field read failed.", "token", f.Token, "error", err)
			}
			continue
		}
		if err := publish(r.handle, f, v); err != nil {
			logger.Warn("Field publish failed.", "token", f.Token, "error", err)
			continue
		}
		seen[f.Token] = struct{}{}
	}

	for token := range r.published {
		if _, ok := seen[token]; !ok {
			if err := r.handle.Withdraw(token); err != nil {
				logger.Error("Failed to withdraw token.", "token", token, "error", err)
			}
		}
	}
	r.published = seen

	if len(seen) == 0 {
		p.count(r, resultUnavailable)
		return
	}
	p.count(r, resultOK)
}

func publish(h *extdata.Handle, f Field, v any) error {
	if len(f.Constants) > 0 {
		code, ok := v.(int)
		if !ok {
			return fmt.Errorf("enumerated field %q must read an int, got %T", f.Token, v)
		}
		return h.PublishWithConstants(f.Token, code, f.Constants)
	}
	if f.Hidden {
		return h.PublishHidden(f.Token, v)
	}
	return h.Publish(f.Token, v)
}

func (p *Poller) count(r *registered, result string) {
	if p.metrics != nil {
		p.metrics.PollRuns.WithLabelValues(r.source.Name(), result).Inc()
	}
}

// Run polls immediately and then on the schedule until ctx is cancelled.
// Sources implementing Runner run alongside. On return every source's data
// is withdrawn.
func (p *Poller) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	g, gctx := errgroup.WithContext(ctx)

	p.mu.Lock()
	for _, r := range p.sources {
		if runner, ok := r.source.(Runner); ok {
			name := r.source.Name()
			g.Go(func() error {
				if err := runner.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("source %s: %w", name, err)
				}
				return nil
			})
		}
	}
	p.mu.Unlock()

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(p.schedule, func() {
		if err := p.PollOnce(gctx); err != nil {
			logger.Warn("Poll failed.", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid poll schedule %q: %w", p.schedule, err)
	}

	g.Go(func() error {
		if err := p.PollOnce(gctx); err != nil {
			logger.Warn("Initial poll failed.", "error", err)
		}
		c.Start()
		logger.Info("Poller started.", "schedule", p.schedule, "sources", p.Sources())
		<-gctx.Done()
		<-c.Stop().Done()
		return nil
	})

	err := g.Wait()
	p.close()
	logger.Info("Poller stopped.")
	return err
}

func (p *Poller) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.sources {
		r.handle.Close()
	}
	p.sources = nil
}
