package app

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/specialistvlad/formulagrid/internal/ctxlog"
	"github.com/specialistvlad/formulagrid/internal/document"
)

// Run loads the document and reports its formulas. With Once set it polls
// the sources a single time, prints one report and returns. Otherwise the
// poller, the report loop and the health check server run until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")
	defer a.engine.Close()

	doc, err := document.Load(ctx, a.config.DocumentPath, a.tree, a.engine)
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}
	a.doc = doc
	for _, w := range doc.Warnings {
		a.logger.Warn("Document warning.", "warning", w)
	}

	if a.config.Once {
		if err := a.poller.PollOnce(ctx); err != nil {
			return err
		}
		sum, err := report(ctx, a.outW, a.engine, doc)
		if err != nil {
			return err
		}
		a.logger.Debug("App.Run method finished.", "errors", sum.Errors, "warnings", sum.Warnings)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	if port := a.config.HealthcheckPort; port > 0 {
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			return fmt.Errorf("failed to listen on health check port %d: %w", port, err)
		}
		g.Go(func() error { return a.serveHealthcheck(gctx, l) })
	} else {
		a.logger.Warn("Health check server not started: disabled")
	}

	g.Go(func() error { return a.poller.Run(gctx) })
	g.Go(func() error { return a.reportLoop(gctx, doc) })

	a.logger.Info("🚀 Watching formulas.", "formulas", len(doc.Formulas), "interval", a.config.Settings.ReportInterval.Duration)
	err = g.Wait()
	a.logger.Info("🏁 Stopped.")
	return err
}

// reportLoop prints a report every report interval. A report that cannot
// take the evaluation lock in time is skipped.
func (a *App) reportLoop(ctx context.Context, doc *document.Document) error {
	ticker := time.NewTicker(a.config.Settings.ReportInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := report(ctx, a.outW, a.engine, doc); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				a.logger.Warn("Report skipped.", "error", err)
			}
		}
	}
}
