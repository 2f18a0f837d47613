package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/field-ops-assistant/internal/dedup"
	natsclient "github.com/capitalize-ai/field-ops-assistant/internal/nats"
	"github.com/capitalize-ai/field-ops-assistant/internal/state"
	"github.com/capitalize-ai/field-ops-assistant/pkg/logger"
	"github.com/capitalize-ai/field-ops-assistant/pkg/metrics"
)

// runJanitor drops expired conversation states and dedup entries and
// refreshes the audit stream gauges until ctx is done. memDedup and stream
// may be nil.
func runJanitor(ctx context.Context, interval time.Duration, states state.Store, memDedup *dedup.Memory, stream *natsclient.AuditStream, log *logger.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := states.Sweep(ctx)
		if err != nil {
			log.Warn("State sweep failed", zap.Error(err))
		} else if n > 0 {
			metrics.StatesSwept.WithLabelValues("state").Add(float64(n))
			log.Debug("Expired states swept", zap.Int("count", n))
		}

		if memDedup != nil {
			if n := memDedup.Sweep(ctx); n > 0 {
				metrics.StatesSwept.WithLabelValues("dedup").Add(float64(n))
			}
		}

		if stream != nil {
			if err := stream.RefreshMetrics(ctx); err != nil {
				log.Warn("Failed to refresh audit stream metrics", zap.Error(err))
			}
		}
	}
}
