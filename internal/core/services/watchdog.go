package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"walkmate-bot/internal/core/ports"
)

const (
	purgeBatchSize      = 1000
	webhookLogRetention = 7 * 24 * time.Hour
	webhookLogPressure  = 24 * time.Hour
)

// WatchdogConfig controls the retention sweep
type WatchdogConfig struct {
	Interval       time.Duration
	DiskPath       string
	DiskThreshold  float64 // percent; above it webhook logs are trimmed harder
	StateTTL       time.Duration
	DedupRetention time.Duration
	PurgeStates    bool // only when the state store cannot expire rows itself
	PurgeDedup     bool
}

// Watchdog periodically deletes rows that outlived their retention window
type Watchdog struct {
	purger    ports.RetentionPurger
	cfg       WatchdogConfig
	diskUsage func(ctx context.Context, path string) (float64, error)
	now       func() time.Time
}

// NewWatchdog creates a watchdog over a purger
func NewWatchdog(purger ports.RetentionPurger, cfg WatchdogConfig) *Watchdog {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.DiskPath == "" {
		cfg.DiskPath = "."
	}
	if cfg.DiskThreshold <= 0 {
		cfg.DiskThreshold = 70
	}
	return &Watchdog{
		purger:    purger,
		cfg:       cfg,
		diskUsage: diskUsedPercent,
		now:       time.Now,
	}
}

// Run sweeps on every tick until ctx is cancelled
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	slog.Info("Watchdog started", "interval", w.cfg.Interval.String())

	for {
		select {
		case <-ctx.Done():
			slog.Info("Watchdog stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep performs one retention pass
func (w *Watchdog) Sweep(ctx context.Context) {
	now := w.now()

	if w.cfg.PurgeDedup && w.cfg.DedupRetention > 0 {
		w.purge(ctx, "processed_messages", w.purger.PurgeProcessedBefore, now.Add(-w.cfg.DedupRetention))
	}
	if w.cfg.PurgeStates && w.cfg.StateTTL > 0 {
		w.purge(ctx, "user_state", w.purger.PurgeStatesBefore, now.Add(-w.cfg.StateTTL))
	}

	logCutoff := now.Add(-webhookLogRetention)
	usage, err := w.diskUsage(ctx, w.cfg.DiskPath)
	if err != nil {
		slog.Warn("Watchdog disk check failed", "error", err, "path", w.cfg.DiskPath)
	} else if usage >= w.cfg.DiskThreshold {
		slog.Warn("Disk usage above threshold, trimming webhook logs",
			"disk_percent", usage,
			"threshold", w.cfg.DiskThreshold,
		)
		logCutoff = now.Add(-webhookLogPressure)
	}
	w.purge(ctx, "webhook_logs", w.purger.PurgeWebhookLogsBefore, logCutoff)
}

func (w *Watchdog) purge(ctx context.Context, table string, fn func(context.Context, time.Time, int) (int64, error), cutoff time.Time) {
	rows, err := fn(ctx, cutoff, purgeBatchSize)
	if err != nil {
		slog.Error("Watchdog purge failed",
			"error", err,
			"table", table,
		)
		return
	}
	if rows > 0 {
		slog.Info("Watchdog purged rows",
			"table", table,
			"rows", rows,
			"cutoff", cutoff.Format(time.RFC3339),
		)
	}
}

func diskUsedPercent(ctx context.Context, path string) (float64, error) {
	stat, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return stat.UsedPercent, nil
}
