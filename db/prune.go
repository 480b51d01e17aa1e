package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// PrunePolicy defines how long control_events rows are kept. The table is an
// audit log; the notifications themselves are delivered at insert time, so
// old rows have no runtime value.
type PrunePolicy struct {
	// RetentionDays: rows older than this many days are deleted (0 = disabled)
	RetentionDays int
	// DryRun: when true, log what would be deleted but keep the rows
	DryRun bool
	// Interval: how often to run the prune job
	Interval time.Duration
}

// LoadPrunePolicy loads prune configuration from environment variables.
func LoadPrunePolicy() PrunePolicy {
	policy := PrunePolicy{
		RetentionDays: 14,
		Interval:      6 * time.Hour,
	}

	if s := os.Getenv("CONTROL_RETENTION_DAYS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			policy.RetentionDays = n
		}
	}

	if os.Getenv("CONTROL_PRUNE_DRY_RUN") == "1" {
		policy.DryRun = true
	}

	if s := os.Getenv("CONTROL_PRUNE_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			policy.Interval = d
		}
	}

	return policy
}

// StartControlPrune runs a background job that periodically deletes old
// control_events rows according to the configured policy.
func StartControlPrune(ctx context.Context, dbc *sql.DB) {
	policy := LoadPrunePolicy()

	if policy.RetentionDays == 0 {
		slog.Info("control prune disabled (CONTROL_RETENTION_DAYS=0)")
		return
	}

	slog.Info("control prune starting",
		slog.Int("retention_days", policy.RetentionDays),
		slog.Bool("dry_run", policy.DryRun),
		slog.Duration("interval", policy.Interval))

	// Run immediately on start
	if err := runControlPrune(ctx, dbc, policy); err != nil {
		slog.Warn("control prune failed", slog.Any("err", err))
	}

	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("control prune stopped")
			return
		case <-ticker.C:
			if err := runControlPrune(ctx, dbc, policy); err != nil {
				slog.Warn("control prune failed", slog.Any("err", err))
			}
		}
	}
}

// runControlPrune performs a single prune cycle and records a heartbeat in kv.
func runControlPrune(ctx context.Context, dbc *sql.DB, policy PrunePolicy) error {
	logger := slog.Default().With(
		slog.String("component", "control_prune"),
		slog.Bool("dry_run", policy.DryRun),
	)

	cutoff := time.Now().Add(-time.Duration(policy.RetentionDays) * 24 * time.Hour)

	if policy.DryRun {
		var n int64
		err := dbc.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM control_events WHERE created_at < $1`, cutoff).Scan(&n)
		if err != nil {
			return fmt.Errorf("count prunable control events: %w", err)
		}
		logger.Info("dry-run: would delete control events",
			slog.Int64("rows", n),
			slog.Time("cutoff", cutoff))
		return nil
	}

	res, err := dbc.ExecContext(ctx,
		`DELETE FROM control_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("delete old control events: %w", err)
	}
	deleted, _ := res.RowsAffected()

	_, _ = dbc.ExecContext(ctx, `INSERT INTO kv (key,value,updated_at) VALUES ('job_control_prune_last', to_char(NOW() AT TIME ZONE 'UTC','YYYY-MM-DD"T"HH24:MI:SS.MS"Z"'), NOW())
		ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`)

	logger.Info("control prune completed",
		slog.Int64("deleted", deleted),
		slog.Time("cutoff", cutoff))

	return nil
}
