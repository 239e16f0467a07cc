package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"QuantBridge/internal/domain/models"
	domrepo "QuantBridge/internal/domain/repository"
	pkgch "QuantBridge/pkg/clickhouse"
	applogger "QuantBridge/pkg/logger"
)

const signalsTable = "signals"

func signalsSchema(table string, retentionDays int) []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            ts                    DateTime64(3, 'UTC'),
            source                LowCardinality(String),
            last_price            Float64,
            z_score               Float64,
            is_directional_regime Bool,
            ml_probability        Float64,
            kalman_signal         Bool,
            hedge_signal          Bool,
            correlation           Float64,
            optimal_stop_signal   Bool
        ) ENGINE = MergeTree
        ORDER BY (source, ts)
        TTL toDateTime(ts) + INTERVAL %d DAY
    `, table, retentionDays)}
}

// CHSignalStore appends every emitted bundle to a ClickHouse audit table.
type CHSignalStore struct {
	client    *pkgch.Client
	db        *sql.DB
	table     string
	retention int
	l         *applogger.Logger
}

func NewCHSignalStore(client *pkgch.Client, log *applogger.Logger) *CHSignalStore {
	if log == nil {
		log = applogger.Nop()
	}
	return &CHSignalStore{
		client:    client,
		db:        client.DB(),
		table:     signalsTable,
		retention: 30,
		l:         log.With(applogger.String("table", signalsTable)),
	}
}

func (s *CHSignalStore) Init(ctx context.Context) error {
	if err := s.client.InitSchema(ctx, signalsSchema(s.table, s.retention)); err != nil {
		return fmt.Errorf("signals schema: %w", err)
	}
	return nil
}

func (s *CHSignalStore) Store(ctx context.Context, rec *models.SignalRecord) error {
	q := fmt.Sprintf(`INSERT INTO %s (ts, source, last_price, z_score, is_directional_regime,
        ml_probability, kalman_signal, hedge_signal, correlation, optimal_stop_signal)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	b := rec.Bundle
	if _, err := s.db.ExecContext(ctx, q,
		rec.Timestamp, rec.Source, rec.LastPrice,
		b.ZScore, b.IsDirectionalRegime, b.MLProbability,
		b.KalmanSignal, b.HedgeSignal, b.Correlation, b.OptimalStopSignal,
	); err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *CHSignalStore) Recent(ctx context.Context, limit int) ([]*models.SignalRecord, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT ts, source, last_price, z_score, is_directional_regime, ml_probability,
               kalman_signal, hedge_signal, correlation, optimal_stop_signal
        FROM %s
        ORDER BY ts DESC
        LIMIT ?
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		s.l.Error("clickhouse recent_signals query error", applogger.Int("limit", limit), applogger.Error(err))
		return nil, fmt.Errorf("recent signals: %w", err)
	}
	defer rows.Close()

	out := make([]*models.SignalRecord, 0, limit)
	for rows.Next() {
		var r models.SignalRecord
		b := &r.Bundle
		if err := rows.Scan(&r.Timestamp, &r.Source, &r.LastPrice,
			&b.ZScore, &b.IsDirectionalRegime, &b.MLProbability,
			&b.KalmanSignal, &b.HedgeSignal, &b.Correlation, &b.OptimalStopSignal,
		); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse recent_signals ok",
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHSignalStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close is a no-op; the client is owned by the app.
func (s *CHSignalStore) Close() error { return nil }

var _ domrepo.SignalStore = (*CHSignalStore)(nil)
