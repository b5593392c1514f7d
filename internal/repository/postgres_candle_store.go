package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"TrustBoard/internal/domain/models"
	domrepo "TrustBoard/internal/domain/repository"
	"TrustBoard/internal/services/transform"
	applogger "TrustBoard/pkg/logger"
)

const pgBatchChunk = 1000

// PostgresCandleStore implements CandleStore on a Postgres table keyed by
// (symbol, source, bucket_start).
type PostgresCandleStore struct {
	pool  *pgxpool.Pool
	table string
	l     *applogger.Logger
}

// NewPostgresCandleStore creates the store. The store takes ownership of the
// pool: Close closes it.
func NewPostgresCandleStore(pool *pgxpool.Pool, table string) *PostgresCandleStore {
	if table == "" {
		table = "fact_price_candle"
	}
	return &PostgresCandleStore{pool: pool, table: table, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *PostgresCandleStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *PostgresCandleStore) ident() string { return pgx.Identifier{s.table}.Sanitize() }

func pgSchema(table string) []string {
	t := pgx.Identifier{table}.Sanitize()
	idx := pgx.Identifier{table + "_bucket_idx"}.Sanitize()
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + t + ` (
			symbol         TEXT        NOT NULL,
			source         TEXT        NOT NULL,
			bucket_start   TIMESTAMPTZ NOT NULL,
			interval_sec   BIGINT      NOT NULL,
			observed_at    TIMESTAMPTZ NOT NULL,
			open           NUMERIC     NOT NULL,
			high           NUMERIC     NOT NULL,
			low            NUMERIC     NOT NULL,
			close          NUMERIC     NOT NULL,
			volume         NUMERIC,
			vwap           NUMERIC,
			trade_count    BIGINT,
			is_anomaly     BOOLEAN     NOT NULL DEFAULT FALSE,
			anomaly_reason TEXT,
			ingested_at    TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (symbol, source, bucket_start)
		)`,
		`CREATE INDEX IF NOT EXISTS ` + idx + ` ON ` + t + ` (bucket_start)`,
	}
}

func (s *PostgresCandleStore) Init(ctx context.Context) error {
	for _, stmt := range pgSchema(s.table) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres init %s: %w", s.table, err)
		}
	}
	return nil
}

func pgUpsertSQL(table string) string {
	set := []string{"interval_sec", "observed_at", "open", "high", "low", "close", "volume", "vwap",
		"trade_count", "is_anomaly", "anomaly_reason", "ingested_at"}
	for i, col := range set {
		set[i] = col + " = EXCLUDED." + col
	}
	return `INSERT INTO ` + pgx.Identifier{table}.Sanitize() + ` (` + candleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::numeric,
			$10::numeric, $11::numeric, $12, $13, $14, $15)
		ON CONFLICT (symbol, source, bucket_start) DO UPDATE SET ` + strings.Join(set, ", ")
}

// Upsert writes every candle in one transaction; on any error nothing is committed.
func (s *PostgresCandleStore) Upsert(ctx context.Context, candles []models.CanonicalCandle, intervalSec int64, ingestedAt time.Time) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	start := time.Now()
	q := pgUpsertSQL(s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for lo := 0; lo < len(candles); lo += pgBatchChunk {
		hi := min(lo+pgBatchChunk, len(candles))
		batch := &pgx.Batch{}
		for _, c := range candles[lo:hi] {
			batch.Queue(q, upsertArgs(c, intervalSec, ingestedAt)...)
		}
		br := tx.SendBatch(ctx, batch)
		for i := lo; i < hi; i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				c := candles[i]
				return 0, fmt.Errorf("upsert %s %s: %w", c.Series(), c.BucketStart.Format(time.RFC3339), err)
			}
		}
		if err := br.Close(); err != nil {
			return 0, fmt.Errorf("close batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	s.l.Info("postgres upsert ok",
		applogger.String("table", s.table),
		applogger.Int("rows", len(candles)),
		applogger.Duration("duration", time.Since(start)))
	return len(candles), nil
}

const pgSelectColumns = `symbol, source, bucket_start, interval_sec, observed_at,
	open::text, high::text, low::text, close::text, volume::text, vwap::text,
	trade_count, is_anomaly, anomaly_reason, ingested_at`

// History returns baseline candidates: rows that passed the consistency rules.
// Rows flagged only for close deviation are still real prices and stay in.
func (s *PostgresCandleStore) History(ctx context.Context, series models.SeriesKey, before time.Time, n int) ([]models.StoredCandle, error) {
	if n <= 0 {
		return nil, nil
	}
	q := `SELECT ` + pgSelectColumns + ` FROM ` + s.ident() + `
		WHERE symbol = $1 AND source = $2 AND bucket_start < $3
		  AND (NOT is_anomaly OR anomaly_reason = $4)
		ORDER BY bucket_start DESC
		LIMIT $5`
	out, err := s.query(ctx, q, series.Symbol, string(series.Source), before.UTC(), transform.ReasonCloseDeviation, n)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", series, err)
	}
	reverse(out)
	return out, nil
}

func (s *PostgresCandleStore) Query(ctx context.Context, cq domrepo.CandleQuery) ([]models.StoredCandle, error) {
	q, args := pgQuerySQL(s.ident(), cq)
	out, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query candles %s: %w", cq.Symbol, err)
	}
	return out, nil
}

func pgQuerySQL(ident string, cq domrepo.CandleQuery) (string, []any) {
	var b strings.Builder
	args := []any{cq.Symbol}
	b.WriteString(`SELECT ` + pgSelectColumns + ` FROM ` + ident + ` WHERE symbol = $1`)
	if cq.Source != "" {
		args = append(args, string(cq.Source))
		fmt.Fprintf(&b, " AND source = $%d", len(args))
	}
	if !cq.From.IsZero() {
		args = append(args, cq.From.UTC())
		fmt.Fprintf(&b, " AND bucket_start >= $%d", len(args))
	}
	if !cq.To.IsZero() {
		args = append(args, cq.To.UTC())
		fmt.Fprintf(&b, " AND bucket_start < $%d", len(args))
	}
	b.WriteString(" ORDER BY bucket_start, source")
	if cq.Limit > 0 {
		args = append(args, cq.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

func (s *PostgresCandleStore) query(ctx context.Context, q string, args ...any) ([]models.StoredCandle, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StoredCandle
	for rows.Next() {
		var r candleText
		if err := rows.Scan(&r.Symbol, &r.Source, &r.BucketStart, &r.IntervalSec, &r.ObservedAt,
			&r.Open, &r.High, &r.Low, &r.Close, &r.Volume, &r.VWAP,
			&r.TradeCount, &r.IsAnomaly, &r.AnomalyReason, &r.IngestedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		c, err := r.toStored()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresCandleStore) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresCandleStore) Close() error {
	s.pool.Close()
	return nil
}
