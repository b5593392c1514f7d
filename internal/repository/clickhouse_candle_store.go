package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"TrustBoard/internal/domain/models"
	domrepo "TrustBoard/internal/domain/repository"
	"TrustBoard/internal/services/transform"
	pkgch "TrustBoard/pkg/clickhouse"
	applogger "TrustBoard/pkg/logger"
)

// CHCandleStore implements CandleStore on a ReplacingMergeTree table. Rows
// sharing (symbol, source, bucket_start) collapse to the latest ingested_at;
// reads use FINAL so callers never see the duplicates before a merge.
type CHCandleStore struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHCandleStore(ch *pkgch.Client, table string) *CHCandleStore {
	if table == "" {
		table = "fact_price_candle"
	}
	return &CHCandleStore{ch: ch, db: ch.DB(), table: table, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *CHCandleStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func chSchema(table string) []string {
	return []string{fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			symbol         LowCardinality(String),
			source         LowCardinality(String),
			bucket_start   DateTime64(3, 'UTC'),
			interval_sec   Int64,
			observed_at    DateTime64(3, 'UTC'),
			open           Decimal(38, 18),
			high           Decimal(38, 18),
			low            Decimal(38, 18),
			close          Decimal(38, 18),
			volume         Nullable(Decimal(38, 18)),
			vwap           Nullable(Decimal(38, 18)),
			trade_count    Nullable(Int64),
			is_anomaly     Bool,
			anomaly_reason String,
			ingested_at    DateTime64(3, 'UTC')
		)
		ENGINE = ReplacingMergeTree(ingested_at)
		PARTITION BY toYYYYMM(bucket_start)
		ORDER BY (symbol, source, bucket_start)`, table)}
}

func (s *CHCandleStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, chSchema(s.table))
}

func nullDec(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

// Upsert inserts the batch in one native block; a failed block inserts nothing.
func (s *CHCandleStore) Upsert(ctx context.Context, candles []models.CanonicalCandle, intervalSec int64, ingestedAt time.Time) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s)", s.table, candleColumns))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx,
			c.Symbol,
			string(c.Source),
			c.BucketStart.UTC(),
			intervalSec,
			c.ObservedAt.UTC(),
			c.Open, c.High, c.Low, c.Close,
			nullDec(c.Volume), nullDec(c.VWAP),
			c.TradeCount,
			c.IsAnomaly,
			c.AnomalyReason,
			ingestedAt.UTC(),
		); err != nil {
			return 0, fmt.Errorf("append %s %s: %w", c.Series(), c.BucketStart.Format(time.RFC3339), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("send block: %w", err)
	}

	s.l.Info("clickhouse upsert ok",
		applogger.String("table", s.table),
		applogger.Int("rows", len(candles)),
		applogger.Duration("duration", time.Since(start)))
	return len(candles), nil
}

const chSelectColumns = `symbol, source, bucket_start, interval_sec, observed_at, open, high, low, close,
	volume, vwap, trade_count, is_anomaly, anomaly_reason, ingested_at`

func (s *CHCandleStore) History(ctx context.Context, series models.SeriesKey, before time.Time, n int) ([]models.StoredCandle, error) {
	if n <= 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`SELECT %s FROM %s FINAL
		WHERE symbol = ? AND source = ? AND bucket_start < ?
		  AND (NOT is_anomaly OR anomaly_reason = ?)
		ORDER BY bucket_start DESC
		LIMIT ?`, chSelectColumns, s.table)
	out, err := s.query(ctx, q, series.Symbol, string(series.Source), before.UTC(), transform.ReasonCloseDeviation, n)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", series, err)
	}
	reverse(out)
	return out, nil
}

func (s *CHCandleStore) Query(ctx context.Context, cq domrepo.CandleQuery) ([]models.StoredCandle, error) {
	q, args := chQuerySQL(s.table, cq)
	out, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query candles %s: %w", cq.Symbol, err)
	}
	return out, nil
}

func chQuerySQL(table string, cq domrepo.CandleQuery) (string, []any) {
	conds := []string{"symbol = ?"}
	args := []any{cq.Symbol}
	if cq.Source != "" {
		conds = append(conds, "source = ?")
		args = append(args, string(cq.Source))
	}
	if !cq.From.IsZero() {
		conds = append(conds, "bucket_start >= ?")
		args = append(args, cq.From.UTC())
	}
	if !cq.To.IsZero() {
		conds = append(conds, "bucket_start < ?")
		args = append(args, cq.To.UTC())
	}
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE %s ORDER BY bucket_start, source",
		chSelectColumns, table, strings.Join(conds, " AND "))
	if cq.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, cq.Limit)
	}
	return q, args
}

func (s *CHCandleStore) query(ctx context.Context, q string, args ...any) ([]models.StoredCandle, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse query error", applogger.String("table", s.table), applogger.Error(err))
		return nil, err
	}
	defer rows.Close()

	var out []models.StoredCandle
	for rows.Next() {
		var (
			c      models.StoredCandle
			source string
			volume *decimal.Decimal
			vwap   *decimal.Decimal
		)
		if err := rows.Scan(&c.Symbol, &source, &c.BucketStart, &c.IntervalSec, &c.ObservedAt,
			&c.Open, &c.High, &c.Low, &c.Close, &volume, &vwap,
			&c.TradeCount, &c.IsAnomaly, &c.AnomalyReason, &c.IngestedAt); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Source = models.Source(source)
		c.BucketStart = c.BucketStart.UTC()
		c.ObservedAt = c.ObservedAt.UTC()
		c.IngestedAt = c.IngestedAt.UTC()
		if volume != nil {
			c.Volume = decimal.NewNullDecimal(*volume)
		}
		if vwap != nil {
			c.VWAP = decimal.NewNullDecimal(*vwap)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *CHCandleStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *CHCandleStore) Close() error {
	return s.ch.Close()
}
