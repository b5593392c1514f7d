package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrustBoard/internal/domain/models"
	domrepo "TrustBoard/internal/domain/repository"
	"TrustBoard/pkg/cache"
)

func sampleCandle() models.CanonicalCandle {
	tc := int64(42)
	return models.CanonicalCandle{
		Symbol:      "BTC-USD",
		Source:      models.SourceKraken,
		BucketStart: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		ObservedAt:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Open:        decimal.RequireFromString("100.10"),
		High:        decimal.RequireFromString("101"),
		Low:         decimal.RequireFromString("99.5"),
		Close:       decimal.RequireFromString("100.75"),
		Volume:      decimal.NewNullDecimal(decimal.RequireFromString("12.000001")),
		TradeCount:  &tc,
	}
}

func TestUpsertArgsKeepExactDecimals(t *testing.T) {
	c := sampleCandle()
	ingested := time.Date(2024, 3, 1, 11, 0, 0, 0, time.FixedZone("X", 3600))
	args := upsertArgs(c, 3600, ingested)

	require.Len(t, args, len(strings.Split(candleColumns, ",")))
	assert.Equal(t, "BTC-USD", args[0])
	assert.Equal(t, "kraken", args[1])
	assert.Equal(t, int64(3600), args[3])
	assert.Equal(t, "100.1", args[5])
	assert.Equal(t, "100.75", args[8])
	assert.Equal(t, "12.000001", *args[9].(*string))
	assert.Nil(t, args[10].(*string), "absent vwap is NULL")
	assert.Nil(t, args[13].(*string), "empty reason is NULL")
	assert.Equal(t, time.UTC, args[14].(time.Time).Location())
}

func TestCandleTextToStored(t *testing.T) {
	vol := "12.000001"
	reason := "close_deviation"
	row := candleText{
		Symbol: "BTC-USD", Source: "kraken",
		BucketStart: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		IntervalSec: 3600,
		Open:        "100.1", High: "101", Low: "99.5", Close: "100.75",
		Volume:        &vol,
		IsAnomaly:     true,
		AnomalyReason: &reason,
	}
	c, err := row.toStored()
	require.NoError(t, err)
	assert.True(t, c.Close.Equal(decimal.RequireFromString("100.75")))
	assert.True(t, c.Volume.Valid)
	assert.False(t, c.VWAP.Valid)
	assert.Equal(t, "close_deviation", c.AnomalyReason)
	assert.Equal(t, models.SourceKraken, c.Source)

	row.High = "not-a-number"
	_, err = row.toStored()
	assert.ErrorContains(t, err, "high")
}

func TestPgUpsertSQL(t *testing.T) {
	q := pgUpsertSQL("fact_price_candle")
	assert.Contains(t, q, `INSERT INTO "fact_price_candle"`)
	assert.Contains(t, q, "ON CONFLICT (symbol, source, bucket_start) DO UPDATE SET")
	assert.Contains(t, q, "close = EXCLUDED.close")
	assert.Contains(t, q, "$15)")
	assert.NotContains(t, q, "symbol = EXCLUDED.symbol")
}

func TestPgQuerySQL(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q, args := pgQuerySQL(`"t"`, domrepo.CandleQuery{Symbol: "BTC-USD", Source: models.SourceCoinGecko, From: from, Limit: 10})
	assert.Contains(t, q, "symbol = $1 AND source = $2 AND bucket_start >= $3")
	assert.True(t, strings.HasSuffix(q, "LIMIT $4"))
	assert.NotContains(t, q, "bucket_start <")
	assert.Equal(t, []any{"BTC-USD", "coingecko", from, 10}, args)

	q, args = pgQuerySQL(`"t"`, domrepo.CandleQuery{Symbol: "ETH-USD"})
	assert.NotContains(t, q, "LIMIT")
	assert.Len(t, args, 1)
}

func TestChQuerySQL(t *testing.T) {
	to := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	q, args := chQuerySQL("fact_price_candle", domrepo.CandleQuery{Symbol: "BTC-USD", To: to, Limit: 5})
	assert.Contains(t, q, "FROM fact_price_candle FINAL WHERE symbol = ? AND bucket_start < ?")
	assert.Equal(t, []any{"BTC-USD", to, 5}, args)
}

func TestChSchemaIsReplacing(t *testing.T) {
	ddl := chSchema("fact_price_candle")[0]
	assert.Contains(t, ddl, "ReplacingMergeTree(ingested_at)")
	assert.Contains(t, ddl, "ORDER BY (symbol, source, bucket_start)")
}

func TestCandleMessages(t *testing.T) {
	c := sampleCandle()
	msgs := candleMessages("run-1", []models.CanonicalCandle{c}, 3600)
	require.Len(t, msgs, 1)
	assert.Equal(t, "BTC-USD|kraken", string(msgs[0].Key))
	assert.Equal(t, "run-1", msgs[0].Headers["run_id"])
	assert.Equal(t, "3600", msgs[0].Headers["interval_sec"])
	ev, ok := msgs[0].Value.(models.CandleEvent)
	require.True(t, ok)
	assert.Equal(t, int64(3600), ev.IntervalSec)
	assert.True(t, ev.Candle.Close.Equal(c.Close))
}

func rawObs() []models.RawObservation {
	return []models.RawObservation{
		{
			Source:    models.SourceKraken,
			Symbol:    "BTC-USD",
			FetchedAt: time.Date(2024, 3, 1, 10, 5, 0, 123456789, time.UTC),
			Fields:    map[string]string{"time": "1709287200", "open": "100.1", "close": "100.75"},
		},
		{
			Source: models.SourceKraken,
			Symbol: "BTC-USD",
			Fields: map[string]string{"time": "1709290800", "open": "100.75", "close": "101"},
		},
	}
}

func TestFileSnapshotStoreRoundTrip(t *testing.T) {
	for _, format := range []string{"parquet", "json"} {
		t.Run(format, func(t *testing.T) {
			ctx := context.Background()
			store, err := NewFileSnapshotStore(t.TempDir(), format)
			require.NoError(t, err)

			path, err := store.Write(ctx, "run-1", models.SourceKraken, rawObs())
			require.NoError(t, err)
			assert.Equal(t, "kraken."+format, filepath.Base(path))
			_, err = os.Stat(path + ".tmp")
			assert.True(t, os.IsNotExist(err))

			got, err := store.Read(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, rawObs(), got)
		})
	}
}

func TestFileSnapshotStoreReadsSourcesInOrder(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	pq, err := NewFileSnapshotStore(dir, "parquet")
	require.NoError(t, err)
	js, err := NewFileSnapshotStore(dir, "json")
	require.NoError(t, err)

	_, err = pq.Write(ctx, "r", models.SourceKraken, rawObs()[:1])
	require.NoError(t, err)
	gecko := models.RawObservation{Source: models.SourceCoinGecko, Symbol: "BTC-USD", Fields: map[string]string{"ts_ms": "1", "price": "2"}}
	_, err = js.Write(ctx, "r", models.SourceCoinGecko, []models.RawObservation{gecko})
	require.NoError(t, err)

	got, err := pq.Read(ctx, "r")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.SourceCoinGecko, got[0].Source)
	assert.Equal(t, models.SourceKraken, got[1].Source)
}

func TestFileSnapshotStoreErrors(t *testing.T) {
	ctx := context.Background()
	_, err := NewFileSnapshotStore(t.TempDir(), "csv")
	assert.Error(t, err)

	store, err := NewFileSnapshotStore(t.TempDir(), "json")
	require.NoError(t, err)

	_, err = store.Read(ctx, "missing")
	assert.True(t, errors.Is(err, ErrSnapshotNotFound))

	_, err = store.Write(ctx, "../escape", models.SourceKraken, nil)
	assert.Error(t, err)
	_, err = store.Read(ctx, "..")
	assert.Error(t, err)
}

func TestCacheRunReportStore(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryCache()
	defer mem.Close()
	store := NewCacheRunReportStore(mem, time.Hour)

	_, err := store.LatestReport(ctx)
	assert.ErrorIs(t, err, ErrNoReport)

	require.NoError(t, store.SaveReport(ctx, &models.RunReport{RunID: "a", Loaded: 1}))
	require.NoError(t, store.SaveReport(ctx, &models.RunReport{RunID: "b", Loaded: 2}))

	latest, err := store.LatestReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", latest.RunID)

	a, err := store.Report(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Loaded)

	assert.Error(t, store.SaveReport(ctx, &models.RunReport{}))
}
