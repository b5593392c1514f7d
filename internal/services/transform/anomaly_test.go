package transform

import (
	"testing"
	"time"

	"TrustBoard/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flagger(threshold string, method string) *Flagger {
	return NewFlagger(AnomalyConfig{
		Threshold:  dec(threshold),
		Window:     24,
		MinSamples: 1,
		Method:     method,
	})
}

func TestFlagConsistencyRulesIgnoreThreshold(t *testing.T) {
	c := candle("BTC-USD", models.SourceKraken, t0, "95", "90", "100", "95")

	out := flagger("1000000", MethodMedian).Flag([]models.CanonicalCandle{c}, nil)
	require.Len(t, out, 1)
	assert.True(t, out[0].IsAnomaly)
	assert.Contains(t, out[0].AnomalyReason, ReasonLowAboveHigh)
}

func TestFlagReasonsAreJoinedInRuleOrder(t *testing.T) {
	c := candle("BTC-USD", models.SourceKraken, t0, "-1", "10", "20", "30")
	c.Volume = decimal.NewNullDecimal(dec("-5"))

	out := flagger("0.05", MethodMedian).Flag([]models.CanonicalCandle{c}, nil)
	assert.Equal(t, "low_gt_high;close_out_of_range;open_out_of_range;negative_price;negative_volume", out[0].AnomalyReason)
}

func TestFlagCleanCandle(t *testing.T) {
	c := candle("BTC-USD", models.SourceKraken, t0, "100", "110", "90", "105")
	c.Volume = decimal.NewNullDecimal(decimal.Zero)

	out := flagger("0.05", MethodMedian).Flag([]models.CanonicalCandle{c}, nil)
	assert.False(t, out[0].IsAnomaly)
	assert.Empty(t, out[0].AnomalyReason)
	assert.Nil(t, out[0].AnomalyReasonPtr())
}

func TestFlagDeviationThresholdIsStrict(t *testing.T) {
	key := models.SeriesKey{Symbol: "BTC-USD", Source: models.SourceKraken}
	baseline := models.Baseline{key: {dec("100")}}

	tests := []struct {
		close string
		want  bool
	}{
		{"104.9", false},
		{"105.0", false},
		{"105.1", true},
		{"95.0", false},
		{"94.9", true},
	}
	for _, tt := range tests {
		t.Run(tt.close, func(t *testing.T) {
			c := candle("BTC-USD", models.SourceKraken, t0, tt.close, tt.close, tt.close, tt.close)
			out := flagger("0.05", MethodMedian).Flag([]models.CanonicalCandle{c}, baseline)
			assert.Equal(t, tt.want, out[0].IsAnomaly)
			if tt.want {
				assert.Equal(t, ReasonCloseDeviation, out[0].AnomalyReason)
			}
		})
	}
}

func TestFlagMedianVersusMean(t *testing.T) {
	key := models.SeriesKey{Symbol: "BTC-USD", Source: models.SourceKraken}
	baseline := models.Baseline{key: {dec("100"), dec("100"), dec("400")}}
	c := candle("BTC-USD", models.SourceKraken, t0, "102", "102", "102", "102")

	median := flagger("0.05", MethodMedian).Flag([]models.CanonicalCandle{c}, baseline)
	assert.False(t, median[0].IsAnomaly, "median of window is 100")

	mean := flagger("0.05", MethodMean).Flag([]models.CanonicalCandle{c}, baseline)
	assert.True(t, mean[0].IsAnomaly, "mean of window is 200")
}

func TestFlagWindowGrowsWithinBatch(t *testing.T) {
	first := candle("BTC-USD", models.SourceKraken, t0, "100", "100", "100", "100")
	second := candle("BTC-USD", models.SourceKraken, t0.Add(time.Hour), "200", "200", "200", "200")

	// passed in reverse order; the window still follows bucket order
	out := flagger("0.05", MethodMedian).Flag([]models.CanonicalCandle{second, first}, nil)
	require.Len(t, out, 2)
	assert.True(t, out[0].IsAnomaly)
	assert.False(t, out[1].IsAnomaly)
	assert.True(t, out[0].Close.Equal(dec("200")), "input order is preserved")
}

func TestFlagHardFailuresStayOutOfWindow(t *testing.T) {
	broken := candle("BTC-USD", models.SourceKraken, t0, "1000", "900", "1100", "1000")
	next := candle("BTC-USD", models.SourceKraken, t0.Add(time.Hour), "100", "100", "100", "100")

	out := flagger("0.05", MethodMedian).Flag([]models.CanonicalCandle{broken, next}, nil)
	assert.True(t, out[0].IsAnomaly)
	assert.False(t, out[1].IsAnomaly)
}

func TestFlagSeriesAreIndependent(t *testing.T) {
	kraken := candle("BTC-USD", models.SourceKraken, t0, "100", "100", "100", "100")
	gecko := candle("BTC-USD", models.SourceCoinGecko, t0.Add(time.Hour), "300", "300", "300", "300")

	out := flagger("0.05", MethodMedian).Flag([]models.CanonicalCandle{kraken, gecko}, nil)
	assert.False(t, out[0].IsAnomaly)
	assert.False(t, out[1].IsAnomaly)
}

func TestFlagMinSamples(t *testing.T) {
	f := NewFlagger(AnomalyConfig{Threshold: dec("0.05"), Window: 24, MinSamples: 3, Method: MethodMedian})
	key := models.SeriesKey{Symbol: "BTC-USD", Source: models.SourceKraken}
	c := candle("BTC-USD", models.SourceKraken, t0, "500", "500", "500", "500")

	out := f.Flag([]models.CanonicalCandle{c}, models.Baseline{key: {dec("100"), dec("100")}})
	assert.False(t, out[0].IsAnomaly)

	out = f.Flag([]models.CanonicalCandle{c}, models.Baseline{key: {dec("100"), dec("100"), dec("100")}})
	assert.True(t, out[0].IsAnomaly)
}

func TestFlagWindowKeepsMostRecent(t *testing.T) {
	f := NewFlagger(AnomalyConfig{Threshold: dec("0.05"), Window: 2, MinSamples: 1, Method: MethodMean})
	key := models.SeriesKey{Symbol: "BTC-USD", Source: models.SourceKraken}
	c := candle("BTC-USD", models.SourceKraken, t0, "200", "200", "200", "200")

	out := f.Flag([]models.CanonicalCandle{c}, models.Baseline{key: {dec("1"), dec("200"), dec("200")}})
	assert.False(t, out[0].IsAnomaly)
}

func TestFlagNeverDropsAndDoesNotMutateInput(t *testing.T) {
	in := []models.CanonicalCandle{
		candle("BTC-USD", models.SourceKraken, t0, "95", "90", "100", "95"),
		candle("BTC-USD", models.SourceKraken, t0.Add(time.Hour), "100", "100", "100", "100"),
	}
	out := flagger("0.05", MethodMedian).Flag(in, nil)
	assert.Len(t, out, len(in))
	assert.False(t, in[0].IsAnomaly)
}
