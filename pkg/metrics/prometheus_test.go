package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"TrustBoard/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.RecordRecords("transform", models.SourceKraken, 8)
	r.RecordRecords("transform", models.SourceKraken, 2)
	r.RecordRejections(models.RejectNormalization, 2)
	r.RecordAnomalies(models.SourceCoinGecko, 1)
	r.RecordStageDuration("load", 150*time.Millisecond)
	r.RecordSuccess(time.Unix(1700000000, 0))
	r.RecordSinkFailure("permanent")

	assert.Equal(t, 10.0, testutil.ToFloat64(r.records.WithLabelValues("transform", "kraken")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.rejections.WithLabelValues("normalization")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.anomalies.WithLabelValues("coingecko")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(r.lastSuccess))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sinkFailures.WithLabelValues("permanent")))

	n, err := testutil.GatherAndCount(r.Registry(), "trustboard_stage_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RecordRejections("alignment", 3)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.rejections.WithLabelValues("alignment")))
}

func TestPusher(t *testing.T) {
	var hits atomic.Int32
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		path.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New()
	r.RecordSuccess(time.Now())
	require.NoError(t, NewPusher(srv.URL, "trustboard_etl", r.Registry()).Push("run"))
	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, strings.Contains(path.Load().(string), "/job/trustboard_etl/mode/run"))
}

func TestNilPusherIsNoop(t *testing.T) {
	p := NewPusher("", "job", New().Registry())
	assert.Nil(t, p)
	assert.NoError(t, p.Push("run"))
}
