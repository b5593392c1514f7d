package di

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"TrustBoard/internal/domain/models"
	drepo "TrustBoard/internal/domain/repository"
	"TrustBoard/internal/handler/api"
	internalrepo "TrustBoard/internal/repository"
	"TrustBoard/internal/service/coingecko"
	"TrustBoard/internal/service/kraken"
	"TrustBoard/internal/service/ratelimit"
	"TrustBoard/internal/services/transform"
	"TrustBoard/internal/usecase"
	"TrustBoard/pkg/cache"
	pkgch "TrustBoard/pkg/clickhouse"
	"TrustBoard/pkg/config"
	xhttp "TrustBoard/pkg/http"
	pkgkafka "TrustBoard/pkg/kafka"
	applogger "TrustBoard/pkg/logger"
	"TrustBoard/pkg/metrics"
	"TrustBoard/pkg/postgres"
	"TrustBoard/pkg/server"
)

const initTimeout = 10 * time.Second

// ProvideLogger builds the structured logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New().WithRuntimeCollectors()
}

// ProvideHTTPClient creates the outbound client shared by the fetchers.
func ProvideHTTPClient(cfg *config.Config) *xhttp.Client {
	return xhttp.NewClient(
		xhttp.WithTimeout(cfg.Extract.Timeout),
		xhttp.WithRetry(cfg.Extract.Retry.MaxAttempts, cfg.Extract.Retry.Backoff),
		xhttp.WithUserAgent("trustboard-etl/1.0"),
	)
}

func ProvideLimiter() *ratelimit.Limiter { return ratelimit.New() }

// ProvideFetchers returns one fetcher per enabled source.
func ProvideFetchers(cfg *config.Config, httpc *xhttp.Client, limiter *ratelimit.Limiter, l *applogger.Logger) []drepo.Fetcher {
	var out []drepo.Fetcher
	if cg := cfg.Extract.CoinGecko; cg.Enabled {
		c := coingecko.New(coingecko.Config{
			BaseURL:    cg.BaseURL,
			APIKey:     cg.APIKey,
			CoinID:     cg.CoinID,
			VsCurrency: cg.VsCurrency,
			Symbol:     cg.Symbol,
			Days:       cg.Days,
			Rate:       cg.RateLimit.Rate,
			Burst:      cg.RateLimit.Burst,
		}, httpc, limiter)
		c.SetLogger(l)
		out = append(out, c)
	}
	if kr := cfg.Extract.Kraken; kr.Enabled {
		c := kraken.New(kraken.Config{
			BaseURL:         kr.BaseURL,
			APIKey:          kr.APIKey,
			Pair:            kr.Pair,
			IntervalMinutes: kr.IntervalMinutes,
			Lookback:        kr.Lookback,
			Rate:            kr.RateLimit.Rate,
			Burst:           kr.RateLimit.Burst,
		}, httpc, limiter)
		c.SetLogger(l)
		out = append(out, c)
	}
	return out
}

// TransformConfig converts the transform section into pipeline configuration.
// Sources named in YAML replace the built-in mapping of that source.
func TransformConfig(cfg *config.Config) transform.Config {
	tc := cfg.Transform
	sources := transform.DefaultSources()
	for name, sc := range tc.Sources {
		fm := sc.FieldMap
		sources[models.Source(name)] = transform.SourceMapping{
			Fields: transform.FieldMap{
				Timestamp:       fm.Timestamp,
				TimestampFormat: fm.TimestampFormat,
				Open:            fm.Open,
				High:            fm.High,
				Low:             fm.Low,
				Close:           fm.Close,
				Volume:          fm.Volume,
				VWAP:            fm.VWAP,
				Count:           fm.Count,
			},
			SymbolAliases: sc.SymbolAliases,
		}
	}
	return transform.Config{
		Interval:      tc.Interval,
		Earliest:      tc.Earliest,
		MaxFutureSkew: tc.MaxFutureSkew,
		Anomaly: transform.AnomalyConfig{
			Threshold:  decimal.NewFromFloat(tc.Anomaly.Threshold),
			Window:     tc.Anomaly.Window,
			MinSamples: tc.Anomaly.MinSamples,
			Method:     tc.Anomaly.Method,
		},
		Sources: sources,
	}
}

func ProvidePipeline(cfg *config.Config, l *applogger.Logger) (*transform.Pipeline, error) {
	p, err := transform.NewPipeline(TransformConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("transform pipeline: %w", err)
	}
	p.SetLogger(l)
	return p, nil
}

func ProvideSnapshotStore(cfg *config.Config) (*internalrepo.FileSnapshotStore, error) {
	s, err := internalrepo.NewFileSnapshotStore(cfg.Snapshot.Dir, cfg.Snapshot.Format)
	if err != nil {
		return nil, fmt.Errorf("snapshot store: %w", err)
	}
	return s, nil
}

// ProvideCache returns a process-local cache, layered over Redis when enabled.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	mem := cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Redis.MemoryMaxSize))
	if !cfg.Redis.Enabled {
		return mem, func() { _ = mem.Close() }, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	rc, err := cache.NewRedisCache(ctx,
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 0, 0),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		_ = mem.Close()
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	l.Info("redis cache connected", applogger.String("addr", cfg.Redis.Addr))

	lc := cache.NewLayeredCache(mem, rc, cache.WithLayeredL1TTL(time.Minute))
	return lc, func() { _ = lc.Close() }, nil
}

// storeName is the store the ETL reads history from and the sink writes to.
func storeName(cfg *config.Config) string {
	if cfg.Load.Backend == "kafka" {
		return cfg.Load.SinkStore
	}
	return cfg.Load.Backend
}

// ProvideCandleStore connects the configured relational or columnar store and
// ensures its table exists.
func ProvideCandleStore(cfg *config.Config, l *applogger.Logger) (drepo.CandleStore, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	var store drepo.CandleStore
	switch name := storeName(cfg); name {
	case "postgres":
		pool, err := postgres.Connect(ctx, postgres.Config{
			URL:             cfg.Postgres.URL,
			MinConns:        cfg.Postgres.MinConns,
			MaxConns:        cfg.Postgres.MaxConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			ConnectTimeout:  cfg.Postgres.ConnectTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		s := internalrepo.NewPostgresCandleStore(pool, cfg.Postgres.Table)
		s.SetLogger(l)
		store = s
	case "clickhouse":
		ch, err := ProvideClickHouseClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		s := internalrepo.NewCHCandleStore(ch, cfg.ClickHouse.Database+".candles")
		s.SetLogger(l)
		store = s
	default:
		return nil, nil, fmt.Errorf("unknown candle store %q", name)
	}

	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("init candle store: %w", err)
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			l.Warn("candle store close error", applogger.Error(err))
		}
	}
	return store, cleanup, nil
}

// ProvideClickHouseClient creates a ClickHouse client and its database.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database,
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when no brokers are
// configured.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithAutoCreateTopic(cfg.Kafka.Producer.AutoCreate),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	if cfg.Kafka.LogTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval: 30 * time.Second,
			Topic:        cfg.Kafka.LogTopic,
			Publisher:    producer,
		})
	}
	cleanup := func() {
		l.RemoveCollector()
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	return producer, cleanup, nil
}

// ProvideLoader picks the load target: the store itself, or the Kafka topic a
// sink drains into the store.
func ProvideLoader(cfg *config.Config, store drepo.CandleStore, producer *pkgkafka.Producer) (usecase.Loader, error) {
	if cfg.Load.Backend != "kafka" {
		return usecase.NewStoreLoader(cfg.Load.Backend, store), nil
	}
	if producer == nil {
		return nil, fmt.Errorf("kafka backend needs kafka.brokers")
	}
	return usecase.NewPublishLoader(internalrepo.NewKafkaCandlePublisher(producer, cfg.Kafka.Topic)), nil
}

func ProvideExtractor(
	cfg *config.Config,
	fetchers []drepo.Fetcher,
	snapshots *internalrepo.FileSnapshotStore,
	m drepo.Metrics,
	l *applogger.Logger,
) *usecase.Extractor {
	e := usecase.NewExtractor(fetchers, snapshots, cfg.Extract.AllowPartial, cfg.Extract.Timeout, m)
	e.SetLogger(l)
	return e
}

func ProvideBaseline(cfg *config.Config, store drepo.CandleStore, c cache.Service, l *applogger.Logger) *usecase.BaselineProvider {
	b := usecase.NewBaselineProvider(store, c, cfg.Baseline.CacheTTL, cfg.Transform.Anomaly.Window)
	b.SetLogger(l)
	return b
}

func ProvideRunReports(cfg *config.Config, c cache.Service) *internalrepo.CacheRunReportStore {
	return internalrepo.NewCacheRunReportStore(c, cfg.Quality.ReportTTL)
}

func ProvideETLRunner(
	extractor *usecase.Extractor,
	snapshots *internalrepo.FileSnapshotStore,
	pipeline *transform.Pipeline,
	baseline *usecase.BaselineProvider,
	loader usecase.Loader,
	reports *internalrepo.CacheRunReportStore,
	m drepo.Metrics,
	c cache.Service,
	l *applogger.Logger,
) *usecase.ETLRunner {
	r := usecase.NewETLRunner(usecase.ETLRunnerDeps{
		Extractor: extractor,
		Snapshots: snapshots,
		Pipeline:  pipeline,
		Baseline:  baseline,
		Loader:    loader,
		Reports:   reports,
		Metrics:   m,
		Locker:    c,
	})
	r.SetLogger(l)
	return r
}

func ProvideCandlesUseCase(store drepo.CandleStore) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(store)
}

func ProvideQualityUseCase(cfg *config.Config, store drepo.CandleStore) *usecase.QualityUseCase {
	return usecase.NewQualityUseCase(store, cfg.Transform.Interval, cfg.Quality.StaleAfter)
}

func ProvideTrustHandler(
	l *applogger.Logger,
	candles *usecase.CandlesUseCase,
	quality *usecase.QualityUseCase,
	reports *internalrepo.CacheRunReportStore,
	store drepo.CandleStore,
) *api.TrustEchoHandler {
	return api.NewTrustEchoHandler(l, candles, quality, reports, map[string]api.HealthChecker{
		"candle_store": store,
	})
}

// ProvideKafkaConsumer creates the sink consumer, or nil when no brokers are
// configured.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaCandlesHandler upserts sink messages and drops cached baselines
// once new candles land.
func ProvideKafkaCandlesHandler(cfg *config.Config, store drepo.CandleStore, m drepo.Metrics, baseline *usecase.BaselineProvider) *usecase.KafkaCandlesHandler {
	h := usecase.NewKafkaCandlesHandler(cfg.Kafka.Topic, store, m)
	h.OnLoad(baseline.Invalidate)
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	rec *metrics.Recorder,
	runner *usecase.ETLRunner,
	handler *api.TrustEchoHandler,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaCandlesHandler,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(usecase.NewSinkHooks(l.With(applogger.String("component", "sink")), rec))
	}
	return server.New(server.Deps{
		Config:      cfg,
		Logger:      l,
		Runner:      runner,
		HTTPHandler: handler,
		Consumer:    consumer,
		SinkHandler: kh,
		Registry:    rec.Registry(),
		Pusher:      metrics.NewPusher(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, rec.Registry()),
	})
}
