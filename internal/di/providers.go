package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"StaffPulse/internal/domain/repository"
	domsvc "StaffPulse/internal/domain/service"
	"StaffPulse/internal/engine"
	"StaffPulse/internal/handler/api"
	internalrepo "StaffPulse/internal/repository"
	"StaffPulse/internal/service/ratelimit"
	"StaffPulse/internal/services/notify"
	"StaffPulse/internal/services/prediction"
	"StaffPulse/internal/usecase"
	"StaffPulse/pkg/cache"
	pkgch "StaffPulse/pkg/clickhouse"
	"StaffPulse/pkg/config"
	xhttp "StaffPulse/pkg/http"
	pkgkafka "StaffPulse/pkg/kafka"
	applogger "StaffPulse/pkg/logger"
	"StaffPulse/pkg/metrics"
	"StaffPulse/pkg/queue"
	"StaffPulse/pkg/server"
)

// ProvideLogger builds the process logger from the logging section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideRegistry returns a dedicated registry with the Go and process collectors.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.NewWithRegisterer(reg)
}

// ProvideClickHouseClient connects only when the ledger lives in ClickHouse.
func ProvideClickHouseClient(cfg *config.Config, log *applogger.Logger) (*pkgch.Client, func(), error) {
	if cfg.Ledger.Backend != "clickhouse" {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	log.Info("clickhouse connected", applogger.String("database", client.Database()))
	return client, func() {
		if err := client.Close(); err != nil {
			log.Warn("clickhouse close error", applogger.Error(err))
		}
	}, nil
}

// ProvideLedger returns the configured ledger with its schema in place.
func ProvideLedger(cfg *config.Config, ch *pkgch.Client) (repository.Ledger, error) {
	var ledger repository.Ledger
	if ch != nil {
		ledger = internalrepo.NewClickHouseLedger(ch.DB(), ch.Database()+"."+cfg.Ledger.Table)
	} else {
		ledger = internalrepo.NewMemoryLedger(cfg.Ledger.MaxRows)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ledger.Init(ctx); err != nil {
		return nil, fmt.Errorf("ledger init: %w", err)
	}
	return ledger, nil
}

// ProvideCache returns Redis when state is shared across replicas, memory otherwise.
func ProvideCache(cfg *config.Config, log *applogger.Logger) (cache.Service, func(), error) {
	var svc cache.Service
	if cfg.State.Backend == "redis" {
		rc, err := cache.NewRedisCache(
			cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
			cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
			cache.WithRedisPrefix(cfg.Redis.Prefix),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		log.Info("redis state backend ready", applogger.String("host", cfg.Redis.Host))
		svc = rc
	} else {
		// Unbounded: classifier state must never be evicted.
		svc = cache.NewMemoryCache(cache.WithMemoryMaxSize(0))
	}
	return svc, func() {
		if err := svc.Close(); err != nil {
			log.Warn("cache close error", applogger.Error(err))
		}
	}, nil
}

func ProvideStateStore(cfg *config.Config, c cache.Service, log *applogger.Logger) repository.StateStore {
	return internalrepo.NewCacheStateStore(c, cfg.State.LeaseTTL, log)
}

// ProvideKafkaProducer returns nil when Kafka is disabled. With the log
// collector enabled, aggregated warnings are shipped through the same producer.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry, log *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	p := cfg.Kafka.Producer
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(p.BatchSize, p.BatchBytes, p.Linger),
		pkgkafka.WithTimeouts(p.WriteTimeout, p.ReadTimeout),
		pkgkafka.WithMaxAttempts(p.MaxAttempts),
		pkgkafka.WithAsync(p.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}

	if c := cfg.Logging.Collector; c.Enabled {
		log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   c.TimeInterval,
			CountThreshold: c.CountThreshold,
			Topic:          c.Topic,
			Publisher:      producer,
		})
	}
	return producer, func() {
		log.RemoveCollector()
		if err := producer.Close(); err != nil {
			log.Warn("kafka producer close error", applogger.Error(err))
		}
	}, nil
}

func ProvideDecisionPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.DecisionPublisher {
	if producer == nil || cfg.Kafka.DecisionsTopic == "" {
		return nil
	}
	return internalrepo.NewKafkaDecisionPublisher(producer, cfg.Kafka.DecisionsTopic)
}

// ProvidePredictor returns nil when the model is disabled; scoring is rules only then.
func ProvidePredictor(cfg *config.Config) (domsvc.LoadRiskPredictor, error) {
	m := cfg.Engine.Model
	if !m.Enabled {
		return nil, nil
	}
	p, err := prediction.NewHTTPPredictor(m.URL, m.Timeout)
	if err != nil {
		return nil, fmt.Errorf("load risk model: %w", err)
	}
	return p, nil
}

// ProvideNotifier uses shoutrrr when channels are configured and the log otherwise.
func ProvideNotifier(cfg *config.Config, log *applogger.Logger) (domsvc.Notifier, error) {
	a := cfg.Alerting
	if !a.Enabled || len(a.Channels) == 0 {
		log.Warn("no alert channels configured, alerts go to the log only")
		return notify.NewLogNotifier(log), nil
	}
	n, err := notify.NewShoutrrrNotifier(a.Channels, a.Timeout)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func ProvideScorer(cfg *config.Config, predictor domsvc.LoadRiskPredictor, log *applogger.Logger) *engine.Scorer {
	return engine.NewScorer(&cfg.Engine, predictor, log)
}

func ProvideClassifier(cfg *config.Config) *engine.Classifier {
	return engine.NewClassifier(&cfg.Engine)
}

func ProvideAdvisor(cfg *config.Config) *engine.Advisor {
	return engine.NewAdvisor(&cfg.Engine)
}

func ProvideDispatcher(cfg *config.Config, notifier domsvc.Notifier, log *applogger.Logger) *engine.Dispatcher {
	return engine.NewDispatcher(&cfg.Alerting, notifier, log)
}

func ProvideDecisionCycle(
	cfg *config.Config,
	scorer *engine.Scorer,
	classifier *engine.Classifier,
	advisor *engine.Advisor,
	dispatcher *engine.Dispatcher,
	states repository.StateStore,
	audit *usecase.AuditRecorder,
	publisher repository.DecisionPublisher,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.DecisionCycle {
	var opts []usecase.DecisionCycleOption
	if publisher != nil {
		opts = append(opts, usecase.WithPublisher(publisher))
	}
	return usecase.NewDecisionCycle(scorer, classifier, advisor, dispatcher, states, audit, m, log, cfg.Engine.Version, opts...)
}

// ProvideKafkaConsumer returns nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, reg *prometheus.Registry, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerWorkers(c.Workers),
		pkgkafka.WithConsumerBufferSize(c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
		pkgkafka.WithConsumerFetch(c.MinBytes, c.MaxBytes),
		pkgkafka.WithConsumerLogger(log),
		pkgkafka.WithConsumerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.TraceHook{}, pkgkafka.LoggingHook{Log: log}))
	return consumer, nil
}

func ProvideSnapshotHandler(cfg *config.Config, cycle *usecase.DecisionCycle, m repository.Metrics, log *applogger.Logger) *usecase.SnapshotHandler {
	return usecase.NewSnapshotHandler(cfg.Kafka.SnapshotsTopic, cycle, m, log)
}

// ProvideDecisionsHandler wires the HTTP surface with health checks for the
// backends actually in use.
func ProvideDecisionsHandler(
	cfg *config.Config,
	log *applogger.Logger,
	cycle *usecase.DecisionCycle,
	history *usecase.HistoryService,
	ch *pkgch.Client,
	states cache.Service,
) *api.DecisionsHandler {
	checks := []api.HealthCheck{{
		Name: "state",
		Check: func(ctx context.Context) error {
			_, err := states.Exists(ctx, "health")
			return err
		},
	}}
	if ch != nil {
		checks = append(checks, api.HealthCheck{Name: "clickhouse", Check: ch.Health})
	}
	lim := cfg.Server.EvaluateLimit
	return api.NewDecisionsHandler(log, cycle, history, ratelimit.New(lim.Burst, lim.PerSecond), checks...)
}

func ProvideHTTPServer(cfg *config.Config, log *applogger.Logger, reg *prometheus.Registry, h *api.DecisionsHandler) (*xhttp.Server, error) {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
		xhttp.WithLogger(log),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(reg, cfg.Metrics.Path))
	}
	srv, err := xhttp.NewServer(h, opts...)
	if err != nil {
		return nil, fmt.Errorf("http server: %w", err)
	}
	return srv, nil
}

func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	snapshots *usecase.SnapshotHandler,
	auditQueue queue.Service,
) *server.App {
	return server.New(cfg, log, srv, consumer, snapshots, auditQueue)
}

// ProvideAuditQueue returns nil when audit retries are disabled. It reuses the
// Redis connection of the state backend when there is one.
func ProvideAuditQueue(cfg *config.Config, c cache.Service, log *applogger.Logger) queue.Service {
	r := cfg.AuditRetry
	if !r.Enabled {
		return nil
	}
	qcfg := queue.Config{
		Workers:      r.Workers,
		RetryLimit:   r.RetryLimit,
		RetryDelay:   r.RetryDelay,
		PollInterval: r.PollInterval,
	}
	qlog := log.With(applogger.String("component", "audit_retry"))
	if rc, ok := c.(*cache.RedisCache); ok {
		return queue.NewRedisQueue(qlog, qcfg, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":audit"))
	}
	return queue.NewMemoryQueue(qlog, qcfg)
}

func ProvideAuditRecorder(ledger repository.Ledger, q queue.Service, log *applogger.Logger) *usecase.AuditRecorder {
	opts := []usecase.AuditOption{usecase.WithAuditLogger(log)}
	if q != nil {
		opts = append(opts, usecase.WithRetryQueue(q))
	}
	return usecase.NewAuditRecorder(ledger, opts...)
}

func ProvideHistoryService(ledger repository.Ledger) *usecase.HistoryService {
	return usecase.NewHistoryService(ledger)
}
