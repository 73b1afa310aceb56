// Package app assembles the reconciliation engine and its collaborators from configuration
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/ingest"
	"github.com/Ramsey-B/clover/internal/repositories/memory"
	"github.com/Ramsey-B/clover/internal/repositories/mergeactivity"
	"github.com/Ramsey-B/clover/internal/repositories/person"
	"github.com/Ramsey-B/clover/internal/repositories/snapshot"
	"github.com/Ramsey-B/clover/pkg/automerge"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reconcile"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/suggestion"
)

// PersonStore is a RecordStore that can also load records, used by the import command
type PersonStore interface {
	reconcile.RecordStore
	Upsert(ctx context.Context, records ...models.PersonRecord) error
}

type App struct {
	Config       *config.Config
	Logger       ectologger.Logger
	DB           database.DB
	People       PersonStore
	Engine       *reconcile.Engine
	Scorer       *matching.Scorer
	Provider     reconcile.SuggestionProvider
	Orchestrator *automerge.Orchestrator
	Health       *health.Checker
	Lineage      *graph.LineageWriter
	// Consumer is set when KAFKA_INPUT_TOPIC is configured; StartConsumer runs it
	Consumer     *kafka.Consumer

	startup  *startup.Startup
	redis    *redis.Client
	graph    *graph.Client
	producer *kafka.Producer
}

// New connects every configured backend (retrying per STARTUP_MAX_ATTEMPTS) and builds the engine
func New(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (*App, error) {
	weights, err := matching.LoadWeights(cfg.ScorerWeightsFile)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Scorer:  matching.NewScorer(weights),
		Health:  health.NewChecker(cfg.Version),
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
	}
	a.addDependencies()

	if err := a.startup.Start(ctx); err != nil {
		return nil, err
	}

	if err := a.buildEngine(ctx); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) addDependencies() {
	cfg := a.Config

	if cfg.Store != "memory" {
		a.startup.AddDependency(&startup.Dependency{
			Name:    "database",
			OnStart: a.openDatabase,
			OnStop:  func(context.Context) error { return a.DB.Close() },
		})
		if cfg.DatabaseAutoMigrate {
			a.startup.AddDependency(&startup.Dependency{
				Name:     "migrations",
				Requires: []string{"database"},
				OnStart:  func(context.Context) error { return a.Migrate() },
			})
		}
	}

	if cfg.LockBackend == "redis" {
		a.startup.AddDependency(&startup.Dependency{
			Name: "redis",
			OnStart: func(context.Context) error {
				client, err := redis.NewClient(redis.Config{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, a.Logger)
				if err != nil {
					return err
				}
				a.redis = client
				a.Health.AddCheck("redis", client.Ping)
				return nil
			},
			OnStop: func(context.Context) error { return a.redis.Close() },
		})
	}

	if cfg.GraphDBHost != "" {
		a.startup.AddDependency(&startup.Dependency{
			Name: "graph",
			OnStart: func(ctx context.Context) error {
				client, err := graph.NewClient(graph.Config{
					Host:     cfg.GraphDBHost,
					Port:     cfg.GraphDBPort,
					Username: cfg.GraphDBUser,
					Password: cfg.GraphDBPassword,
				}, a.Logger)
				if err != nil {
					return err
				}
				if err := client.VerifyConnectivity(ctx); err != nil {
					_ = client.Close(ctx)
					return err
				}
				a.graph = client
				a.Health.AddCheck("graph", client.VerifyConnectivity)
				return nil
			},
			OnStop: func(ctx context.Context) error { return a.graph.Close(ctx) },
		})
	}

	if len(cfg.KafkaBrokers) > 0 {
		a.startup.AddDependency(&startup.Dependency{
			Name: "kafka",
			OnStart: func(context.Context) error {
				a.producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaOutputTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: cfg.KafkaBatchTimeout,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, a.Logger)
				return nil
			},
			OnStop: func(context.Context) error { return a.producer.Close() },
		})
	}
}

func (a *App) openDatabase(ctx context.Context) error {
	cfg := a.Config

	driver := database.DriverPostgres
	if cfg.Store == "sqlite" {
		driver = database.DriverSQLite
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := database.Open(connectCtx, driver, cfg.DSN(), a.Logger)
	if err != nil {
		return err
	}
	if driver == database.DriverPostgres {
		db.SQL().SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
		db.SQL().SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
		db.SQL().SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
	}

	a.DB = db
	a.Health.AddCheck("database", db.PingContext)
	return nil
}

// Migrate applies the migrations for the configured SQL store
func (a *App) Migrate() error {
	if a.DB == nil {
		return fmt.Errorf("store %q has no migrations", a.Config.Store)
	}
	ms := database.NewMigrationService(a.Logger, &database.MigrationConfig{
		MigrationFolderPath: a.Config.MigrationFolder(),
		Version:             uint(a.Config.DatabaseMigrationVersion),
		Force:               a.Config.DatabaseMigrationForce,
		AutoRollback:        a.Config.DatabaseMigrationAutoRollback,
	})
	return ms.MigrateDB(a.DB)
}

func (a *App) buildEngine(ctx context.Context) error {
	cfg := a.Config

	var (
		activity  reconcile.ActivityLog
		snapshots reconcile.SnapshotStore
		opts      []reconcile.Option
	)

	if a.DB != nil {
		a.People = person.NewRepository(a.DB, a.Logger)
		activity = mergeactivity.NewRepository(a.DB, a.Logger)
		snapshots = snapshot.NewRepository(a.DB, a.Logger)
		opts = append(opts, reconcile.WithTransactor(database.NewTransactor(a.DB, a.Logger)))
	} else {
		a.People = memoryPeople{memory.NewPersonStore()}
		activity = memory.NewActivityLog()
		snapshots = memory.NewSnapshotStore()
	}

	if a.redis != nil {
		locker := redis.NewLocker(a.redis, cfg.AppName+":lock:")
		opts = append(opts, reconcile.WithLocker(redis.NewKeeperLocker(locker, cfg.LockTTL, a.Logger)))
	}
	if a.producer != nil {
		opts = append(opts, reconcile.WithPublisher(events.NewEmitter(a.producer, a.Logger)))
	}
	if a.graph != nil {
		a.Lineage = graph.NewLineageWriter(a.graph, a.Logger)
		opts = append(opts, reconcile.WithLineage(a.Lineage))
	}
	opts = append(opts, reconcile.WithSuggestionTimeout(cfg.SuggestionTimeout))

	provider, err := NewProvider(ctx, cfg, a.Logger)
	if err != nil {
		return err
	}
	a.Provider = provider

	a.Engine = reconcile.NewEngine(a.Logger, a.People, activity, snapshots, opts...)
	a.Orchestrator = automerge.NewOrchestrator(a.Engine, a.Logger, automerge.Config{
		Workers:           cfg.MergeWorkerCount,
		SuggestionTimeout: cfg.SuggestionTimeout,
	})
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaInputTopic != "" {
		a.Consumer = kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.KafkaInputTopic,
			ConsumerGroup: cfg.KafkaConsumerGroup,
		}, a.Logger, ingest.NewHandler(a.People, a.Logger).Handle)
	}

	a.Health.SetReady(true)
	return nil
}

// StartConsumer begins ingesting person records when a consumer is configured
func (a *App) StartConsumer(ctx context.Context) {
	if a.Consumer != nil {
		a.Consumer.Start(ctx)
	}
}

// NewProvider picks the suggestion provider named by AI_PROVIDER. "none" returns nil,
// which leaves only manual resolution available.
func NewProvider(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (reconcile.SuggestionProvider, error) {
	switch cfg.AIProvider {
	case "rules":
		return suggestion.RulesProvider{}, nil
	case "", "none":
		return nil, nil
	}

	completer, err := suggestion.NewCompleter(ctx, suggestion.Config{
		Provider:  cfg.AIProvider,
		Model:     cfg.AIModel,
		APIKey:    cfg.AIAPIKey,
		BaseURL:   cfg.AIBaseURL,
		MaxTokens: cfg.AIMaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return suggestion.NewLLMProvider(completer, logger), nil
}

func (a *App) Close(ctx context.Context) error {
	a.Health.SetReady(false)
	if a.Consumer != nil {
		if err := a.Consumer.Stop(); err != nil {
			a.Logger.WithContext(ctx).WithError(err).Warn("Failed to stop kafka consumer")
		}
	}
	return a.startup.Stop(ctx)
}

// memoryPeople adapts the in-memory store's single-record Upsert
type memoryPeople struct {
	*memory.PersonStore
}

func (m memoryPeople) Upsert(ctx context.Context, records ...models.PersonRecord) error {
	for _, r := range records {
		if err := m.PersonStore.Upsert(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
