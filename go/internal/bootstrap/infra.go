package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/eskrenkovic/migrate-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/mcdev12/quizduel/go/internal/changefeed"
	"github.com/mcdev12/quizduel/go/internal/config"
	"github.com/mcdev12/quizduel/go/internal/dbconfig"
	"github.com/mcdev12/quizduel/go/internal/questions"
	"github.com/mcdev12/quizduel/go/internal/store"
	"github.com/mcdev12/quizduel/go/internal/store/postgres"
	"github.com/mcdev12/quizduel/go/internal/store/redisstore"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Options selects the backends a process runs against.
type Options struct {
	StoreBackend   string
	MigrationsPath string
	// Migrate applies MigrationsPath before the pool opens. Only the API server does this.
	Migrate bool
}

// Infra owns the connections behind the session store and question bank.
type Infra struct {
	Store     store.Store
	Questions questions.Repository

	Pool  *pgxpool.Pool
	Redis *redis.Client
	NATS  *nats.Conn

	closers []func()
}

// Open connects whatever the store backend and question source need.
func Open(ctx context.Context, opts Options, game *config.Game, clock clockwork.Clock) (*Infra, error) {
	infra := &Infra{}
	needsPostgres := opts.StoreBackend == config.BackendPostgres || game.Questions.Source == config.BackendPostgres
	needsRedis := opts.StoreBackend == config.BackendRedis || game.Questions.Source == config.BackendRedis

	if needsPostgres {
		dbCfg := dbconfig.NewConfigFromEnv()
		if opts.Migrate {
			if err := Migrate(ctx, dbCfg.DSN(), opts.MigrationsPath); err != nil {
				return nil, err
			}
		}
		pool, err := pgxpool.New(ctx, dbCfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping postgres: %w", err)
		}
		infra.Pool = pool
		infra.closers = append(infra.closers, pool.Close)
		log.Info().
			Str("host", dbCfg.Host).
			Int("port", dbCfg.Port).
			Str("database", dbCfg.Database).
			Msg("connected to postgres")
	}

	if needsRedis {
		redisCfg := dbconfig.NewRedisConfigFromEnv()
		client := redis.NewClient(redisCfg.Options())
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			infra.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		infra.Redis = client
		infra.closers = append(infra.closers, func() { _ = client.Close() })
		log.Info().Str("addr", redisCfg.Addr).Msg("connected to redis")
	}

	switch opts.StoreBackend {
	case config.BackendMemory:
		infra.Store = store.NewMemoryStore(clock)
	case config.BackendRedis:
		infra.Store = redisstore.NewRepository(infra.Redis, clock)
	case config.BackendPostgres:
		nc, js, err := changefeed.Connect(ctx, game.Events)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("failed to connect change feed: %w", err)
		}
		infra.NATS = nc
		infra.closers = append(infra.closers, nc.Close)
		infra.Store = store.WithWatcher(
			postgres.NewRepository(infra.Pool, clock),
			changefeed.NewWatcher(js, game.Events),
		)
	default:
		infra.Close()
		return nil, fmt.Errorf("unknown store backend %q", opts.StoreBackend)
	}

	switch game.Questions.Source {
	case config.BackendPostgres:
		infra.Questions = questions.NewPostgresRepository(infra.Pool)
	case config.BackendRedis:
		infra.Questions = questions.NewRedisRepository(infra.Redis)
	default:
		qs, err := questions.LoadFile(game.Questions.AssetPath)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("failed to load question asset: %w", err)
		}
		infra.Questions = questions.NewMemoryRepository(qs)
		log.Info().Int("questions", len(qs)).Str("path", game.Questions.AssetPath).Msg("loaded question asset")
	}

	log.Info().
		Str("store", opts.StoreBackend).
		Str("questions", game.Questions.Source).
		Msg("storage ready")
	return infra, nil
}

// Close releases connections in reverse order of opening.
func (i *Infra) Close() {
	for j := len(i.closers) - 1; j >= 0; j-- {
		i.closers[j]()
	}
	i.closers = nil
}

// Migrate applies the SQL migrations in path.
func Migrate(ctx context.Context, dsn, path string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	if err := migrate.Run(ctx, db, path); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info().Str("path", path).Msg("migrations applied")
	return nil
}
