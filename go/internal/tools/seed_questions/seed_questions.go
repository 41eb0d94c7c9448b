package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/quizduel/go/internal/dbconfig"
	"github.com/mcdev12/quizduel/go/internal/questions"
	"github.com/redis/go-redis/v9"
)

func main() {
	assetPath := flag.String("asset", "go/internal/assets/questions.json", "question asset to load")
	target := flag.String("target", "postgres", "where to seed: postgres, redis or both")
	flag.Parse()

	// 1) Load the JSON snapshot
	qs, err := questions.LoadFile(*assetPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load questions: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	seedPostgres := *target == "postgres" || *target == "both"
	seedRedis := *target == "redis" || *target == "both"
	if !seedPostgres && !seedRedis {
		fmt.Fprintf(os.Stderr, "unknown target %q\n", *target)
		os.Exit(1)
	}

	// 2) Upsert into Postgres using shared dbconfig
	if seedPostgres {
		cfg := dbconfig.NewConfigFromEnv()
		pool, err := pgxpool.New(ctx, cfg.DSN())
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
			os.Exit(1)
		}
		defer pool.Close()

		written, err := questions.NewPostgresRepository(pool).UpsertQuestions(ctx, qs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "upsert questions (%d written): %v\n", written, err)
			os.Exit(1)
		}
		fmt.Printf("postgres: %d/%d questions upserted into %s\n", written, len(qs), cfg.Database)
	}

	// 3) Mirror into the Redis bank
	if seedRedis {
		redisCfg := dbconfig.NewRedisConfigFromEnv()
		client := redis.NewClient(redisCfg.Options())
		defer client.Close()

		if err := questions.NewRedisRepository(client).SaveQuestions(ctx, qs); err != nil {
			fmt.Fprintf(os.Stderr, "save questions to redis: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("redis: %d questions saved at %s\n", len(qs), redisCfg.Addr)
	}
}
