// Package pgtest поднимает PostgreSQL для интеграционных тестов репозиториев.
//
// Если задан TEST_DB_HOST - используется внешняя база (CI, локальная разработка),
// иначе запускается контейнер через testcontainers.
package pgtest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	pg "serotonyl.ru/faust/internal/db/postgres"
)

// DB: поднятая тестовая база с применёнными миграциями.
type DB struct {
	Pool      *pgxpool.Pool
	container *postgres.PostgresContainer
}

// Start возвращает готовую базу. Ошибка означает, что интеграционные
// тесты нужно пропустить (например, нет Docker).
func Start(ctx context.Context) (db *DB, err error) {
	// testcontainers может паниковать, если docker-сокет недоступен
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("testcontainers: %v", r)
		}
	}()

	dsn, container, err := dataSource(ctx)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		terminate(ctx, container)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		terminate(ctx, container)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := pg.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		terminate(ctx, container)
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &DB{Pool: pool, container: container}, nil
}

// Close закрывает пул и останавливает контейнер.
func (d *DB) Close(ctx context.Context) {
	if d == nil {
		return
	}
	d.Pool.Close()
	terminate(ctx, d.container)
}

// Truncate очищает таблицы между тестами.
func (d *DB) Truncate(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	_, err := d.Pool.Exec(ctx, "TRUNCATE "+strings.Join(tables, ", ")+" RESTART IDENTITY")
	return err
}

func dataSource(ctx context.Context) (string, *postgres.PostgresContainer, error) {
	if host := os.Getenv("TEST_DB_HOST"); host != "" {
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			envOr("TEST_DB_USER", "postgres"),
			envOr("TEST_DB_PASSWORD", "postgres"),
			host,
			envOr("TEST_DB_PORT", "5432"),
			envOr("TEST_DB_NAME", "faust_test"),
		)
		return dsn, nil, nil
	}

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("faust_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return "", nil, fmt.Errorf("failed to start PostgreSQL container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		terminate(ctx, container)
		return "", nil, fmt.Errorf("failed to get connection string: %w", err)
	}
	return dsn, container, nil
}

func terminate(ctx context.Context, c *postgres.PostgresContainer) {
	if c == nil {
		return
	}
	if err := c.Terminate(ctx); err != nil {
		fmt.Printf("Failed to terminate PostgreSQL container: %v\n", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
