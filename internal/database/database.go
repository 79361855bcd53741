// Пакет database — PostgreSQL-бэкенд метаданных File Vault: пул pgx,
// встроенные миграции схемы users/files и readiness для /health/ready.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/goartstore/file-vault/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	// applicationName — видно в pg_stat_activity
	applicationName = "file-vault"
	// connectTimeout — ожидание первого ping при старте
	connectTimeout = 10 * time.Second
	// readyTimeout — ping в проверке готовности
	readyTimeout = 3 * time.Second
)

// Connect создаёт пул подключений и дожидается ответа PostgreSQL.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PostgreSQL %s:%d недоступен: %w", cfg.DBHost, cfg.DBPort, err)
	}

	logger.Info("Хранилище метаданных: PostgreSQL",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
	)
	return pool, nil
}

// Migrate приводит схему к последней встроенной миграции.
// База в dirty-состоянии или со схемой новее бинарника — ошибка запуска.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	latest, err := latestMigration(migrationsFS)
	if err != nil {
		return err
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(cfg))
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()

	current, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		// Пустая база
	case err != nil:
		return fmt.Errorf("ошибка чтения версии схемы: %w", err)
	case dirty:
		return fmt.Errorf("схема в dirty-состоянии после миграции %d, требуется ручное вмешательство", current)
	case current > latest:
		return fmt.Errorf("версия схемы %d новее поддерживаемой %d", current, latest)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	logger.Info("Схема метаданных актуальна",
		slog.Uint64("from_version", uint64(current)),
		slog.Uint64("version", uint64(latest)),
	)
	return nil
}

// latestMigration — номер последней up-миграции (NNNNNN_name.up.sql).
func latestMigration(fsys fs.FS) (uint, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения встроенных миграций: %w", err)
	}

	var latest uint
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, _, _ := strings.Cut(name, "_")
		n, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("некорректное имя миграции %s", name)
		}
		latest = max(latest, uint(n))
	}
	if latest == 0 {
		return 0, errors.New("встроенные миграции не найдены")
	}
	return latest, nil
}

// migrateURL формирует URL для golang-migrate (схема pgx5://).
func migrateURL(cfg *config.Config) string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(cfg.DBUser, cfg.DBPassword),
		Host:     fmt.Sprintf("%s:%d", cfg.DBHost, cfg.DBPort),
		Path:     "/" + cfg.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(cfg.DBSSLMode),
	}
	return u.String()
}

// ReadinessChecker — готовность PostgreSQL: ping и загрузка пула.
type ReadinessChecker struct {
	pool *pgxpool.Pool
}

// NewReadinessChecker создаёт проверку готовности PostgreSQL.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{pool: pool}
}

// CheckReady: fail — PostgreSQL не отвечает, degraded — все соединения
// пула заняты (запросы ждут в очереди), иначе ok.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()

	if err := c.pool.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}
	stat := c.pool.Stat()
	return poolStatus(stat.AcquiredConns(), stat.MaxConns())
}

func poolStatus(acquired, maxConns int32) (string, string) {
	if maxConns > 0 && acquired >= maxConns {
		return "degraded", fmt.Sprintf("пул соединений исчерпан: %d/%d", acquired, maxConns)
	}
	return "ok", fmt.Sprintf("соединений занято %d/%d", acquired, maxConns)
}
