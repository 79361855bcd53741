// main.go — точка входа File Vault.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/file-vault/internal/api/handlers"
	"github.com/bigkaa/goartstore/file-vault/internal/api/middleware"
	"github.com/bigkaa/goartstore/file-vault/internal/api/openapi"
	"github.com/bigkaa/goartstore/file-vault/internal/config"
	"github.com/bigkaa/goartstore/file-vault/internal/database"
	"github.com/bigkaa/goartstore/file-vault/internal/repository"
	"github.com/bigkaa/goartstore/file-vault/internal/repository/kv"
	"github.com/bigkaa/goartstore/file-vault/internal/server"
	"github.com/bigkaa/goartstore/file-vault/internal/service"
	"github.com/bigkaa/goartstore/file-vault/internal/storage/blob"
	"github.com/bigkaa/goartstore/file-vault/internal/storage/journal"
)

// minFreeDiskRatio — доля свободного места на диске FS blob store,
// ниже которой readiness сообщает degraded.
const minFreeDiskRatio = 0.05

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("File Vault запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("metadata_backend", cfg.MetadataBackend),
		slog.String("blob_backend", cfg.BlobBackend),
		slog.String("max_upload_size", humanize.IBytes(uint64(cfg.MaxUploadSize))),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("File Vault остановлен")
}

// metadataStore — выбранный бэкенд метаданных.
type metadataStore struct {
	users repository.UserRepository
	files repository.FileRepository
	ready handlers.ReadinessChecker
	// maintenance — периодическое обслуживание (GC badger), может быть nil
	maintenance func() error
	deps        service.DephealthDeps
	close       func()
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Контракт API проверяется до открытия хранилищ
	if _, err := openapi.Load(ctx); err != nil {
		return err
	}

	// 3. Хранилище метаданных
	meta, err := openMetadata(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer meta.close()

	// 4. Blob-хранилище
	blobs, blobCheck, err := openBlobStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	deps := meta.deps
	if cfg.BlobBackend == config.BlobBackendS3 && cfg.S3Endpoint != "" {
		deps.S3URL = cfg.S3Endpoint
		deps.S3HealthPath = cfg.S3HealthPath
	}

	// 5. Журнал намерений
	j, err := journal.New(cfg.JournalDir, logger)
	if err != nil {
		return fmt.Errorf("ошибка инициализации журнала: %w", err)
	}

	// 6. Сервисы
	key, err := service.LoadSigningKey(cfg.JWTPrivateKeyPath, logger)
	if err != nil {
		return err
	}
	identity, err := service.NewIdentityService(ctx, meta.users, key, service.IdentityConfig{
		Issuer:              cfg.JWTIssuer,
		TTL:                 cfg.JWTTTL,
		Leeway:              cfg.JWTLeeway,
		BcryptCost:          cfg.BcryptCost,
		DefaultStorageLimit: cfg.StorageLimit,
	}, logger)
	if err != nil {
		return fmt.Errorf("ошибка инициализации IdentityService: %w", err)
	}

	cache := service.NewCacheService(cfg.CacheMaxSize, cfg.CacheTTL)
	fileSvc := service.NewFileService(meta.files, blobs, j, cache, service.FileConfig{
		MaxUploadSize: cfg.MaxUploadSize,
		BlobTimeout:   cfg.BlobTimeout,
	}, logger)
	searchSvc := service.NewSearchService(meta.files, logger)
	usageSvc := service.NewUsageService(meta.files, meta.users, cfg.StorageLimit, logger)
	// Загрузка — запись blob и запись метаданных, каждая под FV_BLOB_TIMEOUT
	recoverySvc := service.NewRecoveryService(meta.files, blobs, j,
		cfg.RecoveryInterval, 2*cfg.BlobTimeout+time.Minute, meta.maintenance, logger)

	// Незавершённые операции прошлого запуска разбираются до приёма запросов
	recoverySvc.RunOnce(ctx, 0)

	// 7. topologymetrics — мониторинг зависимостей
	dephealthSvc := startDephealth(ctx, cfg, deps, logger)
	if dephealthSvc != nil {
		defer dephealthSvc.Stop()
	}

	// 8. Health checks
	checkers := []handlers.NamedChecker{
		{Name: "metadata", Checker: meta.ready},
		{Name: "journal", Checker: handlers.NewDirChecker(j.Dir(), false)},
	}
	if blobCheck != nil {
		checkers = append(checkers, handlers.NamedChecker{Name: "blob_store", Checker: blobCheck})
	} else if dephealthSvc != nil {
		checkers = append(checkers, handlers.NamedChecker{
			Name:    "blob_store",
			Checker: dependencyChecker{svc: dephealthSvc, name: "object-storage"},
		})
	}

	// 9. Handlers и HTTP-сервер
	apiHandler := handlers.NewAPIHandler(
		handlers.NewAuthHandler(identity, logger),
		handlers.NewFilesHandler(fileSvc, usageSvc, cfg.MaxUploadSize, logger),
		handlers.NewSearchHandler(searchSvc, logger),
	)
	router := server.NewRouter(logger, cfg.CORSOrigin, server.Routes{
		API:     apiHandler,
		Health:  handlers.NewHealthHandler(checkers...),
		Auth:    middleware.NewBearerAuth(identity, logger),
		Limiter: middleware.NewLoginLimiter(cfg.LoginRate, cfg.LoginBurst, logger),
	})
	srv := server.New(cfg, logger, router)

	// 10. Запуск: HTTP-сервер и восстановление по журналу до отмены ctx
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return recoverySvc.Run(gctx) })

	return g.Wait()
}

// openMetadata открывает PostgreSQL или badger в зависимости от конфигурации.
func openMetadata(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*metadataStore, error) {
	switch cfg.MetadataBackend {
	case config.MetadataBackendBadger:
		store, err := kv.Open(cfg.BadgerDir, logger)
		if err != nil {
			return nil, fmt.Errorf("ошибка открытия badger: %w", err)
		}
		return &metadataStore{
			users:       store.Users(),
			files:       store.Files(),
			ready:       store,
			maintenance: store.RunGC,
			close: func() {
				if err := store.Close(); err != nil {
					logger.Warn("Ошибка закрытия badger", slog.String("error", err.Error()))
				}
			},
		}, nil

	default:
		if err := database.Migrate(cfg, logger); err != nil {
			return nil, err
		}
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		db := stdlib.OpenDBFromPool(pool)
		return &metadataStore{
			users: repository.NewUserRepository(pool),
			files: repository.NewFileRepository(pool),
			ready: database.NewReadinessChecker(pool),
			deps: service.DephealthDeps{
				DB:          db,
				PostgresURL: cfg.DatabaseURL(),
			},
			close: func() {
				_ = db.Close()
				pool.Close()
			},
		}, nil
	}
}

// openBlobStore создаёт blob-хранилище. Для fs возвращается проверка
// корневой директории; S3 проверяется через topologymetrics.
func openBlobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (blob.Store, handlers.ReadinessChecker, error) {
	if cfg.BlobBackend == config.BlobBackendS3 {
		client, err := blob.NewS3Client(ctx, blob.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    cfg.S3Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		store, err := blob.NewS3Store(ctx, client, cfg.S3Bucket, cfg.S3Prefix, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}

	store, err := blob.NewFSStore(cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка инициализации FS blob store: %w", err)
	}
	return store, handlers.NewDirChecker(store.Root(), true).WithMinFree(minFreeDiskRatio), nil
}

// startDephealth запускает мониторинг зависимостей. Возвращает nil, если
// отслеживать нечего или запуск не удался: сервис работает без него.
func startDephealth(ctx context.Context, cfg *config.Config, deps service.DephealthDeps, logger *slog.Logger) *service.DephealthService {
	svc, err := service.NewDephealthService(serviceID(), cfg.DephealthGroup, deps, cfg.DephealthCheckInterval, logger)
	if errors.Is(err, service.ErrNoDependencies) {
		logger.Info("topologymetrics отключён: нет внешних зависимостей")
		return nil
	}
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		return nil
	}

	if err := svc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("topologymetrics запущен",
		slog.String("check_interval", cfg.DephealthCheckInterval.String()),
	)
	return svc
}
