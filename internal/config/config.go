// Пакет config — загрузка и валидация конфигурации File Vault
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые значения бэкендов.
const (
	MetadataBackendPostgres = "postgres"
	MetadataBackendBadger   = "badger"

	BlobBackendFS = "fs"
	BlobBackendS3 = "s3"
)

// Config содержит все параметры конфигурации File Vault.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Бэкенд метаданных: postgres или badger
	MetadataBackend string
	// Параметры PostgreSQL (MetadataBackend=postgres)
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
	// Директория badger (MetadataBackend=badger)
	BadgerDir string

	// Бэкенд blob-хранилища: fs или s3
	BlobBackend string
	// Корневая директория blob-хранилища (BlobBackend=fs)
	DataDir string
	// Параметры S3 (BlobBackend=s3)
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Prefix    string

	// S3HealthPath — путь health endpoint S3-совместимого сервиса для dephealth
	S3HealthPath string

	// Директория журнала намерений загрузки
	JournalDir string
	// Интервал восстановления незавершённых загрузок
	RecoveryInterval time.Duration

	// Путь к PEM с приватным RSA-ключом подписи JWT (пусто — эфемерный ключ)
	JWTPrivateKeyPath string
	// Значение iss в выпускаемых токенах
	JWTIssuer string
	// Время жизни токена
	JWTTTL time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Стоимость bcrypt
	BcryptCost int

	// Максимальный размер загружаемого файла в байтах
	MaxUploadSize int64
	// Таймаут операций с blob-хранилищем
	BlobTimeout time.Duration
	// Отображаемый лимит хранилища пользователя по умолчанию (не применяется)
	StorageLimit int64

	// TTL и размер кэша записей файлов
	CacheTTL     time.Duration
	CacheMaxSize int

	// Ограничение частоты попыток входа с одного IP
	LoginRate  float64
	LoginBurst int

	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
	// Разрешённый origin для CORS (SPA)
	CORSOrigin string

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics (FV_DEPHEALTH_GROUP)
	DephealthGroup string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// FV_PORT — порт HTTP-сервера (по умолчанию 5000)
	cfg.Port, err = getEnvInt("FV_PORT", 5000)
	if err != nil {
		return nil, fmt.Errorf("FV_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("FV_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// FV_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("FV_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("FV_LOG_LEVEL: %w", err)
	}

	// FV_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("FV_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FV_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	if err := loadMetadata(cfg); err != nil {
		return nil, err
	}
	if err := loadBlob(cfg); err != nil {
		return nil, err
	}
	if err := loadAuth(cfg); err != nil {
		return nil, err
	}
	if err := loadLimits(cfg); err != nil {
		return nil, err
	}
	if err := loadHTTP(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadMetadata читает параметры хранилища метаданных.
func loadMetadata(cfg *Config) error {
	var err error

	cfg.MetadataBackend = getEnvDefault("FV_METADATA_BACKEND", MetadataBackendPostgres)
	switch cfg.MetadataBackend {
	case MetadataBackendPostgres, MetadataBackendBadger:
	default:
		return fmt.Errorf("FV_METADATA_BACKEND: недопустимое значение %q, допустимые: postgres, badger", cfg.MetadataBackend)
	}

	cfg.DBHost = getEnvDefault("FV_DB_HOST", "localhost")
	cfg.DBPort, err = getEnvInt("FV_DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("FV_DB_PORT: %w", err)
	}
	cfg.DBName = getEnvDefault("FV_DB_NAME", "filevault")
	cfg.DBUser = getEnvDefault("FV_DB_USER", "filevault")
	cfg.DBSSLMode = getEnvDefault("FV_DB_SSL_MODE", "disable")

	// FV_DB_PASSWORD обязателен только для postgres
	if cfg.MetadataBackend == MetadataBackendPostgres {
		cfg.DBPassword, err = getEnvRequired("FV_DB_PASSWORD")
		if err != nil {
			return err
		}
	}

	cfg.BadgerDir = getEnvDefault("FV_BADGER_DIR", "./data/meta")
	return nil
}

// loadBlob читает параметры blob-хранилища и журнала загрузок.
func loadBlob(cfg *Config) error {
	var err error

	cfg.BlobBackend = getEnvDefault("FV_BLOB_BACKEND", BlobBackendFS)
	switch cfg.BlobBackend {
	case BlobBackendFS, BlobBackendS3:
	default:
		return fmt.Errorf("FV_BLOB_BACKEND: недопустимое значение %q, допустимые: fs, s3", cfg.BlobBackend)
	}

	cfg.DataDir = getEnvDefault("FV_DATA_DIR", "./data/blobs")

	cfg.S3Endpoint = getEnvDefault("FV_S3_ENDPOINT", "")
	cfg.S3Region = getEnvDefault("FV_S3_REGION", "us-east-1")
	cfg.S3Bucket = getEnvDefault("FV_S3_BUCKET", "")
	cfg.S3AccessKey = getEnvDefault("FV_S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnvDefault("FV_S3_SECRET_KEY", "")
	cfg.S3Prefix = getEnvDefault("FV_S3_PREFIX", "")
	cfg.S3HealthPath = getEnvDefault("FV_S3_HEALTH_PATH", "/minio/health/live")

	if cfg.BlobBackend == BlobBackendS3 {
		if cfg.S3Bucket == "" {
			return fmt.Errorf("FV_S3_BUCKET: обязательная переменная окружения не задана")
		}
		if cfg.S3Endpoint != "" {
			if _, err := url.ParseRequestURI(cfg.S3Endpoint); err != nil {
				return fmt.Errorf("FV_S3_ENDPOINT: некорректный URL %q", cfg.S3Endpoint)
			}
		}
		if (cfg.S3AccessKey == "") != (cfg.S3SecretKey == "") {
			return fmt.Errorf("FV_S3_ACCESS_KEY и FV_S3_SECRET_KEY задаются только вместе")
		}
	}

	cfg.JournalDir = getEnvDefault("FV_JOURNAL_DIR", "./data/journal")
	cfg.RecoveryInterval, err = getEnvDuration("FV_RECOVERY_INTERVAL", 10*time.Minute)
	if err != nil {
		return fmt.Errorf("FV_RECOVERY_INTERVAL: %w", err)
	}
	if cfg.RecoveryInterval <= 0 {
		return fmt.Errorf("FV_RECOVERY_INTERVAL: значение должно быть положительным")
	}
	return nil
}

// loadAuth читает параметры выпуска и проверки токенов.
func loadAuth(cfg *Config) error {
	var err error

	cfg.JWTPrivateKeyPath = getEnvDefault("FV_JWT_PRIVATE_KEY_PATH", "")
	cfg.JWTIssuer = getEnvDefault("FV_JWT_ISSUER", "file-vault")

	cfg.JWTTTL, err = getEnvDuration("FV_JWT_TTL", 24*time.Hour)
	if err != nil {
		return fmt.Errorf("FV_JWT_TTL: %w", err)
	}
	if cfg.JWTTTL <= 0 {
		return fmt.Errorf("FV_JWT_TTL: значение должно быть положительным")
	}

	cfg.JWTLeeway, err = getEnvDuration("FV_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return fmt.Errorf("FV_JWT_LEEWAY: %w", err)
	}

	// bcrypt допускает стоимость 4-31
	cfg.BcryptCost, err = getEnvInt("FV_BCRYPT_COST", 10)
	if err != nil {
		return fmt.Errorf("FV_BCRYPT_COST: %w", err)
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return fmt.Errorf("FV_BCRYPT_COST: значение %d вне допустимого диапазона 4-31", cfg.BcryptCost)
	}
	return nil
}

// loadLimits читает лимиты загрузки, кэша и входа.
func loadLimits(cfg *Config) error {
	var err error

	// FV_MAX_UPLOAD_SIZE — максимальный размер файла (по умолчанию 100 MiB)
	cfg.MaxUploadSize, err = getEnvInt64("FV_MAX_UPLOAD_SIZE", 100<<20)
	if err != nil {
		return fmt.Errorf("FV_MAX_UPLOAD_SIZE: %w", err)
	}
	if cfg.MaxUploadSize <= 0 {
		return fmt.Errorf("FV_MAX_UPLOAD_SIZE: значение должно быть положительным")
	}

	cfg.BlobTimeout, err = getEnvDuration("FV_BLOB_TIMEOUT", 2*time.Minute)
	if err != nil {
		return fmt.Errorf("FV_BLOB_TIMEOUT: %w", err)
	}
	if cfg.BlobTimeout <= 0 {
		return fmt.Errorf("FV_BLOB_TIMEOUT: значение должно быть положительным")
	}

	// FV_STORAGE_LIMIT — отображаемый лимит (по умолчанию 5 GiB)
	cfg.StorageLimit, err = getEnvInt64("FV_STORAGE_LIMIT", 5<<30)
	if err != nil {
		return fmt.Errorf("FV_STORAGE_LIMIT: %w", err)
	}

	cfg.CacheTTL, err = getEnvDuration("FV_CACHE_TTL", 30*time.Second)
	if err != nil {
		return fmt.Errorf("FV_CACHE_TTL: %w", err)
	}
	cfg.CacheMaxSize, err = getEnvInt("FV_CACHE_MAX_SIZE", 1000)
	if err != nil {
		return fmt.Errorf("FV_CACHE_MAX_SIZE: %w", err)
	}

	cfg.LoginRate, err = getEnvFloat("FV_LOGIN_RATE", 1)
	if err != nil {
		return fmt.Errorf("FV_LOGIN_RATE: %w", err)
	}
	if cfg.LoginRate <= 0 {
		return fmt.Errorf("FV_LOGIN_RATE: значение должно быть положительным")
	}
	cfg.LoginBurst, err = getEnvInt("FV_LOGIN_BURST", 5)
	if err != nil {
		return fmt.Errorf("FV_LOGIN_BURST: %w", err)
	}
	if cfg.LoginBurst < 1 {
		return fmt.Errorf("FV_LOGIN_BURST: значение должно быть >= 1")
	}
	return nil
}

// loadHTTP читает параметры HTTP-сервера и мониторинга зависимостей.
func loadHTTP(cfg *Config) error {
	var err error

	cfg.HTTPReadTimeout, err = getEnvDuration("FV_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return fmt.Errorf("FV_HTTP_READ_TIMEOUT: %w", err)
	}
	// Запись ответа включает стриминг скачивания, поэтому таймаут больше
	cfg.HTTPWriteTimeout, err = getEnvDuration("FV_HTTP_WRITE_TIMEOUT", 5*time.Minute)
	if err != nil {
		return fmt.Errorf("FV_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("FV_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return fmt.Errorf("FV_HTTP_IDLE_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvDuration("FV_SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return fmt.Errorf("FV_SHUTDOWN_TIMEOUT: %w", err)
	}

	cfg.CORSOrigin = getEnvDefault("FV_CORS_ORIGIN", "*")

	cfg.DephealthCheckInterval, err = getEnvDuration("FV_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return fmt.Errorf("FV_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("FV_DEPHEALTH_GROUP", "file-vault")
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL для pgxpool.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.DBUser), url.QueryEscape(c.DBPassword),
		c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для метрик и логов).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvFloat возвращает float64 значение переменной окружения или значение по умолчанию.
func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное число: %q", val)
	}
	return f, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
