package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Config — параметры подключения к S3-совместимому хранилищу.
type S3Config struct {
	// Endpoint — URL для MinIO/Localstack и т.п. Пусто — AWS по умолчанию.
	Endpoint string
	Region   string
	Bucket   string
	// AccessKey/SecretKey — статические ключи. Пусто — цепочка AWS по умолчанию.
	AccessKey string
	SecretKey string
	// Prefix — необязательный префикс всех ключей объектов
	Prefix string
}

// S3Store — blob-хранилище в S3-совместимом объектном хранилище.
//
// Put сначала буферизует содержимое во временный файл: PutObject
// требует перематываемое тело с известной длиной, а во время буферизации
// считается SHA-256. Частично загруженный объект не появляется в bucket,
// так как PutObject атомарен.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3Client создаёт S3-клиент по конфигурации.
// При заданном Endpoint включается path-style адресация (MinIO, Localstack).
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки AWS-конфигурации: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewS3Store создаёт S3Store и проверяет доступ к bucket через HeadBucket.
// Bucket должен существовать заранее.
func NewS3Store(ctx context.Context, client *s3.Client, bucket, prefix string, logger *slog.Logger) (*S3Store, error) {
	if client == nil {
		return nil, fmt.Errorf("S3-клиент не задан")
	}
	if bucket == "" {
		return nil, fmt.Errorf("имя bucket не задано")
	}

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	}); err != nil {
		return nil, fmt.Errorf("нет доступа к bucket %q: %w", bucket, err)
	}

	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With(slog.String("component", "s3_store")),
	}, nil
}

// Put буферизует содержимое во временный файл и загружает его через PutObject.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader) (*PutResult, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "fv-s3-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	hasher := sha256.New()
	size, err := io.Copy(tmp, io.TeeReader(&ctxReader{ctx: ctx, r: r}, hasher))
	if err != nil {
		return nil, fmt.Errorf("ошибка буферизации данных: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("ошибка перемотки временного файла: %w", err)
	}

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          tmp,
		ContentLength: aws.Int64(size),
	}); err != nil {
		return nil, fmt.Errorf("ошибка записи объекта в S3: %w", err)
	}

	return &PutResult{
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Get открывает объект для потокового чтения.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения объекта из S3: %w", err)
	}
	return out.Body, nil
}

// Delete удаляет объект. S3 не сообщает об отсутствии ключа при удалении,
// поэтому ErrNotFound этот бэкенд не возвращает.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	}); err != nil {
		return fmt.Errorf("ошибка удаления объекта из S3: %w", err)
	}
	return nil
}

// Exists проверяет наличие объекта через HeadObject.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("ошибка HeadObject: %w", err)
}

// Bucket возвращает имя bucket.
func (s *S3Store) Bucket() string {
	return s.bucket
}

func (s *S3Store) objectKey(key string) string {
	if s.prefix != "" {
		return s.prefix + key
	}
	return key
}

// isNotFound распознаёт отсутствие объекта: GetObject возвращает NoSuchKey,
// HeadObject — NotFound без тела (только HTTP 404).
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return true
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	return false
}

// Проверка на этапе компиляции
var _ Store = (*S3Store)(nil)
