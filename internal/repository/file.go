package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bigkaa/goartstore/file-vault/internal/domain/model"
)

// fileColumns — список столбцов таблицы files для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const fileColumns = `id, owner_id, original_name, storage_key, size, content_type,
	checksum, created_at, last_accessed, access_count, tags, schema_version`

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// Create вставляет запись о файле.
func (r *fileRepo) Create(ctx context.Context, f *model.FileRecord) error {
	query := `
		INSERT INTO files (id, owner_id, original_name, storage_key, size, content_type,
			checksum, created_at, last_accessed, access_count, tags, schema_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	tags := f.Tags
	if tags == nil {
		tags = []string{}
	}

	_, err := r.db.Exec(ctx, query,
		f.ID, f.OwnerID, f.OriginalName, f.StorageKey, f.Size, f.ContentType,
		f.Checksum, f.CreatedAt, f.LastAccessed, f.AccessCount, tags, f.SchemaVersion,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: файл с таким ID уже зарегистрирован", ErrConflict)
		}
		return fmt.Errorf("ошибка создания записи файла: %w", err)
	}
	return nil
}

// GetByID возвращает запись владельца или ErrNotFound.
func (r *fileRepo) GetByID(ctx context.Context, ownerID, fileID string) (*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE id = $1 AND owner_id = $2`, fileColumns)

	f, err := scanFile(r.db.QueryRow(ctx, query, fileID, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidTextRepresentation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}

// ListByOwner возвращает записи владельца с сортировкой из whitelist.
func (r *fileRepo) ListByOwner(ctx context.Context, ownerID string, params ListParams) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE owner_id = $1 %s`,
		fileColumns, buildOrderBy(params))

	return r.queryFiles(ctx, query, ownerID)
}

// Search выполняет регистронезависимый поиск подстроки в имени и тегах.
// Спецсимволы LIKE в запросе экранируются.
func (r *fileRepo) Search(ctx context.Context, ownerID, query string) ([]*model.FileRecord, error) {
	pattern := "%" + escapeLike(query) + "%"

	sql := fmt.Sprintf(`
		SELECT %s FROM files
		WHERE owner_id = $1
		  AND (original_name ILIKE $2 ESCAPE '\'
		       OR EXISTS (SELECT 1 FROM unnest(tags) AS t(tag) WHERE t.tag ILIKE $2 ESCAPE '\'))
		ORDER BY created_at DESC`, fileColumns)

	return r.queryFiles(ctx, sql, ownerID, pattern)
}

// RecordAccess атомарно увеличивает счётчик — параллельные скачивания
// не теряют инкременты.
func (r *fileRepo) RecordAccess(ctx context.Context, ownerID, fileID string, at time.Time) error {
	query := `
		UPDATE files
		SET access_count = access_count + 1, last_accessed = $3
		WHERE id = $1 AND owner_id = $2`

	tag, err := r.db.Exec(ctx, query, fileID, ownerID, at)
	if err != nil {
		return fmt.Errorf("ошибка обновления счётчика скачиваний: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет запись владельца.
func (r *fileRepo) Delete(ctx context.Context, ownerID, fileID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM files WHERE id = $1 AND owner_id = $2`, fileID, ownerID)
	if err != nil {
		if isInvalidTextRepresentation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка удаления записи файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Usage агрегирует размер и количество файлов владельца.
func (r *fileRepo) Usage(ctx context.Context, ownerID string) (totalSize, count int64, err error) {
	query := `SELECT COALESCE(SUM(size), 0), COUNT(*) FROM files WHERE owner_id = $1`
	if err := r.db.QueryRow(ctx, query, ownerID).Scan(&totalSize, &count); err != nil {
		return 0, 0, fmt.Errorf("ошибка подсчёта использования: %w", err)
	}
	return totalSize, count, nil
}

func (r *fileRepo) queryFiles(ctx context.Context, query string, args ...any) ([]*model.FileRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки файлов: %w", err)
	}
	defer rows.Close()

	result := make([]*model.FileRecord, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}

// scanFile сканирует строку в FileRecord. Порядок полей — fileColumns.
func scanFile(row pgx.Row) (*model.FileRecord, error) {
	f := &model.FileRecord{}
	err := row.Scan(
		&f.ID, &f.OwnerID, &f.OriginalName, &f.StorageKey, &f.Size, &f.ContentType,
		&f.Checksum, &f.CreatedAt, &f.LastAccessed, &f.AccessCount, &f.Tags, &f.SchemaVersion,
	)
	if err != nil {
		return nil, err
	}
	if len(f.Tags) == 0 {
		f.Tags = nil
	}
	return f, nil
}

// buildOrderBy строит ORDER BY с безопасным whitelist полей.
// Предотвращает SQL-инъекции — только разрешённые значения.
func buildOrderBy(params ListParams) string {
	p := NormalizeListParams(params)

	column := "created_at"
	switch p.SortBy {
	case SortByName:
		column = "original_name"
	case SortBySize:
		column = "size"
	case SortByAccessCount:
		column = "access_count"
	}

	direction := "DESC"
	if p.SortOrder == SortAsc {
		direction = "ASC"
	}

	// id — вторичный ключ для стабильного порядка
	return fmt.Sprintf("ORDER BY %s %s, id", column, direction)
}

// escapeLike экранирует спецсимволы LIKE (\, %, _).
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// isInvalidTextRepresentation распознаёт некорректный UUID в параметре (22P02).
func isInvalidTextRepresentation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "22P02"
	}
	return false
}
