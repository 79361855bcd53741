// Пакет model — доменные модели File Vault.
// FileRecord — метаданные загруженного файла. JSON-теги описывают
// формат хранения записи в badger (repository/kv), а не API-ответ.
package model

import "time"

// FileSchemaVersion — текущая версия схемы FileRecord.
// Увеличивается при изменении набора полей записи.
const FileSchemaVersion = 1

// FileRecord — запись о файле пользователя.
type FileRecord struct {
	// ID — UUID файла
	ID string `json:"id"`

	// OwnerID — UUID владельца (sub из JWT)
	OwnerID string `json:"owner_id"`

	// OriginalName — имя файла, переданное при загрузке (для отображения)
	OriginalName string `json:"original_name"`

	// StorageKey — ключ blob в Blob Store. Непрозрачен для клиента,
	// в API не возвращается.
	StorageKey string `json:"storage_key"`

	// Size — размер файла в байтах
	Size int64 `json:"size"`

	// ContentType — MIME-тип, заявленный клиентом
	ContentType string `json:"content_type"`

	// Checksum — SHA-256 содержимого (hex)
	Checksum string `json:"checksum"`

	// CreatedAt — время загрузки (UTC)
	CreatedAt time.Time `json:"created_at"`

	// LastAccessed — время последнего скачивания, nil если файл не скачивали
	LastAccessed *time.Time `json:"last_accessed,omitempty"`

	// AccessCount — счётчик скачиваний
	AccessCount int64 `json:"access_count"`

	// Tags — пользовательские теги (опционально)
	Tags []string `json:"tags,omitempty"`

	// SchemaVersion — версия схемы записи
	SchemaVersion int `json:"schema_version"`
}

// MatchField — поле записи, по которому найдено совпадение при поиске.
type MatchField string

const (
	// MatchDisplayName — совпадение по имени файла
	MatchDisplayName MatchField = "display_name"
	// MatchTag — совпадение по тегу
	MatchTag MatchField = "tag"
)

// SearchMatch — результат поиска: запись и поле совпадения.
type SearchMatch struct {
	File      *FileRecord
	MatchedOn MatchField
}

// Usage — агрегированная статистика хранилища пользователя.
// Лимит информационный, сервер его не применяет.
type Usage struct {
	TotalSize    int64
	FileCount    int64
	StorageLimit int64
}

// UsedPercent возвращает долю занятого лимита в процентах (0 при нулевом лимите).
func (u Usage) UsedPercent() float64 {
	if u.StorageLimit <= 0 {
		return 0
	}
	return float64(u.TotalSize) * 100 / float64(u.StorageLimit)
}
