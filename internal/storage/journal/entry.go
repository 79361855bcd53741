// Пакет journal — файловый журнал намерений для операций,
// затрагивающих одновременно blob-хранилище и метаданные.
// Каждая запись — отдельный файл {tx_id}.intent.json в FV_JOURNAL_DIR.
//
// Загрузка: blob пишется до метаданных. Если процесс упадёт между
// этими шагами, pending-запись позволит найти и удалить осиротевший blob.
// Удаление: blob удаляется до метаданных. Pending-запись позволит
// дочистить метаданные после рестарта.
package journal

import (
	"time"
)

// Operation — тип операции, записываемой в журнал.
type Operation string

const (
	// OpUpload — загрузка: blob → метаданные
	OpUpload Operation = "upload"
	// OpDelete — удаление: blob → метаданные
	OpDelete Operation = "delete"
)

// Status — статус записи журнала.
type Status string

const (
	// StatusPending — операция начата и ещё не завершена
	StatusPending Status = "pending"
	// StatusCommitted — операция успешно завершена
	StatusCommitted Status = "committed"
	// StatusRolledBack — операция отменена, побочные эффекты убраны
	StatusRolledBack Status = "rolled_back"
)

// Intent — описание затрагиваемых объектов.
type Intent struct {
	FileID     string `json:"file_id"`
	OwnerID    string `json:"owner_id"`
	StorageKey string `json:"storage_key"`
}

// Entry — запись журнала. Хранится как JSON-файл {tx_id}.intent.json.
type Entry struct {
	// TransactionID — уникальный идентификатор записи (UUID v4)
	TransactionID string `json:"transaction_id"`

	Operation Operation `json:"operation"`
	Status    Status    `json:"status"`

	Intent

	// StartedAt — время начала операции (UTC)
	StartedAt time.Time `json:"started_at"`

	// CompletedAt — время завершения (UTC), nil для pending
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// entryFileName возвращает имя файла журнала для данной записи.
func entryFileName(txID string) string {
	return txID + ".intent.json"
}
