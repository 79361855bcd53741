package kv

import (
	"encoding/json"
	"fmt"

	"github.com/bigkaa/goartstore/file-vault/internal/domain/model"
)

// decodeFile декодирует запись о файле и проверяет версию схемы.
// Записи без schema_version считаются записями версии 1.
func decodeFile(data []byte, f *model.FileRecord) error {
	if err := json.Unmarshal(data, f); err != nil {
		return fmt.Errorf("ошибка декодирования записи файла: %w", err)
	}
	if f.SchemaVersion == 0 {
		f.SchemaVersion = 1
	}
	if f.SchemaVersion > model.FileSchemaVersion {
		return fmt.Errorf("неподдерживаемая версия схемы записи %d (максимум %d)",
			f.SchemaVersion, model.FileSchemaVersion)
	}
	return nil
}
