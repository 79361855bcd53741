package blob

import (
	"errors"
	"strings"
	"testing"
)

// TestGenerateKey проверяет формат и уникальность ключа хранения.
func TestGenerateKey(t *testing.T) {
	key := GenerateKey("owner-1", "Мой отчёт (final).pdf")

	if !strings.HasPrefix(key, "owner-1/") {
		t.Errorf("ключ должен начинаться с владельца: %s", key)
	}
	if !strings.HasSuffix(key, "_Мойотчётfinal.pdf") {
		t.Errorf("ключ должен содержать очищенное имя и расширение: %s", key)
	}
	if err := ValidateKey(key); err != nil {
		t.Errorf("сгенерированный ключ не проходит валидацию: %v", err)
	}

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		k := GenerateKey("owner-1", "notes.txt")
		if seen[k] {
			t.Fatalf("коллизия ключей: %s", k)
		}
		seen[k] = true
	}
}

// TestGenerateKey_UnsafeInput проверяет, что опасные имена не попадают в путь.
func TestGenerateKey_UnsafeInput(t *testing.T) {
	tests := []struct {
		name  string
		owner string
		file  string
	}{
		{"обход пути в имени", "u1", "../../etc/passwd"},
		{"обход пути во владельце", "../u1", "a.txt"},
		{"пустое имя", "u1", ""},
		{"странное расширение", "u1", "x.t/x"},
		{"null byte", "u1", "a\x00b.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := GenerateKey(tt.owner, tt.file)
			if err := ValidateKey(key); err != nil {
				t.Errorf("ключ %q не прошёл валидацию: %v", key, err)
			}
			if strings.Count(key, "/") != 1 {
				t.Errorf("ключ должен содержать ровно один слэш: %q", key)
			}
		})
	}
}

// TestValidateKey проверяет отклонение некорректных ключей.
func TestValidateKey(t *testing.T) {
	invalid := []string{
		"",
		"/abs/key",
		"key/",
		"a//b",
		"a/../b",
		"a\\b",
		"a\x00b",
		"a b",
		strings.Repeat("a", maxKeyLength+1),
	}
	for _, key := range invalid {
		if err := ValidateKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("ключ %q: ожидалась ErrInvalidKey, получено %v", key, err)
		}
	}

	valid := []string{"u1/file.txt", "u1/20260101.000_x_y.tar", "файлы/отчёт.pdf"}
	for _, key := range valid {
		if err := ValidateKey(key); err != nil {
			t.Errorf("ключ %q: неожиданная ошибка %v", key, err)
		}
	}
}
