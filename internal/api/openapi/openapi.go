// Package openapi содержит контракт HTTP API и его загрузку.
// Документ встраивается в бинарник, проверяется при старте
// и отдаётся клиентам по GET /openapi.yaml.
package openapi

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var spec []byte

// Raw возвращает исходный YAML документа.
func Raw() []byte {
	return spec
}

// Load разбирает и валидирует встроенный документ.
func Load(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(spec)
	if err != nil {
		return nil, fmt.Errorf("разбор openapi.yaml: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("валидация openapi.yaml: %w", err)
	}
	return doc, nil
}

// HasOperation сообщает, описана ли операция method+path в документе.
// path задаётся в нотации роутера (/files/{file_id}), префикс /api
// отбрасывается, так как он объявлен отдельным server.
func HasOperation(doc *openapi3.T, method, path string) bool {
	path = strings.TrimPrefix(path, "/api")
	if path == "" {
		path = "/"
	}
	item := doc.Paths.Find(path)
	if item == nil {
		return false
	}
	return item.GetOperation(strings.ToUpper(method)) != nil
}

// Handler отдаёт документ как application/yaml.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(spec)
	})
}
