// Пакет service — бизнес-логика File Vault.
// CacheService — LRU-кэш записей о файлах с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/file-vault/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш записей о файлах.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша записей о файлах.",
	})
)

// CacheService — LRU-кэш записей о файлах с автоматическим TTL.
// Ключ включает владельца, поэтому запись одного пользователя
// не может быть выдана другому.
type CacheService struct {
	cache *expirable.LRU[string, model.FileRecord]
}

// NewCacheService создаёт LRU-кэш с указанным максимальным размером и TTL.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	cache := expirable.NewLRU[string, model.FileRecord](maxSize, nil, ttl)
	return &CacheService{cache: cache}
}

func cacheKey(ownerID, fileID string) string {
	return ownerID + "/" + fileID
}

// Get возвращает копию записи при hit или (nil, false) при miss.
func (c *CacheService) Get(ownerID, fileID string) (*model.FileRecord, bool) {
	val, ok := c.cache.Get(cacheKey(ownerID, fileID))
	if ok {
		cacheHitsTotal.Inc()
		return &val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set сохраняет копию записи.
func (c *CacheService) Set(record *model.FileRecord) {
	c.cache.Add(cacheKey(record.OwnerID, record.ID), *record)
}

// Delete удаляет запись из кэша (инвалидация при удалении файла).
func (c *CacheService) Delete(ownerID, fileID string) {
	c.cache.Remove(cacheKey(ownerID, fileID))
}

// Len возвращает количество записей в кэше.
func (c *CacheService) Len() int {
	return c.cache.Len()
}
