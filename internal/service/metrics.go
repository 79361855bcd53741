package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Результаты операций для метки result.
const (
	resultOK    = "ok"
	resultError = "error"
)

// Prometheus-метрики сервисного слоя.
var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fv_operations_total",
		Help: "Количество операций сервисного слоя по типу и результату.",
	}, []string{"operation", "result"})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_upload_bytes_total",
		Help: "Общий объём загруженных данных в байтах.",
	})

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_download_bytes_total",
		Help: "Общий объём отданных данных в байтах.",
	})

	recoveryRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_recovery_runs_total",
		Help: "Количество запусков восстановления по журналу намерений.",
	})

	recoveryBlobsRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_recovery_blobs_removed_total",
		Help: "Количество осиротевших blob, удалённых восстановлением.",
	})
)

// observe увеличивает счётчик операции по результату.
func observe(operation string, err error) {
	result := resultOK
	if err != nil {
		result = resultError
	}
	operationsTotal.WithLabelValues(operation, result).Inc()
}
