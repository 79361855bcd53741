// health.go — обработчики health endpoints для Kubernetes.
// /health/live — liveness (процесс жив)
// /health/ready — readiness (хранилище метаданных, blob store, журнал)
package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bigkaa/goartstore/file-vault/internal/config"
)

// Статусы health check.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// serviceName — значение поля service в ответах health.
const serviceName = "file-vault"

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status, message string)
}

// NamedChecker — проверка с именем для поля checks в ответе.
type NamedChecker struct {
	Name    string
	Checker ReadinessChecker
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	checkers []NamedChecker
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(checkers ...NamedChecker) *HealthHandler {
	return &HealthHandler{checkers: checkers}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse — ответ liveness/readiness.
type healthResponse struct {
	Status    string                       `json:"status"`
	Timestamp string                       `json:"timestamp"`
	Version   string                       `json:"version"`
	Service   string                       `json:"service"`
	Checks    map[string]healthCheckResult `json:"checks,omitempty"`
}

// HealthLive — liveness. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — readiness. 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
		Checks:    make(map[string]healthCheckResult, len(h.checkers)),
	}

	statuses := make([]string, 0, len(h.checkers))
	for _, c := range h.checkers {
		status, msg := c.Checker.CheckReady()
		resp.Checks[c.Name] = healthCheckResult{Status: status, Message: msg}
		statuses = append(statuses, status)
	}
	resp.Status = overallStatus(statuses...)

	code := http.StatusOK
	if resp.Status == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		switch s {
		case statusFail:
			return statusFail
		case statusDegraded:
			hasDegraded = true
		}
	}
	if hasDegraded {
		return statusDegraded
	}
	return statusOK
}

// DirChecker проверяет, что директория доступна на запись
// (корень FS blob store, журнал намерений).
type DirChecker struct {
	dir string
	// failStatus — статус при недоступности директории
	failStatus string
	// minFreeRatio — доля свободного места, ниже которой статус degraded
	minFreeRatio float64
}

// NewDirChecker создаёт проверку директории. critical=false понижает
// недоступность до degraded.
func NewDirChecker(dir string, critical bool) *DirChecker {
	status := statusFail
	if !critical {
		status = statusDegraded
	}
	return &DirChecker{dir: dir, failStatus: status}
}

// WithMinFree включает проверку свободного места: при доле свободного
// места ниже ratio директория считается degraded.
func (c *DirChecker) WithMinFree(ratio float64) *DirChecker {
	c.minFreeRatio = ratio
	return c
}

// CheckReady пишет и удаляет пробный файл, затем проверяет свободное место.
func (c *DirChecker) CheckReady() (string, string) {
	testFile := filepath.Join(c.dir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return c.failStatus, "Директория недоступна для записи: " + err.Error()
	}
	_ = os.Remove(testFile)

	if c.minFreeRatio <= 0 {
		return statusOK, ""
	}
	total, available, err := getDiskUsage(c.dir)
	if err != nil {
		return statusDegraded, err.Error()
	}
	msg := fmt.Sprintf("свободно %s из %s",
		humanize.IBytes(uint64(available)), humanize.IBytes(uint64(total)))
	if total > 0 && float64(available) < float64(total)*c.minFreeRatio {
		return statusDegraded, "Мало свободного места: " + msg
	}
	return statusOK, msg
}
