package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// staticChecker — проверка с фиксированным результатом.
type staticChecker struct {
	status, message string
}

func (c staticChecker) CheckReady() (string, string) {
	return c.status, c.message
}

func TestHealthLive(t *testing.T) {
	h := NewHealthHandler()
	rec := httptest.NewRecorder()
	h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}
	var resp healthResponse
	decodeBody(t, rec, &resp)
	if resp.Status != statusOK || resp.Service != serviceName {
		t.Errorf("неожиданный ответ: %+v", resp)
	}
}

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []NamedChecker
		wantStatus string
		wantCode   int
	}{
		{"без проверок", nil, statusOK, http.StatusOK},
		{"все ok", []NamedChecker{
			{"metadata", staticChecker{status: statusOK}},
			{"journal", staticChecker{status: statusOK}},
		}, statusOK, http.StatusOK},
		{"degraded", []NamedChecker{
			{"metadata", staticChecker{status: statusOK}},
			{"journal", staticChecker{statusDegraded, "медленно"}},
		}, statusDegraded, http.StatusOK},
		{"fail", []NamedChecker{
			{"metadata", staticChecker{statusFail, "нет соединения"}},
			{"journal", staticChecker{statusDegraded, ""}},
		}, statusFail, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.checkers...)
			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("ожидался статус %d, получен %d", tt.wantCode, rec.Code)
			}
			var resp healthResponse
			decodeBody(t, rec, &resp)
			if resp.Status != tt.wantStatus {
				t.Errorf("status: ожидалось %s, получено %s", tt.wantStatus, resp.Status)
			}
			if len(resp.Checks) != len(tt.checkers) {
				t.Errorf("checks: ожидалось %d, получено %d", len(tt.checkers), len(resp.Checks))
			}
		})
	}
}

func TestDirChecker(t *testing.T) {
	dir := t.TempDir()
	if status, msg := NewDirChecker(dir, true).CheckReady(); status != statusOK {
		t.Errorf("доступная директория: получено %s (%s)", status, msg)
	}
	if _, err := os.Stat(filepath.Join(dir, ".health_check")); !os.IsNotExist(err) {
		t.Error("пробный файл должен удаляться")
	}

	missing := filepath.Join(dir, "missing")
	if status, _ := NewDirChecker(missing, true).CheckReady(); status != statusFail {
		t.Errorf("критичная директория: ожидалось fail, получено %s", status)
	}
	if status, _ := NewDirChecker(missing, false).CheckReady(); status != statusDegraded {
		t.Errorf("некритичная директория: ожидалось degraded, получено %s", status)
	}
}

func TestDirChecker_MinFree(t *testing.T) {
	dir := t.TempDir()

	status, msg := NewDirChecker(dir, true).WithMinFree(0.000001).CheckReady()
	if status != statusOK || msg == "" {
		t.Errorf("малый порог: ожидалось ok с сообщением, получено %s (%q)", status, msg)
	}

	// Свободное место никогда не превышает общий объём
	if status, _ := NewDirChecker(dir, true).WithMinFree(1.01).CheckReady(); status != statusDegraded {
		t.Errorf("порог выше 100%%: ожидалось degraded, получено %s", status)
	}
}
