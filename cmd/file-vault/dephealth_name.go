// dephealth_name.go — имя сервиса для topologymetrics.
package main

import (
	"os"
	"regexp"
	"strings"

	"github.com/bigkaa/goartstore/file-vault/internal/service"
)

var (
	// <deployment>-<replicaset hash>-<pod suffix>
	deploymentPodRe = regexp.MustCompile(`^(.+)-[a-z0-9]{6,10}-[a-z0-9]{5}$`)
	// <statefulset>-<ordinal>
	statefulSetPodRe = regexp.MustCompile(`^(.+)-\d+$`)
)

// serviceID возвращает имя владельца пода (Deployment/StatefulSet)
// или "file-vault", если hostname недоступен.
func serviceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "file-vault"
	}
	return parseOwnerName(host)
}

// parseOwnerName извлекает имя Deployment или StatefulSet из hostname пода.
// Если формат не распознан, hostname возвращается как есть.
func parseOwnerName(hostname string) string {
	if m := deploymentPodRe.FindStringSubmatch(hostname); m != nil {
		return m[1]
	}
	if m := statefulSetPodRe.FindStringSubmatch(hostname); m != nil {
		return m[1]
	}
	return hostname
}

// dependencyChecker — readiness по последнему результату topologymetrics.
type dependencyChecker struct {
	svc  *service.DephealthService
	name string
}

// CheckReady возвращает degraded, пока первая проверка не выполнена.
// Ключи Health() имеют формат "dependency:host:port".
func (c dependencyChecker) CheckReady() (string, string) {
	healthy, ok := findHealthByPrefix(c.svc.Health(), c.name+":")
	switch {
	case !ok:
		return "degraded", "проверка ещё не выполнялась"
	case !healthy:
		return "fail", "зависимость недоступна"
	default:
		return "ok", ""
	}
}

// findHealthByPrefix ищет первый ключ с префиксом prefix.
func findHealthByPrefix(health map[string]bool, prefix string) (healthy, found bool) {
	for key, val := range health {
		if strings.HasPrefix(key, prefix) {
			return val, true
		}
	}
	return false, false
}
