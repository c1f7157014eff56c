// Package metrics collects Prometheus metrics for the webfile service and its
// vault.
//
// Metrics are optional. When InitRegistry has not been called the app wires
// no collector and the service falls back to a no-op implementation. The CLI
// is short-lived, so the registry is written to a node_exporter textfile
// after each command instead of being served over HTTP.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once

	collector     *Collector
	collectorOnce sync.Once
)

// InitRegistry initializes the global registry. Subsequent calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global registry, or nil if metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// DefaultCollector returns the collector registered on the global registry,
// creating it on first use. It returns nil when metrics are disabled.
func DefaultCollector() *Collector {
	if !IsEnabled() {
		return nil
	}
	collectorOnce.Do(func() {
		collector = NewCollector(registry)
	})
	return collector
}

// WriteTextfile writes all metrics gathered by g to path in the text
// exposition format. The file is replaced atomically.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
