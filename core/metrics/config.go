package metrics

import "github.com/kilianp07/grocerybot/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusAddr serves /metrics when set, e.g. ":9100".
	PrometheusAddr string `json:"prometheus_addr"`
}
