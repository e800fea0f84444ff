package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/grocerybot/internal/eventbus"
)

// BusCollector exposes the wiring of a bus as Prometheus gauges. Values are
// read on scrape through the bus introspection methods.
type BusCollector struct {
	bus         *eventbus.Bus
	history     *prometheus.Desc
	subscribers *prometheus.Desc
	publishers  *prometheus.Desc
}

// NewBusCollector creates a collector for b.
func NewBusCollector(b *eventbus.Bus) *BusCollector {
	return &BusCollector{
		bus: b,
		history: prometheus.NewDesc("grocerybot_bus_history_length",
			"Values retained on a topic", []string{"topic", "type"}, nil),
		subscribers: prometheus.NewDesc("grocerybot_bus_subscribers",
			"Subscribers registered on a topic", []string{"topic"}, nil),
		publishers: prometheus.NewDesc("grocerybot_bus_publishers",
			"Publishers registered on a topic", []string{"topic"}, nil),
	}
}

func (c *BusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.history
	ch <- c.subscribers
	ch <- c.publishers
}

func (c *BusCollector) Collect(ch chan<- prometheus.Metric) {
	for _, t := range c.bus.Graph() {
		ch <- prometheus.MustNewConstMetric(c.history, prometheus.GaugeValue, float64(t.History), t.Name, t.Type)
		ch <- prometheus.MustNewConstMetric(c.subscribers, prometheus.GaugeValue, float64(len(t.Subscribers)), t.Name)
		ch <- prometheus.MustNewConstMetric(c.publishers, prometheus.GaugeValue, float64(len(t.Publishers)), t.Name)
	}
}
