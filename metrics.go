// Copyright 2025 Matthew Gall <me@matthewgall.dev>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"net/http"
	"strings"
)

// MetricsCollector collects and exposes metrics in Prometheus format
type MetricsCollector struct {
	coordinator *PriceCoordinator
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(coordinator *PriceCoordinator) *MetricsCollector {
	return &MetricsCollector{
		coordinator: coordinator,
	}
}

// ServeHTTP handles the /metrics endpoint
func (m *MetricsCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	metrics := m.collectMetrics()
	fmt.Fprint(w, metrics)
}

// collectMetrics gathers all application metrics
func (m *MetricsCollector) collectMetrics() string {
	var metrics strings.Builder

	m.writeMetricHeader(&metrics, "nextwatch_info", "gauge", "Build information")
	m.writeMetric(&metrics, "nextwatch_info", map[string]string{
		"version":    GetVersion(),
		"user_agent": GetUserAgent(),
	}, 1)

	m.writeMetricHeader(&metrics, "nextwatch_up", "gauge", "Whether the application is up and running")
	m.writeMetric(&metrics, "nextwatch_up", nil, 1)

	cycles, failures := m.coordinator.Stats()
	m.writeMetricHeader(&metrics, "nextwatch_refresh_cycles_total", "counter", "Completed refresh cycles")
	m.writeMetric(&metrics, "nextwatch_refresh_cycles_total", nil, float64(cycles))

	m.writeMetricHeader(&metrics, "nextwatch_refresh_failures_total", "counter", "Refresh cycles that failed and kept the previous snapshot")
	m.writeMetric(&metrics, "nextwatch_refresh_failures_total", nil, float64(failures))

	snapshot := m.coordinator.Snapshot()
	if snapshot == nil {
		return metrics.String()
	}

	m.writeMetricHeader(&metrics, "nextwatch_last_refresh_timestamp", "gauge", "Unix timestamp of last published snapshot")
	m.writeMetric(&metrics, "nextwatch_last_refresh_timestamp", nil, float64(snapshot.LastUpdate.Unix()))

	m.writeMetricHeader(&metrics, "nextwatch_tomorrow_available", "gauge", "Whether tomorrow's prices are present in the snapshot (1=yes, 0=no)")
	available := 0
	if snapshot.TomorrowAvailable {
		available = 1
	}
	m.writeMetric(&metrics, "nextwatch_tomorrow_available", nil, float64(available))

	m.writePriceQuoteMetrics(&metrics, snapshot.Today, snapshot.Tomorrow)

	m.writeMetricHeader(&metrics, "nextwatch_current_price_eur_kwh", "gauge", "Electricity price for the current hour")
	m.writeMetric(&metrics, "nextwatch_current_price_eur_kwh", nil, snapshot.Today.CurrentPrice)

	return metrics.String()
}

// writePriceQuoteMetrics renders the per-day statistic gauges. Each
// family is one contiguous block under a single HELP/TYPE header, with a
// sample per day, the way strict Prometheus text parsers expect.
func (m *MetricsCollector) writePriceQuoteMetrics(sb *strings.Builder, today, tomorrow *PriceQuote) {
	gauges := []struct {
		name        string
		description string
		value       func(q *PriceQuote) float64
	}{
		{"nextwatch_price_min_eur_kwh", "Lowest hourly electricity price of the day", func(q *PriceQuote) float64 { return q.MinPrice }},
		{"nextwatch_price_max_eur_kwh", "Highest hourly electricity price of the day", func(q *PriceQuote) float64 { return q.MaxPrice }},
		{"nextwatch_price_average_eur_kwh", "Average hourly electricity price of the day", func(q *PriceQuote) float64 { return q.AveragePrice }},
		{"nextwatch_price_average_offpeak_eur_kwh", "Average electricity price over the off-peak window", func(q *PriceQuote) float64 { return q.AverageOffPeak }},
		{"nextwatch_gas_price_eur_m3", "Gas price for the day", func(q *PriceQuote) float64 { return q.GasPrice }},
		{"nextwatch_price_hours", "Number of hours with a published price", func(q *PriceQuote) float64 { return float64(len(q.HourlyPrices)) }},
	}

	for _, gauge := range gauges {
		m.writeMetricHeader(sb, gauge.name, "gauge", gauge.description)
		m.writeMetric(sb, gauge.name, map[string]string{"day": "today"}, gauge.value(today))
		if tomorrow != nil {
			m.writeMetric(sb, gauge.name, map[string]string{"day": "tomorrow"}, gauge.value(tomorrow))
		}
	}
}

// writeMetricHeader writes metric description and type
func (m *MetricsCollector) writeMetricHeader(sb *strings.Builder, name, metricType, description string) {
	sb.WriteString(fmt.Sprintf("# HELP %s %s\n", name, description))
	sb.WriteString(fmt.Sprintf("# TYPE %s %s\n", name, metricType))
}

// writeMetric writes a metric with optional labels
func (m *MetricsCollector) writeMetric(sb *strings.Builder, name string, labels map[string]string, value float64) {
	if len(labels) > 0 {
		var labelPairs []string
		for key, val := range labels {
			labelPairs = append(labelPairs, fmt.Sprintf(`%s="%s"`, key, val))
		}
		sb.WriteString(fmt.Sprintf("%s{%s} %g\n", name, strings.Join(labelPairs, ","), value))
	} else {
		sb.WriteString(fmt.Sprintf("%s %g\n", name, value))
	}
}
