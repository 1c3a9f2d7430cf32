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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func snapshotCoordinator(t *testing.T, tomorrow bool) *PriceCoordinator {
	t.Helper()
	source := &fakePriceSource{
		todayQuote: &PriceQuote{
			Date:           "2026-08-29",
			HourlyPrices:   map[int]float64{0: 0.2, 1: 0.15},
			CurrentHour:    13,
			CurrentPrice:   0.1801,
			GasPrice:       1.2346,
			AverageOffPeak: 0.0583,
			AveragePrice:   0.175,
			MinPrice:       0.15,
			MaxPrice:       0.2,
			MinPriceHour:   1,
		},
	}
	if tomorrow {
		source.tomorrowQuote = quoteForDate("2026-08-30", map[int]float64{0: 0.18})
	} else {
		source.tomorrowErr = &APIError{Endpoint: getPath("price-data"), Message: "no data for date"}
	}

	pc := newTestCoordinator(source)
	if err := pc.FirstRefresh(); err != nil {
		t.Fatalf("FirstRefresh() failed: %v", err)
	}
	return pc
}

func TestMetricsBeforeFirstSnapshot(t *testing.T) {
	pc := newTestCoordinator(&fakePriceSource{})
	collector := NewMetricsCollector(pc)

	output := collector.collectMetrics()

	for _, expected := range []string{
		"nextwatch_info",
		"nextwatch_up 1",
		"nextwatch_refresh_cycles_total 0",
		"nextwatch_refresh_failures_total 0",
	} {
		if !strings.Contains(output, expected) {
			t.Errorf("metrics output should contain %q", expected)
		}
	}
	if strings.Contains(output, "nextwatch_price_min_eur_kwh") {
		t.Error("price gauges should be absent before the first snapshot")
	}
}

func TestMetricsWithSnapshot(t *testing.T) {
	pc := snapshotCoordinator(t, true)
	collector := NewMetricsCollector(pc)

	output := collector.collectMetrics()

	for _, expected := range []string{
		"nextwatch_refresh_cycles_total 1",
		"nextwatch_tomorrow_available 1",
		`nextwatch_price_min_eur_kwh{day="today"} 0.15`,
		`nextwatch_price_max_eur_kwh{day="today"} 0.2`,
		`nextwatch_price_average_eur_kwh{day="today"} 0.175`,
		`nextwatch_price_average_offpeak_eur_kwh{day="today"} 0.0583`,
		`nextwatch_gas_price_eur_m3{day="today"} 1.2346`,
		`nextwatch_price_hours{day="today"} 2`,
		`nextwatch_price_hours{day="tomorrow"} 1`,
		"nextwatch_current_price_eur_kwh 0.1801",
		"nextwatch_last_refresh_timestamp",
	} {
		if !strings.Contains(output, expected) {
			t.Errorf("metrics output should contain %q", expected)
		}
	}
}

func TestMetricsFamiliesAreContiguous(t *testing.T) {
	pc := snapshotCoordinator(t, true)
	output := NewMetricsCollector(pc).collectMetrics()

	// All samples of one family must form a single block; the per-day
	// samples may not be split across the output
	lastSample := map[string]int{}
	for i, line := range strings.Split(output, "\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name := line
		if cut := strings.IndexAny(line, "{ "); cut >= 0 {
			name = line[:cut]
		}
		if last, ok := lastSample[name]; ok && i != last+1 {
			t.Errorf("samples of %s are not contiguous (lines %d and %d)", name, last+1, i+1)
		}
		lastSample[name] = i
	}

	if _, ok := lastSample["nextwatch_price_min_eur_kwh"]; !ok {
		t.Fatal("expected price gauges in the output")
	}
}

func TestMetricsTomorrowUnavailable(t *testing.T) {
	pc := snapshotCoordinator(t, false)
	collector := NewMetricsCollector(pc)

	output := collector.collectMetrics()

	if !strings.Contains(output, "nextwatch_tomorrow_available 0") {
		t.Error("metrics should report tomorrow as unavailable")
	}
	if strings.Contains(output, `day="tomorrow"`) {
		t.Error("no tomorrow gauges should be written without tomorrow's quote")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	pc := snapshotCoordinator(t, true)
	collector := NewMetricsCollector(pc)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	collector.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
	if !strings.Contains(rec.Body.String(), "# HELP nextwatch_up") {
		t.Error("response should carry the metric help text")
	}
}
