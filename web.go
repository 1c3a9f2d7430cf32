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
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// WebServer serves the dashboard, the JSON snapshot API, diagnostics and
// metrics. It only ever reads the coordinator's published snapshot; it
// never talks to the price client.
type WebServer struct {
	coordinator *PriceCoordinator
	server      *http.Server
}

func NewWebServer(coordinator *PriceCoordinator, port int) *WebServer {
	router := mux.NewRouter()

	ws := &WebServer{
		coordinator: coordinator,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: handlers.LoggingHandler(os.Stdout, router),
		},
	}

	router.HandleFunc("/", ws.handleDashboard).Methods(http.MethodGet)
	router.HandleFunc("/api/prices", ws.handlePricesAPI).Methods(http.MethodGet)
	router.HandleFunc("/api/diagnostics", ws.handleDiagnosticsAPI).Methods(http.MethodGet)
	router.Handle("/metrics", NewMetricsCollector(coordinator)).Methods(http.MethodGet)

	return ws
}

func (ws *WebServer) Start() error {
	log.Printf("Starting web server on %s", ws.server.Addr)
	return ws.server.ListenAndServe()
}

func (ws *WebServer) handlePricesAPI(w http.ResponseWriter, r *http.Request) {
	snapshot := ws.coordinator.Snapshot()
	if snapshot == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no snapshot published yet"})
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (ws *WebServer) handleDiagnosticsAPI(w http.ResponseWriter, r *http.Request) {
	diag := ws.coordinator.Diagnostics()
	diag["version"] = GetVersion()
	writeJSON(w, http.StatusOK, redactData(diag))
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Warning: failed to encode response: %v", err)
	}
}

// snapshotToMap converts a snapshot to a generic map so it can be redacted
// the same way as every other diagnostics payload
func snapshotToMap(snapshot *RefreshSnapshot) map[string]interface{} {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// redactData replaces the values of sensitive keys with "**REDACTED**",
// recursing into nested objects and arrays. Boolean presence flags
// (has_csrf_token and friends) pass through untouched.
func redactData(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	out := make(map[string]interface{}, len(data))
	for key, value := range data {
		if isRedactedKey(key) {
			out[key] = "**REDACTED**"
			continue
		}
		out[key] = redactValue(value)
	}
	return out
}

func redactValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return redactData(v)
	case []interface{}:
		redacted := make([]interface{}, len(v))
		for i, item := range v {
			redacted[i] = redactValue(item)
		}
		return redacted
	default:
		return value
	}
}

func isRedactedKey(key string) bool {
	lower := strings.ToLower(key)
	for _, redacted := range redactedKeys {
		if lower == redacted {
			return true
		}
	}
	return false
}

type dashboardData struct {
	Version         string
	CostLevel       string
	Snapshot        *RefreshSnapshot
	LastError       string
	RefreshInterval int
}

func (ws *WebServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := dashboardData{
		Version:         GetVersion(),
		CostLevel:       ws.coordinator.CostLevel(),
		Snapshot:        ws.coordinator.Snapshot(),
		RefreshInterval: int(WebDashboardRefreshInterval / time.Second),
	}
	if err := ws.coordinator.LastError(); err != nil {
		data.LastError = err.Error()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, data); err != nil {
		log.Printf("Warning: failed to render dashboard: %v", err)
	}
}

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
	<title>nextwatch</title>
	<meta http-equiv="refresh" content="{{.RefreshInterval}}">
	<style>
		body { font-family: sans-serif; margin: 2em; background: #f5f5f5; }
		h1 { color: #2c3e50; }
		table { border-collapse: collapse; background: #fff; margin-bottom: 1.5em; }
		th, td { border: 1px solid #ddd; padding: 0.4em 0.8em; text-align: right; }
		th { background: #2c3e50; color: #fff; }
		.error { color: #c0392b; }
		.muted { color: #7f8c8d; }
	</style>
</head>
<body>
	<h1>NextEnergy market prices</h1>
	<p class="muted">nextwatch {{.Version}} &middot; tariff {{.CostLevel}}</p>
	{{if .LastError}}<p class="error">Last refresh failed: {{.LastError}}</p>{{end}}
	{{if .Snapshot}}
	<p>Last update: {{.Snapshot.LastUpdate.Format "2006-01-02 15:04:05"}}</p>
	<h2>Today ({{.Snapshot.Today.Date}})</h2>
	<table>
		<tr><th>Current</th><th>Min</th><th>Max</th><th>Average</th><th>Off-peak</th><th>Gas</th></tr>
		<tr>
			<td>{{printf "%.4f" .Snapshot.Today.CurrentPrice}} (h{{.Snapshot.Today.CurrentHour}})</td>
			<td>{{printf "%.4f" .Snapshot.Today.MinPrice}} (h{{.Snapshot.Today.MinPriceHour}})</td>
			<td>{{printf "%.4f" .Snapshot.Today.MaxPrice}} (h{{.Snapshot.Today.MaxPriceHour}})</td>
			<td>{{printf "%.4f" .Snapshot.Today.AveragePrice}}</td>
			<td>{{printf "%.4f" .Snapshot.Today.AverageOffPeak}}</td>
			<td>{{printf "%.4f" .Snapshot.Today.GasPrice}}</td>
		</tr>
	</table>
	{{if .Snapshot.TomorrowAvailable}}
	<h2>Tomorrow ({{.Snapshot.Tomorrow.Date}})</h2>
	<table>
		<tr><th>Min</th><th>Max</th><th>Average</th><th>Off-peak</th><th>Gas</th></tr>
		<tr>
			<td>{{printf "%.4f" .Snapshot.Tomorrow.MinPrice}} (h{{.Snapshot.Tomorrow.MinPriceHour}})</td>
			<td>{{printf "%.4f" .Snapshot.Tomorrow.MaxPrice}} (h{{.Snapshot.Tomorrow.MaxPriceHour}})</td>
			<td>{{printf "%.4f" .Snapshot.Tomorrow.AveragePrice}}</td>
			<td>{{printf "%.4f" .Snapshot.Tomorrow.AverageOffPeak}}</td>
			<td>{{printf "%.4f" .Snapshot.Tomorrow.GasPrice}}</td>
		</tr>
	</table>
	{{else}}
	<p class="muted">Tomorrow's prices not yet published.</p>
	{{end}}
	{{else}}
	<p class="muted">No snapshot published yet.</p>
	{{end}}
	<p class="muted"><a href="/api/prices">JSON</a> &middot; <a href="/api/diagnostics">Diagnostics</a> &middot; <a href="/metrics">Metrics</a></p>
</body>
</html>
`))
