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
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// priceSource is what the coordinator needs from the price client
type priceSource interface {
	GetHourlyPrices(date time.Time, costLevel string) (*PriceQuote, error)
	Diagnostics() map[string]interface{}
}

// RefreshSnapshot is the published output of one refresh cycle. It is
// replaced wholesale; consumers always see a fully-formed snapshot.
type RefreshSnapshot struct {
	Today             *PriceQuote `json:"today"`
	Tomorrow          *PriceQuote `json:"tomorrow,omitempty"`
	TomorrowAvailable bool        `json:"tomorrow_available"`
	CostLevel         string      `json:"cost_level"`
	LastUpdate        time.Time   `json:"last_update"`
	CycleID           string      `json:"cycle_id"`
}

// PriceCoordinator drives one price client on a fixed interval and publishes
// a RefreshSnapshot per cycle. Exactly one cycle runs at a time; triggers
// that arrive while a cycle is in flight are dropped, the in-flight cycle
// already produces a fresh snapshot.
type PriceCoordinator struct {
	client    priceSource
	interval  time.Duration
	logger    *Logger
	stopCh    chan struct{}
	refreshCh chan struct{}
	webServer *WebServer

	refreshing atomic.Bool

	mu        sync.RWMutex
	costLevel string
	snapshot  *RefreshSnapshot
	lastErr   error
	cycles    int64
	failures  int64
	nowFunc   func() time.Time
}

func NewPriceCoordinator(client priceSource, costLevel string) *PriceCoordinator {
	return &PriceCoordinator{
		client:    client,
		costLevel: costLevel,
		interval:  RefreshInterval,
		logger:    NewLogger(false).WithComponent("coordinator"),
		stopCh:    make(chan struct{}),
		refreshCh: make(chan struct{}, 1),
		nowFunc:   time.Now,
	}
}

// SetLogger replaces the coordinator's logger (main wires the shared one)
func (pc *PriceCoordinator) SetLogger(logger *Logger) {
	pc.logger = logger.WithComponent("coordinator")
}

// EnableWebUI attaches the diagnostics web server, started with the loop
func (pc *PriceCoordinator) EnableWebUI(port int) {
	pc.webServer = NewWebServer(pc, port)
}

// CostLevel returns the tariff tier queried each cycle
func (pc *PriceCoordinator) CostLevel() string {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.costLevel
}

// SetCostLevel switches the tariff tier and forces a refresh so the next
// snapshot reflects the new tier.
func (pc *PriceCoordinator) SetCostLevel(costLevel string) error {
	valid := false
	for _, option := range CostLevelOptions {
		if costLevel == option {
			valid = true
			break
		}
	}
	if !valid {
		return &ValidationError{Field: "cost_level", Value: costLevel, Message: "must be one of Market, Market+"}
	}

	pc.mu.Lock()
	pc.costLevel = costLevel
	pc.mu.Unlock()

	pc.logger.Info("Cost level changed, forcing refresh", "cost_level", costLevel)
	pc.ForceRefresh()
	return nil
}

// Snapshot returns the last published snapshot, nil before the first cycle
func (pc *PriceCoordinator) Snapshot() *RefreshSnapshot {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.snapshot
}

// LastError returns the failure signalled by the most recent cycle, nil
// after a successful cycle.
func (pc *PriceCoordinator) LastError() error {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.lastErr
}

// Stats returns completed and failed cycle counts
func (pc *PriceCoordinator) Stats() (cycles, failures int64) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.cycles, pc.failures
}

// FirstRefresh runs the startup cycle. Unlike later cycles its failure is
// returned to the caller: the daemon must not come up with no data at all.
func (pc *PriceCoordinator) FirstRefresh() error {
	return pc.refresh()
}

// ForceRefresh requests an out-of-band cycle. Dropped when a cycle is
// already in flight or pending.
func (pc *PriceCoordinator) ForceRefresh() {
	if pc.refreshing.Load() {
		return
	}
	select {
	case pc.refreshCh <- struct{}{}:
	default:
	}
}

// Start runs the polling loop until Stop. Blocks; callers run it in a
// goroutine when they need to keep working.
func (pc *PriceCoordinator) Start() {
	pc.logger.Info("Starting price monitoring", "interval", pc.interval.String())

	if pc.webServer != nil {
		go func() {
			if err := pc.webServer.Start(); err != nil {
				pc.logger.Error("Web server error", "error", err)
			}
		}()
	}

	ticker := time.NewTicker(pc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pc.refresh()
		case <-pc.refreshCh:
			pc.refresh()
		case <-pc.stopCh:
			pc.logger.Info("Stopping price monitoring")
			return
		}
	}
}

// Stop ends the polling loop
func (pc *PriceCoordinator) Stop() {
	close(pc.stopCh)
}

// refresh runs one cycle: fetch today, fetch tomorrow tolerating failure,
// publish. A today failure aborts the cycle, the previous snapshot stays
// and the failure is signalled via LastError.
func (pc *PriceCoordinator) refresh() error {
	pc.refreshing.Store(true)
	defer pc.refreshing.Store(false)

	cycleID := uuid.NewString()
	costLevel := pc.CostLevel()
	begin := time.Now() // real clock, nowFunc only decides the dates
	start := pc.nowFunc()

	today, err := pc.client.GetHourlyPrices(start, costLevel)
	if err != nil {
		pc.mu.Lock()
		pc.lastErr = err
		pc.failures++
		pc.mu.Unlock()
		pc.logger.Error("Refresh cycle failed, keeping previous snapshot",
			"cycle_id", cycleID,
			"error", err)
		return err
	}

	// Tomorrow is commonly not published before the provider's cutover
	// time; a failure here is expected, not exceptional.
	var tomorrow *PriceQuote
	tomorrowAvailable := false
	tomorrowQuote, err := pc.client.GetHourlyPrices(start.AddDate(0, 0, 1), costLevel)
	if err != nil {
		pc.logger.Debug("Tomorrow's prices not yet available", "cycle_id", cycleID, "error", err)
	} else if len(tomorrowQuote.HourlyPrices) > 0 {
		tomorrow = tomorrowQuote
		tomorrowAvailable = true
	}

	snapshot := &RefreshSnapshot{
		Today:             today,
		Tomorrow:          tomorrow,
		TomorrowAvailable: tomorrowAvailable,
		CostLevel:         costLevel,
		LastUpdate:        pc.nowFunc(),
		CycleID:           cycleID,
	}

	pc.mu.Lock()
	pc.snapshot = snapshot
	pc.lastErr = nil
	pc.cycles++
	pc.mu.Unlock()

	pc.logger.LogRefreshCycle(cycleID, tomorrowAvailable, time.Since(begin).Seconds())
	return nil
}

// Diagnostics assembles the support view: coordinator status, session
// flags from the client and the current snapshot. The web layer redacts
// sensitive keys before anything leaves the process.
func (pc *PriceCoordinator) Diagnostics() map[string]interface{} {
	pc.mu.RLock()
	snapshot := pc.snapshot
	lastErr := pc.lastErr
	costLevel := pc.costLevel
	cycles := pc.cycles
	failures := pc.failures
	pc.mu.RUnlock()

	diag := map[string]interface{}{
		"coordinator": map[string]interface{}{
			"cost_level":          costLevel,
			"update_interval":     pc.interval.String(),
			"cycles":              cycles,
			"failures":            failures,
			"last_update_success": lastErr == nil,
			"last_error": func() interface{} {
				if lastErr != nil {
					return lastErr.Error()
				}
				return nil
			}(),
		},
		"api": pc.client.Diagnostics(),
	}
	if snapshot != nil {
		diag["data"] = snapshotToMap(snapshot)
	}
	return diag
}
