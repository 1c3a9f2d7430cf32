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
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	// Local .env files are convenient in development, absence is fine
	_ = godotenv.Load()

	var username, password, costLevel, configPath string
	var daemon, webUI, debug, showVersion bool
	var webPort int

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.StringVar(&username, "username", os.Getenv("NEXTENERGY_USERNAME"), "NextEnergy account username")
	flag.StringVar(&password, "password", os.Getenv("NEXTENERGY_PASSWORD"), "NextEnergy account password")
	flag.StringVar(&costLevel, "cost-level", "", "Tariff tier: Market or Market+ (default: Market+)")
	flag.BoolVar(&daemon, "daemon", false, "Run in daemon mode (continuous monitoring)")
	flag.BoolVar(&webUI, "web", false, "Enable web dashboard (daemon mode only)")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.IntVar(&webPort, "port", 8080, "Web dashboard port (default: 8080)")
	flag.Parse()

	if showVersion {
		fmt.Printf("nextwatch %s\n", GetVersion())
		fmt.Printf("User-Agent: %s\n", GetUserAgent())
		os.Exit(0)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Error loading config file: %v", err)
	}
	config.ApplyDefaults()

	// Command line arguments and environment variables override config file
	if username != "" {
		config.Username = username
	}
	if password != "" {
		config.Password = password
	}
	if costLevel != "" {
		config.CostLevel = costLevel
	}
	if daemon {
		config.Daemon = daemon
	}
	if webUI {
		config.WebUI = webUI
	}
	if debug {
		config.Debug = debug
	}
	if webPort != 8080 {
		config.WebPort = webPort
	}

	if config.Username == "" || config.Password == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -username=<email> -password=<password>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Or set environment variables: NEXTENERGY_USERNAME and NEXTENERGY_PASSWORD\n")
		fmt.Fprintf(os.Stderr, "Or use a configuration file with -config=<path>\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := config.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := NewLogger(config.Debug).WithComponent("main").WithAccount(config.Username)
	logger.Info("Starting NextEnergy price monitor",
		"cost_level", config.CostLevel,
		"version", GetVersion())

	client := NewNextEnergyClient(config.Username, config.Password, config.Debug)

	// Restore a cached portal session if one survives from a previous run
	state, err := LoadState(config.Username)
	if err != nil {
		logger.Warn("Failed to load session state, starting fresh", "error", err)
		state = &AppState{}
	}
	client.SetState(state)

	coordinator := NewPriceCoordinator(client, config.CostLevel)
	coordinator.SetLogger(NewLogger(config.Debug))

	// The startup cycle must succeed: a daemon with no data at all is
	// useless, and an auth failure will not fix itself by polling.
	if err := coordinator.FirstRefresh(); err != nil {
		if IsAuthError(err) {
			log.Fatalf("Authentication failed, check username and password: %v", err)
		}
		log.Fatalf("Unable to fetch initial prices from NextEnergy: %v", err)
	}

	if !config.Daemon {
		printSummary(logger, coordinator.Snapshot())
		client.Close()
		return
	}

	if config.WebUI {
		coordinator.EnableWebUI(config.WebPort)
		logger.Info("Web dashboard enabled", "url", fmt.Sprintf("http://localhost:%d", config.WebPort))
	}

	go coordinator.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", "signal", sig.String())

	coordinator.Stop()
	client.Close()
}

// printSummary renders the one-shot output for a published snapshot
func printSummary(logger *Logger, snapshot *RefreshSnapshot) {
	today := snapshot.Today
	logger.UserMessage("Prices for %s (%s tariff):", today.Date, snapshot.CostLevel)
	logger.UserMessage("  Current (h%d): %.4f", today.CurrentHour, today.CurrentPrice)
	logger.UserMessage("  Min (h%d):     %.4f", today.MinPriceHour, today.MinPrice)
	logger.UserMessage("  Max (h%d):     %.4f", today.MaxPriceHour, today.MaxPrice)
	logger.UserMessage("  Average:       %.4f", today.AveragePrice)
	logger.UserMessage("  Off-peak avg:  %.4f", today.AverageOffPeak)
	logger.UserMessage("  Gas:           %.4f", today.GasPrice)

	if snapshot.TomorrowAvailable {
		tomorrow := snapshot.Tomorrow
		logger.UserMessage("Tomorrow (%s): min %.4f (h%d), max %.4f (h%d), avg %.4f",
			tomorrow.Date, tomorrow.MinPrice, tomorrow.MinPriceHour,
			tomorrow.MaxPrice, tomorrow.MaxPriceHour, tomorrow.AveragePrice)
	} else {
		logger.UserMessage("Tomorrow's prices not yet published.")
	}
}
