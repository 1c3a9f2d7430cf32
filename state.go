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
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AppState is the persisted per-account session cache: portal session and
// CSRF tokens plus the version-compatibility tokens captured at login.
// Lets a restarted daemon reuse a live portal session instead of logging
// in again. Price data is never persisted.
type AppState struct {
	SessionToken     string    `json:"session_token,omitempty"`
	CSRFToken        string    `json:"csrf_token,omitempty"`
	ModuleVersion    string    `json:"module_version,omitempty"`
	APIVersionPrices string    `json:"api_version_prices,omitempty"`
	APIVersionCosts  string    `json:"api_version_costs,omitempty"`
	LastUpdated      time.Time `json:"last_updated"`
}

// accountFileKey makes an account name (usually an email address) safe to
// use in a filename
func accountFileKey(account string) string {
	replacer := strings.NewReplacer("@", "_at_", "/", "_", "\\", "_", ":", "_")
	return replacer.Replace(account)
}

func getStateFilePath(account string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "nextwatch")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	// One cache file per account
	return filepath.Join(configDir, fmt.Sprintf("state_%s.json", accountFileKey(account))), nil
}

func LoadState(account string) (*AppState, error) {
	statePath, err := getStateFilePath(account)
	if err != nil {
		return nil, err
	}

	// If file doesn't exist, return empty state
	if _, err := os.Stat(statePath); os.IsNotExist(err) {
		return &AppState{LastUpdated: time.Now()}, nil
	}

	data, err := os.ReadFile(statePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state AppState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}

	return &state, nil
}

func (s *AppState) Save(account string) error {
	statePath, err := getStateFilePath(account)
	if err != nil {
		return err
	}

	s.LastUpdated = time.Now()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// The file holds live session tokens, keep it private to the user
	if err := os.WriteFile(statePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}
