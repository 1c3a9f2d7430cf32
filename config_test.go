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
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig(\"\") failed: %v", err)
	}

	if config.CostLevel != CostLevelMarketPlus {
		t.Errorf("CostLevel = %q, want default %q", config.CostLevel, CostLevelMarketPlus)
	}
	if config.WebPort != 8080 {
		t.Errorf("WebPort = %d, want default 8080", config.WebPort)
	}
	if config.Daemon || config.WebUI || config.Debug {
		t.Error("daemon, web UI and debug should default to off")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `username: user@example.com
password: secret
cost_level: Market
daemon: true
web_ui: true
web_port: 9090
debug: true
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if config.Username != "user@example.com" {
		t.Errorf("Username = %q, want %q", config.Username, "user@example.com")
	}
	if config.Password != "secret" {
		t.Errorf("Password = %q, want %q", config.Password, "secret")
	}
	if config.CostLevel != CostLevelMarket {
		t.Errorf("CostLevel = %q, want %q", config.CostLevel, CostLevelMarket)
	}
	if !config.Daemon || !config.WebUI || !config.Debug {
		t.Error("daemon, web UI and debug should all be enabled")
	}
	if config.WebPort != 9090 {
		t.Errorf("WebPort = %d, want 9090", config.WebPort)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("LoadConfig() should fail for a missing file")
	}
	if !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("error = %q, want it to say the file is missing", err.Error())
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("username: [unclosed"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Fatal("LoadConfig() should fail on malformed YAML")
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	config := &Config{}
	config.ApplyDefaults()

	if config.CostLevel != CostLevelMarketPlus {
		t.Errorf("CostLevel = %q, want %q", config.CostLevel, CostLevelMarketPlus)
	}
	if config.WebPort != 8080 {
		t.Errorf("WebPort = %d, want 8080", config.WebPort)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Username:  "user@example.com",
		Password:  "secret",
		CostLevel: CostLevelMarketPlus,
		WebPort:   8080,
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing username",
			mutate:  func(c *Config) { c.Username = "" },
			wantErr: "username is required",
		},
		{
			name:    "missing password",
			mutate:  func(c *Config) { c.Password = "" },
			wantErr: "password is required",
		},
		{
			name:    "invalid cost level",
			mutate:  func(c *Config) { c.CostLevel = "Premium" },
			wantErr: "cost level must be",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.WebPort = 70000 },
			wantErr: "web port must be between",
		},
		{
			name:    "privileged port",
			mutate:  func(c *Config) { c.WebPort = 80 },
			wantErr: "requires root privileges",
		},
		{
			name:    "web UI without daemon",
			mutate:  func(c *Config) { c.WebUI = true },
			wantErr: "web UI requires daemon mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)

			err := config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}
