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
	"log/slog"
	"os"
)

// Logger wraps slog.Logger for structured logging throughout the application
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new structured logger
func NewLogger(debug bool) *Logger {
	var level slog.Level
	if debug {
		level = slog.LevelDebug
	} else {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a new JSON structured logger (useful for production/log aggregation)
func NewJSONLogger(debug bool) *Logger {
	var level slog.Level
	if debug {
		level = slog.LevelDebug
	} else {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithComponent returns a logger with a component field pre-set
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", component),
	}
}

// WithCycleID returns a logger with a cycle_id field pre-set
func (l *Logger) WithCycleID(cycleID string) *Logger {
	return &Logger{
		Logger: l.Logger.With("cycle_id", cycleID),
	}
}

// WithAccount returns a logger with an account field pre-set.
// The account name is masked, it is usually an email address.
func (l *Logger) WithAccount(account string) *Logger {
	masked := account
	if len(account) > 3 {
		masked = account[:3] + "***"
	}
	return &Logger{
		Logger: l.Logger.With("account", masked),
	}
}

// LogAPIRequest logs an API request with common fields
func (l *Logger) LogAPIRequest(method, endpoint string, statusCode int, duration float64) {
	l.Info("API request",
		"method", method,
		"endpoint", endpoint,
		"status_code", statusCode,
		"duration_ms", duration*1000,
	)
}

// LogAPIError logs an API error with details
func (l *Logger) LogAPIError(err error, endpoint string) {
	if apiErr, ok := err.(*APIError); ok {
		l.Error("API request failed",
			"endpoint", endpoint,
			"status_code", apiErr.StatusCode,
			"error", apiErr.Message,
		)
	} else {
		l.Error("API request failed",
			"endpoint", endpoint,
			"error", err.Error(),
		)
	}
}

// LogRefreshCycle logs the outcome of one refresh cycle
func (l *Logger) LogRefreshCycle(cycleID string, tomorrowAvailable bool, duration float64) {
	l.Info("Refresh cycle complete",
		"cycle_id", cycleID,
		"tomorrow_available", tomorrowAvailable,
		"duration_ms", duration*1000,
	)
}

// UserMessage outputs a user-friendly message (bypasses structured logging)
// Use this for primary user-facing output in non-daemon mode
func (l *Logger) UserMessage(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}
