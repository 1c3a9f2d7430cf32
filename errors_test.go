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
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAPIError(t *testing.T) {
	tests := []struct {
		name       string
		err        *APIError
		wantString string
	}{
		{
			name: "error with status code",
			err: &APIError{
				StatusCode: http.StatusInternalServerError,
				Endpoint:   getPath("price-data"),
				Message:    "failed to get prices",
			},
			wantString: "API error (500)",
		},
		{
			name: "portal exception without status",
			err: &APIError{
				Endpoint: getPath("price-data"),
				Message:  "Invalid Login: session expired",
			},
			wantString: "Invalid Login: session expired",
		},
		{
			name: "error with underlying cause",
			err: &APIError{
				Endpoint: getPath("login-action"),
				Message:  "failed to decode login response",
				Err:      errors.New("unexpected end of JSON input"),
			},
			wantString: "unexpected end of JSON input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); !strings.Contains(got, tt.wantString) {
				t.Errorf("Error() = %q, want it to contain %q", got, tt.wantString)
			}
			if tt.err.Err != nil && tt.err.Unwrap() != tt.err.Err {
				t.Errorf("Unwrap() = %v, want %v", tt.err.Unwrap(), tt.err.Err)
			}
		})
	}
}

func TestAuthError(t *testing.T) {
	cause := errors.New("token parse failed")
	err := &AuthError{Message: "login failed: Invalid username or password", Err: cause}

	if !strings.Contains(err.Error(), "authentication error") {
		t.Errorf("Error() = %q, want the authentication prefix", err.Error())
	}
	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
}

func TestConnectionError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := &ConnectionError{Endpoint: getPath("login-page"), Err: cause}

	errStr := err.Error()
	if !strings.Contains(errStr, "connection error") {
		t.Errorf("Error() = %q, want the connection prefix", errStr)
	}
	if !strings.Contains(errStr, getPath("login-page")) {
		t.Errorf("Error() = %q, want it to name the endpoint", errStr)
	}
	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
}

func TestValidationError(t *testing.T) {
	tests := []struct {
		name       string
		err        *ValidationError
		wantString string
	}{
		{
			name: "with value",
			err: &ValidationError{
				Field:   "cost_level",
				Value:   "Premium",
				Message: "must be one of Market, Market+",
			},
			wantString: "Premium",
		},
		{
			name: "without value",
			err: &ValidationError{
				Field:   "username",
				Message: "required",
			},
			wantString: "validation error for username",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); !strings.Contains(got, tt.wantString) {
				t.Errorf("Error() = %q, want it to contain %q", got, tt.wantString)
			}
		})
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		isAuth bool
		isConn bool
	}{
		{
			name:   "auth error",
			err:    &AuthError{Message: "no session cookie received after login"},
			isAuth: true,
		},
		{
			name:   "connection error",
			err:    &ConnectionError{Endpoint: "/", Err: errors.New("timeout")},
			isConn: true,
		},
		{
			name:   "wrapped auth error",
			err:    fmt.Errorf("startup failed: %w", &AuthError{Message: "login rejected"}),
			isAuth: true,
		},
		{
			name:   "wrapped connection error",
			err:    fmt.Errorf("startup failed: %w", &ConnectionError{Endpoint: "/", Err: errors.New("refused")}),
			isConn: true,
		},
		{
			name: "plain error matches neither",
			err:  errors.New("boom"),
		},
		{
			name: "nil error matches neither",
			err:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAuthError(tt.err); got != tt.isAuth {
				t.Errorf("IsAuthError() = %v, want %v", got, tt.isAuth)
			}
			if got := IsConnectionError(tt.err); got != tt.isConn {
				t.Errorf("IsConnectionError() = %v, want %v", got, tt.isConn)
			}
		})
	}
}
