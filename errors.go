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
)

// APIError represents a logical failure from an established portal session:
// a non-success status on a screen-service call or a server-side exception
// carried in an otherwise successful response.
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
	Err        error // Underlying error if any
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("API error (%d) at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("API error at %s: %s (caused by: %v)", e.Endpoint, e.Message, e.Err)
	}
	return fmt.Sprintf("API error at %s: %s", e.Endpoint, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// AuthError represents an authentication failure: rejected credentials,
// a failed login flow, or missing session artifacts after login. These
// are user-correctable, unlike the rest of the API error family.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication error: %s", e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ConnectionError represents a pure transport failure (refused connection,
// timeout, DNS). Never raised for rejected credentials, so callers can
// tell "server unreachable" from "bad login".
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error at %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ValidationError represents configuration or input validation errors
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation error for %s (value: %v): %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// IsAuthError reports whether err is (or wraps) an AuthError
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsConnectionError reports whether err is (or wraps) a ConnectionError
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
