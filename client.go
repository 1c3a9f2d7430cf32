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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// APIMetrics tracks portal call performance and session churn
type APIMetrics struct {
	// Request durations by endpoint key, in seconds
	RequestDurations map[string][]float64

	TotalRequests   int64 // Total number of portal requests
	SessionExpiries int64 // Times the portal rejected our session mid-flight
}

// NewAPIMetrics creates a new metrics tracker
func NewAPIMetrics() *APIMetrics {
	return &APIMetrics{
		RequestDurations: make(map[string][]float64),
	}
}

// Screen-action RPC envelope, the shape the OutSystems front-end uses
// for every server call.
type versionInfo struct {
	ModuleVersion string `json:"moduleVersion"`
	APIVersion    string `json:"apiVersion"`
}

type screenData struct {
	Variables map[string]interface{} `json:"variables"`
}

type screenServiceRequest struct {
	VersionInfo     versionInfo            `json:"versionInfo"`
	ViewName        string                 `json:"viewName"`
	ScreenData      screenData             `json:"screenData"`
	ClientVariables map[string]interface{} `json:"clientVariables,omitempty"`
}

// serviceException is the portal's way of reporting a logical failure
// inside an HTTP 200 response.
type serviceException struct {
	Message string `json:"message"`
}

type loginResponse struct {
	Exception *serviceException `json:"exception"`
}

type moduleVersionResponse struct {
	VersionToken string `json:"versionToken"`
}

type priceDataPoint struct {
	Hour  int     `json:"Hour"`
	Price float64 `json:"Price"`
}

type priceQueryResponse struct {
	Exception *serviceException `json:"exception"`
	Data      struct {
		PricingList []priceDataPoint `json:"PricingList"`
		GasPrice    float64          `json:"GasPrice"`
	} `json:"data"`
}

// PriceQuote holds one day of parsed prices plus derived statistics.
// All monetary fields are rounded to PriceDecimals places.
type PriceQuote struct {
	Date           string          `json:"date"`
	HourlyPrices   map[int]float64 `json:"hourly_prices"`
	CurrentHour    int             `json:"current_hour"`
	CurrentPrice   float64         `json:"current_price"`
	GasPrice       float64         `json:"gas_price"`
	AverageOffPeak float64         `json:"average_off_peak"`
	AveragePrice   float64         `json:"average_price"`
	MinPrice       float64         `json:"min_price"`
	MaxPrice       float64         `json:"max_price"`
	MinPriceHour   int             `json:"min_price_hour"`
	MaxPriceHour   int             `json:"max_price_hour"`

	// hourOrder preserves the order hours arrived from the portal.
	// Min/max tie-breaks follow this order, not numeric hour order.
	hourOrder []int
}

// NextEnergyClient manages one authenticated connection to the NextEnergy
// customer portal and answers price queries for a date and tariff tier.
// It is driven by a single caller (the coordinator); it is not safe for
// concurrent use because the session tokens mutate on re-authentication.
type NextEnergyClient struct {
	Username string
	BaseURL  string

	password string
	baseURL  *url.URL
	client   *http.Client

	sessionToken     string
	csrfToken        string
	moduleVersion    string
	apiVersionPrices string
	apiVersionCosts  string

	state   *AppState
	debug   bool
	logger  *Logger
	metrics *APIMetrics
	nowFunc func() time.Time
}

func NewNextEnergyClient(username, password string, debug bool) *NextEnergyClient {
	logger := NewLogger(debug).WithComponent("nextenergy_client")
	jar, _ := cookiejar.New(nil)
	base, _ := url.Parse(BaseURL)
	return &NextEnergyClient{
		Username:         username,
		password:         password,
		BaseURL:          BaseURL,
		baseURL:          base,
		moduleVersion:    DefaultModuleVersion,
		apiVersionPrices: DefaultAPIVersionPrices,
		apiVersionCosts:  DefaultAPIVersionCosts,
		debug:            debug,
		logger:           logger,
		metrics:          NewAPIMetrics(),
		nowFunc:          time.Now,
		client: &http.Client{
			Timeout: HTTPClientTimeout,
			Jar:     jar,
		},
	}
}

// setBaseURL repoints the client at a different portal host (test seam)
func (c *NextEnergyClient) setBaseURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	c.BaseURL = raw
	c.baseURL = parsed
	return nil
}

// SetState attaches a persisted session cache and restores any tokens in it
func (c *NextEnergyClient) SetState(state *AppState) {
	c.state = state
	c.loadSessionFromState()
}

func (c *NextEnergyClient) loadSessionFromState() {
	if c.state == nil {
		return
	}
	if c.state.SessionToken != "" {
		c.sessionToken = c.state.SessionToken
		c.csrfToken = c.state.CSRFToken
		// The portal reads the session from the cookie, not from us: the
		// restored token has to go back into the jar or every query would
		// arrive cookie-less and be rejected.
		c.client.Jar.SetCookies(c.baseURL, []*http.Cookie{{
			Name:  SessionCookieName,
			Value: c.state.SessionToken,
		}})
		c.logger.Debug("Loaded cached portal session", "age", time.Since(c.state.LastUpdated).String())
	}
	if c.state.ModuleVersion != "" {
		c.moduleVersion = c.state.ModuleVersion
	}
	if c.state.APIVersionPrices != "" {
		c.apiVersionPrices = c.state.APIVersionPrices
	}
	if c.state.APIVersionCosts != "" {
		c.apiVersionCosts = c.state.APIVersionCosts
	}
}

func (c *NextEnergyClient) saveSessionToState() {
	if c.state == nil {
		return
	}
	c.state.SessionToken = c.sessionToken
	c.state.CSRFToken = c.csrfToken
	c.state.ModuleVersion = c.moduleVersion
	c.state.APIVersionPrices = c.apiVersionPrices
	c.state.APIVersionCosts = c.apiVersionCosts
	if err := c.state.Save(c.Username); err != nil {
		c.logger.Warn("Failed to persist session state", "error", err)
	}
}

// invalidateSession drops the session artifacts after the portal rejected them
func (c *NextEnergyClient) invalidateSession() {
	c.sessionToken = ""
	c.csrfToken = ""
	c.metrics.SessionExpiries++
	if c.state != nil {
		c.state.SessionToken = ""
		c.state.CSRFToken = ""
	}
}

var csrfPattern = regexp.MustCompile(`crf=([^;]+)`)

// extractCSRFToken pulls the crf= token out of a URL-encoded session cookie
// value. Returns the empty string when no token is present. The cookie
// payload is an OutSystems internal, so this stays an isolated pure function
// that can be swapped when the format changes.
func extractCSRFToken(cookieValue string) string {
	decoded, err := url.QueryUnescape(cookieValue)
	if err != nil {
		decoded = cookieValue
	}
	if match := csrfPattern.FindStringSubmatch(decoded); match != nil {
		return match[1]
	}
	return ""
}

// Authenticate runs the full login flow against the portal: load the login
// page to establish a session, probe the module version, submit the login
// screen action and capture the session cookie plus embedded CSRF token.
// Safe to call when already authenticated; prior tokens are overwritten.
func (c *NextEnergyClient) Authenticate() error {
	resp, err := c.client.Get(c.BaseURL + getPath("login-page"))
	if err != nil {
		return &ConnectionError{Endpoint: getPath("login-page"), Err: err}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &AuthError{Message: fmt.Sprintf("failed to load login page (status %d)", resp.StatusCode)}
	}

	// Module version probe, cache-busted. Any non-success keeps the
	// compiled-in default token.
	versionURL := fmt.Sprintf("%s%s?%d", c.BaseURL, getPath("module-version"), c.nowFunc().UnixMilli())
	resp, err = c.client.Get(versionURL)
	if err != nil {
		return &ConnectionError{Endpoint: getPath("module-version"), Err: err}
	}
	if resp.StatusCode == http.StatusOK {
		var mv moduleVersionResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&mv); decodeErr == nil && mv.VersionToken != "" {
			c.moduleVersion = mv.VersionToken
		}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	loginBody := screenServiceRequest{
		VersionInfo: versionInfo{ModuleVersion: c.moduleVersion, APIVersion: c.moduleVersion},
		ViewName:    "MainFlow.Login",
		ScreenData: screenData{Variables: map[string]interface{}{
			"Username":         c.Username,
			"Password":         c.password,
			"RememberUsername": false,
		}},
	}

	respBody, status, err := c.postScreenService("login-action", loginBody, false)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &AuthError{Message: fmt.Sprintf("login failed with status %d", status)}
	}

	var result loginResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return &APIError{Endpoint: getPath("login-action"), Message: "failed to decode login response", Err: err}
	}
	if result.Exception != nil {
		message := result.Exception.Message
		if message == "" {
			message = "unknown error"
		}
		return &AuthError{Message: fmt.Sprintf("login failed: %s", message)}
	}

	c.sessionToken = ""
	c.csrfToken = ""
	for _, cookie := range c.client.Jar.Cookies(c.baseURL) {
		if cookie.Name == SessionCookieName {
			c.sessionToken = cookie.Value
			c.csrfToken = extractCSRFToken(cookie.Value)
			break
		}
	}
	if c.sessionToken == "" {
		return &AuthError{Message: "no session cookie received after login"}
	}

	c.saveSessionToState()
	c.logger.Debug("Successfully authenticated with NextEnergy", "has_csrf_token", c.csrfToken != "")
	return nil
}

// GetHourlyPrices fetches the hourly electricity prices and the gas price for
// a date and cost level. A zero date means today. Authenticates lazily; an
// "Invalid Login" exception triggers one re-authentication and one retried
// query, a second consecutive rejection propagates as *APIError.
func (c *NextEnergyClient) GetHourlyPrices(date time.Time, costLevel string) (*PriceQuote, error) {
	if date.IsZero() {
		date = c.nowFunc()
	}
	if c.sessionToken == "" {
		if err := c.Authenticate(); err != nil {
			return nil, err
		}
	}

	for attempt := 0; ; attempt++ {
		quote, expired, err := c.fetchPrices(date, costLevel)
		if err == nil {
			return quote, nil
		}
		if !expired || attempt >= MaxAuthRetries {
			return nil, err
		}
		c.logger.Debug("Portal rejected session, re-authenticating", "attempt", attempt+1)
		c.invalidateSession()
		if authErr := c.Authenticate(); authErr != nil {
			return nil, authErr
		}
	}
}

// fetchPrices performs one price query. The bool reports whether the failure
// was an "Invalid Login" rejection, which the caller may retry once.
func (c *NextEnergyClient) fetchPrices(date time.Time, costLevel string) (*PriceQuote, bool, error) {
	dateStr := date.Format("2006-01-02")

	body := screenServiceRequest{
		VersionInfo: versionInfo{ModuleVersion: c.moduleVersion, APIVersion: c.apiVersionPrices},
		ViewName:    "MainFlow.MarketPrices",
		ScreenData: screenData{Variables: map[string]interface{}{
			"DateTime":                     dateStr + "T00:00:00Z",
			"_dateTimeInDataFetchStatus":   1,
			"ContractId":                   0,
			"_contractIdInDataFetchStatus": 1,
		}},
		ClientVariables: map[string]interface{}{
			"PriceDate":         dateStr,
			"PriceCostsLevelId": costLevel,
		},
	}

	respBody, status, err := c.postScreenService("price-data", body, true)
	if err != nil {
		return nil, false, err
	}
	if status != http.StatusOK {
		return nil, false, &APIError{StatusCode: status, Endpoint: getPath("price-data"), Message: "failed to get prices"}
	}

	var result priceQueryResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, false, &APIError{Endpoint: getPath("price-data"), Message: "failed to decode price response", Err: err}
	}
	if result.Exception != nil {
		message := result.Exception.Message
		if message == "" {
			message = "unknown error"
		}
		apiErr := &APIError{Endpoint: getPath("price-data"), Message: message}
		return nil, strings.Contains(message, InvalidLoginMarker), apiErr
	}

	return c.parsePriceResponse(&result, date), false, nil
}

// postScreenService posts a screen-action envelope and returns the raw body
// and status. withCSRF attaches the current CSRF token header, empty or not.
func (c *NextEnergyClient) postScreenService(pathKey string, body interface{}, withCSRF bool) ([]byte, int, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, 0, &APIError{Endpoint: getPath(pathKey), Message: "failed to marshal request body", Err: err}
	}

	req, err := http.NewRequest(http.MethodPost, c.BaseURL+getPath(pathKey), bytes.NewReader(reqBody))
	if err != nil {
		return nil, 0, &APIError{Endpoint: getPath(pathKey), Message: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(LocaleHeaderName, LocaleHeaderValue)
	req.Header.Set("User-Agent", GetUserAgent())
	if withCSRF {
		req.Header.Set(CSRFHeaderName, c.csrfToken)
	}

	// Never log the login body, it carries the password.
	if c.debug && pathKey != "login-action" {
		c.logger.Debug("→ Screen service request", "endpoint", getPath(pathKey), "body", string(reqBody))
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start).Seconds()
	c.metrics.TotalRequests++
	if err != nil {
		return nil, 0, &ConnectionError{Endpoint: getPath(pathKey), Err: err}
	}
	defer resp.Body.Close()

	c.metrics.RequestDurations[pathKey] = append(c.metrics.RequestDurations[pathKey], duration)
	c.logger.LogAPIRequest(http.MethodPost, getPath(pathKey), resp.StatusCode, duration)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &ConnectionError{Endpoint: getPath(pathKey), Err: err}
	}
	return data, resp.StatusCode, nil
}

// round4 rounds a price to PriceDecimals places, half away from zero
func round4(value float64) float64 {
	rounded, _ := decimal.NewFromFloat(value).Round(PriceDecimals).Float64()
	return rounded
}

func (c *NextEnergyClient) parsePriceResponse(result *priceQueryResponse, date time.Time) *PriceQuote {
	hourly := make(map[int]float64, len(result.Data.PricingList))
	hourOrder := make([]int, 0, len(result.Data.PricingList))
	for _, point := range result.Data.PricingList {
		if _, seen := hourly[point.Hour]; !seen {
			hourOrder = append(hourOrder, point.Hour)
		}
		hourly[point.Hour] = round4(point.Price)
	}

	quote := &PriceQuote{
		Date:         date.Format("2006-01-02"),
		HourlyPrices: hourly,
		hourOrder:    hourOrder,
		GasPrice:     round4(result.Data.GasPrice),
	}

	// Current hour is wall-clock now, even when the quote is for another
	// date: a tomorrow quote reports today's hour. Long-standing portal
	// integration behavior, kept as-is.
	quote.CurrentHour = c.nowFunc().Hour()
	quote.CurrentPrice = round4(hourly[quote.CurrentHour])

	// The off-peak average always divides by the full window, hours the
	// portal omitted contribute zero.
	offPeak := decimal.Zero
	for hour := 0; hour < OffPeakWindowHours; hour++ {
		offPeak = offPeak.Add(decimal.NewFromFloat(hourly[hour]))
	}
	quote.AverageOffPeak, _ = offPeak.Div(decimal.NewFromInt(OffPeakWindowHours)).Round(PriceDecimals).Float64()

	if len(hourOrder) == 0 {
		return quote
	}

	sum := decimal.Zero
	minHour, maxHour := hourOrder[0], hourOrder[0]
	for _, hour := range hourOrder {
		price := hourly[hour]
		sum = sum.Add(decimal.NewFromFloat(price))
		if price < hourly[minHour] {
			minHour = hour
		}
		if price > hourly[maxHour] {
			maxHour = hour
		}
	}
	quote.AveragePrice, _ = sum.Div(decimal.NewFromInt(int64(len(hourOrder)))).Round(PriceDecimals).Float64()
	quote.MinPrice = hourly[minHour]
	quote.MaxPrice = hourly[maxHour]
	quote.MinPriceHour = minHour
	quote.MaxPriceHour = maxHour

	return quote
}

// Diagnostics returns session-state flags for the diagnostics surface.
// Tokens themselves are never included, only their presence.
func (c *NextEnergyClient) Diagnostics() map[string]interface{} {
	return map[string]interface{}{
		"authenticated":      c.sessionToken != "",
		"has_csrf_token":     c.csrfToken != "",
		"module_version":     c.moduleVersion,
		"api_version_prices": c.apiVersionPrices,
		"api_version_costs":  c.apiVersionCosts,
		"total_requests":     c.metrics.TotalRequests,
		"session_expiries":   c.metrics.SessionExpiries,
	}
}

// Close releases the portal session and its underlying connections. The
// client needs a fresh Authenticate before it can be used again.
func (c *NextEnergyClient) Close() {
	c.sessionToken = ""
	c.csrfToken = ""
	c.client.CloseIdleConnections()
}
