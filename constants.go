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

import "time"

// NextEnergy portal
const (
	// BaseURL - customer portal host, everything below is relative to it
	BaseURL = "https://mijn.nextenergy.nl"
)

// Portal paths, relative to the client's base URL. The screen-service
// paths are the OutSystems front-end RPC surface, not a documented API.
var nextEnergyPaths = map[string]string{
	"login-page":     "/Mobile_EnergyNext/Login",
	"module-version": "/Mobile_EnergyNext/moduleservices/moduleversioninfo",
	"login-action":   "/Mobile_EnergyNext/screenservices/Mobile_EnergyNext/MainFlow/Login/ActionLogin",
	"price-data":     "/Mobile_EnergyNext/screenservices/Mobile_EnergyNext_CW/WidgetFlow/MarketPrices_Quarterly/DataActionGetPriceDataPoints",
}

// getPath returns the portal path for a key, falling back to the login page
func getPath(key string) string {
	if path, exists := nextEnergyPaths[key]; exists {
		return path
	}
	return nextEnergyPaths["login-page"]
}

// Default version-compatibility tokens, replayed in every request body.
// Captured fresh at authentication time when the portal answers the
// module-version probe; these fallbacks go stale when NextEnergy deploys.
const (
	DefaultModuleVersion    = "70n6yEAoyavGBAoPNutE2Q"
	DefaultAPIVersionPrices = "YfqvMpHd6TWpPqiZ61s6Cw"
	DefaultAPIVersionCosts  = "O_moHZeIoEf9C2VeIRpb6Q"
)

// Session artifacts
const (
	// SessionCookieName - cookie set by the portal on successful login
	SessionCookieName = "nr2Users_Customers"

	// CSRFHeaderName - header carrying the token parsed out of the session cookie
	CSRFHeaderName = "X-CSRFToken"

	// LocaleHeaderName / LocaleHeaderValue - fixed locale the portal expects
	LocaleHeaderName  = "OutSystems-locale"
	LocaleHeaderValue = "en-US"

	// InvalidLoginMarker - substring in an exception message that means the
	// session expired server-side and a re-authentication is worth one retry
	InvalidLoginMarker = "Invalid Login"
)

// Cost levels (tariff tiers) the portal understands
const (
	CostLevelMarket     = "Market"
	CostLevelMarketPlus = "Market+"
)

// CostLevelOptions - the only two tiers a config may select
var CostLevelOptions = []string{
	CostLevelMarket,
	CostLevelMarketPlus,
}

// Price statistics settings
const (
	// PriceDecimals - every exposed price is rounded to this many decimals
	PriceDecimals = 4

	// OffPeakWindowHours - hours 0..5 form the off-peak window; the off-peak
	// average always divides by this count, absent hours contributing zero
	OffPeakWindowHours = 6
)

// Refresh settings
const (
	// RefreshInterval - fixed polling interval, not user-configurable
	RefreshInterval = 15 * time.Minute
)

// Session retry settings
const (
	// MaxAuthRetries - how many times a price query is retried after an
	// "Invalid Login" exception before the failure propagates
	MaxAuthRetries = 1
)

// HTTP client settings
const (
	// HTTPClientTimeout - Maximum time for HTTP requests
	HTTPClientTimeout = 30 * time.Second
)

// Web dashboard settings
const (
	// WebDashboardRefreshInterval - Auto-refresh interval for web dashboard (client-side)
	WebDashboardRefreshInterval = 30 * time.Second
)

// redactedKeys - keys scrubbed from diagnostics output before it leaves
// the process. Matched case-insensitively against JSON object keys.
var redactedKeys = []string{
	"username",
	"password",
	"email",
	"token",
	"access_token",
	"refresh_token",
	"session_token",
	"csrf_token",
}
