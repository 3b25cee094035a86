package server

import "github.com/mohammad-safakhou/scout/internal/result"

// HTTPError is the error envelope returned by every failing endpoint.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// IDResponse is a generic id response wrapper.
type IDResponse struct {
	ID string `json:"id"`
}

// MeResponse returns the current authenticated user id.
type MeResponse struct {
	UserID string `json:"user_id"`
}

// SearchRequest is the payload for POST /api/search.
type SearchRequest struct {
	Keywords  []string `json:"keywords"`
	Platforms []string `json:"platforms"`
	Detail    string   `json:"detail"`
}

// SearchResponse returns the persisted ids along with the full report.
type SearchResponse struct {
	SearchID string        `json:"search_id"`
	ReportID string        `json:"report_id"`
	Report   result.Report `json:"report"`
}

// SearchSummary is one row in the searches listing. LastReportAt is
// populated only on the single-search endpoint and omitted when the
// search has never produced a report.
type SearchSummary struct {
	ID           string   `json:"id"`
	Keywords     []string `json:"keywords"`
	Platforms    []string `json:"platforms"`
	Detail       string   `json:"detail,omitempty"`
	CreatedAt    string   `json:"created_at"`
	LastReportAt string   `json:"last_report_at,omitempty"`
}

// ReportSummary is one row in the reports listing.
type ReportSummary struct {
	ID           string `json:"id"`
	SearchID     string `json:"search_id"`
	Summary      string `json:"summary"`
	TotalResults int    `json:"total_results"`
	CreatedAt    string `json:"created_at"`
}

// CreateSubscriptionRequest registers a recurring search.
type CreateSubscriptionRequest struct {
	Keywords  []string `json:"keywords"`
	Platforms []string `json:"platforms"`
	Detail    string   `json:"detail"`
	Schedule  string   `json:"schedule"`
	Email     string   `json:"email"`
}
