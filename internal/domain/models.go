package domain

import "time"

// Site is a monitored endpoint. Name is the stable identity; sites are
// deactivated, never deleted, so recorded history keeps a valid reference.
type Site struct {
	Name         string     `json:"site_name"`
	URL          string     `json:"url"`
	Category     string     `json:"category"`
	Active       bool       `json:"is_active"`
	MaxRedirects int        `json:"max_redirects,omitempty"`
	LastChecked  *time.Time `json:"last_checked"`
	AddedBy      string     `json:"added_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// CheckResult is one appended row of check history. StatusCode,
// ResponseTime and ErrorMessage are pointers so a never-connected probe
// records null, not zero.
type CheckResult struct {
	SiteName     string    `json:"site_name"`
	URL          string    `json:"url"`
	StatusCode   *int      `json:"status_code"`
	ResponseTime *float64  `json:"response_time"` // seconds
	Up           bool      `json:"is_up"`
	ErrorMessage *string   `json:"error_message"`
	Timestamp    time.Time `json:"timestamp"`
	CheckedBy    string    `json:"checked_by,omitempty"`
	Category     string    `json:"category,omitempty"`
}

// Principal is an API credential holder. Results and batch pulls are
// attributed to the authenticated principal.
type Principal struct {
	Username   string     `json:"username"`
	APIKey     string     `json:"api_key,omitempty"`
	Active     bool       `json:"is_active"`
	LastActive *time.Time `json:"last_active"`
	CreatedAt  time.Time  `json:"created_at"`
}

// AlertState is the per-site bookkeeping the alerter keeps between scans:
// the last up/down state it saw and when it last sent a notification.
type AlertState struct {
	SiteName   string
	LastUp     bool
	LastSentAt *time.Time
}

// DefaultMaxRedirects applies when a site has no per-site override.
const DefaultMaxRedirects = 5
