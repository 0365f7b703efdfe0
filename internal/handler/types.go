package handler

import "time"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Database  string     `json:"database"`
	Scheduler string     `json:"scheduler"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	LastRun   *time.Time `json:"last_run,omitempty"`
}

// SourceResponse represents one configured or known source
type SourceResponse struct {
	SourceID       string     `json:"source_id"`
	Title          string     `json:"title,omitempty"`
	Configured     bool       `json:"configured"`
	State          string     `json:"state"`
	LastItemID     int64      `json:"last_item_id"`
	ItemsSeenTotal int64      `json:"items_seen_total"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
}

// SourcesResponse lists sources and the dedup history size
type SourcesResponse struct {
	Sources      []SourceResponse `json:"sources"`
	Fingerprints int64            `json:"fingerprints"`
}

// CycleSummary condenses the last cycle result for the scheduler status
type CycleSummary struct {
	CycleID          string `json:"cycle_id"`
	NewItems         int    `json:"new_items"`
	FailedSources    int    `json:"failed_sources"`
	DigestIsFallback bool   `json:"digest_is_fallback"`
	PublishReason    string `json:"publish_reason,omitempty"`
	Cancelled        bool   `json:"cancelled"`
	Error            string `json:"error,omitempty"`
}

// SchedulerStatusResponse represents the cycle scheduler state
type SchedulerStatusResponse struct {
	Status     string        `json:"status"`
	NextCycle  *time.Time    `json:"next_cycle,omitempty"`
	LastCycle  *time.Time    `json:"last_cycle,omitempty"`
	LastResult *CycleSummary `json:"last_result,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
