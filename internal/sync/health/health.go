// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// SessionHealth contains health metrics for one active sync session.
type SessionHealth struct {
	SessionID     string       `json:"session_id"`
	Status        SystemStatus `json:"status"`
	SessionStatus string       `json:"session_status"`
	Processed     int          `json:"processed"`
	ErrorCount    int          `json:"error_count"`
	ErrorRate     float64      `json:"error_rate_percentage"`
	CompletionPct float64      `json:"completion_percentage"`
	RecordsPerMin float64      `json:"records_per_minute"`
}

// Report contains the full system health report.
type Report struct {
	SystemStatus   SystemStatus             `json:"system_status"`
	Database       SystemStatus             `json:"database"`
	ActiveSessions map[string]SessionHealth `json:"active_sessions"`
}
