package classify

import "fmt"

// MonitoringPayload is a structured rendering of a classified error,
// suitable for forwarding to an observability pipeline.
type MonitoringPayload struct {
	AlertType string   `json:"alert_type"`
	Severity  Severity `json:"severity"`
	Category  Category `json:"category"`
	Operation string   `json:"operation"`
	SessionID string   `json:"session_id,omitempty"`
}

// Messages holds four parallel renderings of the same event for
// different audiences.
type Messages struct {
	User       string            `json:"user"`
	Admin      string            `json:"admin"`
	Technical  string            `json:"technical"`
	Monitoring MonitoringPayload `json:"monitoring"`
}

// ContextualMessages renders a classification for end users (plain
// language, no internals), admins (operational detail), engineers
// (debugging detail) and monitoring systems.
func ContextualMessages(c Classification, ctx Context) Messages {
	return Messages{
		User:      userMessage(c),
		Admin:     adminMessage(c, ctx),
		Technical: fmt.Sprintf("%s/%s fingerprint=%s operation=%s", c.Category, c.Subcategory, c.Fingerprint, ctx.Operation),
		Monitoring: MonitoringPayload{
			AlertType: "sync_error",
			Severity:  c.Severity,
			Category:  c.Category,
			Operation: ctx.Operation,
			SessionID: ctx.SessionID,
		},
	}
}

func userMessage(c Classification) string {
	switch c.Category {
	case CategoryNetwork:
		return "The data source is temporarily unreachable. The import will retry automatically."
	case CategoryData:
		return "Some records could not be imported because they conflict with existing data."
	case CategoryValidation:
		return "Some records contain invalid values and were skipped."
	case CategoryPerformance:
		return "The import is running slower than usual but will continue."
	default:
		return "An unexpected problem interrupted the import. The team has been notified."
	}
}

func adminMessage(c Classification, ctx Context) string {
	msg := fmt.Sprintf("%s during %s on %s (severity %s",
		c.Subcategory, ctx.Operation, ctx.Resource, c.Severity)
	if ctx.AffectedRecords > 0 {
		msg += fmt.Sprintf(", %d records affected", ctx.AffectedRecords)
	}
	msg += ")"
	if c.RetryEligible {
		msg += "; retry in progress"
	} else {
		msg += "; manual intervention required"
	}
	return msg
}
