package engine

import "fmt"

// Reason explains why a submission or leave request was turned down.
type Reason string

const (
	ReasonProtected      Reason = "protected"
	ReasonAlreadyLogged  Reason = "already_logged"
	ReasonDaySettled     Reason = "day_settled"
	ReasonQuotaExhausted Reason = "quota_exhausted"
)

// Message is the user-facing text for r.
func (r Reason) Message() string {
	switch r {
	case ReasonProtected:
		return "under protection, not accepted"
	case ReasonAlreadyLogged:
		return "already logged today"
	case ReasonDaySettled:
		return "today has already been settled, not accepted"
	case ReasonQuotaExhausted:
		return "monthly leave quota exhausted"
	default:
		return string(r)
	}
}

func warningText(hours float64) string {
	return fmt.Sprintf("⚠️ You haven't posted your daily log in %.0f hours. Post your log now to stay in the community 💪", hours)
}

func removalText(hours float64) string {
	return fmt.Sprintf("❌ You have been removed from the community for missing daily logs for %.0f hours.", hours)
}

func removalReason(hours float64) string {
	return fmt.Sprintf("Inactive: no valid daily logs for %.0f hours.", hours)
}
