// Package chat_status_enum defines the chat lifecycle states.
package chat_status_enum

const (
	PendingAcceptance  = "PENDING_ACCEPTANCE"
	Active             = "ACTIVE"
	ClosedByStudent    = "CLOSED_BY_STUDENT"
	ClosedByCounsellor = "CLOSED_BY_COUNSELLOR"
	AutoClosed         = "AUTO_CLOSED"
	Closed             = "CLOSED"
)

// IsTerminal reports whether status is final. No transition leaves a
// terminal state.
func IsTerminal(status string) bool {
	switch status {
	case ClosedByStudent, ClosedByCounsellor, AutoClosed, Closed:
		return true
	}
	return false
}
