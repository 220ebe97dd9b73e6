// Package sender_type_enum defines who authored a message.
package sender_type_enum

const (
	Student    = "Student"
	Operator   = "Operator"
	System     = "System"
	Counsellor = "Counsellor"
	Admin      = "Admin"
)

// IsOperatorSide reports whether the sender sits on the consultancy side of
// the conversation (anything that is not the student or the system).
func IsOperatorSide(senderType string) bool {
	switch senderType {
	case Operator, Counsellor, Admin:
		return true
	}
	return false
}
