package model

import "gorm.io/gorm"

// Counsellor is an operator account. The lead-intake assignment algorithm
// lives in an external service; this table only backs dashboard login and
// display names.
type Counsellor struct {
	gorm.Model

	Uuid     string `gorm:"column:uuid;uniqueIndex;type:char(36);not null"`
	Name     string `gorm:"column:name;type:varchar(100);not null"`
	Email    string `gorm:"column:email;uniqueIndex;type:varchar(100);not null"`
	Password string `gorm:"column:password;type:varchar(100);not null"` // bcrypt hash

	// Role is "counsellor" or "supervisor". Supervisors additionally join
	// the shared supervisors room on the gateway.
	Role string `gorm:"column:role;type:varchar(16);not null;default:counsellor"`
}

func (Counsellor) TableName() string {
	return "counsellor"
}
