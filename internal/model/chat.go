// Package model defines the persistent entities.
package model

import (
	"database/sql"

	"gorm.io/gorm"
)

// Chat is one conversation thread between a student and the consultancy.
// At most one non-terminal chat exists per student; new leads reuse it.
// Chats are closed, never physically deleted.
type Chat struct {
	gorm.Model

	// Uuid is the opaque chat identifier handed to clients.
	Uuid string `gorm:"column:uuid;uniqueIndex;type:char(36);not null"`

	// StudentId identifies the website visitor. Denormalized contact
	// fields avoid a join on every dashboard listing.
	StudentId    string `gorm:"column:student_id;index;type:char(36);not null"`
	StudentName  string `gorm:"column:student_name;type:varchar(100)"`
	StudentPhone string `gorm:"column:student_phone;type:varchar(20)"`

	// CounsellorId is the owning operator assigned at intake.
	CounsellorId string `gorm:"column:counsellor_id;index;type:char(36);not null"`

	// Status holds a chat_status_enum value. Terminal states are final.
	Status string `gorm:"column:status;index;type:varchar(24);not null"`

	// Denormalized last-message fields for conversation list ordering.
	LastMessage   string       `gorm:"column:last_message;type:TEXT"`
	LastMessageAt sql.NullTime `gorm:"column:last_message_at;type:datetime"`

	// Per-side unread counters, incremented atomically with the message
	// insert they account for.
	UnreadCountStudent    int `gorm:"column:unread_count_student;not null;default:0"`
	UnreadCountCounsellor int `gorm:"column:unread_count_counsellor;not null;default:0"`

	ClosedBy     string `gorm:"column:closed_by;type:varchar(36)"`
	ClosedReason string `gorm:"column:closed_reason;type:varchar(255)"`

	// StudentPlatformDetails carries opaque client attributes (browser,
	// referrer, utm tags) as JSON.
	StudentPlatformDetails string `gorm:"column:student_platform_details;type:TEXT"`
}

func (Chat) TableName() string {
	return "chat"
}
