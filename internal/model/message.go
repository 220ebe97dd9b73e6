package model

import (
	"database/sql"

	"gorm.io/gorm"
)

// Message belongs to exactly one Chat. Append-only; only IsRead/ReadAt are
// ever mutated. CreatedAt is the ordering key within a chat.
type Message struct {
	gorm.Model

	// Uuid is a snowflake id, unique across instances.
	Uuid int64 `gorm:"column:uuid;uniqueIndex;type:bigint;not null"`

	// ChatId references Chat.Uuid.
	ChatId string `gorm:"column:chat_id;index;type:char(36);not null"`

	// SenderType holds a sender_type_enum value.
	SenderType   string `gorm:"column:sender_type;type:varchar(16);not null"`
	SenderUserId string `gorm:"column:sender_user_id;type:char(36)"`
	DisplayName  string `gorm:"column:display_name;type:varchar(100)"`

	Content string `gorm:"column:content;type:TEXT"`

	IsRead bool         `gorm:"column:is_read;not null;default:false"`
	ReadAt sql.NullTime `gorm:"column:read_at"`

	// Metadata carries opaque attributes as JSON.
	Metadata string `gorm:"column:metadata;type:TEXT"`
}

func (Message) TableName() string {
	return "message"
}
