// Package repository defines the data-access interfaces and their
// aggregate. Implementations live in the sibling files; services depend on
// the interfaces only.
package repository

import (
	"time"

	"edulead_chat_server/internal/model"

	"gorm.io/gorm"
)

// ChatRepository manages chat records.
type ChatRepository interface {
	// FindByUuid returns the chat with the given opaque id.
	FindByUuid(uuid string) (*model.Chat, error)
	// FindActiveByStudentId returns the student's non-terminal chat, if
	// any. At most one such chat exists per student.
	FindActiveByStudentId(studentId string) (*model.Chat, error)
	// Create inserts a new chat.
	Create(chat *model.Chat) error
	// ApplyMessage updates the denormalized last-message fields and
	// increments the unread counter named by counterColumn. Runs inside
	// the same transaction as the message insert.
	ApplyMessage(chatUuid, lastMessage string, at time.Time, counterColumn string) error
	// ResetUnread zeroes the unread counter named by counterColumn.
	ResetUnread(chatUuid, counterColumn string) error
	// Close moves the chat into a terminal state. The WHERE clause guards
	// against racing closes: only a currently non-terminal row is updated.
	Close(chatUuid, status, closedBy, reason string, nonTerminal []string) (int64, error)
	// SumUnreadForCounsellor totals unread_count_counsellor across the
	// counsellor's open chats.
	SumUnreadForCounsellor(counsellorId string, nonTerminal []string) (int64, error)
}

// MessageRepository manages the append-only message log.
type MessageRepository interface {
	// Create inserts a message.
	Create(message *model.Message) error
	// FindByChatId returns a chat's messages in creation order.
	FindByChatId(chatUuid string) ([]model.Message, error)
	// MarkReadBySenders flags unread messages from the given sender types
	// as read. Idempotent.
	MarkReadBySenders(chatUuid string, senderTypes []string, at time.Time) error
	// CountUnreadBySenders counts unread messages from the given sender
	// types.
	CountUnreadBySenders(chatUuid string, senderTypes []string) (int64, error)
}

// CounsellorRepository manages operator accounts.
type CounsellorRepository interface {
	FindByUuid(uuid string) (*model.Counsellor, error)
	FindByEmail(email string) (*model.Counsellor, error)
	// FindByRole lists operators with the given role; used to fan out
	// supervisor notifications.
	FindByRole(role string) ([]model.Counsellor, error)
	Create(counsellor *model.Counsellor) error
}

// Repositories aggregates all repository instances and is the injection
// point for the service layer.
type Repositories struct {
	db         *gorm.DB
	Chat       ChatRepository
	Message    MessageRepository
	Counsellor CounsellorRepository
}

// NewRepositories wires every repository to the given gorm handle.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:         db,
		Chat:       NewChatRepository(db),
		Message:    NewMessageRepository(db),
		Counsellor: NewCounsellorRepository(db),
	}
}

// Transaction runs fn against transaction-scoped repositories; any error
// rolls the whole unit back. An aggregate assembled without a database
// handle (in-memory fakes) runs the unit inline.
func (r *Repositories) Transaction(fn func(txRepos *Repositories) error) error {
	if r.db == nil {
		return fn(r)
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
