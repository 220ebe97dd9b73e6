package repository

import (
	"time"

	"edulead_chat_server/internal/model"

	"gorm.io/gorm"
)

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates the message repository.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(message *model.Message) error {
	if err := r.db.Create(message).Error; err != nil {
		return wrapDBError(err, "create message")
	}
	return nil
}

func (r *messageRepository) FindByChatId(chatUuid string) ([]model.Message, error) {
	var messages []model.Message
	// Secondary sort on id keeps messages created in the same instant in
	// insertion order.
	if err := r.db.Where("chat_id = ?", chatUuid).
		Order("created_at ASC, id ASC").Find(&messages).Error; err != nil {
		return nil, wrapDBErrorf(err, "find messages chat=%s", chatUuid)
	}
	return messages, nil
}

func (r *messageRepository) MarkReadBySenders(chatUuid string, senderTypes []string, at time.Time) error {
	err := r.db.Model(&model.Message{}).
		Where("chat_id = ? AND sender_type IN ? AND is_read = ?", chatUuid, senderTypes, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at}).Error
	if err != nil {
		return wrapDBErrorf(err, "mark read chat=%s", chatUuid)
	}
	return nil
}

func (r *messageRepository) CountUnreadBySenders(chatUuid string, senderTypes []string) (int64, error) {
	var count int64
	err := r.db.Model(&model.Message{}).
		Where("chat_id = ? AND sender_type IN ? AND is_read = ?", chatUuid, senderTypes, false).
		Count(&count).Error
	if err != nil {
		return 0, wrapDBErrorf(err, "count unread chat=%s", chatUuid)
	}
	return count, nil
}
