package repository

import (
	"time"

	"edulead_chat_server/internal/model"
	"edulead_chat_server/pkg/enum/chat/chat_status_enum"

	"gorm.io/gorm"
)

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates the chat repository.
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) FindByUuid(uuid string) (*model.Chat, error) {
	var chat model.Chat
	if err := r.db.Where("uuid = ?", uuid).First(&chat).Error; err != nil {
		return nil, wrapDBErrorf(err, "find chat uuid=%s", uuid)
	}
	return &chat, nil
}

func (r *chatRepository) FindActiveByStudentId(studentId string) (*model.Chat, error) {
	var chat model.Chat
	err := r.db.Where("student_id = ? AND status IN ?", studentId, nonTerminalStatuses()).
		Order("created_at DESC").First(&chat).Error
	if err != nil {
		return nil, wrapDBErrorf(err, "find active chat student_id=%s", studentId)
	}
	return &chat, nil
}

func (r *chatRepository) Create(chat *model.Chat) error {
	if err := r.db.Create(chat).Error; err != nil {
		return wrapDBError(err, "create chat")
	}
	return nil
}

func (r *chatRepository) ApplyMessage(chatUuid, lastMessage string, at time.Time, counterColumn string) error {
	updates := map[string]interface{}{
		"last_message":    lastMessage,
		"last_message_at": at,
	}
	if counterColumn != "" {
		updates[counterColumn] = gorm.Expr(counterColumn+" + ?", 1)
	}
	if err := r.db.Model(&model.Chat{}).Where("uuid = ?", chatUuid).Updates(updates).Error; err != nil {
		return wrapDBErrorf(err, "apply message chat=%s", chatUuid)
	}
	return nil
}

func (r *chatRepository) ResetUnread(chatUuid, counterColumn string) error {
	if err := r.db.Model(&model.Chat{}).Where("uuid = ?", chatUuid).
		Update(counterColumn, 0).Error; err != nil {
		return wrapDBErrorf(err, "reset unread chat=%s", chatUuid)
	}
	return nil
}

func (r *chatRepository) Close(chatUuid, status, closedBy, reason string, nonTerminal []string) (int64, error) {
	res := r.db.Model(&model.Chat{}).
		Where("uuid = ? AND status IN ?", chatUuid, nonTerminal).
		Updates(map[string]interface{}{
			"status":        status,
			"closed_by":     closedBy,
			"closed_reason": reason,
		})
	if res.Error != nil {
		return 0, wrapDBErrorf(res.Error, "close chat=%s", chatUuid)
	}
	return res.RowsAffected, nil
}

func (r *chatRepository) SumUnreadForCounsellor(counsellorId string, nonTerminal []string) (int64, error) {
	var total int64
	err := r.db.Model(&model.Chat{}).
		Where("counsellor_id = ? AND status IN ?", counsellorId, nonTerminal).
		Select("COALESCE(SUM(unread_count_counsellor), 0)").Scan(&total).Error
	if err != nil {
		return 0, wrapDBErrorf(err, "sum unread counsellor=%s", counsellorId)
	}
	return total, nil
}

func nonTerminalStatuses() []string {
	return []string{chat_status_enum.PendingAcceptance, chat_status_enum.Active}
}
