// Package chatflow owns chat and message persistence and the chat
// lifecycle state machine. State transitions happen here; reacting to them
// (socket emits, queue fallbacks) is the dispatcher's and gateway's job, so
// the lifecycle is testable without a live socket.
package chatflow

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	dao "edulead_chat_server/internal/dao/mysql/repository"
	myredis "edulead_chat_server/internal/dao/redis"
	"edulead_chat_server/internal/dto/request"
	"edulead_chat_server/internal/dto/respond"
	"edulead_chat_server/internal/model"
	"edulead_chat_server/pkg/constants"
	"edulead_chat_server/pkg/enum/chat/chat_status_enum"
	"edulead_chat_server/pkg/enum/message/sender_type_enum"
	"edulead_chat_server/pkg/errorx"
	"edulead_chat_server/pkg/util/snowflake"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier delivers an event to a single operator, live or queued.
// Implemented by notify.Dispatcher.
type Notifier interface {
	Deliver(ctx context.Context, targetUserId, event, actor string, payload any) (bool, error)
}

// RoomBroadcaster fans an event out to every connection in a chat room.
// Implemented by the socket gateway; injected after construction because
// the gateway also depends on this service.
type RoomBroadcaster interface {
	BroadcastToChat(ctx context.Context, chatId, event string, payload any) error
}

var nonTerminal = []string{chat_status_enum.PendingAcceptance, chat_status_enum.Active}

// Service is the chat lifecycle manager.
type Service struct {
	repos       *dao.Repositories
	cache       myredis.AsyncKVStore
	notifier    Notifier
	assigner    Assigner
	broadcaster RoomBroadcaster
	hours       Window
	now         func() time.Time
}

// NewService wires the lifecycle manager. now may be nil (time.Now).
func NewService(repos *dao.Repositories, cache myredis.AsyncKVStore, notifier Notifier, assigner Assigner, hours Window, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repos:    repos,
		cache:    cache,
		notifier: notifier,
		assigner: assigner,
		hours:    hours,
		now:      now,
	}
}

// SetBroadcaster injects the gateway once it exists.
func (s *Service) SetBroadcaster(b RoomBroadcaster) {
	s.broadcaster = b
}

// Initiate handles lead intake. Outside business hours it returns an
// offline result and creates nothing. A student with an existing
// non-terminal chat gets that chat back unchanged, so retried intakes are
// idempotent. Otherwise a counsellor is assigned externally, the chat is
// created ACTIVE, and the assigned counsellor plus all supervisors are
// notified asynchronously.
func (s *Service) Initiate(ctx context.Context, req request.InitChatRequest) (*respond.InitChatRespond, error) {
	if !s.hours.Contains(s.now()) {
		return &respond.InitChatRespond{IsOffline: true}, nil
	}

	studentId := req.StudentId
	if studentId == "" {
		studentId = uuid.NewString()
	}

	// Two racing intakes for one student must not both pass the
	// existing-chat check and each create a chat. The loser re-reads: the
	// winner's chat is the authoritative one.
	lockKey := "chat_init_lock_" + studentId
	locked, err := s.cache.SetNX(ctx, lockKey, "1", 10*time.Second)
	switch {
	case err != nil:
		// A cache outage must not block intake; accept the narrow race.
		zap.L().Warn("intake lock unavailable",
			zap.String("studentId", studentId), zap.Error(err))
	case !locked:
		if existing, err := s.repos.Chat.FindActiveByStudentId(studentId); err == nil {
			return &respond.InitChatRespond{
				ChatId:       existing.Uuid,
				CounsellorId: existing.CounsellorId,
				Status:       existing.Status,
				Existing:     true,
			}, nil
		}
		return nil, errorx.ErrServerBusy
	default:
		defer func() {
			if err := s.cache.Delete(ctx, lockKey); err != nil {
				zap.L().Warn("intake lock release failed",
					zap.String("studentId", studentId), zap.Error(err))
			}
		}()
	}

	existing, err := s.repos.Chat.FindActiveByStudentId(studentId)
	if err == nil {
		return &respond.InitChatRespond{
			ChatId:       existing.Uuid,
			CounsellorId: existing.CounsellorId,
			Status:       existing.Status,
			Existing:     true,
		}, nil
	}
	if errorx.GetCode(err) != errorx.CodeNotFound {
		zap.L().Error("lookup existing chat failed",
			zap.String("studentId", studentId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}

	counsellorId, err := s.assigner.AssignCounsellor(ctx, Lead{
		StudentId:    studentId,
		StudentName:  req.StudentName,
		StudentPhone: req.StudentPhone,
	})
	if err != nil {
		zap.L().Error("counsellor assignment failed",
			zap.String("studentId", studentId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}

	platform := ""
	if len(req.PlatformDetails) > 0 {
		if data, err := json.Marshal(req.PlatformDetails); err == nil {
			platform = string(data)
		}
	}

	chat := model.Chat{
		Uuid:                   uuid.NewString(),
		StudentId:              studentId,
		StudentName:            req.StudentName,
		StudentPhone:           req.StudentPhone,
		CounsellorId:           counsellorId,
		Status:                 chat_status_enum.Active,
		StudentPlatformDetails: platform,
	}
	if err := s.repos.Chat.Create(&chat); err != nil {
		zap.L().Error("create chat failed",
			zap.String("studentId", studentId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}

	// Notification failures never fail intake; the dispatcher absorbs
	// them into the durable queue.
	go s.notifyNewLead(chat)

	zap.L().Info("chat created",
		zap.String("chatId", chat.Uuid),
		zap.String("studentId", studentId),
		zap.String("counsellorId", counsellorId),
	)

	return &respond.InitChatRespond{
		ChatId:       chat.Uuid,
		CounsellorId: counsellorId,
		Status:       chat.Status,
	}, nil
}

func (s *Service) notifyNewLead(chat model.Chat) {
	ctx := context.Background()
	payload := chatToRespond(&chat)

	if _, err := s.notifier.Deliver(ctx, chat.CounsellorId, "new_lead", chat.StudentId, payload); err != nil {
		zap.L().Error("notify counsellor failed",
			zap.String("chatId", chat.Uuid), zap.Error(err))
	}
	supervisors, err := s.repos.Counsellor.FindByRole("supervisor")
	if err != nil {
		zap.L().Error("list supervisors failed", zap.Error(err))
		return
	}
	for _, sup := range supervisors {
		if _, err := s.notifier.Deliver(ctx, sup.Uuid, "chat_created", chat.StudentId, payload); err != nil {
			zap.L().Error("notify supervisor failed",
				zap.String("supervisorId", sup.Uuid), zap.Error(err))
		}
	}
}

// AddMessage appends a message. The insert and the counterpart's
// unread-counter increment run in one transaction, so concurrent senders
// cannot lose an update. Human writes to a terminal chat are rejected;
// System appends are allowed as audit trail and never reopen the chat.
func (s *Service) AddMessage(ctx context.Context, req request.SendMessageRequest) (*respond.MessageRespond, error) {
	chat, err := s.repos.Chat.FindByUuid(req.ChatId)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return nil, errorx.Newf(errorx.CodeNotFound, "chat %s not found", req.ChatId)
		}
		zap.L().Error("find chat failed", zap.String("chatId", req.ChatId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}

	terminal := chat_status_enum.IsTerminal(chat.Status)
	if terminal && req.SenderType != sender_type_enum.System {
		return nil, errorx.ErrChatClosed
	}

	message := model.Message{
		Uuid:         snowflake.GenerateID(),
		ChatId:       chat.Uuid,
		SenderType:   req.SenderType,
		SenderUserId: req.SenderId,
		DisplayName:  req.SenderName,
		Content:      req.Content,
	}

	// Student messages count against the counsellor and vice versa;
	// System messages count against nobody, and audit appends on a
	// closed chat leave the counters alone entirely.
	counterColumn := ""
	if !terminal {
		switch {
		case req.SenderType == sender_type_enum.Student:
			counterColumn = "unread_count_counsellor"
		case sender_type_enum.IsOperatorSide(req.SenderType):
			counterColumn = "unread_count_student"
		}
	}

	err = s.repos.Transaction(func(tx *dao.Repositories) error {
		if err := tx.Message.Create(&message); err != nil {
			return err
		}
		return tx.Chat.ApplyMessage(chat.Uuid, req.Content, s.now(), counterColumn)
	})
	if err != nil {
		// Rolled back atomically; the sender retries, the server does
		// not.
		zap.L().Error("message transaction failed",
			zap.String("chatId", chat.Uuid), zap.Error(err))
		return nil, errorx.Wrap(err, errorx.CodeDBError, "message persistence failed")
	}

	rsp := messageToRespond(&message)

	// React to the committed transition: room broadcast for everyone in
	// the chat, dispatcher delivery for the counsellor (durable when
	// offline) and supervisors. All of it is fire-and-forget relative to
	// the sender's acknowledgement.
	go s.afterMessage(chat, rsp)

	s.invalidateHistoryCache(chat.Uuid)

	return rsp, nil
}

func (s *Service) afterMessage(chat *model.Chat, rsp *respond.MessageRespond) {
	ctx := context.Background()

	if s.broadcaster != nil {
		if err := s.broadcaster.BroadcastToChat(ctx, chat.Uuid, "new_message", rsp); err != nil {
			zap.L().Warn("room broadcast failed",
				zap.String("chatId", chat.Uuid), zap.Error(err))
		}
	}

	// The student side has no durable queue; the room broadcast above is
	// its delivery path. The operator side goes through the dispatcher
	// so an offline counsellor finds the message waiting.
	if rsp.SenderType == sender_type_enum.Student {
		if _, err := s.notifier.Deliver(ctx, chat.CounsellorId, "new_message", chat.StudentId, rsp); err != nil {
			zap.L().Error("notify counsellor failed",
				zap.String("chatId", chat.Uuid), zap.Error(err))
		}
	}

	supervisors, err := s.repos.Counsellor.FindByRole("supervisor")
	if err != nil {
		zap.L().Error("list supervisors failed", zap.Error(err))
		return
	}
	for _, sup := range supervisors {
		if sup.Uuid == rsp.SenderId {
			continue
		}
		if _, err := s.notifier.Deliver(ctx, sup.Uuid, "chat_updated", rsp.SenderId, rsp); err != nil {
			zap.L().Error("notify supervisor failed",
				zap.String("supervisorId", sup.Uuid), zap.Error(err))
		}
	}
}

// MarkRead marks the counterpart's unread messages read and zeroes the
// reader's own counter. Idempotent: a second call finds nothing unread.
func (s *Service) MarkRead(ctx context.Context, req request.MarkReadRequest) error {
	chat, err := s.repos.Chat.FindByUuid(req.ChatId)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return errorx.Newf(errorx.CodeNotFound, "chat %s not found", req.ChatId)
		}
		return errorx.ErrServerBusy
	}

	var senders []string
	var counterColumn string
	if req.UserType == sender_type_enum.Student {
		senders = []string{sender_type_enum.Counsellor, sender_type_enum.Operator, sender_type_enum.Admin, sender_type_enum.System}
		counterColumn = "unread_count_student"
	} else {
		senders = []string{sender_type_enum.Student}
		counterColumn = "unread_count_counsellor"
	}

	err = s.repos.Transaction(func(tx *dao.Repositories) error {
		if err := tx.Message.MarkReadBySenders(chat.Uuid, senders, s.now()); err != nil {
			return err
		}
		return tx.Chat.ResetUnread(chat.Uuid, counterColumn)
	})
	if err != nil {
		zap.L().Error("mark read failed", zap.String("chatId", chat.Uuid), zap.Error(err))
		return errorx.ErrServerBusy
	}

	if s.broadcaster != nil {
		_ = s.broadcaster.BroadcastToChat(ctx, chat.Uuid, "messages_read", map[string]string{
			"chatId":     chat.Uuid,
			"readerType": req.UserType,
		})
	}
	s.invalidateHistoryCache(chat.Uuid)
	return nil
}

// Close moves the chat into a terminal state. Terminal states are final: a
// second close is rejected as a no-op. Closure is broadcast to every chat
// participant and dispatched to the owning counsellor and supervisors.
func (s *Service) Close(ctx context.Context, chatId string, req request.CloseChatRequest) error {
	status := closeStatusFor(req.Role)

	rows, err := s.repos.Chat.Close(chatId, status, req.OperatorId, req.Reason, nonTerminal)
	if err != nil {
		zap.L().Error("close chat failed", zap.String("chatId", chatId), zap.Error(err))
		return errorx.ErrServerBusy
	}
	if rows == 0 {
		// Either the chat does not exist or it is already terminal.
		if _, err := s.repos.Chat.FindByUuid(chatId); err != nil {
			return errorx.Newf(errorx.CodeNotFound, "chat %s not found", chatId)
		}
		return errorx.ErrChatClosed
	}

	// Audit message; allowed on the now-terminal chat as a System append.
	if _, err := s.AddMessage(ctx, request.SendMessageRequest{
		ChatId:     chatId,
		Content:    "Chat closed: " + req.Reason,
		SenderType: sender_type_enum.System,
		SenderId:   req.OperatorId,
	}); err != nil {
		zap.L().Warn("close audit message failed", zap.String("chatId", chatId), zap.Error(err))
	}

	chat, err := s.repos.Chat.FindByUuid(chatId)
	if err != nil {
		return nil // closed; notification best-effort only
	}
	payload := chatToRespond(chat)

	if s.broadcaster != nil {
		_ = s.broadcaster.BroadcastToChat(ctx, chatId, "chat_closed", payload)
	}
	go func() {
		bg := context.Background()
		if _, err := s.notifier.Deliver(bg, chat.CounsellorId, "chat_closed", req.OperatorId, payload); err != nil {
			zap.L().Error("notify close failed", zap.String("chatId", chatId), zap.Error(err))
		}
		supervisors, err := s.repos.Counsellor.FindByRole("supervisor")
		if err != nil {
			return
		}
		for _, sup := range supervisors {
			_, _ = s.notifier.Deliver(bg, sup.Uuid, "chat_closed", req.OperatorId, payload)
		}
	}()

	s.invalidateHistoryCache(chatId)

	zap.L().Info("chat closed",
		zap.String("chatId", chatId),
		zap.String("status", status),
		zap.String("closedBy", req.OperatorId),
	)
	return nil
}

func closeStatusFor(role string) string {
	switch role {
	case sender_type_enum.Student:
		return chat_status_enum.ClosedByStudent
	case sender_type_enum.Counsellor, sender_type_enum.Operator, sender_type_enum.Admin:
		return chat_status_enum.ClosedByCounsellor
	case sender_type_enum.System:
		return chat_status_enum.AutoClosed
	}
	return chat_status_enum.Closed
}

// History returns a chat's messages in creation order, cache-aside.
func (s *Service) History(ctx context.Context, chatId string) ([]respond.MessageRespond, error) {
	cacheKey := "chat_history_" + chatId

	if cached, err := s.cache.Get(ctx, cacheKey); err == nil && cached != "" {
		var rsp []respond.MessageRespond
		if err := json.Unmarshal([]byte(cached), &rsp); err == nil {
			return rsp, nil
		}
		zap.L().Error("unmarshal history cache failed", zap.Error(err))
	}

	if _, err := s.repos.Chat.FindByUuid(chatId); err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return nil, errorx.Newf(errorx.CodeNotFound, "chat %s not found", chatId)
		}
		return nil, errorx.ErrServerBusy
	}

	messages, err := s.repos.Message.FindByChatId(chatId)
	if err != nil {
		zap.L().Error("load history failed", zap.String("chatId", chatId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}

	rsp := make([]respond.MessageRespond, 0, len(messages))
	for i := range messages {
		rsp = append(rsp, *messageToRespond(&messages[i]))
	}

	s.cache.SubmitTask(func() {
		if data, err := json.Marshal(rsp); err == nil {
			_ = s.cache.Set(context.Background(), cacheKey, string(data), time.Minute*constants.REDIS_TIMEOUT)
		}
	})

	return rsp, nil
}

// UnreadCount totals a counsellor's unread messages across open chats.
func (s *Service) UnreadCount(ctx context.Context, counsellorId string) (*respond.UnreadCountRespond, error) {
	total, err := s.repos.Chat.SumUnreadForCounsellor(counsellorId, nonTerminal)
	if err != nil {
		zap.L().Error("unread count failed", zap.String("counsellorId", counsellorId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	return &respond.UnreadCountRespond{CounsellorId: counsellorId, Unread: total}, nil
}

func (s *Service) invalidateHistoryCache(chatId string) {
	s.cache.SubmitTask(func() {
		_ = s.cache.Delete(context.Background(), "chat_history_"+chatId)
	})
}

func chatToRespond(chat *model.Chat) *respond.ChatRespond {
	rsp := &respond.ChatRespond{
		ChatId:                chat.Uuid,
		StudentId:             chat.StudentId,
		StudentName:           chat.StudentName,
		StudentPhone:          chat.StudentPhone,
		CounsellorId:          chat.CounsellorId,
		Status:                chat.Status,
		LastMessage:           chat.LastMessage,
		UnreadCountStudent:    chat.UnreadCountStudent,
		UnreadCountCounsellor: chat.UnreadCountCounsellor,
		ClosedBy:              chat.ClosedBy,
		ClosedReason:          chat.ClosedReason,
	}
	if chat.LastMessageAt.Valid {
		rsp.LastMessageAt = chat.LastMessageAt.Time.Format("2006-01-02 15:04:05")
	}
	return rsp
}

func messageToRespond(message *model.Message) *respond.MessageRespond {
	createdAt := message.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &respond.MessageRespond{
		Id:          strconv.FormatInt(message.Uuid, 10),
		ChatId:      message.ChatId,
		Content:     message.Content,
		SenderType:  message.SenderType,
		SenderId:    message.SenderUserId,
		SenderName:  message.DisplayName,
		CreatedAt:   createdAt.Format("2006-01-02 15:04:05"),
		IsDelivered: true,
		IsRead:      message.IsRead,
	}
}
