package chatflow

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	dao "edulead_chat_server/internal/dao/mysql/repository"
	myredis "edulead_chat_server/internal/dao/redis"
	"edulead_chat_server/internal/dto/request"
	"edulead_chat_server/internal/model"
	"edulead_chat_server/pkg/enum/chat/chat_status_enum"
	"edulead_chat_server/pkg/enum/message/sender_type_enum"
	"edulead_chat_server/pkg/errorx"
	"edulead_chat_server/pkg/util/snowflake"
)

// --- in-memory repositories ---

type fakeChatRepo struct {
	mu    sync.Mutex
	chats map[string]*model.Chat
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{chats: make(map[string]*model.Chat)}
}

func (r *fakeChatRepo) FindByUuid(uuid string) (*model.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[uuid]
	if !ok {
		return nil, errorx.Newf(errorx.CodeNotFound, "chat %s not found", uuid)
	}
	copied := *chat
	return &copied, nil
}

func (r *fakeChatRepo) FindActiveByStudentId(studentId string) (*model.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, chat := range r.chats {
		if chat.StudentId == studentId && !chat_status_enum.IsTerminal(chat.Status) {
			copied := *chat
			return &copied, nil
		}
	}
	return nil, errorx.Newf(errorx.CodeNotFound, "no open chat for student %s", studentId)
}

func (r *fakeChatRepo) Create(chat *model.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *chat
	r.chats[chat.Uuid] = &copied
	return nil
}

func (r *fakeChatRepo) ApplyMessage(chatUuid, lastMessage string, at time.Time, counterColumn string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[chatUuid]
	if !ok {
		return errorx.Newf(errorx.CodeNotFound, "chat %s not found", chatUuid)
	}
	chat.LastMessage = lastMessage
	chat.LastMessageAt = sql.NullTime{Time: at, Valid: true}
	switch counterColumn {
	case "unread_count_counsellor":
		chat.UnreadCountCounsellor++
	case "unread_count_student":
		chat.UnreadCountStudent++
	}
	return nil
}

func (r *fakeChatRepo) ResetUnread(chatUuid, counterColumn string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[chatUuid]
	if !ok {
		return errorx.Newf(errorx.CodeNotFound, "chat %s not found", chatUuid)
	}
	switch counterColumn {
	case "unread_count_counsellor":
		chat.UnreadCountCounsellor = 0
	case "unread_count_student":
		chat.UnreadCountStudent = 0
	}
	return nil
}

func (r *fakeChatRepo) Close(chatUuid, status, closedBy, reason string, nonTerminal []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[chatUuid]
	if !ok {
		return 0, nil
	}
	open := false
	for _, s := range nonTerminal {
		if chat.Status == s {
			open = true
			break
		}
	}
	if !open {
		return 0, nil
	}
	chat.Status = status
	chat.ClosedBy = closedBy
	chat.ClosedReason = reason
	return 1, nil
}

func (r *fakeChatRepo) SumUnreadForCounsellor(counsellorId string, nonTerminal []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, chat := range r.chats {
		if chat.CounsellorId != counsellorId {
			continue
		}
		for _, s := range nonTerminal {
			if chat.Status == s {
				total += int64(chat.UnreadCountCounsellor)
				break
			}
		}
	}
	return total, nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []model.Message
}

func (r *fakeMessageRepo) Create(message *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	message.CreatedAt = time.Now()
	r.messages = append(r.messages, *message)
	return nil
}

func (r *fakeMessageRepo) FindByChatId(chatUuid string) ([]model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Message
	for _, m := range r.messages {
		if m.ChatId == chatUuid {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) MarkReadBySenders(chatUuid string, senderTypes []string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.messages {
		m := &r.messages[i]
		if m.ChatId != chatUuid || m.IsRead {
			continue
		}
		for _, st := range senderTypes {
			if m.SenderType == st {
				m.IsRead = true
				m.ReadAt = sql.NullTime{Time: at, Valid: true}
				break
			}
		}
	}
	return nil
}

func (r *fakeMessageRepo) CountUnreadBySenders(chatUuid string, senderTypes []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, m := range r.messages {
		if m.ChatId != chatUuid || m.IsRead {
			continue
		}
		for _, st := range senderTypes {
			if m.SenderType == st {
				count++
				break
			}
		}
	}
	return count, nil
}

type fakeCounsellorRepo struct {
	counsellors []model.Counsellor
}

func (r *fakeCounsellorRepo) FindByUuid(uuid string) (*model.Counsellor, error) {
	for i := range r.counsellors {
		if r.counsellors[i].Uuid == uuid {
			return &r.counsellors[i], nil
		}
	}
	return nil, errorx.Newf(errorx.CodeNotFound, "counsellor %s not found", uuid)
}

func (r *fakeCounsellorRepo) FindByEmail(email string) (*model.Counsellor, error) {
	for i := range r.counsellors {
		if r.counsellors[i].Email == email {
			return &r.counsellors[i], nil
		}
	}
	return nil, errorx.Newf(errorx.CodeNotFound, "counsellor %s not found", email)
}

func (r *fakeCounsellorRepo) FindByRole(role string) ([]model.Counsellor, error) {
	var out []model.Counsellor
	for _, c := range r.counsellors {
		if c.Role == role {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCounsellorRepo) Create(counsellor *model.Counsellor) error {
	r.counsellors = append(r.counsellors, *counsellor)
	return nil
}

// --- collaborators ---

type fakeNotifier struct {
	mu        sync.Mutex
	delivered []string // "target/event"
}

func (f *fakeNotifier) Deliver(ctx context.Context, targetUserId, event, actor string, payload any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, targetUserId+"/"+event)
	return true, nil
}

type fakeAssigner struct {
	counsellorId string
	calls        int
}

func (f *fakeAssigner) AssignCounsellor(ctx context.Context, lead Lead) (string, error) {
	f.calls++
	return f.counsellorId, nil
}

func newTestService(t *testing.T, now func() time.Time) (*Service, *fakeChatRepo, *fakeMessageRepo, *fakeAssigner) {
	t.Helper()
	snowflake.Init(1)
	chatRepo := newFakeChatRepo()
	messageRepo := &fakeMessageRepo{}
	repos := &dao.Repositories{
		Chat:       chatRepo,
		Message:    messageRepo,
		Counsellor: &fakeCounsellorRepo{},
	}
	assigner := &fakeAssigner{counsellorId: "couns-1"}
	svc := NewService(repos, myredis.NewMemoryStore(), &fakeNotifier{}, assigner, NewWindow(9, 24), now)
	return svc, chatRepo, messageRepo, assigner
}

func insideHours() time.Time {
	return time.Date(2026, 3, 2, 14, 0, 0, 0, time.Local)
}

func outsideHours() time.Time {
	return time.Date(2026, 3, 2, 3, 0, 0, 0, time.Local)
}

// --- tests ---

func TestInitiateOutsideBusinessHours(t *testing.T) {
	svc, chatRepo, _, assigner := newTestService(t, outsideHours)

	rsp, err := svc.Initiate(context.Background(), request.InitChatRequest{
		StudentId: "stu-1", StudentName: "Amar", StudentPhone: "99999",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !rsp.IsOffline {
		t.Fatal("intake at 03:00 must report offline")
	}
	if rsp.ChatId != "" {
		t.Fatal("offline intake must not create a chat")
	}
	if len(chatRepo.chats) != 0 {
		t.Fatal("offline intake persisted a chat")
	}
	if assigner.calls != 0 {
		t.Fatal("offline intake must not call the assigner")
	}
}

func TestInitiateCreatesActiveChat(t *testing.T) {
	svc, chatRepo, _, _ := newTestService(t, insideHours)

	rsp, err := svc.Initiate(context.Background(), request.InitChatRequest{
		StudentId: "stu-1", StudentName: "Amar", StudentPhone: "99999",
	})
	if err != nil {
		t.Fatal(err)
	}
	if rsp.IsOffline || rsp.ChatId == "" {
		t.Fatalf("expected a created chat, got %+v", rsp)
	}
	if rsp.CounsellorId != "couns-1" {
		t.Fatalf("assigned counsellor lost: %+v", rsp)
	}
	chat := chatRepo.chats[rsp.ChatId]
	if chat == nil || chat.Status != chat_status_enum.Active {
		t.Fatalf("chat must be stored ACTIVE, got %+v", chat)
	}
}

func TestInitiateIsIdempotentPerStudent(t *testing.T) {
	svc, chatRepo, _, assigner := newTestService(t, insideHours)
	ctx := context.Background()

	first, err := svc.Initiate(ctx, request.InitChatRequest{
		StudentId: "stu-1", StudentName: "Amar", StudentPhone: "99999",
	})
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Initiate(ctx, request.InitChatRequest{
		StudentId: "stu-1", StudentName: "Amar", StudentPhone: "99999",
	})
	if err != nil {
		t.Fatal(err)
	}

	if second.ChatId != first.ChatId {
		t.Fatalf("retried intake must reuse the open chat: %s vs %s", first.ChatId, second.ChatId)
	}
	if !second.Existing {
		t.Fatal("reused chat must be flagged as existing")
	}
	if len(chatRepo.chats) != 1 {
		t.Fatalf("expected exactly one chat, got %d", len(chatRepo.chats))
	}
	if assigner.calls != 1 {
		t.Fatalf("assigner must run once, ran %d times", assigner.calls)
	}
}

func TestInitiateConcurrentIntakeGuard(t *testing.T) {
	snowflake.Init(1)
	chatRepo := newFakeChatRepo()
	repos := &dao.Repositories{
		Chat:       chatRepo,
		Message:    &fakeMessageRepo{},
		Counsellor: &fakeCounsellorRepo{},
	}
	store := myredis.NewMemoryStore()
	assigner := &fakeAssigner{counsellorId: "couns-1"}
	svc := NewService(repos, store, &fakeNotifier{}, assigner, NewWindow(9, 24), insideHours)
	ctx := context.Background()

	// Another intake for this student holds the lock and has not
	// committed its chat yet.
	if ok, err := store.SetNX(ctx, "chat_init_lock_stu-1", "1", time.Minute); err != nil || !ok {
		t.Fatalf("seed lock: ok=%v err=%v", ok, err)
	}

	_, err := svc.Initiate(ctx, request.InitChatRequest{
		StudentId: "stu-1", StudentName: "Amar", StudentPhone: "99999",
	})
	if errorx.GetCode(err) != errorx.CodeServerBusy {
		t.Fatalf("blocked intake must report busy, got %v", err)
	}
	if len(chatRepo.chats) != 0 {
		t.Fatal("blocked intake must not create a chat")
	}
	if assigner.calls != 0 {
		t.Fatal("blocked intake must not call the assigner")
	}

	// Once the winner commits, the loser's retry gets that chat back.
	if err := chatRepo.Create(&model.Chat{
		Uuid: "chat-1", StudentId: "stu-1", CounsellorId: "couns-2",
		Status: chat_status_enum.Active,
	}); err != nil {
		t.Fatal(err)
	}
	rsp, err := svc.Initiate(ctx, request.InitChatRequest{StudentId: "stu-1"})
	if err != nil {
		t.Fatal(err)
	}
	if !rsp.Existing || rsp.ChatId != "chat-1" {
		t.Fatalf("retry must receive the committed chat, got %+v", rsp)
	}
}

func TestAddMessageIncrementsCounterpartUnread(t *testing.T) {
	svc, chatRepo, messageRepo, _ := newTestService(t, insideHours)
	ctx := context.Background()

	rsp, err := svc.Initiate(ctx, request.InitChatRequest{
		StudentId: "stu-1", StudentName: "Amar", StudentPhone: "99999",
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.AddMessage(ctx, request.SendMessageRequest{
		ChatId: rsp.ChatId, Content: "hello", SenderType: sender_type_enum.Student, SenderId: "stu-1",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddMessage(ctx, request.SendMessageRequest{
		ChatId: rsp.ChatId, Content: "hi there", SenderType: sender_type_enum.Counsellor, SenderId: "couns-1",
	}); err != nil {
		t.Fatal(err)
	}

	chat := chatRepo.chats[rsp.ChatId]
	if chat.UnreadCountCounsellor != 1 {
		t.Fatalf("student message must count against counsellor, got %d", chat.UnreadCountCounsellor)
	}
	if chat.UnreadCountStudent != 1 {
		t.Fatalf("counsellor message must count against student, got %d", chat.UnreadCountStudent)
	}
	if chat.LastMessage != "hi there" {
		t.Fatalf("last message not updated: %q", chat.LastMessage)
	}
	if len(messageRepo.messages) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(messageRepo.messages))
	}
}

func TestAddMessageRejectedOnClosedChat(t *testing.T) {
	svc, _, messageRepo, _ := newTestService(t, insideHours)
	ctx := context.Background()

	rsp, _ := svc.Initiate(ctx, request.InitChatRequest{
		StudentId: "stu-1", StudentName: "Amar", StudentPhone: "99999",
	})
	if err := svc.Close(ctx, rsp.ChatId, request.CloseChatRequest{
		OperatorId: "couns-1", Role: sender_type_enum.Counsellor, Reason: "resolved",
	}); err != nil {
		t.Fatal(err)
	}

	_, err := svc.AddMessage(ctx, request.SendMessageRequest{
		ChatId: rsp.ChatId, Content: "too late", SenderType: sender_type_enum.Student, SenderId: "stu-1",
	})
	if errorx.GetCode(err) != errorx.CodeChatClosed {
		t.Fatalf("human write to closed chat must fail with chat-closed, got %v", err)
	}

	// System appends remain allowed for the audit trail.
	before := len(messageRepo.messages)
	if _, err := svc.AddMessage(ctx, request.SendMessageRequest{
		ChatId: rsp.ChatId, Content: "archived", SenderType: sender_type_enum.System,
	}); err != nil {
		t.Fatalf("system append on closed chat must succeed: %v", err)
	}
	if len(messageRepo.messages) != before+1 {
		t.Fatal("system append not persisted")
	}
}

func TestCloseIsTerminalAndFinal(t *testing.T) {
	svc, chatRepo, _, _ := newTestService(t, insideHours)
	ctx := context.Background()

	rsp, _ := svc.Initiate(ctx, request.InitChatRequest{
		StudentId: "stu-1", StudentName: "Amar", StudentPhone: "99999",
	})

	if err := svc.Close(ctx, rsp.ChatId, request.CloseChatRequest{
		OperatorId: "stu-1", Role: sender_type_enum.Student, Reason: "done",
	}); err != nil {
		t.Fatal(err)
	}
	chat := chatRepo.chats[rsp.ChatId]
	if chat.Status != chat_status_enum.ClosedByStudent {
		t.Fatalf("student close must yield CLOSED_BY_STUDENT, got %s", chat.Status)
	}

	// A second close is a no-op on an already terminal chat.
	err := svc.Close(ctx, rsp.ChatId, request.CloseChatRequest{
		OperatorId: "couns-1", Role: sender_type_enum.Counsellor, Reason: "again",
	})
	if errorx.GetCode(err) != errorx.CodeChatClosed {
		t.Fatalf("second close must report chat-closed, got %v", err)
	}
	if chatRepo.chats[rsp.ChatId].Status != chat_status_enum.ClosedByStudent {
		t.Fatal("second close must not change the terminal state")
	}
}

func TestCloseUnknownChat(t *testing.T) {
	svc, _, _, _ := newTestService(t, insideHours)

	err := svc.Close(context.Background(), "missing", request.CloseChatRequest{
		OperatorId: "couns-1", Role: sender_type_enum.Counsellor,
	})
	if errorx.GetCode(err) != errorx.CodeNotFound {
		t.Fatalf("closing an unknown chat must be not-found, got %v", err)
	}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	svc, chatRepo, messageRepo, _ := newTestService(t, insideHours)
	ctx := context.Background()

	rsp, _ := svc.Initiate(ctx, request.InitChatRequest{
		StudentId: "stu-1", StudentName: "Amar", StudentPhone: "99999",
	})
	for i := 0; i < 3; i++ {
		if _, err := svc.AddMessage(ctx, request.SendMessageRequest{
			ChatId: rsp.ChatId, Content: "msg", SenderType: sender_type_enum.Student, SenderId: "stu-1",
		}); err != nil {
			t.Fatal(err)
		}
	}

	req := request.MarkReadRequest{ChatId: rsp.ChatId, UserType: sender_type_enum.Counsellor}
	if err := svc.MarkRead(ctx, req); err != nil {
		t.Fatal(err)
	}
	if chatRepo.chats[rsp.ChatId].UnreadCountCounsellor != 0 {
		t.Fatal("counter must reset after mark read")
	}
	unread, _ := messageRepo.CountUnreadBySenders(rsp.ChatId, []string{sender_type_enum.Student})
	if unread != 0 {
		t.Fatalf("all student messages must be read, %d left", unread)
	}

	// Repeat finds nothing unread and succeeds.
	if err := svc.MarkRead(ctx, req); err != nil {
		t.Fatalf("repeated mark read must be a no-op, got %v", err)
	}
}

func TestUnreadCountSpansOpenChatsOnly(t *testing.T) {
	svc, _, _, _ := newTestService(t, insideHours)
	ctx := context.Background()

	open, _ := svc.Initiate(ctx, request.InitChatRequest{
		StudentId: "stu-1", StudentName: "Amar", StudentPhone: "99999",
	})
	closed, _ := svc.Initiate(ctx, request.InitChatRequest{
		StudentId: "stu-2", StudentName: "Priya", StudentPhone: "88888",
	})
	for _, chatId := range []string{open.ChatId, closed.ChatId} {
		if _, err := svc.AddMessage(ctx, request.SendMessageRequest{
			ChatId: chatId, Content: "hello", SenderType: sender_type_enum.Student,
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := svc.Close(ctx, closed.ChatId, request.CloseChatRequest{
		OperatorId: "couns-1", Role: sender_type_enum.Counsellor, Reason: "resolved",
	}); err != nil {
		t.Fatal(err)
	}

	rsp, err := svc.UnreadCount(ctx, "couns-1")
	if err != nil {
		t.Fatal(err)
	}
	if rsp.Unread != 1 {
		t.Fatalf("closed chats must not count, got %d", rsp.Unread)
	}
}

func TestHistoryReturnsCreationOrder(t *testing.T) {
	svc, _, _, _ := newTestService(t, insideHours)
	ctx := context.Background()

	rsp, _ := svc.Initiate(ctx, request.InitChatRequest{
		StudentId: "stu-1", StudentName: "Amar", StudentPhone: "99999",
	})
	contents := []string{"first", "second", "third"}
	for _, content := range contents {
		if _, err := svc.AddMessage(ctx, request.SendMessageRequest{
			ChatId: rsp.ChatId, Content: content, SenderType: sender_type_enum.Student,
		}); err != nil {
			t.Fatal(err)
		}
	}

	history, err := svc.History(ctx, rsp.ChatId)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(history))
	}
	for i, content := range contents {
		if history[i].Content != content {
			t.Fatalf("history out of order at %d: %q", i, history[i].Content)
		}
	}

	if _, err := svc.History(ctx, "missing"); errorx.GetCode(err) != errorx.CodeNotFound {
		t.Fatalf("history of unknown chat must be not-found, got %v", err)
	}
}
