package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/atriumhq/atrium/internal/domain/attachment"
	"github.com/atriumhq/atrium/internal/errors"
	"github.com/atriumhq/atrium/internal/services/notifications"
	"github.com/atriumhq/atrium/internal/storage/memory"
)

func newTestService() (*Service, *memory.Store, *notifications.Service) {
	store := memory.New()
	notifier := notifications.New(store, nil, nil)
	return New(store, store, store, notifier, nil), store, notifier
}

func startConversation(t *testing.T, svc *Service, participants ...string) string {
	t.Helper()
	conv, err := svc.CreateConversation(context.Background(), "t1", "alice", CreateConversationInput{
		Subject:        "quarterly review",
		ParticipantIDs: participants,
	})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return conv.ID
}

func TestCreateConversationAddsOwner(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	convID := startConversation(t, svc, "bob", "carol")

	participants, err := svc.ListParticipants(ctx, "t1", "alice", convID)
	if err != nil {
		t.Fatalf("list participants: %v", err)
	}
	if len(participants) != 3 {
		t.Fatalf("expected 3 participants, got %d", len(participants))
	}
	for _, p := range participants {
		if p.UserID == "alice" && p.Role != "owner" {
			t.Fatalf("creator role = %q, want owner", p.Role)
		}
	}
}

func TestSendMessageFansOutDeliveriesAndNotifications(t *testing.T) {
	svc, store, notifier := newTestService()
	ctx := context.Background()

	convID := startConversation(t, svc, "bob", "carol")

	msg, err := svc.SendMessage(ctx, "t1", "alice", convID, SendMessageInput{Body: "hello all"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	deliveries, err := store.ListDeliveries(ctx, msg.ID)
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(deliveries) != 2 {
		t.Fatalf("expected deliveries for bob and carol, got %d", len(deliveries))
	}
	for _, d := range deliveries {
		if d.RecipientID == "alice" {
			t.Fatalf("sender must not receive a delivery")
		}
	}

	count, err := notifier.UnreadCount(ctx, "t1", "bob")
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 notification for bob, got %d", count)
	}
}

func TestSendMessageRejectsNonParticipant(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	convID := startConversation(t, svc, "bob")

	_, err := svc.SendMessage(ctx, "t1", "mallory", convID, SendMessageInput{Body: "hi"})
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestSendMessageRejectsCrossTenant(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	convID := startConversation(t, svc, "bob")

	_, err := svc.SendMessage(ctx, "t2", "alice", convID, SendMessageInput{Body: "hi"})
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeNotFound {
		t.Fatalf("expected not_found for foreign tenant, got %v", err)
	}
}

func TestSendMessageRejectsArchivedConversation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	convID := startConversation(t, svc, "bob")
	archived := true
	if _, err := svc.UpdateConversation(ctx, "t1", "alice", convID, UpdateConversationInput{Archived: &archived}); err != nil {
		t.Fatalf("archive: %v", err)
	}

	_, err := svc.SendMessage(ctx, "t1", "alice", convID, SendMessageInput{Body: "hi"})
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeInvalidInput {
		t.Fatalf("expected invalid_input for archived conversation, got %v", err)
	}
}

func TestThreading(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	convID := startConversation(t, svc, "bob")

	root, err := svc.SendMessage(ctx, "t1", "alice", convID, SendMessageInput{Body: "root"})
	if err != nil {
		t.Fatalf("send root: %v", err)
	}
	reply, err := svc.SendMessage(ctx, "t1", "bob", convID, SendMessageInput{Body: "reply", ParentID: &root.ID})
	if err != nil {
		t.Fatalf("send reply: %v", err)
	}

	// Nested replies are rejected.
	_, err = svc.SendMessage(ctx, "t1", "alice", convID, SendMessageInput{Body: "nested", ParentID: &reply.ID})
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeInvalidInput {
		t.Fatalf("expected invalid_input for nested reply, got %v", err)
	}

	// Thread fetch from the reply resolves to the root's thread.
	thread, err := svc.GetThread(ctx, "t1", "bob", reply.ID)
	if err != nil {
		t.Fatalf("get thread: %v", err)
	}
	if len(thread) != 2 || thread[0].ID != root.ID || thread[1].ID != reply.ID {
		t.Fatalf("unexpected thread: %#v", thread)
	}
}

func TestMarkReadRequiresDelivery(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	convID := startConversation(t, svc, "bob")
	msg, err := svc.SendMessage(ctx, "t1", "alice", convID, SendMessageInput{Body: "hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	d, err := svc.MarkRead(ctx, "t1", "bob", msg.ID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if d.ReadAt == nil {
		t.Fatalf("expected read timestamp")
	}

	// The sender has no delivery row.
	if _, err := svc.MarkRead(ctx, "t1", "alice", msg.ID); err == nil {
		t.Fatalf("expected error marking sender's own message read")
	}
}

func TestDeleteMessageSenderOnly(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	convID := startConversation(t, svc, "bob")
	msg, err := svc.SendMessage(ctx, "t1", "alice", convID, SendMessageInput{Body: "hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	err = svc.DeleteMessage(ctx, "t1", "bob", msg.ID)
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeForbidden {
		t.Fatalf("expected forbidden for non-sender, got %v", err)
	}

	if err := svc.DeleteMessage(ctx, "t1", "alice", msg.ID); err != nil {
		t.Fatalf("delete by sender: %v", err)
	}
	if _, err := svc.GetMessage(ctx, "t1", "alice", msg.ID); err == nil {
		t.Fatalf("expected deleted message hidden")
	}
}

func TestSendMessageAttachmentValidation(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	convID := startConversation(t, svc, "bob")

	pending, err := store.CreateAttachment(ctx, attachment.Attachment{
		TenantID: "t1", OwnerID: "alice", FileName: "report.pdf",
		ContentType: "application/pdf", SizeBytes: 100,
		ObjectKey: "tenants/t1/attachments/x/report.pdf", Status: attachment.StatusPending,
	})
	if err != nil {
		t.Fatalf("create attachment: %v", err)
	}

	_, err = svc.SendMessage(ctx, "t1", "alice", convID, SendMessageInput{AttachmentIDs: []string{pending.ID}})
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeInvalidInput {
		t.Fatalf("expected invalid_input for pending attachment, got %v", err)
	}

	pending.Status = attachment.StatusUploaded
	if _, err := store.UpdateAttachment(ctx, pending); err != nil {
		t.Fatalf("update attachment: %v", err)
	}

	msg, err := svc.SendMessage(ctx, "t1", "alice", convID, SendMessageInput{AttachmentIDs: []string{pending.ID}})
	if err != nil {
		t.Fatalf("send with attachment: %v", err)
	}
	if len(msg.AttachmentIDs) != 1 {
		t.Fatalf("expected attachment reference carried, got %v", msg.AttachmentIDs)
	}

	// Another user's attachment is invisible to the sender.
	foreign, err := store.CreateAttachment(ctx, attachment.Attachment{
		TenantID: "t1", OwnerID: "carol", FileName: "x", ContentType: "text/plain",
		SizeBytes: 1, ObjectKey: "k", Status: attachment.StatusUploaded,
	})
	if err != nil {
		t.Fatalf("create attachment: %v", err)
	}
	_, err = svc.SendMessage(ctx, "t1", "alice", convID, SendMessageInput{AttachmentIDs: []string{foreign.ID}})
	se = errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeNotFound {
		t.Fatalf("expected not_found for foreign attachment, got %v", err)
	}
}

func TestParticipantManagement(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	convID := startConversation(t, svc, "bob")

	// Members cannot add participants.
	_, err := svc.AddParticipant(ctx, "t1", "bob", convID, "carol", "member")
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeForbidden {
		t.Fatalf("expected forbidden for member add, got %v", err)
	}

	if _, err := svc.AddParticipant(ctx, "t1", "alice", convID, "carol", "member"); err != nil {
		t.Fatalf("owner add: %v", err)
	}

	// Members can leave but not remove others.
	if err := svc.RemoveParticipant(ctx, "t1", "bob", convID, "carol"); err == nil {
		t.Fatalf("expected forbidden for member removing another")
	}
	if err := svc.RemoveParticipant(ctx, "t1", "bob", convID, "bob"); err != nil {
		t.Fatalf("self-leave: %v", err)
	}

	participants, err := svc.ListParticipants(ctx, "t1", "alice", convID)
	if err != nil {
		t.Fatalf("list participants: %v", err)
	}
	if len(participants) != 2 {
		t.Fatalf("expected alice and carol, got %d", len(participants))
	}
}

func TestListMessagesPaging(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	convID := startConversation(t, svc, "bob")
	for _, body := range []string{"one", "two", "three"} {
		if _, err := svc.SendMessage(ctx, "t1", "alice", convID, SendMessageInput{Body: body}); err != nil {
			t.Fatalf("send: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	page, err := svc.ListMessages(ctx, "t1", "bob", convID, time.Time{}, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].Body != "three" || page[1].Body != "two" {
		t.Fatalf("unexpected first page: %#v", page)
	}

	rest, err := svc.ListMessages(ctx, "t1", "bob", convID, page[1].CreatedAt, 2)
	if err != nil {
		t.Fatalf("list rest: %v", err)
	}
	if len(rest) != 1 || rest[0].Body != "one" {
		t.Fatalf("unexpected second page: %#v", rest)
	}
}
