package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/atriumhq/atrium/internal/domain/conversation"
	"github.com/atriumhq/atrium/internal/domain/message"
	"github.com/atriumhq/atrium/internal/domain/tenant"
	"github.com/atriumhq/atrium/internal/errors"
	"github.com/atriumhq/atrium/internal/platform/migrations"
)

// openIntegrationStore connects to the database named by TEST_POSTGRES_DSN
// and brings its schema up to date. Tests using it skip when the variable is
// unset.
func openIntegrationStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := migrations.Apply(context.Background(), db.DB); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return New(db)
}

func TestIntegrationMessagingRoundTrip(t *testing.T) {
	store := openIntegrationStore(t)
	ctx := context.Background()

	ten, err := store.CreateTenant(ctx, tenant.Tenant{
		Name: "Integration Tenant",
		Slug: "it-" + uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	t.Cleanup(func() { _ = store.DeleteTenant(ctx, ten.ID) })

	conv, err := store.CreateConversation(ctx, conversation.Conversation{
		TenantID:  ten.ID,
		Subject:   "round trip",
		CreatedBy: "alice",
	})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	for _, userID := range []string{"alice", "bob"} {
		role := conversation.RoleMember
		if userID == "alice" {
			role = conversation.RoleOwner
		}
		if _, err := store.AddParticipant(ctx, conversation.Participant{
			ConversationID: conv.ID,
			UserID:         userID,
			Role:           role,
		}); err != nil {
			t.Fatalf("add participant %s: %v", userID, err)
		}
	}

	msg, err := store.CreateMessage(ctx, message.Message{
		TenantID:       ten.ID,
		ConversationID: conv.ID,
		SenderID:       "alice",
		Body:           "hello bob",
	})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}

	if _, err := store.CreateDelivery(ctx, message.Delivery{
		MessageID:   msg.ID,
		RecipientID: "bob",
		DeliveredAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create delivery: %v", err)
	}

	read, err := store.MarkDeliveryRead(ctx, msg.ID, "bob")
	if err != nil {
		t.Fatalf("mark delivery read: %v", err)
	}
	if read.ReadAt == nil {
		t.Fatalf("read_at not set after mark read")
	}

	reply, err := store.CreateMessage(ctx, message.Message{
		TenantID:       ten.ID,
		ConversationID: conv.ID,
		SenderID:       "bob",
		ParentID:       &msg.ID,
		Body:           "hello alice",
	})
	if err != nil {
		t.Fatalf("create reply: %v", err)
	}

	thread, err := store.ListThread(ctx, msg.ID)
	if err != nil {
		t.Fatalf("list thread: %v", err)
	}
	if len(thread) != 2 {
		t.Fatalf("thread length = %d, want 2", len(thread))
	}
	if thread[0].ID != msg.ID || thread[1].ID != reply.ID {
		t.Fatalf("thread order wrong: got %s then %s", thread[0].ID, thread[1].ID)
	}

	if err := store.DeleteMessage(ctx, msg.ID); err != nil {
		t.Fatalf("delete message: %v", err)
	}
	_, err = store.GetMessage(ctx, msg.ID)
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeNotFound {
		t.Fatalf("expected not_found after delete, got %v", err)
	}
}

func TestIntegrationTenantSlugUnique(t *testing.T) {
	store := openIntegrationStore(t)
	ctx := context.Background()

	slug := "it-" + uuid.NewString()
	ten, err := store.CreateTenant(ctx, tenant.Tenant{Name: "First", Slug: slug})
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	t.Cleanup(func() { _ = store.DeleteTenant(ctx, ten.ID) })

	_, err = store.CreateTenant(ctx, tenant.Tenant{Name: "Second", Slug: slug})
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeAlreadyExists {
		t.Fatalf("expected already_exists for duplicate slug, got %v", err)
	}
}
