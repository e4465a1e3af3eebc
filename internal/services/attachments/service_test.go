package attachments

import (
	"context"
	"testing"
	"time"

	"github.com/atriumhq/atrium/internal/domain/attachment"
	"github.com/atriumhq/atrium/internal/errors"
	"github.com/atriumhq/atrium/internal/storage/memory"
)

// fakeObjects records presign calls without a real object store.
type fakeObjects struct {
	removed []string
}

func (f *fakeObjects) PresignUpload(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://objects.test/put/" + key, nil
}

func (f *fakeObjects) PresignDownload(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://objects.test/get/" + key, nil
}

func (f *fakeObjects) Remove(_ context.Context, key string) error {
	f.removed = append(f.removed, key)
	return nil
}

func newTestService() (*Service, *fakeObjects) {
	objects := &fakeObjects{}
	return New(memory.New(), objects, Config{MaxSizeBytes: 1024}, nil), objects
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreateInput
	}{
		{"missing file name", CreateInput{ContentType: "text/plain", SizeBytes: 10}},
		{"missing content type", CreateInput{FileName: "a.txt", SizeBytes: 10}},
		{"zero size", CreateInput{FileName: "a.txt", ContentType: "text/plain"}},
		{"too large", CreateInput{FileName: "a.txt", ContentType: "text/plain", SizeBytes: 2048}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, "t1", "alice", tc.input)
			se := errors.GetServiceError(err)
			if se == nil || se.Code != errors.CodeInvalidInput {
				t.Fatalf("expected invalid_input, got %v", err)
			}
		})
	}
}

func TestUploadLifecycle(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	slot, err := svc.Create(ctx, "t1", "alice", CreateInput{
		FileName: "report.pdf", ContentType: "application/pdf", SizeBytes: 512,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if slot.Attachment.Status != attachment.StatusPending {
		t.Fatalf("status = %q, want pending", slot.Attachment.Status)
	}
	if slot.UploadURL == "" {
		t.Fatalf("expected upload URL")
	}

	// Download before completion is rejected.
	_, err = svc.Get(ctx, "t1", "alice", slot.Attachment.ID)
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeInvalidInput {
		t.Fatalf("expected invalid_input before completion, got %v", err)
	}

	completed, err := svc.Complete(ctx, "t1", "alice", slot.Attachment.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != attachment.StatusUploaded {
		t.Fatalf("status = %q, want uploaded", completed.Status)
	}

	dl, err := svc.Get(ctx, "t1", "alice", slot.Attachment.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if dl.DownloadURL == "" {
		t.Fatalf("expected download URL")
	}
}

func TestOwnershipEnforced(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	slot, err := svc.Create(ctx, "t1", "alice", CreateInput{
		FileName: "a.txt", ContentType: "text/plain", SizeBytes: 10,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Complete(ctx, "t1", "bob", slot.Attachment.ID); err == nil {
		t.Fatalf("expected foreign user rejected")
	}
	if _, err := svc.Complete(ctx, "t2", "alice", slot.Attachment.ID); err == nil {
		t.Fatalf("expected foreign tenant rejected")
	}
}

func TestDeleteRemovesBlob(t *testing.T) {
	svc, objects := newTestService()
	ctx := context.Background()

	slot, err := svc.Create(ctx, "t1", "alice", CreateInput{
		FileName: "a.txt", ContentType: "text/plain", SizeBytes: 10,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Delete(ctx, "t1", "alice", slot.Attachment.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(objects.removed) != 1 || objects.removed[0] != slot.Attachment.ObjectKey {
		t.Fatalf("expected blob removed, got %v", objects.removed)
	}
}

func TestFileNameSanitized(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	slot, err := svc.Create(ctx, "t1", "alice", CreateInput{
		FileName: "../../etc/passwd", ContentType: "text/plain", SizeBytes: 10,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if slot.Attachment.FileName != "passwd" {
		t.Fatalf("file name = %q, want %q", slot.Attachment.FileName, "passwd")
	}
	if slot.Attachment.ObjectKey != "tenants/t1/attachments/"+slot.Attachment.ID+"/passwd" {
		t.Fatalf("unexpected object key %q", slot.Attachment.ObjectKey)
	}
}
