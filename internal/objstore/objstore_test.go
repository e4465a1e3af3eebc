package objstore

import (
	"testing"

	"github.com/atriumhq/atrium/internal/config"
)

func TestKeyLayout(t *testing.T) {
	got := Key("t1", "a1", "report.pdf")
	want := "tenants/t1/attachments/a1/report.pdf"
	if got != want {
		t.Fatalf("key = %q, want %q", got, want)
	}
}

func TestNewMinioRequiresEndpoint(t *testing.T) {
	if _, err := NewMinio(config.ObjectStoreConfig{Bucket: "atrium-attachments"}); err == nil {
		t.Fatalf("expected error for missing endpoint")
	}
}
