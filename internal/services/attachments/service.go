// Package attachments manages upload slots and presigned access to blobs in
// the object store.
package attachments

import (
	"context"
	"strings"
	"time"

	"github.com/atriumhq/atrium/internal/domain/attachment"
	"github.com/atriumhq/atrium/internal/errors"
	"github.com/atriumhq/atrium/internal/objstore"
	"github.com/atriumhq/atrium/internal/storage"
	"github.com/atriumhq/atrium/pkg/logger"
	"github.com/google/uuid"
)

// Config controls upload validation and URL lifetime.
type Config struct {
	MaxSizeBytes int64
	URLExpiry    time.Duration
}

// Service implements attachment management.
type Service struct {
	store   storage.AttachmentStore
	objects objstore.Store
	cfg     Config
	log     *logger.Logger
}

// New creates an attachment service.
func New(store storage.AttachmentStore, objects objstore.Store, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("attachments")
	}
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = 25 << 20
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = 15 * time.Minute
	}
	return &Service{store: store, objects: objects, cfg: cfg, log: log}
}

// CreateInput is the payload for reserving an upload slot.
type CreateInput struct {
	FileName       string  `json:"file_name"`
	ContentType    string  `json:"content_type"`
	SizeBytes      int64   `json:"size_bytes"`
	ConversationID *string `json:"conversation_id,omitempty"`
}

// UploadSlot is the response to a create: the pending metadata row plus the
// URL to PUT the bytes to.
type UploadSlot struct {
	Attachment attachment.Attachment `json:"attachment"`
	UploadURL  string                `json:"upload_url"`
}

// Download carries a presigned GET for an uploaded attachment.
type Download struct {
	Attachment  attachment.Attachment `json:"attachment"`
	DownloadURL string                `json:"download_url"`
}

// Create validates the metadata, records a pending row, and issues a
// presigned upload URL.
func (s *Service) Create(ctx context.Context, tenantID, userID string, input CreateInput) (UploadSlot, error) {
	fileName := sanitizeFileName(input.FileName)
	if fileName == "" {
		return UploadSlot{}, errors.InvalidInput("file_name is required")
	}
	if strings.TrimSpace(input.ContentType) == "" {
		return UploadSlot{}, errors.InvalidInput("content_type is required")
	}
	if input.SizeBytes <= 0 {
		return UploadSlot{}, errors.InvalidInput("size_bytes must be positive")
	}
	if input.SizeBytes > s.cfg.MaxSizeBytes {
		return UploadSlot{}, errors.InvalidInput("attachment exceeds the maximum size").
			WithDetails("max_size_bytes", s.cfg.MaxSizeBytes)
	}

	id := uuid.NewString()
	att, err := s.store.CreateAttachment(ctx, attachment.Attachment{
		ID:             id,
		TenantID:       tenantID,
		ConversationID: input.ConversationID,
		OwnerID:        userID,
		FileName:       fileName,
		ContentType:    strings.TrimSpace(input.ContentType),
		SizeBytes:      input.SizeBytes,
		ObjectKey:      objstore.Key(tenantID, id, fileName),
		Status:         attachment.StatusPending,
	})
	if err != nil {
		return UploadSlot{}, err
	}

	uploadURL, err := s.objects.PresignUpload(ctx, att.ObjectKey, s.cfg.URLExpiry)
	if err != nil {
		return UploadSlot{}, errors.Unavailable("object store unavailable", err)
	}

	return UploadSlot{Attachment: att, UploadURL: uploadURL}, nil
}

// Complete marks a pending attachment as uploaded. Owner only.
func (s *Service) Complete(ctx context.Context, tenantID, userID, id string) (attachment.Attachment, error) {
	att, err := s.get(ctx, tenantID, userID, id)
	if err != nil {
		return attachment.Attachment{}, err
	}
	if att.Status == attachment.StatusUploaded {
		return att, nil
	}

	att.Status = attachment.StatusUploaded
	return s.store.UpdateAttachment(ctx, att)
}

// Get returns the metadata and a presigned download URL for an uploaded
// attachment.
func (s *Service) Get(ctx context.Context, tenantID, userID, id string) (Download, error) {
	att, err := s.get(ctx, tenantID, userID, id)
	if err != nil {
		return Download{}, err
	}
	if att.Status != attachment.StatusUploaded {
		return Download{}, errors.InvalidInput("attachment has not finished uploading")
	}

	downloadURL, err := s.objects.PresignDownload(ctx, att.ObjectKey, att.FileName, s.cfg.URLExpiry)
	if err != nil {
		return Download{}, errors.Unavailable("object store unavailable", err)
	}
	return Download{Attachment: att, DownloadURL: downloadURL}, nil
}

// Delete soft-deletes the metadata and removes the blob. Owner only.
func (s *Service) Delete(ctx context.Context, tenantID, userID, id string) error {
	att, err := s.get(ctx, tenantID, userID, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteAttachment(ctx, id); err != nil {
		return err
	}
	if err := s.objects.Remove(ctx, att.ObjectKey); err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("attachment_id", id).Warn("Blob removal failed")
	}
	return nil
}

func (s *Service) get(ctx context.Context, tenantID, userID, id string) (attachment.Attachment, error) {
	att, err := s.store.GetAttachment(ctx, id)
	if err != nil {
		return attachment.Attachment{}, err
	}
	if att.TenantID != tenantID || att.OwnerID != userID {
		return attachment.Attachment{}, errors.NotFound("attachment", id)
	}
	return att, nil
}

// sanitizeFileName strips path separators so the name is safe inside an
// object key.
func sanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
