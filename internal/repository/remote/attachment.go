package remote

import (
	"context"
	"fmt"

	"github.com/cmlabs-hris/hris-checkin-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/crm"
)

type attachmentUploader struct {
	client *crm.Client
	cfg    Config
}

// Upload implements attendance.AttachmentUploader.
func (u *attachmentUploader) Upload(ctx context.Context, a attendance.Attachment) (attendance.SelfieRef, error) {
	recordType := a.RecordType
	if recordType == "" {
		recordType = u.cfg.RecordType
	}

	f, err := u.client.UploadFile(ctx, crm.FileUpload{
		FileName:  a.FileName,
		Base64:    a.Base64,
		Doctype:   recordType,
		FieldName: a.FieldName,
	})
	if err != nil {
		return attendance.SelfieRef{}, fmt.Errorf("failed to upload selfie: %w", err)
	}

	id := f.FileURL
	if id == "" {
		id = f.Name
	}
	if id == "" {
		return attendance.SelfieRef{}, attendance.ErrAttachmentMissing
	}

	name := f.FileName
	if name == "" {
		name = a.FileName
	}
	return attendance.SelfieRef{AttachmentID: id, Name: name}, nil
}

func NewAttachmentUploader(client *crm.Client, cfg Config) attendance.AttachmentUploader {
	return &attachmentUploader{
		client: client,
		cfg:    cfg.withDefaults(),
	}
}
