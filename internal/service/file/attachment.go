package file

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"

	"github.com/cmlabs-hris/hris-checkin-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/storage"
)

type storageUploader struct {
	storage storage.FileStorage
}

// NewStorageUploader keeps attachments in file storage, for record stores
// without an attachment API.
func NewStorageUploader(storage storage.FileStorage) attendance.AttachmentUploader {
	return &storageUploader{storage: storage}
}

// Upload implements attendance.AttachmentUploader.
func (u *storageUploader) Upload(ctx context.Context, a attendance.Attachment) (attendance.SelfieRef, error) {
	raw, err := base64.StdEncoding.DecodeString(a.Base64)
	if err != nil {
		return attendance.SelfieRef{}, fmt.Errorf("failed to decode attachment: %w", err)
	}

	field := a.FieldName
	if field == "" {
		field = "selfie"
	}
	stored, err := u.storage.Upload(ctx, bytes.NewReader(raw), filepath.Join("attachments", field, a.FileName), a.ContentType)
	if err != nil {
		return attendance.SelfieRef{}, fmt.Errorf("failed to store attachment: %w", err)
	}
	return attendance.SelfieRef{AttachmentID: stored, Name: a.FileName}, nil
}
