package file

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // Import for PNG decoding support
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/storage"
	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

// Selfie size window after compression.
const (
	selfieMaxSize = 150 * 1024
	selfieMinSize = 50 * 1024
)

// StagedFile is a selfie kept in local storage until submission.
type StagedFile struct {
	Path        string
	FileName    string
	ContentType string
	Size        int64
}

type FileService interface {
	// StageSelfie compresses a captured selfie and stores it under the session
	StageSelfie(ctx context.Context, sessionID string, file io.Reader, filename string) (StagedFile, error)

	// EncodeBase64 reads a staged file for upload
	EncodeBase64(ctx context.Context, path string) (string, error)

	// DataURI reads a staged file as an inline data URI
	DataURI(ctx context.Context, staged StagedFile) (string, error)

	DeleteFile(ctx context.Context, path string) error
}

type fileServiceImpl struct {
	storage storage.FileStorage
}

func NewFileService(storage storage.FileStorage) FileService {
	return &fileServiceImpl{
		storage: storage,
	}
}

// StageSelfie implements FileService. The output is always JPEG between
// 50KB and 150KB when the source allows it.
func (s *fileServiceImpl) StageSelfie(ctx context.Context, sessionID string, file io.Reader, filename string) (StagedFile, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
		return StagedFile{}, fmt.Errorf("invalid file type: only jpg, jpeg, png allowed")
	}

	buffer, err := io.ReadAll(file)
	if err != nil {
		return StagedFile{}, fmt.Errorf("failed to read image: %w", err)
	}

	compressed, err := compressImage(buffer, selfieMaxSize, selfieMinSize)
	if err != nil {
		return StagedFile{}, fmt.Errorf("failed to compress image: %w", err)
	}

	name := fmt.Sprintf("%s.jpg", uuid.New().String())
	path := filepath.Join("selfies", sessionID, name)

	stored, err := s.storage.Upload(ctx, bytes.NewReader(compressed), path, "image/jpeg")
	if err != nil {
		return StagedFile{}, fmt.Errorf("failed to stage selfie: %w", err)
	}

	return StagedFile{
		Path:        stored,
		FileName:    name,
		ContentType: "image/jpeg",
		Size:        int64(len(compressed)),
	}, nil
}

// EncodeBase64 implements FileService.
func (s *fileServiceImpl) EncodeBase64(ctx context.Context, path string) (string, error) {
	rc, err := s.storage.Download(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to open staged file: %w", err)
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("failed to read staged file: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DataURI implements FileService.
func (s *fileServiceImpl) DataURI(ctx context.Context, staged StagedFile) (string, error) {
	encoded, err := s.EncodeBase64(ctx, staged.Path)
	if err != nil {
		return "", err
	}
	contentType := staged.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", contentType, encoded), nil
}

// DeleteFile implements FileService.
func (s *fileServiceImpl) DeleteFile(ctx context.Context, path string) error {
	return s.storage.Delete(ctx, path)
}

// ==================== HELPER FUNCTIONS ====================

// compressImage re-encodes an image as JPEG, lowering quality and then
// resolution until it fits between minSize and maxSize bytes.
func compressImage(buffer []byte, maxSize int, minSize int) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(buffer))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	// Already a JPEG of the right size
	if format == "jpeg" && len(buffer) <= maxSize && len(buffer) >= minSize {
		return buffer, nil
	}

	var compressed []byte
	for quality := 85; quality >= 50; quality -= 5 {
		compressed, err = encodeJPEG(img, quality)
		if err != nil {
			return nil, err
		}

		if len(compressed) <= maxSize {
			return compressed, nil
		}
	}

	// Still too large: scale towards the middle of the window.
	bounds := img.Bounds()
	ratio := math.Sqrt(float64((maxSize+minSize)/2) / float64(len(compressed)))
	width := int(float64(bounds.Dx()) * ratio)
	height := int(float64(bounds.Dy()) * ratio)

	if width < 320 {
		width = 320
	}
	if height < 240 {
		height = 240
	}

	return encodeJPEG(resizeImage(img, width, height), 70)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// resizeImage resizes an image using high-quality interpolation
func resizeImage(src image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
