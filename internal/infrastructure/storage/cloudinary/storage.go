package cloudinary

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
)

// Uploads are stored as raw assets so the public id keeps the file extension
// and Delete needs nothing beyond the key.
const resourceType = "raw"

type uploadAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
	Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error)
}

type Storage struct {
	api    uploadAPI
	folder string
}

func New(cloudName, apiKey, apiSecret, folder string) (*Storage, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}
	return &Storage{api: &cld.Upload, folder: folder}, nil
}

func (s *Storage) Save(ctx context.Context, key, contentType string, data io.Reader) (domain.StoredFile, error) {
	fileBytes, err := io.ReadAll(data)
	if err != nil {
		return domain.StoredFile{}, fmt.Errorf("read upload: %w", err)
	}

	result, err := s.api.Upload(ctx, fileBytes, uploader.UploadParams{
		PublicID:     key,
		Folder:       s.folder,
		ResourceType: resourceType,
	})
	if err != nil {
		return domain.StoredFile{}, domain.WrapError(domain.ErrTemporary, "cloudinary upload", err)
	}
	if result.Error.Message != "" {
		return domain.StoredFile{}, domain.WrapError(domain.ErrTemporary, "cloudinary upload", fmt.Errorf("%s", result.Error.Message))
	}

	return domain.StoredFile{
		Key:       result.PublicID,
		URL:       result.SecureURL,
		SizeBytes: int64(len(fileBytes)),
		MimeType:  contentType,
	}, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	result, err := s.api.Destroy(ctx, uploader.DestroyParams{
		PublicID:     key,
		ResourceType: resourceType,
	})
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "cloudinary destroy", err)
	}
	if result.Error.Message != "" {
		return domain.WrapError(domain.ErrTemporary, "cloudinary destroy", fmt.Errorf("%s", result.Error.Message))
	}
	return nil
}
