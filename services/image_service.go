package services

import (
	"context"
	"fmt"
	"mime/multipart"

	"github.com/google/uuid"
	"github.com/kendall-kelly/service-spot-api/utils"
)

// ImageService stores service offering images
type ImageService interface {
	// UploadImage validates and stores an image, returning its storage key
	UploadImage(ctx context.Context, fileHeader *multipart.FileHeader) (string, error)

	// GetImageURL returns a time limited URL for a stored image
	GetImageURL(ctx context.Context, imageKey string) (string, error)

	// DeleteImage removes an image; empty keys are ignored
	DeleteImage(ctx context.Context, imageKey string) error
}

// OfferingImages keeps validated PNG uploads under offerings/ in an ObjectStore
type OfferingImages struct {
	store ObjectStore
}

// NewOfferingImages creates an ImageService over store
func NewOfferingImages(store ObjectStore) *OfferingImages {
	return &OfferingImages{store: store}
}

func (s *OfferingImages) UploadImage(ctx context.Context, fileHeader *multipart.FileHeader) (string, error) {
	if err := utils.ValidateImageFile(fileHeader); err != nil {
		return "", err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer file.Close()

	key := "offerings/" + uuid.NewString() + utils.AllowedImageFormat
	if err := s.store.Put(ctx, key, file, "image/png"); err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}
	return key, nil
}

func (s *OfferingImages) GetImageURL(ctx context.Context, imageKey string) (string, error) {
	if imageKey == "" {
		return "", nil
	}
	return s.store.PresignGet(ctx, imageKey)
}

func (s *OfferingImages) DeleteImage(ctx context.Context, imageKey string) error {
	if imageKey == "" {
		return nil
	}
	return s.store.Delete(ctx, imageKey)
}
