package services

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"
	"unicode/utf8"

	"github.com/juju/clock"
	"github.com/kendall-kelly/service-spot-api/logger"
	"github.com/kendall-kelly/service-spot-api/models"
	"github.com/kendall-kelly/service-spot-api/utils"
	"gorm.io/gorm"
)

// CreateOfferingInput carries the fields of a new service offering
type CreateOfferingInput struct {
	Title           string
	Description     string
	BasePrice       float64
	DurationMinutes int
}

// OfferingService manages the services providers publish
type OfferingService struct {
	db     *gorm.DB
	clock  clock.Clock
	images ImageService
}

// NewOfferingService creates an OfferingService. images may be nil, in which
// case image uploads are rejected.
func NewOfferingService(db *gorm.DB, clk clock.Clock, images ImageService) *OfferingService {
	return &OfferingService{db: db, clock: clk, images: images}
}

// Create publishes a new offering for the calling provider
func (s *OfferingService) Create(ctx context.Context, actor *Actor, in CreateOfferingInput) (*models.ServiceOffering, error) {
	if err := Authorize(actor, AnyRole(models.RoleProvider)); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()

	var offering models.ServiceOffering
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPrincipals(tx, actor.ID); err != nil {
			return err
		}
		if _, err := loadActivePrincipal(tx, actor); err != nil {
			if errors.Is(err, ErrAccountSuspended) {
				return newError(KindForbidden, "suspended providers cannot publish offerings")
			}
			return err
		}

		title := strings.TrimSpace(in.Title)
		if title == "" || utf8.RuneCountInString(title) > 200 {
			return newError(KindValidation, "title is required and must be at most 200 characters")
		}
		if in.BasePrice < 0 {
			return newError(KindValidation, "base price cannot be negative")
		}
		if in.DurationMinutes <= 0 {
			return newError(KindValidation, "duration must be a positive number of minutes")
		}

		offering = models.ServiceOffering{
			ProviderID:      actor.ID,
			Title:           title,
			Description:     strings.TrimSpace(in.Description),
			BasePrice:       in.BasePrice,
			DurationMinutes: in.DurationMinutes,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Create(&offering).Error; err != nil {
			if isForeignKeyViolation(err) {
				return newError(KindUnauthenticated, "account no longer exists")
			}
			return internalError("failed to create service offering", err)
		}
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "failed to create service offering")
	}

	logger.InfoContext(ctx, "Service offering created", "offering_id", offering.ID, "provider_id", actor.ID)
	return &offering, nil
}

// Get returns an offering with its image URL resolved
func (s *OfferingService) Get(ctx context.Context, id uint) (*models.ServiceOffering, error) {
	var offering models.ServiceOffering
	if err := s.db.WithContext(ctx).First(&offering, id).Error; err != nil {
		return nil, lookupError(err, "service offering")
	}
	s.attachImageURL(ctx, &offering)
	return &offering, nil
}

// ListByProvider returns a provider's offerings, newest first
func (s *OfferingService) ListByProvider(ctx context.Context, providerID uint) ([]models.ServiceOffering, error) {
	offerings := []models.ServiceOffering{}
	err := s.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("created_at DESC").Order("id DESC").
		Find(&offerings).Error
	if err != nil {
		return nil, internalError("failed to list service offerings", err)
	}
	for i := range offerings {
		s.attachImageURL(ctx, &offerings[i])
	}
	return offerings, nil
}

// AttachImage stores an image for an offering owned by the calling provider,
// replacing any previous image
func (s *OfferingService) AttachImage(ctx context.Context, actor *Actor, id uint, fileHeader *multipart.FileHeader) (*models.ServiceOffering, error) {
	if err := Authorize(actor, AnyRole(models.RoleProvider)); err != nil {
		return nil, err
	}
	if s.images == nil {
		return nil, internalError("image storage is not configured", nil)
	}

	db := s.db.WithContext(ctx)
	var offering models.ServiceOffering
	if err := db.First(&offering, id).Error; err != nil {
		return nil, lookupError(err, "service offering")
	}
	if err := Authorize(actor, OwnerOf(offering.ProviderID)); err != nil {
		return nil, err
	}

	key, err := s.images.UploadImage(ctx, fileHeader)
	if err != nil {
		var uploadErr *utils.FileUploadError
		if errors.As(err, &uploadErr) {
			return nil, newError(KindValidation, "%s", uploadErr.Message)
		}
		return nil, internalError("failed to upload image", err)
	}

	var previous string
	if offering.ImageS3Key != nil {
		previous = *offering.ImageS3Key
	}
	now := s.clock.Now().UTC()
	if err := db.Model(&offering).Updates(map[string]any{"image_s3_key": key, "updated_at": now}).Error; err != nil {
		_ = s.images.DeleteImage(ctx, key)
		return nil, internalError("failed to save image reference", err)
	}
	offering.ImageS3Key = &key
	offering.UpdatedAt = now

	if previous != "" && previous != key {
		if err := s.images.DeleteImage(ctx, previous); err != nil {
			logger.WarnContext(ctx, "Failed to delete replaced offering image", "key", previous, "error", err)
		}
	}

	s.attachImageURL(ctx, &offering)
	return &offering, nil
}

func (s *OfferingService) attachImageURL(ctx context.Context, offering *models.ServiceOffering) {
	if s.images == nil || offering.ImageS3Key == nil {
		return
	}
	url, err := s.images.GetImageURL(ctx, *offering.ImageS3Key)
	if err != nil {
		logger.WarnContext(ctx, "Failed to resolve offering image URL", "offering_id", offering.ID, "error", err)
		return
	}
	offering.ImageURL = &url
}
