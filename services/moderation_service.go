package services

import (
	"context"
	"errors"
	"time"

	"github.com/juju/clock"
	"github.com/kendall-kelly/service-spot-api/logger"
	"github.com/kendall-kelly/service-spot-api/metrics"
	"github.com/kendall-kelly/service-spot-api/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CascadeSummary counts the rows that belong to a principal
type CascadeSummary struct {
	Bookings         int64 `json:"bookings"`
	Reviews          int64 `json:"reviews"`
	ServiceOfferings int64 `json:"service_offerings"`
	Sessions         int64 `json:"sessions"`
}

// DeletionPreview is returned by PreviewDelete. Token must be presented to
// ConfirmDelete before ExpiresAt and can be used once.
type DeletionPreview struct {
	Principal *models.Principal `json:"principal"`
	Cascade   CascadeSummary    `json:"cascade"`
	Token     string            `json:"confirmation_token"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// PrincipalFilter narrows ListPrincipals
type PrincipalFilter struct {
	Role   models.Role
	Limit  int
	Offset int
}

// ModerationService applies administrative actions to accounts
type ModerationService struct {
	db         *gorm.DB
	clock      clock.Clock
	events     EventPublisher
	images     ImageService
	confirmTTL time.Duration
}

// NewModerationService creates a ModerationService. images may be nil when
// image storage is not configured.
func NewModerationService(db *gorm.DB, clk clock.Clock, events EventPublisher, images ImageService, confirmTTL time.Duration) *ModerationService {
	if events == nil {
		events = NoopPublisher{}
	}
	return &ModerationService{db: db, clock: clk, events: events, images: images, confirmTTL: confirmTTL}
}

func requireAdmin(actor *Actor) error {
	return Authorize(actor, AnyRole(models.RoleAdmin))
}

func (s *ModerationService) load(ctx context.Context, id uint) (*models.Principal, error) {
	var principal models.Principal
	if err := s.db.WithContext(ctx).First(&principal, id).Error; err != nil {
		return nil, lookupError(err, "principal")
	}
	return &principal, nil
}

func (s *ModerationService) moderated(ctx context.Context, subject, action string, actor *Actor, id uint) {
	metrics.ModerationActions.WithLabelValues(action).Inc()
	logger.InfoContext(ctx, "Principal moderated", "action", action, "principal_id", id, "admin_id", actor.ID)
	publishEvent(ctx, s.events, subject, PrincipalModeratedEvent{
		PrincipalID: id,
		AdminID:     actor.ID,
		OccurredAt:  s.clock.Now().UTC(),
	})
}

// ListPrincipals returns accounts, optionally of a single role, newest first
func (s *ModerationService) ListPrincipals(ctx context.Context, actor *Actor, filter PrincipalFilter) ([]models.Principal, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&models.Principal{})
	if filter.Role != "" {
		if !filter.Role.Valid() {
			return nil, newError(KindValidation, "unknown role %q", filter.Role)
		}
		query = query.Where("role = ?", filter.Role)
	}

	limit, offset := pageBounds(filter.Limit, filter.Offset)
	principals := []models.Principal{}
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&principals).Error; err != nil {
		return nil, internalError("failed to list principals", err)
	}
	return principals, nil
}

// PendingVerifications returns active providers that have not been verified yet, oldest first
func (s *ModerationService) PendingVerifications(ctx context.Context, actor *Actor) ([]models.Principal, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	principals := []models.Principal{}
	err := s.db.WithContext(ctx).
		Where("role = ? AND verified = ? AND active = ?", models.RoleProvider, false, true).
		Order("created_at ASC").Order("id ASC").
		Find(&principals).Error
	if err != nil {
		return nil, internalError("failed to list pending providers", err)
	}
	return principals, nil
}

// Verify marks a principal as verified. Verifying twice is a no-op.
func (s *ModerationService) Verify(ctx context.Context, actor *Actor, id uint) (*models.Principal, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	principal, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if principal.Verified {
		return principal, nil
	}

	now := s.clock.Now().UTC()
	if err := s.db.WithContext(ctx).Model(principal).Updates(map[string]any{"verified": true, "updated_at": now}).Error; err != nil {
		return nil, internalError("failed to verify principal", err)
	}
	principal.Verified = true
	principal.UpdatedAt = now

	s.moderated(ctx, SubjectPrincipalVerified, "verify", actor, id)
	return principal, nil
}

// Suspend deactivates a principal and revokes all of its sessions in one transaction
func (s *ModerationService) Suspend(ctx context.Context, actor *Actor, id uint) (*models.Principal, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if actor.ID == id {
		return nil, newError(KindForbidden, "administrators cannot suspend their own account")
	}
	principal, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Principal{}).Where("id = ?", id).
			Updates(map[string]any{"active": false, "updated_at": now}).Error; err != nil {
			return err
		}
		return tx.Where("principal_id = ?", id).Delete(&models.Session{}).Error
	})
	if err != nil {
		return nil, internalError("failed to suspend principal", err)
	}
	principal.Active = false
	principal.UpdatedAt = now

	s.moderated(ctx, SubjectPrincipalSuspended, "suspend", actor, id)
	return principal, nil
}

// Reactivate restores a suspended principal. Revoked sessions stay revoked.
func (s *ModerationService) Reactivate(ctx context.Context, actor *Actor, id uint) (*models.Principal, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	principal, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	if err := s.db.WithContext(ctx).Model(principal).Updates(map[string]any{"active": true, "updated_at": now}).Error; err != nil {
		return nil, internalError("failed to reactivate principal", err)
	}
	principal.Active = true
	principal.UpdatedAt = now

	s.moderated(ctx, SubjectPrincipalReactivated, "reactivate", actor, id)
	return principal, nil
}

func cascadeCounts(db *gorm.DB, id uint) (CascadeSummary, error) {
	var c CascadeSummary
	if err := db.Model(&models.Booking{}).Where("customer_id = ? OR provider_id = ?", id, id).Count(&c.Bookings).Error; err != nil {
		return c, err
	}
	if err := db.Model(&models.Review{}).Where("customer_id = ? OR provider_id = ?", id, id).Count(&c.Reviews).Error; err != nil {
		return c, err
	}
	if err := db.Model(&models.ServiceOffering{}).Where("provider_id = ?", id).Count(&c.ServiceOfferings).Error; err != nil {
		return c, err
	}
	if err := db.Model(&models.Session{}).Where("principal_id = ?", id).Count(&c.Sessions).Error; err != nil {
		return c, err
	}
	return c, nil
}

// PreviewDelete reports what a permanent delete would remove and issues the
// confirmation token required by ConfirmDelete
func (s *ModerationService) PreviewDelete(ctx context.Context, actor *Actor, id uint) (*DeletionPreview, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if actor.ID == id {
		return nil, newError(KindForbidden, "administrators cannot delete their own account")
	}
	principal, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	summary, err := cascadeCounts(db, id)
	if err != nil {
		return nil, internalError("failed to summarise account data", err)
	}

	token := newToken()
	now := s.clock.Now().UTC()
	request := models.DeletionRequest{
		TokenHash:   hashToken(token),
		PrincipalID: id,
		RequestedBy: actor.ID,
		ExpiresAt:   now.Add(s.confirmTTL),
		CreatedAt:   now,
	}
	if err := db.Create(&request).Error; err != nil {
		return nil, internalError("failed to issue confirmation token", err)
	}

	logger.InfoContext(ctx, "Deletion previewed", "principal_id", id, "admin_id", actor.ID)
	return &DeletionPreview{
		Principal: principal,
		Cascade:   summary,
		Token:     token,
		ExpiresAt: request.ExpiresAt,
	}, nil
}

var errTokenRejected = errors.New("confirmation token rejected")

// ConfirmDelete permanently removes a principal and everything that references
// it. The confirmation token is consumed in the same transaction, so any
// failure leaves both the data and the token untouched.
func (s *ModerationService) ConfirmDelete(ctx context.Context, actor *Actor, id uint, token string, confirm bool) (*CascadeSummary, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if actor.ID == id {
		return nil, newError(KindForbidden, "administrators cannot delete their own account")
	}
	if !confirm {
		return nil, newError(KindValidation, "deletion must be explicitly confirmed")
	}
	if token == "" {
		return nil, newError(KindValidation, "confirmation token is required")
	}
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	var removed CascadeSummary
	var imageKeys []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// creates holding a shared lock on this principal finish first; later
		// ones wait for the commit and then find the account gone
		var target models.Principal
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&target, id).Error; err != nil {
			return err
		}

		consumed := tx.Model(&models.DeletionRequest{}).
			Where("token_hash = ? AND principal_id = ? AND used_at IS NULL AND expires_at > ?", hashToken(token), id, now).
			Update("used_at", now)
		if consumed.Error != nil {
			return consumed.Error
		}
		if consumed.RowsAffected == 0 {
			return errTokenRejected
		}

		if err := tx.Model(&models.ServiceOffering{}).
			Where("provider_id = ? AND image_s3_key IS NOT NULL", id).
			Pluck("image_s3_key", &imageKeys).Error; err != nil {
			return err
		}

		res := tx.Where("customer_id = ? OR provider_id = ?", id, id).Delete(&models.Review{})
		if res.Error != nil {
			return res.Error
		}
		removed.Reviews = res.RowsAffected

		if res = tx.Where("customer_id = ? OR provider_id = ?", id, id).Delete(&models.Booking{}); res.Error != nil {
			return res.Error
		}
		removed.Bookings = res.RowsAffected

		if res = tx.Where("provider_id = ?", id).Delete(&models.ServiceOffering{}); res.Error != nil {
			return res.Error
		}
		removed.ServiceOfferings = res.RowsAffected

		if res = tx.Where("principal_id = ?", id).Delete(&models.Session{}); res.Error != nil {
			return res.Error
		}
		removed.Sessions = res.RowsAffected

		if err := tx.Where("principal_id = ?", id).Delete(&models.DeletionRequest{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Principal{}, id).Error
	})
	if errors.Is(err, errTokenRejected) {
		return nil, newError(KindValidation, "confirmation token is invalid, expired or already used")
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(KindNotFound, "principal not found")
	}
	if err != nil {
		logger.ErrorContext(ctx, "Account deletion rolled back", "principal_id", id, "error", err)
		return nil, internalError("failed to delete account", err)
	}

	s.deleteImages(ctx, imageKeys)
	s.moderated(ctx, SubjectPrincipalDeleted, "delete", actor, id)
	return &removed, nil
}

// deleteImages removes stored offering images once their rows are gone
func (s *ModerationService) deleteImages(ctx context.Context, keys []string) {
	if s.images == nil {
		return
	}
	for _, key := range keys {
		if err := s.images.DeleteImage(ctx, key); err != nil {
			logger.WarnContext(ctx, "Failed to delete offering image", "key", key, "error", err)
		}
	}
}
