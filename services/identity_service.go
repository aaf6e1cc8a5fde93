package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/kendall-kelly/service-spot-api/logger"
	"github.com/kendall-kelly/service-spot-api/metrics"
	"github.com/kendall-kelly/service-spot-api/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const minPasswordLength = 8

// PasswordHashParams are the argon2id parameters for new password hashes
var PasswordHashParams = argon2id.DefaultParams

// SignupInput carries the fields of a self-service registration
type SignupInput struct {
	DisplayName string
	Email       string
	Phone       string
	Password    string
	Role        string
}

// IssuedSession is returned once per successful login; Token is never stored
type IssuedSession struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	Principal *models.Principal `json:"principal"`
}

// IdentityService authenticates principals and manages their sessions
type IdentityService struct {
	db         *gorm.DB
	clock      clock.Clock
	limiter    RateLimiter
	sessionTTL time.Duration
}

// NewIdentityService creates an IdentityService. A nil limiter disables login throttling.
func NewIdentityService(db *gorm.DB, clk clock.Clock, limiter RateLimiter, sessionTTL time.Duration) *IdentityService {
	return &IdentityService{db: db, clock: clk, limiter: limiter, sessionTTL: sessionTTL}
}

// NormalizeEmail lower-cases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newToken() string {
	return uuid.NewString()
}

// Signup registers a customer or provider. Administrators are only created by EnsureAdmin.
func (s *IdentityService) Signup(ctx context.Context, in SignupInput) (*models.Principal, error) {
	role, err := models.ParseRole(in.Role)
	if err != nil || role == models.RoleAdmin {
		return nil, newError(KindValidation, "role must be CUSTOMER or PROVIDER")
	}

	name := strings.TrimSpace(in.DisplayName)
	if name == "" || utf8.RuneCountInString(name) > 100 {
		return nil, newError(KindValidation, "display name is required and must be at most 100 characters")
	}

	email := NormalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, newError(KindValidation, "a valid email address is required")
	}

	if utf8.RuneCountInString(in.Password) < minPasswordLength {
		return nil, newError(KindValidation, "password must be at least %d characters", minPasswordLength)
	}

	hash, err := argon2id.CreateHash(in.Password, PasswordHashParams)
	if err != nil {
		return nil, internalError("failed to hash password", err)
	}

	now := s.clock.Now().UTC()
	principal := models.Principal{
		DisplayName:  name,
		Email:        email,
		Phone:        strings.TrimSpace(in.Phone),
		Role:         role,
		Active:       true,
		Verified:     role != models.RoleProvider,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.db.WithContext(ctx).Create(&principal).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, newError(KindConflict, "an account with this email already exists")
		}
		return nil, internalError("failed to create account", err)
	}

	logger.InfoContext(ctx, "Principal registered", "principal_id", principal.ID, "role", principal.Role)
	return &principal, nil
}

// EnsureAdmin creates the bootstrap administrator when it does not exist yet
func (s *IdentityService) EnsureAdmin(ctx context.Context, email, password, name string) (*models.Principal, error) {
	email = NormalizeEmail(email)

	var existing models.Principal
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	switch {
	case err == nil:
		if existing.Role != models.RoleAdmin {
			return nil, newError(KindConflict, "%s is registered with role %s", email, existing.Role)
		}
		return &existing, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, internalError("failed to look up administrator", err)
	}

	if utf8.RuneCountInString(password) < minPasswordLength {
		return nil, newError(KindValidation, "admin password must be at least %d characters", minPasswordLength)
	}
	hash, err := argon2id.CreateHash(password, PasswordHashParams)
	if err != nil {
		return nil, internalError("failed to hash password", err)
	}

	now := s.clock.Now().UTC()
	admin := models.Principal{
		DisplayName:  strings.TrimSpace(name),
		Email:        email,
		Role:         models.RoleAdmin,
		Active:       true,
		Verified:     true,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&admin).Error; err != nil {
		return nil, internalError("failed to create administrator", err)
	}

	logger.InfoContext(ctx, "Administrator account created", "principal_id", admin.ID)
	return &admin, nil
}

// Authenticate verifies credentials and issues a new session. Unknown email,
// wrong secret and a role mismatch are indistinguishable to the caller.
func (s *IdentityService) Authenticate(ctx context.Context, email, secret, claimedRole string) (*IssuedSession, error) {
	email = NormalizeEmail(email)

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, email)
		if err != nil {
			logger.WarnContext(ctx, "Login rate limiter unavailable", "error", err)
		} else if !allowed {
			metrics.LoginAttempts.WithLabelValues("rate_limited").Inc()
			return nil, newError(KindRateLimited, "too many login attempts, try again later")
		}
	}

	invalid := func() error {
		metrics.LoginAttempts.WithLabelValues(metrics.OutcomeFailure).Inc()
		return newError(KindInvalidCredentials, "invalid email, password or role")
	}

	role, err := models.ParseRole(claimedRole)
	if err != nil {
		return nil, invalid()
	}

	var principal models.Principal
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&principal).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalid()
		}
		return nil, internalError("failed to look up account", err)
	}

	match, err := argon2id.ComparePasswordAndHash(secret, principal.PasswordHash)
	if err != nil || !match || principal.Role != role {
		return nil, invalid()
	}

	if !principal.Active {
		metrics.LoginAttempts.WithLabelValues("suspended").Inc()
		return nil, newError(KindAccountSuspended, "this account has been suspended")
	}

	token := newToken()
	now := s.clock.Now().UTC()
	session := models.Session{
		TokenHash:   hashToken(token),
		PrincipalID: principal.ID,
		Role:        principal.Role,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.sessionTTL),
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, internalError("failed to create session", err)
	}

	metrics.LoginAttempts.WithLabelValues(metrics.OutcomeSuccess).Inc()
	logger.InfoContext(ctx, "Principal authenticated", "principal_id", principal.ID)
	return &IssuedSession{Token: token, ExpiresAt: session.ExpiresAt, Principal: &principal}, nil
}

// Invalidate removes the session for token. Unknown or already removed
// tokens are not an error.
func (s *IdentityService) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("token_hash = ?", hashToken(token)).Delete(&models.Session{}).Error; err != nil {
		logger.WarnContext(ctx, "Failed to delete session", "error", err)
	}
	return nil
}

// Resolve returns the principal behind token. Missing, unknown and expired
// tokens fail Unauthenticated.
func (s *IdentityService) Resolve(ctx context.Context, token string) (*Actor, *models.Principal, error) {
	if token == "" {
		return nil, nil, newError(KindUnauthenticated, "authentication required")
	}

	db := s.db.WithContext(ctx)
	hash := hashToken(token)

	var session models.Session
	if err := db.Where("token_hash = ?", hash).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, newError(KindUnauthenticated, "invalid session")
		}
		return nil, nil, internalError("failed to load session", err)
	}

	if session.ExpiredAt(s.clock.Now().UTC()) {
		if err := db.Where("token_hash = ?", hash).Delete(&models.Session{}).Error; err != nil {
			logger.WarnContext(ctx, "Failed to delete expired session", "principal_id", session.PrincipalID, "error", err)
		}
		return nil, nil, newError(KindUnauthenticated, "session expired")
	}

	var principal models.Principal
	if err := db.First(&principal, session.PrincipalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, newError(KindUnauthenticated, "invalid session")
		}
		return nil, nil, internalError("failed to load account", err)
	}
	if !principal.Active {
		return nil, nil, newError(KindAccountSuspended, "this account has been suspended")
	}

	return &Actor{ID: principal.ID, Role: session.Role}, &principal, nil
}

// loadActivePrincipal re-reads the acting principal; used by mutations that
// must observe a suspension issued after the session was resolved
// lockPrincipals takes shared row locks on the given principals in id order, so
// a concurrent account deletion either finishes first or waits for the caller's
// transaction to commit
func lockPrincipals(tx *gorm.DB, ids ...uint) error {
	var locked []models.Principal
	err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
		Select("id").
		Where("id IN ?", ids).
		Order("id").
		Find(&locked).Error
	if err != nil {
		return internalError("failed to lock accounts", err)
	}
	return nil
}

func loadActivePrincipal(db *gorm.DB, actor *Actor) (*models.Principal, error) {
	var principal models.Principal
	if err := db.First(&principal, actor.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(KindUnauthenticated, "account no longer exists")
		}
		return nil, internalError("failed to load account", err)
	}
	if !principal.Active {
		return nil, newError(KindAccountSuspended, "this account has been suspended")
	}
	return &principal, nil
}
