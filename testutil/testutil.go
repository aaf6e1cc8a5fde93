// Package testutil provides database and fixture helpers shared by package tests.
package testutil

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/juju/clock/testclock"
	"github.com/kendall-kelly/service-spot-api/config"
	"github.com/kendall-kelly/service-spot-api/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultPassword is the password of every principal created by CreatePrincipal
const DefaultPassword = "correct-horse-battery"

// FastHashParams keep argon2id cheap in tests
var FastHashParams = &argon2id.Params{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Epoch is the initial time of clocks returned by NewClock
var Epoch = time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)

// RequireTestEnvironment fails fast unless GO_ENV is unset or "test", so a
// stray DATABASE_URL can never point the suite at real data.
func RequireTestEnvironment() {
	env := os.Getenv("GO_ENV")
	if env != "" && env != "test" {
		fmt.Fprintf(os.Stderr, "SAFETY CHECK FAILED: tests must run with GO_ENV=test (current: %q)\n", env)
		os.Exit(1)
	}
	_ = os.Setenv("GO_ENV", "test")
}

// NewTestDB opens an isolated in-memory sqlite database with all tables migrated.
// A single connection is used so concurrent callers are serialised the way a
// row lock would serialise them.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "failed to open test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, config.Migrate(db), "failed to migrate test database")
	return db
}

// NewClock returns a test clock starting at Epoch
func NewClock() *testclock.Clock {
	return testclock.NewClock(Epoch)
}

// PrincipalOption customises CreatePrincipal
type PrincipalOption func(*models.Principal)

// Suspended creates the principal inactive
func Suspended() PrincipalOption {
	return func(p *models.Principal) { p.Active = false }
}

// Unverified creates the principal unverified
func Unverified() PrincipalOption {
	return func(p *models.Principal) { p.Verified = false }
}

// CreatedAt overrides the registration time
func CreatedAt(at time.Time) PrincipalOption {
	return func(p *models.Principal) { p.CreatedAt = at }
}

// CreatePrincipal inserts an active, verified principal with DefaultPassword
func CreatePrincipal(t *testing.T, db *gorm.DB, role models.Role, email string, opts ...PrincipalOption) *models.Principal {
	t.Helper()

	hash, err := argon2id.CreateHash(DefaultPassword, FastHashParams)
	require.NoError(t, err)

	p := &models.Principal{
		DisplayName:  email,
		Email:        email,
		Role:         role,
		Active:       true,
		Verified:     true,
		PasswordHash: hash,
		CreatedAt:    Epoch.Add(-24 * time.Hour),
	}
	for _, opt := range opts {
		opt(p)
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// CreateOffering inserts a service offering for provider
func CreateOffering(t *testing.T, db *gorm.DB, provider *models.Principal, title string, price float64) *models.ServiceOffering {
	t.Helper()

	o := &models.ServiceOffering{
		ProviderID:      provider.ID,
		Title:           title,
		BasePrice:       price,
		DurationMinutes: 60,
	}
	require.NoError(t, db.Create(o).Error)
	return o
}

// CreateBooking inserts a booking directly in the given status, bypassing the
// lifecycle checks; statusChangedAt defaults to Epoch
func CreateBooking(t *testing.T, db *gorm.DB, customer, provider *models.Principal, offering *models.ServiceOffering, status models.BookingStatus, changedAt ...time.Time) *models.Booking {
	t.Helper()

	at := Epoch
	if len(changedAt) > 0 {
		at = changedAt[0]
	}
	b := &models.Booking{
		CustomerID:        customer.ID,
		ProviderID:        provider.ID,
		ServiceOfferingID: offering.ID,
		RequestedSlot:     Epoch.Add(48 * time.Hour),
		Status:            status,
		TotalAmount:       offering.BasePrice,
		CreatedAt:         at,
		StatusChangedAt:   at,
	}
	require.NoError(t, db.Create(b).Error)
	return b
}

// CreateReview inserts a review for a booking
func CreateReview(t *testing.T, db *gorm.DB, booking *models.Booking, rating int) *models.Review {
	t.Helper()

	r := &models.Review{
		BookingID:  booking.ID,
		CustomerID: booking.CustomerID,
		ProviderID: booking.ProviderID,
		Rating:     rating,
		Comment:    "A perfectly reasonable review.",
		CreatedAt:  Epoch,
	}
	require.NoError(t, db.Create(r).Error)
	return r
}
