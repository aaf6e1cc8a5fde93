package services

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/juju/clock/testclock"
	"github.com/kendall-kelly/service-spot-api/models"
	"github.com/kendall-kelly/service-spot-api/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type moderationFixture struct {
	db       *gorm.DB
	clock    *testclock.Clock
	events   *RecordingPublisher
	store    *MemoryObjectStore
	identity *IdentityService
	bookings *BookingService
	svc      *ModerationService
	admin    *models.Principal
	customer *models.Principal
	provider *models.Principal
	offering *models.ServiceOffering
}

func newModerationFixture(t *testing.T) *moderationFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	clk := testutil.NewClock()
	events := NewRecordingPublisher()
	store := NewMemoryObjectStore()
	provider := testutil.CreatePrincipal(t, db, models.RoleProvider, "pat@example.com")

	return &moderationFixture{
		db:       db,
		clock:    clk,
		events:   events,
		store:    store,
		identity: NewIdentityService(db, clk, nil, time.Hour),
		bookings: NewBookingService(db, clk, nil, 1000),
		svc:      NewModerationService(db, clk, events, NewOfferingImages(store), 10*time.Minute),
		admin:    testutil.CreatePrincipal(t, db, models.RoleAdmin, "admin@example.com"),
		customer: testutil.CreatePrincipal(t, db, models.RoleCustomer, "cam@example.com"),
		provider: provider,
		offering: testutil.CreateOffering(t, db, provider, "Window cleaning", 50),
	}
}

func (f *moderationFixture) login(t *testing.T, p *models.Principal) string {
	t.Helper()
	issued, err := f.identity.Authenticate(context.Background(), p.Email, testutil.DefaultPassword, string(p.Role))
	require.NoError(t, err)
	return issued.Token
}

func (f *moderationFixture) reload(t *testing.T, p *models.Principal) *models.Principal {
	t.Helper()
	var fresh models.Principal
	require.NoError(t, f.db.First(&fresh, p.ID).Error)
	return &fresh
}

func TestModerationRequiresAdmin(t *testing.T) {
	f := newModerationFixture(t)
	ctx := context.Background()
	nonAdmin := actorFor(f.customer)

	_, err := f.svc.Verify(ctx, nonAdmin, f.provider.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Suspend(ctx, nonAdmin, f.provider.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Reactivate(ctx, nonAdmin, f.provider.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.PreviewDelete(ctx, nonAdmin, f.provider.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.ConfirmDelete(ctx, nonAdmin, f.provider.ID, "token", true)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.ListPrincipals(ctx, nonAdmin, PrincipalFilter{})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.PendingVerifications(ctx, actorFor(f.provider))
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Verify(ctx, nil, f.provider.ID)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestVerifyIsIdempotent(t *testing.T) {
	f := newModerationFixture(t)
	ctx := context.Background()
	pending := testutil.CreatePrincipal(t, f.db, models.RoleProvider, "new@example.com", testutil.Unverified())

	list, err := f.svc.PendingVerifications(ctx, actorFor(f.admin))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, pending.ID, list[0].ID)

	for i := 0; i < 2; i++ {
		p, err := f.svc.Verify(ctx, actorFor(f.admin), pending.ID)
		require.NoError(t, err)
		assert.True(t, p.Verified)
	}
	assert.True(t, f.reload(t, pending).Verified)
	assert.Equal(t, []string{SubjectPrincipalVerified}, f.events.Subjects(), "second verify is a no-op")

	list, err = f.svc.PendingVerifications(ctx, actorFor(f.admin))
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.svc.Verify(ctx, actorFor(f.admin), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSuspendRevokesSessionsAndBlocksActions(t *testing.T) {
	f := newModerationFixture(t)
	ctx := context.Background()

	booking, err := f.bookings.Create(ctx, actorFor(f.customer), CreateBookingInput{
		CustomerID:        f.customer.ID,
		ProviderID:        f.provider.ID,
		ServiceOfferingID: f.offering.ID,
		RequestedSlot:     f.clock.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	first := f.login(t, f.provider)
	second := f.login(t, f.provider)

	suspended, err := f.svc.Suspend(ctx, actorFor(f.admin), f.provider.ID)
	require.NoError(t, err)
	assert.False(t, suspended.Active)

	for _, tok := range []string{first, second} {
		_, _, err := f.identity.Resolve(ctx, tok)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	}

	var sessions int64
	f.db.Model(&models.Session{}).Where("principal_id = ?", f.provider.ID).Count(&sessions)
	assert.Zero(t, sessions)

	_, err = f.bookings.Transition(ctx, actorFor(f.provider), booking.ID, models.EventAccept)
	assert.ErrorIs(t, err, ErrAccountSuspended)

	_, err = f.identity.Authenticate(ctx, f.provider.Email, testutil.DefaultPassword, "PROVIDER")
	assert.ErrorIs(t, err, ErrAccountSuspended)

	reactivated, err := f.svc.Reactivate(ctx, actorFor(f.admin), f.provider.ID)
	require.NoError(t, err)
	assert.True(t, reactivated.Active)

	_, _, err = f.identity.Resolve(ctx, first)
	assert.ErrorIs(t, err, ErrUnauthenticated, "sessions are not restored")

	f.login(t, f.provider)
	_, err = f.bookings.Transition(ctx, actorFor(f.provider), booking.ID, models.EventAccept)
	assert.NoError(t, err)

	assert.Equal(t, []string{SubjectPrincipalSuspended, SubjectPrincipalReactivated}, f.events.Subjects())
}

func TestAdminCannotModerateSelf(t *testing.T) {
	f := newModerationFixture(t)
	ctx := context.Background()
	self := actorFor(f.admin)

	_, err := f.svc.Suspend(ctx, self, f.admin.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.PreviewDelete(ctx, self, f.admin.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.ConfirmDelete(ctx, self, f.admin.ID, "token", true)
	assert.ErrorIs(t, err, ErrForbidden)
}

// seedProviderData gives the provider bookings, a review, an image and a session
func seedProviderData(t *testing.T, f *moderationFixture) {
	t.Helper()
	completed := testutil.CreateBooking(t, f.db, f.customer, f.provider, f.offering, models.BookingCompleted)
	testutil.CreateBooking(t, f.db, f.customer, f.provider, f.offering, models.BookingPending)
	testutil.CreateReview(t, f.db, completed, 5)

	key := "offerings/window.png"
	require.NoError(t, f.store.Put(context.Background(), key, bytes.NewReader(testPNG), "image/png"))
	require.NoError(t, f.db.Model(f.offering).Update("image_s3_key", key).Error)

	f.login(t, f.provider)
}

func TestPreviewAndConfirmDelete(t *testing.T) {
	f := newModerationFixture(t)
	ctx := context.Background()
	seedProviderData(t, f)
	bystander := testutil.CreatePrincipal(t, f.db, models.RoleProvider, "other@example.com")
	bystanderOffering := testutil.CreateOffering(t, f.db, bystander, "Other", 10)
	testutil.CreateBooking(t, f.db, f.customer, bystander, bystanderOffering, models.BookingPending)

	preview, err := f.svc.PreviewDelete(ctx, actorFor(f.admin), f.provider.ID)
	require.NoError(t, err)
	assert.Equal(t, CascadeSummary{Bookings: 2, Reviews: 1, ServiceOfferings: 1, Sessions: 1}, preview.Cascade)
	assert.NotEmpty(t, preview.Token)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), preview.ExpiresAt)

	// preview is read-only
	var bookings int64
	f.db.Model(&models.Booking{}).Count(&bookings)
	assert.Equal(t, int64(3), bookings)

	removed, err := f.svc.ConfirmDelete(ctx, actorFor(f.admin), f.provider.ID, preview.Token, true)
	require.NoError(t, err)
	assert.Equal(t, preview.Cascade, *removed)

	for _, check := range []struct {
		model any
		query string
	}{
		{&models.Principal{}, "id = ?"},
		{&models.Booking{}, "provider_id = ? OR customer_id = ?"},
		{&models.Review{}, "provider_id = ? OR customer_id = ?"},
		{&models.ServiceOffering{}, "provider_id = ?"},
		{&models.Session{}, "principal_id = ?"},
		{&models.DeletionRequest{}, "principal_id = ?"},
	} {
		var n int64
		args := []any{f.provider.ID}
		if check.query == "provider_id = ? OR customer_id = ?" {
			args = append(args, f.provider.ID)
		}
		require.NoError(t, f.db.Model(check.model).Where(check.query, args...).Count(&n).Error)
		assert.Zero(t, n, "%T rows remain", check.model)
	}

	f.db.Model(&models.Booking{}).Count(&bookings)
	assert.Equal(t, int64(1), bookings, "other providers' bookings survive")
	assert.False(t, f.store.Exists("offerings/window.png"), "offering images are removed")
	assert.Contains(t, f.events.Subjects(), SubjectPrincipalDeleted)
}

func TestConfirmDeleteTokenRules(t *testing.T) {
	f := newModerationFixture(t)
	ctx := context.Background()
	admin := actorFor(f.admin)
	other := testutil.CreatePrincipal(t, f.db, models.RoleCustomer, "other@example.com")

	preview, err := f.svc.PreviewDelete(ctx, admin, f.provider.ID)
	require.NoError(t, err)
	otherPreview, err := f.svc.PreviewDelete(ctx, admin, other.ID)
	require.NoError(t, err)

	_, err = f.svc.ConfirmDelete(ctx, admin, f.provider.ID, preview.Token, false)
	assert.ErrorIs(t, err, ErrValidation, "confirm flag is required")

	_, err = f.svc.ConfirmDelete(ctx, admin, f.provider.ID, "", true)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.ConfirmDelete(ctx, admin, f.provider.ID, "made-up", true)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.ConfirmDelete(ctx, admin, f.provider.ID, otherPreview.Token, true)
	assert.ErrorIs(t, err, ErrValidation, "tokens are bound to one principal")

	_, err = f.svc.ConfirmDelete(ctx, admin, 9999, preview.Token, true)
	assert.ErrorIs(t, err, ErrNotFound)

	f.clock.Advance(10 * time.Minute)
	_, err = f.svc.ConfirmDelete(ctx, admin, f.provider.ID, preview.Token, true)
	assert.ErrorIs(t, err, ErrValidation, "expired token")
	assert.Equal(t, f.provider.ID, f.reload(t, f.provider).ID)

	fresh, err := f.svc.PreviewDelete(ctx, admin, other.ID)
	require.NoError(t, err)
	_, err = f.svc.ConfirmDelete(ctx, admin, other.ID, fresh.Token, true)
	require.NoError(t, err)
}

func TestConfirmDeleteRollsBackOnFailure(t *testing.T) {
	f := newModerationFixture(t)
	ctx := context.Background()
	seedProviderData(t, f)

	preview, err := f.svc.PreviewDelete(ctx, actorFor(f.admin), f.provider.ID)
	require.NoError(t, err)

	const hook = "test:fail_offering_delete"
	require.NoError(t, f.db.Callback().Delete().Before("gorm:delete").Register(hook, func(tx *gorm.DB) {
		if tx.Statement.Table == "service_offerings" {
			_ = tx.AddError(errors.New("injected failure"))
		}
	}))

	_, err = f.svc.ConfirmDelete(ctx, actorFor(f.admin), f.provider.ID, preview.Token, true)
	assert.ErrorIs(t, err, ErrInternal)

	var bookings, reviews, sessions int64
	f.db.Model(&models.Booking{}).Count(&bookings)
	f.db.Model(&models.Review{}).Count(&reviews)
	f.db.Model(&models.Session{}).Count(&sessions)
	assert.Equal(t, int64(2), bookings, "bookings restored by rollback")
	assert.Equal(t, int64(1), reviews, "reviews restored by rollback")
	assert.Equal(t, int64(1), sessions)
	assert.True(t, f.store.Exists("offerings/window.png"))

	var request models.DeletionRequest
	require.NoError(t, f.db.Where("principal_id = ?", f.provider.ID).First(&request).Error)
	assert.Nil(t, request.UsedAt, "token consumption rolled back")

	require.NoError(t, f.db.Callback().Delete().Remove(hook))
	_, err = f.svc.ConfirmDelete(ctx, actorFor(f.admin), f.provider.ID, preview.Token, true)
	require.NoError(t, err)

	_, err = f.svc.ConfirmDelete(ctx, actorFor(f.admin), f.provider.ID, preview.Token, true)
	assert.ErrorIs(t, err, ErrNotFound, "principal is gone")
}

func TestListPrincipals(t *testing.T) {
	f := newModerationFixture(t)
	ctx := context.Background()

	all, err := f.svc.ListPrincipals(ctx, actorFor(f.admin), PrincipalFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	providers, err := f.svc.ListPrincipals(ctx, actorFor(f.admin), PrincipalFilter{Role: models.RoleProvider})
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, f.provider.ID, providers[0].ID)

	_, err = f.svc.ListPrincipals(ctx, actorFor(f.admin), PrincipalFilter{Role: "SERVICE_PROVIDER"})
	assert.ErrorIs(t, err, ErrValidation)
}

// onFirstNow runs fn the first time the service reads the clock
type onFirstNow struct {
	clock.Clock
	once sync.Once
	fn   func()
}

func (c *onFirstNow) Now() time.Time {
	c.once.Do(c.fn)
	return c.Clock.Now()
}

func TestBookingNotStoredForCustomerDeletedMidRequest(t *testing.T) {
	f := newModerationFixture(t)
	ctx := context.Background()

	preview, err := f.svc.PreviewDelete(ctx, actorFor(f.admin), f.customer.ID)
	require.NoError(t, err)

	clk := &onFirstNow{Clock: f.clock, fn: func() {
		_, err := f.svc.ConfirmDelete(ctx, actorFor(f.admin), f.customer.ID, preview.Token, true)
		require.NoError(t, err)
	}}
	bookings := NewBookingService(f.db, clk, nil, 1000)

	_, err = bookings.Create(ctx, actorFor(f.customer), CreateBookingInput{
		CustomerID:        f.customer.ID,
		ProviderID:        f.provider.ID,
		ServiceOfferingID: f.offering.ID,
		RequestedSlot:     f.clock.Now().Add(48 * time.Hour),
	})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	var principals, dangling int64
	f.db.Model(&models.Principal{}).Where("id = ?", f.customer.ID).Count(&principals)
	f.db.Model(&models.Booking{}).Where("customer_id = ?", f.customer.ID).Count(&dangling)
	assert.Zero(t, principals)
	assert.Zero(t, dangling, "no booking may reference a deleted principal")
}

func TestBookingInsertRejectedWhenCustomerRowIsGone(t *testing.T) {
	f := newModerationFixture(t)
	ctx := context.Background()

	const hook = "test:drop_customer_before_insert"
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register(hook, func(tx *gorm.DB) {
		if tx.Statement.Table == "bookings" {
			_ = tx.Session(&gorm.Session{NewDB: true}).Exec("DELETE FROM principals WHERE id = ?", f.customer.ID).Error
		}
	}))

	_, err := f.bookings.Create(ctx, actorFor(f.customer), CreateBookingInput{
		CustomerID:        f.customer.ID,
		ProviderID:        f.provider.ID,
		ServiceOfferingID: f.offering.ID,
		RequestedSlot:     f.clock.Now().Add(48 * time.Hour),
	})
	assert.ErrorIs(t, err, ErrNotFound)

	var bookings int64
	f.db.Model(&models.Booking{}).Count(&bookings)
	assert.Zero(t, bookings)
	assert.Equal(t, f.customer.ID, f.reload(t, f.customer).ID, "the whole transaction rolled back")
}

func TestOfferingNotStoredForProviderDeletedMidRequest(t *testing.T) {
	f := newModerationFixture(t)
	ctx := context.Background()

	preview, err := f.svc.PreviewDelete(ctx, actorFor(f.admin), f.provider.ID)
	require.NoError(t, err)

	clk := &onFirstNow{Clock: f.clock, fn: func() {
		_, err := f.svc.ConfirmDelete(ctx, actorFor(f.admin), f.provider.ID, preview.Token, true)
		require.NoError(t, err)
	}}
	offerings := NewOfferingService(f.db, clk, nil)

	_, err = offerings.Create(ctx, actorFor(f.provider), CreateOfferingInput{Title: "Gutters", BasePrice: 20, DurationMinutes: 30})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	var count int64
	f.db.Model(&models.ServiceOffering{}).Where("provider_id = ?", f.provider.ID).Count(&count)
	assert.Zero(t, count)
}

func TestConfirmDeleteRemovesImageAttachedDuringDeletion(t *testing.T) {
	f := newModerationFixture(t)
	ctx := context.Background()

	preview, err := f.svc.PreviewDelete(ctx, actorFor(f.admin), f.provider.ID)
	require.NoError(t, err)

	offerings := NewOfferingService(f.db, f.clock, NewOfferingImages(f.store))
	var lateKey string
	clk := &onFirstNow{Clock: f.clock, fn: func() {
		attached, err := offerings.AttachImage(ctx, actorFor(f.provider), f.offering.ID, newFileHeader(t, "late.png", testPNG))
		require.NoError(t, err)
		lateKey = *attached.ImageS3Key
	}}
	svc := NewModerationService(f.db, clk, f.events, NewOfferingImages(f.store), 10*time.Minute)

	_, err = svc.ConfirmDelete(ctx, actorFor(f.admin), f.provider.ID, preview.Token, true)
	require.NoError(t, err)

	require.NotEmpty(t, lateKey)
	assert.False(t, f.store.Exists(lateKey), "image attached before the commit is removed")
}
