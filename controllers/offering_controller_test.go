package controllers

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kendall-kelly/service-spot-api/models"
	"github.com/kendall-kelly/service-spot-api/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

func (f *apiFixture) upload(t *testing.T, path, token, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if filename != "" {
		part, err := writer.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1"+path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestCreateAndListOfferings(t *testing.T) {
	f := newAPIFixture(t)
	provider := testutil.CreatePrincipal(t, f.db, models.RoleProvider, "pat@example.com")
	customer := testutil.CreatePrincipal(t, f.db, models.RoleCustomer, "cam@example.com")
	providerToken := f.login(t, provider)

	req := CreateOfferingRequest{Title: "Gutter clearing", Description: "Two storeys max", BasePrice: 65, DurationMinutes: 90}

	w := f.request(t, http.MethodPost, "/offerings", f.login(t, customer), req)
	requireError(t, w, http.StatusForbidden, "FORBIDDEN")

	w = f.request(t, http.MethodPost, "/offerings", providerToken, CreateOfferingRequest{Title: " ", BasePrice: 10, DurationMinutes: 30})
	requireError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	w = f.request(t, http.MethodPost, "/offerings", providerToken, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.ServiceOffering
	decodeData(t, w, &created)
	assert.Equal(t, provider.ID, created.ProviderID)

	var fetched models.ServiceOffering
	decodeData(t, f.request(t, http.MethodGet, fmt.Sprintf("/offerings/%d", created.ID), "", nil), &fetched)
	assert.Equal(t, "Gutter clearing", fetched.Title)

	w = f.request(t, http.MethodGet, "/offerings/9999", "", nil)
	requireError(t, w, http.StatusNotFound, "NOT_FOUND")

	var listed []models.ServiceOffering
	decodeData(t, f.request(t, http.MethodGet, fmt.Sprintf("/providers/%d/offerings", provider.ID), "", nil), &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)
}

func TestUploadOfferingImage(t *testing.T) {
	f := newAPIFixture(t)
	provider := testutil.CreatePrincipal(t, f.db, models.RoleProvider, "pat@example.com")
	rival := testutil.CreatePrincipal(t, f.db, models.RoleProvider, "rival@example.com")
	offering := testutil.CreateOffering(t, f.db, provider, "Hedge trimming", 40)
	path := fmt.Sprintf("/offerings/%d/image", offering.ID)
	token := f.login(t, provider)

	w := f.upload(t, path, f.login(t, rival), "hedge.png", pngBytes)
	requireError(t, w, http.StatusForbidden, "FORBIDDEN")

	w = f.upload(t, path, token, "", nil)
	requireError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	w = f.upload(t, path, token, "hedge.png", []byte("plain text pretending to be a png"))
	requireError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	w = f.upload(t, path, token, "hedge.png", pngBytes)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var updated models.ServiceOffering
	decodeData(t, w, &updated)
	require.NotNil(t, updated.ImageS3Key)
	require.NotNil(t, updated.ImageURL)
	assert.True(t, f.store.Exists(*updated.ImageS3Key))
}
