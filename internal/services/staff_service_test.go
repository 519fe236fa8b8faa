package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/campuspay/backend/internal/middleware"
	"github.com/campuspay/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestStaffService_HandleDirectory(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewStaffService(db)

	dbMock.ExpectQuery("FROM staff_profiles sp").
		WillReturnRows(sqlmock.NewRows([]string{
			"user_id", "full_name", "payment_handle", "phone", "experience", "image_url",
		}).
			AddRow(int64(4), "Asha Verma", "asha4821.campus", "9876543210", "Canteen, 3 years", "https://img.example/asha.png").
			AddRow(int64(7), "Ravi Kumar", "ravi1204.campus", "", "", ""))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/staff", nil)
	rec := httptest.NewRecorder()

	service.HandleDirectory(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Success bool                  `json:"success"`
		Staff   []models.StaffProfile `json:"staff"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Len(t, body.Staff, 2)
	assert.Equal(t, "asha4821.campus", body.Staff[0].PaymentHandle)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestStaffService_HandleUpdateDetails(t *testing.T) {
	t.Run("upserts the caller's profile", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewStaffService(db)

		dbMock.ExpectExec("INSERT INTO staff_profiles").
			WithArgs(int64(4), "9876543210", "Canteen, 3 years", "https://img.example/asha.png", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		body := `{"phone":"9876543210","experience":"Canteen, 3 years","imageUrl":"https://img.example/asha.png"}`
		req := httptest.NewRequest(http.MethodPut, "/api/v1/staff/me", strings.NewReader(body))
		req = req.WithContext(middleware.WithUserID(req.Context(), 4))
		rec := httptest.NewRecorder()

		service.HandleUpdateDetails(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("rejects a malformed image url", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewStaffService(db)

		body := `{"imageUrl":"not a url"}`
		req := httptest.NewRequest(http.MethodPut, "/api/v1/staff/me", strings.NewReader(body))
		req = req.WithContext(middleware.WithUserID(req.Context(), 4))
		rec := httptest.NewRecorder()

		service.HandleUpdateDetails(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("requires auth", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewStaffService(db)

		req := httptest.NewRequest(http.MethodPut, "/api/v1/staff/me", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()

		service.HandleUpdateDetails(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
