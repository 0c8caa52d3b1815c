package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicore/permcore/internal/adapters/httpapi/middleware"
	"github.com/replicore/permcore/internal/permissions/domain"
	"github.com/replicore/permcore/internal/platform/apperror"
	"github.com/replicore/permcore/internal/platform/logger"
)

func testBase() *BaseHandler {
	return NewBaseHandler(logger.NewBootstrapLogger())
}

func TestWriteJSONError(t *testing.T) {
	h := testBase()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	h.WriteJSONError(w, r, "invalid_request", "bad transaction", http.StatusBadRequest)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "invalid_request", body["error"])
	assert.Equal(t, "bad transaction", body["message"])
}

func TestWriteJSONResponse(t *testing.T) {
	h := testBase()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	h.WriteJSONResponse(w, r, map[string]string{"status": "ok"}, http.StatusCreated)

	assert.Equal(t, http.StatusCreated, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantBizCode string
	}{
		{
			name: "app error carries its status and codes",
			err: apperror.New(apperror.CodeDenied, apperror.BusinessCodePermissionDenied,
				"permissions: user does not have permission to UPDATE \"public\".\"issue\"", http.StatusForbidden),
			wantStatus:  http.StatusForbidden,
			wantCode:    string(apperror.CodeDenied),
			wantBizCode: string(apperror.BusinessCodePermissionDenied),
		},
		{
			name: "evaluation failure maps to 422",
			err: apperror.New(apperror.CodeEvaluationFailed, apperror.BusinessCodeCheckEvaluationFailed,
				"check evaluation failed", http.StatusUnprocessableEntity),
			wantStatus:  http.StatusUnprocessableEntity,
			wantCode:    string(apperror.CodeEvaluationFailed),
			wantBizCode: string(apperror.BusinessCodeCheckEvaluationFailed),
		},
		{
			name:       "unknown error becomes a generic 500",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_SERVER_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testBase()
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", nil)

			h.HandleError(w, r, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body["error"])
			if tt.wantBizCode != "" {
				assert.Equal(t, tt.wantBizCode, body["business_code"])
			}
		})
	}
}

func TestAuthFromContext(t *testing.T) {
	h := testBase()

	// Without middleware the session is anonymous rather than an error.
	bare := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, h.AuthFromContext(bare).UserID)

	userID := "u1"
	authed := bare.WithContext(middleware.SetAuth(bare.Context(), domain.Auth{UserID: &userID}))
	got := h.AuthFromContext(authed)
	require.NotNil(t, got.UserID)
	assert.Equal(t, "u1", *got.UserID)
}
