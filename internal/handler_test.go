package internal_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koopa0/tictacmoji-server/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHandler_Routes 測試 HTTP 介面
//
// 對外只有 GET /health 一個端點，其餘 HTTP 請求一律 404。
func TestHandler_Routes(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "health check",
			method:         http.MethodGet,
			path:           "/health",
			expectedStatus: http.StatusOK,
			expectedBody:   "OK",
		},
		{
			name:           "health check wrong method",
			method:         http.MethodPost,
			path:           "/health",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "unknown path",
			method:         http.MethodGet,
			path:           "/api/v1/rooms",
			expectedStatus: http.StatusNotFound,
		},
		{
			// 根路徑保留給 WebSocket 升級，普通 HTTP 請求吃 404
			name:           "root without upgrade",
			method:         http.MethodGet,
			path:           "/",
			expectedStatus: http.StatusNotFound,
		},
	}

	logger := newTestLogger()
	manager := internal.NewManager(logger)
	hub := internal.NewHub(manager, logger)
	defer hub.Stop()

	router := internal.NewHandler(logger).Routes(hub)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			require.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.Equal(t, tt.expectedBody, w.Body.String())
			}
		})
	}
}
