package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestInternalHidesCause(t *testing.T) {
	var logs bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&logs, nil))
	c, w := testContext()

	Internal(c, log, "list conversations", errors.New("disk I/O error"), "user", int64(7))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "db error", body["error"])
	assert.NotContains(t, w.Body.String(), "disk")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	assert.Equal(t, "list conversations", entry["msg"])
	assert.Equal(t, "disk I/O error", entry["err"])
	assert.EqualValues(t, 7, entry["user"])
}

func TestErrWithFieldMap(t *testing.T) {
	c, w := testContext()
	Err(c, http.StatusBadRequest, map[string]string{"limit": "must be at most 100"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":{"limit":"must be at most 100"}}`, w.Body.String())
}
