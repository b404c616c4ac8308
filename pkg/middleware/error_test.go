package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smallbiznis-affiliate/pkg/errutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, handler gin.HandlerFunc) (*httptest.ResponseRecorder, map[string]map[string]any) {
	t.Helper()

	r := gin.New()
	r.Use(Error())
	r.GET("/", handler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var body map[string]map[string]any
	if w.Code >= http.StatusBadRequest {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestErrorRendersBaseError(t *testing.T) {
	w, body := serve(t, func(c *gin.Context) {
		_ = c.Error(errutil.Conflict("duplicate", nil, errutil.WithReason("DUPLICATE_CONVERSION")))
	})

	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "CONFLICT", body["error"]["code"])
	require.Equal(t, "DUPLICATE_CONVERSION", body["error"]["reason"])
	require.Equal(t, "duplicate", body["error"]["message"])
}

func TestErrorHidesUnknownErrors(t *testing.T) {
	w, body := serve(t, func(c *gin.Context) {
		_ = c.Error(errors.New("pq: password authentication failed"))
	})

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "internal error", body["error"]["message"])
}

func TestErrorLeavesWrittenResponses(t *testing.T) {
	w, _ := serve(t, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"ok":true}`, w.Body.String())
}
