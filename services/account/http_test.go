package account

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"smallbiznis-affiliate/pkg/middleware"
	"smallbiznis-affiliate/services/internal/errkind"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(svc *Service) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Error())
	NewHandler(svc).Register(r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func reason(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Reason string `json:"reason"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Reason
}

func TestHTTPAccountLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	r := newRouter(svc)

	w := do(r, http.MethodPost, "/v1/accounts", `{"name":"Root Partner"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var root Account
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &root))

	w = do(r, http.MethodPost, "/v1/accounts", `{"name":"Child","referrer_code":"`+root.Code+`"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var child Account
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &child))

	w = do(r, http.MethodGet, "/v1/affiliates/"+root.Code, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/v1/accounts/"+child.ID+"/upline?depth=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var upline struct {
		Data []Account `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &upline))
	require.Len(t, upline.Data, 1)
	require.Equal(t, root.ID, upline.Data[0].ID)

	w = do(r, http.MethodGet, "/v1/accounts/"+root.ID+"/downline", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/v1/accounts/"+child.ID+"/suspend", "")
	require.Equal(t, http.StatusOK, w.Code)
	var suspended Account
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &suspended))
	require.Equal(t, StatusSuspended, suspended.Status)

	w = do(r, http.MethodPut, "/v1/accounts/"+root.ID+"/referrer", `{"referrer_code":"`+child.Code+`"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, errkind.ReasonReferralCycleDetected, reason(t, w))
}

func TestHTTPAccountErrors(t *testing.T) {
	svc, _, _ := newTestService(t)
	r := newRouter(svc)

	w := do(r, http.MethodPost, "/v1/accounts", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, errkind.ReasonInvalidArgument, reason(t, w))

	w = do(r, http.MethodGet, "/v1/accounts/missing", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, errkind.ReasonUnknownAffiliate, reason(t, w))

	w = do(r, http.MethodGet, "/v1/accounts/missing/upline?depth=1000", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}
