package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/history"
	"relay/internal/httpapi"
	"relay/internal/identity"
	"relay/internal/store/memkv"
)

func newTestServer(t *testing.T) (*httptest.Server, *identity.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	kv := memkv.New()
	identityStore := identity.NewStore(kv)
	jwtSvc := identity.NewJWTService("secret", time.Hour)
	hasher := identity.NewPasswordHasher(4)
	rl := identity.NewLoginRateLimiter(kv, 5, time.Minute)
	identitySvc := identity.NewService(identityStore, jwtSvc, hasher, rl, func() string { return "uid-1" })

	historyStore := history.NewStore(kv, 0)
	historySvc := history.NewService(historyStore, 50, func() string { return "conv-1" })

	engine := gin.New()
	httpapi.RegisterRoutes(engine, identitySvc, historySvc)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv, identitySvc
}

func createUser(t *testing.T, svc *identity.Service, email, password string, role identity.Role) {
	t.Helper()
	hasher := identity.NewPasswordHasher(4)
	hash, err := hasher.Hash(password)
	require.NoError(t, err)
	require.NoError(t, svc.Store().PutWebUser(t.Context(), &identity.WebUser{
		Email: email, PasswordHash: hash, Enabled: true, Role: role,
	}))
}

func doJSON(t *testing.T, method, url, token string, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestLoginThenMe(t *testing.T) {
	srv, identitySvc := newTestServer(t)
	createUser(t, identitySvc, "alice@example.com", "GoodPass1", identity.RoleUser)

	resp := doJSON(t, http.MethodPost, srv.URL+"/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "GoodPass1",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	require.NotEmpty(t, login.Token)

	meResp := doJSON(t, http.MethodGet, srv.URL+"/auth/me", login.Token, nil)
	defer meResp.Body.Close()
	assert.Equal(t, http.StatusOK, meResp.StatusCode)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	srv, identitySvc := newTestServer(t)
	createUser(t, identitySvc, "alice@example.com", "GoodPass1", identity.RoleUser)

	resp := doJSON(t, http.MethodPost, srv.URL+"/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProtectedRouteRejectsMissingToken(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/auth/me", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminRouteRequiresAdminRole(t *testing.T) {
	srv, identitySvc := newTestServer(t)
	createUser(t, identitySvc, "bob@example.com", "GoodPass1", identity.RoleUser)

	resp := doJSON(t, http.MethodPost, srv.URL+"/auth/login", "", map[string]string{
		"email": "bob@example.com", "password": "GoodPass1",
	})
	defer resp.Body.Close()
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))

	adminResp := doJSON(t, http.MethodGet, srv.URL+"/admin/users", login.Token, nil)
	defer adminResp.Body.Close()
	assert.Equal(t, http.StatusForbidden, adminResp.StatusCode)
}

func TestAdminCanCreateAndListUsers(t *testing.T) {
	srv, identitySvc := newTestServer(t)
	createUser(t, identitySvc, "root@example.com", "GoodPass1", identity.RoleAdmin)

	resp := doJSON(t, http.MethodPost, srv.URL+"/auth/login", "", map[string]string{
		"email": "root@example.com", "password": "GoodPass1",
	})
	defer resp.Body.Close()
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))

	createResp := doJSON(t, http.MethodPost, srv.URL+"/admin/users", login.Token, map[string]string{
		"email": "new@example.com", "password": "GoodPass1",
	})
	defer createResp.Body.Close()
	require.Equal(t, http.StatusCreated, createResp.StatusCode)

	listResp := doJSON(t, http.MethodGet, srv.URL+"/admin/users", login.Token, nil)
	defer listResp.Body.Close()
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var users []map[string]interface{}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&users))
	assert.GreaterOrEqual(t, len(users), 2)
}

func TestConversationCreateAndList(t *testing.T) {
	srv, identitySvc := newTestServer(t)
	createUser(t, identitySvc, "alice@example.com", "GoodPass1", identity.RoleUser)

	resp := doJSON(t, http.MethodPost, srv.URL+"/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "GoodPass1",
	})
	defer resp.Body.Close()
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))

	createResp := doJSON(t, http.MethodPost, srv.URL+"/conversations", login.Token, map[string]string{"title": "hi"})
	defer createResp.Body.Close()
	require.Equal(t, http.StatusCreated, createResp.StatusCode)

	listResp := doJSON(t, http.MethodGet, srv.URL+"/conversations", login.Token, nil)
	defer listResp.Body.Close()
	assert.Equal(t, http.StatusOK, listResp.StatusCode)
}
