package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thehanda/countcam-app/pkg/models"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

type staticUsers map[string]string

func (s staticUsers) CheckUserCredentials(username, password string) (*models.User, bool) {
	if pw, ok := s[username]; ok && pw == password {
		return &models.User{ID: 1, Username: username, IsAdmin: username == "admin"}, true
	}
	return nil, false
}

func newTestAuth() *Authenticator {
	return New([]byte("test-secret"), staticUsers{"admin": "pw", "guard": "pw"}, zap.NewNop())
}

func TestGenerateAndValidateJWT(t *testing.T) {
	a := newTestAuth()
	user := &models.User{ID: 1, Username: "testuser", IsAdmin: false}

	tokenString, err := a.GenerateJWT(user)
	require.NoError(t, err)
	assert.NotEmpty(t, tokenString)

	claims, err := a.ValidateJWT(tokenString)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Username, claims.Username)
	assert.Equal(t, user.IsAdmin, claims.IsAdmin)

	other := New([]byte("other-secret"), nil, zap.NewNop())
	_, err = other.ValidateJWT(tokenString)
	assert.Error(t, err)
}

func TestExpiredJWT(t *testing.T) {
	a := newTestAuth()
	a.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	token, err := a.GenerateJWT(&models.User{ID: 1, Username: "old"})
	require.NoError(t, err)

	a.now = time.Now
	_, err = a.ValidateJWT(token)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	a := newTestAuth()
	r := gin.New()
	r.Use(a.Middleware())
	r.GET("/", func(c *gin.Context) {
		user, ok := CurrentUser(c)
		require.True(t, ok)
		c.String(http.StatusOK, user.Username)
	})

	// No token provided
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _ := a.GenerateJWT(&models.User{ID: 1, Username: "test"})

	// Valid token in header
	req, _ = http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "test", w.Body.String())

	// Valid token in cookie
	req, _ = http.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Valid token in query, as sent by WebSocket clients
	req, _ = http.NewRequest(http.MethodGet, "/?token="+url.QueryEscape(token), nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Invalid token clears the cookie
	req, _ = http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("Set-Cookie"), CookieName+"=;")
}

func TestAdminOnlyMiddleware(t *testing.T) {
	withUser := func(user *models.User) *gin.Engine {
		r := gin.New()
		r.Use(func(c *gin.Context) {
			if user != nil {
				c.Set(userKey, user)
			}
			c.Next()
		})
		r.Use(AdminOnlyMiddleware())
		r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
		return r
	}

	for _, tc := range []struct {
		name string
		user *models.User
		code int
	}{
		{"admin", &models.User{ID: 1, Username: "admin", IsAdmin: true}, http.StatusOK},
		{"non-admin", &models.User{ID: 2, Username: "user"}, http.StatusForbidden},
		{"no user", nil, http.StatusForbidden},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "/", nil)
			w := httptest.NewRecorder()
			withUser(tc.user).ServeHTTP(w, req)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestLoginHandler(t *testing.T) {
	a := newTestAuth()
	r := gin.New()
	r.POST("/api/login", a.LoginHandler)

	// JSON credentials
	req, _ := http.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"admin","password":"pw"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Token string       `json:"token"`
		User  *models.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Token)
	assert.True(t, body.User.IsAdmin)
	assert.Contains(t, w.Header().Get("Set-Cookie"), CookieName+"="+body.Token)

	claims, err := a.ValidateJWT(body.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)

	// Form credentials, wrong password
	form := url.Values{"username": {"guard"}, "password": {"nope"}}
	req, _ = http.NewRequest(http.MethodPost, "/api/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Missing fields
	req, _ = http.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogoutHandler(t *testing.T) {
	r := gin.New()
	r.GET("/logout", LogoutHandler)

	req, _ := http.NewRequest(http.MethodGet, "/logout", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	cookie := w.Header().Get("Set-Cookie")
	assert.True(t, strings.Contains(cookie, CookieName+"=;"))
	assert.True(t, strings.Contains(cookie, "Max-Age=0"))
}
