package middleware

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laundryos/auth-api/internal/models"
	appErrors "github.com/laundryos/auth-api/pkg/errors"
)

type stubParser struct {
	claims *models.JWTClaims
	err    error
}

func (s *stubParser) Parse(tokenString string) (*models.JWTClaims, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.claims, nil
}

type stubBlacklist struct {
	denied bool
	err    error
}

func (s *stubBlacklist) Contains(ctx context.Context, jti string) (bool, error) {
	return s.denied, s.err
}

type stubUsers struct {
	user *models.User
	err  error
}

func (s *stubUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.user, nil
}

func validClaims() *models.JWTClaims {
	return &models.JWTClaims{
		Role:         "customer",
		TokenVersion: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "u1",
			ID:      "jti-1",
		},
	}
}

func activeUser() *models.User {
	return &models.User{ID: "u1", Role: "customer", TokenVersion: 1, IsActive: true}
}

func serve(t *testing.T, parser *stubParser, blacklist *stubBlacklist, users *stubUsers, header string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/protected", JWT(parser, blacklist, users, nil), func(c *gin.Context) {
		user, ok := CurrentUser(c)
		require.True(t, ok)
		claims, ok := CurrentClaims(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"user_id": user.ID, "jti": claims.ID, "token": CurrentToken(c)})
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTMissingHeader(t *testing.T) {
	w := serve(t, &stubParser{claims: validClaims()}, &stubBlacklist{}, &stubUsers{user: activeUser()}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTMalformedHeader(t *testing.T) {
	w := serve(t, &stubParser{claims: validClaims()}, &stubBlacklist{}, &stubUsers{user: activeUser()}, "Token abc")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTInvalidToken(t *testing.T) {
	parser := &stubParser{err: appErrors.Clone(appErrors.ErrInvalidToken, "")}
	w := serve(t, parser, &stubBlacklist{}, &stubUsers{user: activeUser()}, "Bearer bad")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTBlacklistedToken(t *testing.T) {
	w := serve(t, &stubParser{claims: validClaims()}, &stubBlacklist{denied: true}, &stubUsers{user: activeUser()}, "Bearer good")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTBlacklistFailureFailsOpen(t *testing.T) {
	blacklist := &stubBlacklist{err: assert.AnError}
	w := serve(t, &stubParser{claims: validClaims()}, blacklist, &stubUsers{user: activeUser()}, "Bearer good")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJWTUnknownSubject(t *testing.T) {
	w := serve(t, &stubParser{claims: validClaims()}, &stubBlacklist{}, &stubUsers{err: sql.ErrNoRows}, "Bearer good")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTBannedAccount(t *testing.T) {
	reason := "terms violation"
	user := activeUser()
	user.IsActive = false
	user.BannedReason = &reason
	w := serve(t, &stubParser{claims: validClaims()}, &stubBlacklist{}, &stubUsers{user: user}, "Bearer good")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), reason)
}

func TestJWTStaleTokenVersion(t *testing.T) {
	user := activeUser()
	user.TokenVersion = 2
	w := serve(t, &stubParser{claims: validClaims()}, &stubBlacklist{}, &stubUsers{user: user}, "Bearer good")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTValidTokenPopulatesContext(t *testing.T) {
	w := serve(t, &stubParser{claims: validClaims()}, &stubBlacklist{}, &stubUsers{user: activeUser()}, "Bearer good")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":"u1"`)
	assert.Contains(t, w.Body.String(), `"jti":"jti-1"`)
	assert.Contains(t, w.Body.String(), `"token":"good"`)
}

func TestRequireDeviceID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/login", RequireDeviceID(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/login", nil)
	req.Header.Set(HeaderDeviceID, "dev-1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeviceContextReadsHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/login", nil)
	c.Request.Header.Set(HeaderDeviceID, "dev-1")
	c.Request.Header.Set(HeaderPlatform, "ios")
	c.Request.Header.Set("User-Agent", "test-agent")

	ctx := DeviceContext(c)
	assert.Equal(t, "dev-1", ctx.DeviceID)
	require.NotNil(t, ctx.Platform)
	assert.Equal(t, "ios", *ctx.Platform)
	assert.Nil(t, ctx.Browser)
	assert.Equal(t, "test-agent", ctx.UserAgent)
}
