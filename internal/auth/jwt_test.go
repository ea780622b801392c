package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func parse(t *testing.T, raw string) *jwt.Token {
	t.Helper()
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	return token
}

func TestStaffFromContext(t *testing.T) {
	t.Parallel()
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	raw, _, err := GenerateToken(Staff{ID: "u-1", Name: "Alice"}, testSecret, time.Hour)
	require.NoError(t, err)
	c.Set("user", parse(t, raw))

	staff, err := StaffFromContext(c)
	require.NoError(t, err)
	assert.Equal(t, Staff{ID: "u-1", Name: "Alice"}, staff)
	assert.Equal(t, "Alice", staff.Label())
}

func TestStaffLabelFallsBackToID(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "u-2", Staff{ID: "u-2"}.Label())
}

func TestParseToken(t *testing.T) {
	t.Parallel()
	raw, _, err := GenerateToken(Staff{ID: "u-1", Name: "Alice"}, testSecret, time.Hour)
	require.NoError(t, err)

	staff, err := ParseToken("Bearer "+raw, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "u-1", staff.ID)

	_, err = ParseToken(raw, "other-secret")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = ParseToken("", testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	t.Parallel()
	claims := jwt.MapClaims{"sub": "u-1", "exp": time.Now().Add(-time.Minute).Unix()}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = ParseToken(raw, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateTokenValidation(t *testing.T) {
	t.Parallel()
	_, _, err := GenerateToken(Staff{}, testSecret, time.Hour)
	assert.Error(t, err)
	_, _, err = GenerateToken(Staff{ID: "u"}, "", time.Hour)
	assert.Error(t, err)
	_, _, err = GenerateToken(Staff{ID: "u"}, testSecret, 0)
	assert.Error(t, err)
}

func TestRefreshTokenKeepsLifetime(t *testing.T) {
	t.Parallel()
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())

	raw, _, err := GenerateToken(Staff{ID: "u-1", Name: "Alice"}, testSecret, 5*time.Minute)
	require.NoError(t, err)
	c.Set("user", parse(t, raw))

	refreshed, expiresAt, err := RefreshTokenFromContext(c, testSecret, time.Hour)
	require.NoError(t, err)

	claims := parse(t, refreshed).Claims.(jwt.MapClaims)
	iat := int64(claims["iat"].(float64))
	exp := int64(claims["exp"].(float64))
	assert.Equal(t, int64(5*60), exp-iat)
	assert.Equal(t, expiresAt.Unix(), exp)
	assert.Equal(t, "Alice", claims["name"])
}

func TestRefreshTokenMissingUser(t *testing.T) {
	t.Parallel()
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())

	_, _, err := RefreshTokenFromContext(c, testSecret, time.Hour)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	assert.Equal(t, "invalid token", httpErr.Message)
}
