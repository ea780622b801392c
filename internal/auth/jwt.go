// Package auth issues and checks staff JWTs.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	claimSubject = "sub"
	claimStaffID = "staff_id"
	claimName    = "name"
	claimType    = "typ"
	staffType    = "staff"
)

var ErrInvalidToken = errors.New("invalid token")

// Staff is the console user behind a request.
type Staff struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Label is the name recorded as session owner.
func (s Staff) Label() string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	return strings.TrimSpace(s.ID)
}

// JWTMiddleware returns a JWT auth middleware configured for HS256 tokens.
// Websocket clients pass the token as a query parameter.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: "HS256",
		TokenLookup:   "header:Authorization:Bearer ,query:token",
		Skipper:       skipper,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
	})
}

// StaffFromContext extracts the staff identity set by JWTMiddleware.
func StaffFromContext(c echo.Context) (Staff, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return Staff{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Staff{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	staff, err := staffFromClaims(claims)
	if err != nil {
		return Staff{}, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	return staff, nil
}

// ParseToken validates a raw token outside the middleware chain.
func ParseToken(raw, secret string) (Staff, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	if raw == "" {
		return Staff{}, ErrInvalidToken
	}
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Staff{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Staff{}, ErrInvalidToken
	}
	return staffFromClaims(claims)
}

func staffFromClaims(claims jwt.MapClaims) (Staff, error) {
	id := claimString(claims, claimStaffID)
	if id == "" {
		id = claimString(claims, claimSubject)
	}
	if id == "" {
		return Staff{}, fmt.Errorf("%w: staff id missing", ErrInvalidToken)
	}
	if typ := claimString(claims, claimType); typ != "" && typ != staffType {
		return Staff{}, fmt.Errorf("%w: unexpected token type %q", ErrInvalidToken, typ)
	}
	return Staff{ID: id, Name: claimString(claims, claimName)}, nil
}

// GenerateToken creates a signed JWT for a staff member.
func GenerateToken(staff Staff, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(staff.ID) == "" {
		return "", time.Time{}, fmt.Errorf("staff id is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		claimSubject: staff.ID,
		claimStaffID: staff.ID,
		claimName:    strings.TrimSpace(staff.Name),
		claimType:    staffType,
		"iat":        now.Unix(),
		"exp":        expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// RefreshTokenFromContext reissues the caller's token with the same lifetime
// it was originally granted, or fallback when that cannot be determined.
func RefreshTokenFromContext(c echo.Context, secret string, fallback time.Duration) (string, time.Time, error) {
	staff, err := StaffFromContext(c)
	if err != nil {
		return "", time.Time{}, err
	}
	token := c.Get("user").(*jwt.Token)
	lifetime := fallback
	if claims, ok := token.Claims.(jwt.MapClaims); ok {
		iat, errIat := claims.GetIssuedAt()
		exp, errExp := claims.GetExpirationTime()
		if errIat == nil && errExp == nil && iat != nil && exp != nil {
			if d := exp.Sub(iat.Time); d > 0 {
				lifetime = d
			}
		}
	}
	return GenerateToken(staff, secret, lifetime)
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(raw)
	}
}
