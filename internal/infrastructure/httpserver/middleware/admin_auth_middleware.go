package middleware

import (
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/order-quota/internal/infrastructure/httpserver/helpers"
)

// AdminRole is the role claim required on admin bearer tokens.
const AdminRole = "admin"

// AdminClaims are the claims carried by admin bearer tokens.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type AdminAuthMiddleware struct {
	secret []byte
	logger *logrus.Logger
}

func NewAdminAuthMiddleware(jwtSecret string, logger *logrus.Logger) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{secret: []byte(jwtSecret), logger: logger}
}

// RequireAdmin validates an HS256 bearer token with role=admin and sets the actor context
func (m *AdminAuthMiddleware) RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString, err := helpers.GetJWTTokenFromContext(c)
			if err != nil {
				return err
			}

			claims, err := m.parse(tokenString)
			if err != nil {
				if m.logger != nil {
					m.logger.WithFields(logrus.Fields{"ip": c.RealIP(), "path": c.Request().URL.Path, "error": err.Error()}).Warn("admin token validation failed")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}
			if claims.Role != AdminRole {
				return echo.NewHTTPError(http.StatusForbidden, "admin role required")
			}

			actor := claims.Subject
			if actor == "" {
				actor = AdminRole
			}
			helpers.SetActor(c, actor)

			if m.logger != nil {
				m.logger.WithFields(logrus.Fields{"actor": actor, "path": c.Path()}).Debug("admin token validated")
			}
			return next(c)
		}
	}
}

func (m *AdminAuthMiddleware) parse(tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}
	return claims, nil
}

// IssueAdminToken signs an admin token for subject. Used by operator tooling and tests.
func IssueAdminToken(secret, subject string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = subject
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{Role: AdminRole, RegisteredClaims: claims})
	return token.SignedString([]byte(secret))
}
