package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

const (
	contextTokenKey = "userToken"
	contextUserKey  = "user"
	contextGrantKey = "tempAdminGrant"
	tokenAudience   = "Shule"
)

// Claims represents the authorization claims transmitted via a JWT.
// TempAdmin and its companions are a hint only: temp admin tokens are validated against the store on every request.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt       int64    `json:"oriat,omitempty"`
	Username           string   `json:"username,omitempty"`
	Email              string   `json:"email,omitempty"`
	IsStudent          bool     `json:"is_student,omitempty"` // -> STUDENT PORTAL
	IsParent           bool     `json:"is_parent,omitempty"`  // -> PARENT PORTAL
	IsTeacher          bool     `json:"is_teacher,omitempty"` // -> TEACHER PORTAL
	IsAdmin            bool     `json:"is_admin,omitempty"`   // -> ADMIN PORTAL
	Roles              []string `json:"roles,omitempty"`
	TempAdmin          bool     `json:"temp_admin,omitempty"`
	Permissions        []string `json:"permissions,omitempty"`
	TempAdminExpiresAt int64    `json:"temp_admin_exp,omitempty"`
}

func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// GetUserClaims returns the claims of a token for usr. A temp admin token never outlives its grant.
func GetUserClaims(conf *core.Config, usr user.User) *Claims {
	now := time.Now()
	nownix := now.Unix()
	exp := now.Add(conf.Server.JWTExpirationDelta)

	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:   conf.AppName,
			Subject:  usr.ID,
			Audience: tokenAudience,
			IssuedAt: nownix,
		},
		OrigIssuedAt: nownix,
		Username:     usr.Username,
		Email:        usr.Email,
		IsStudent:    usr.IsStudent(),
		IsParent:     usr.IsParent(),
		IsTeacher:    usr.IsTeacher(),
		IsAdmin:      usr.IsAdmin(),
		Roles:        usr.Roles,
	}
	if usr.IsTempAdmin() {
		claims.TempAdmin = true
		claims.Permissions = usr.Metadata.Permissions
		if expiresAt := usr.Metadata.ExpiresAt; expiresAt != nil {
			claims.TempAdminExpiresAt = expiresAt.Unix()
			if expiresAt.Before(exp) {
				exp = *expiresAt
			}
		}
	}
	claims.ExpiresAt = exp.Unix()
	return claims
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	jwtConf := newJWTConfig(conf)
	method := jwt.GetSigningMethod(jwtConf.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(jwtConf.SigningKey)
	if err != nil {
		return "", errors.New("signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextUser(ctx echo.Context, svc *user.Service, clms ...Claims) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	var claims Claims
	var err error
	if len(clms) > 0 {
		claims = clms[0]
	} else {
		claims, err = getContextClaims(ctx)
		if err != nil {
			return user.User{}, errors.Wrap(err, "getting context claims")
		}
	}

	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

// sessionCookieMiddleware lets browser sessions authenticate with the session cookie
// when no Authorization header is sent.
func sessionCookieMiddleware(conf *core.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			req := ctx.Request()
			if req.Header.Get(echo.HeaderAuthorization) == "" {
				if cookie, err := ctx.Cookie(conf.Server.SessionCookieName); err == nil && cookie.Value != "" {
					req.Header.Set(echo.HeaderAuthorization, middleware.DefaultJWTConfig.AuthScheme+" "+cookie.Value)
				}
			}
			return next(ctx)
		}
	}
}

func setSessionCookie(ctx echo.Context, conf *core.Config, token string, expiresAt time.Time) {
	ctx.SetCookie(&http.Cookie{
		Name:     conf.Server.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   !conf.Debug,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(ctx echo.Context, conf *core.Config) {
	ctx.SetCookie(&http.Cookie{
		Name:     conf.Server.SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !conf.Debug,
		SameSite: http.SameSiteLaxMode,
	})
}

// bearerToken returns the token of an `Authorization: Bearer <token>` header, or "".
func bearerToken(ctx echo.Context) string {
	auth := ctx.Request().Header.Get(echo.HeaderAuthorization)
	scheme := middleware.DefaultJWTConfig.AuthScheme + " "
	if len(auth) > len(scheme) && strings.EqualFold(auth[:len(scheme)], scheme) {
		return auth[len(scheme):]
	}
	return ""
}
