package echoapi

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/tempadmin"
	"github.com/trezcool/shule/core/user"
)

// primaryAdminMiddleware only lets active admins that are not temporary admins through.
func primaryAdminMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if !claims.IsAdmin || claims.TempAdmin {
				return errHttpForbidden
			}
			usr, err := getContextUser(ctx, svc, claims)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if !usr.IsActive || !usr.IsPrimaryAdmin() {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// tempAdminGate validates temporary admin sessions against the store on every request.
// A session whose grant is no longer valid, or that cannot be validated, is logged out.
func tempAdminGate(mgr *tempadmin.Manager, conf *core.Config, logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if !claims.TempAdmin {
				return next(ctx)
			}

			v, err := mgr.Validate(ctx.Request().Context(), claims.Subject)
			if err != nil {
				logger.Error(fmt.Sprintf("validating temp admin %s: %v", claims.Subject, err), err)
			}
			if err != nil || !v.IsValid {
				clearSessionCookie(ctx, conf)
				return ctx.Redirect(http.StatusSeeOther, conf.Server.SignInPath)
			}
			ctx.Set(contextGrantKey, *v.Grant)
			return next(ctx)
		}
	}
}

// cleanupTokenMiddleware requires `Authorization: Bearer <cleanup token>`. An empty configured token rejects everything.
func cleanupTokenMiddleware(conf *core.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			expected := conf.TempAdmin.CleanupToken
			token := bearerToken(ctx)
			if expected == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}
