package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/tempadmin"
	"github.com/trezcool/shule/core/user"
)

type userApi struct {
	deps ServerDeps
}

func registerUserAPI(g *echo.Group, jwt, gate echo.MiddlewareFunc, deps ServerDeps) {
	api := userApi{deps: deps}

	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/login", api.login)
	ug.POST("/logout", api.logout)

	// authed endpoints
	ag := ug.Group("", jwt, gate)
	ag.GET("/me", api.me)
}

// Handlers

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	data.Username = core.CleanString(data.Username, true /* lower */)
	if err := api.deps.Validate.Struct(data); err != nil {
		return core.NewStructValidationError(err, api.deps.Translator)
	}

	claims, err := api.authenticate(ctx, data.Username, data.Password)
	if err != nil {
		return err
	}
	token, err := GenerateToken(api.deps.Conf, claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	setSessionCookie(ctx, api.deps.Conf, token, time.Unix(claims.ExpiresAt, 0))
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

// authenticate checks the credentials. Temporary admins must also hold a valid grant.
func (api *userApi) authenticate(ctx echo.Context, uname, pwd string) (*Claims, error) {
	reqCtx := ctx.Request().Context()

	usr, err := api.deps.UserSvc.GetByUsernameOrEmail(reqCtx, uname)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return nil, errAuthenticationFailed
		}
		return nil, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return nil, errAuthenticationFailed
	}
	if !usr.IsActive {
		return nil, errAccountDeactivated
	}

	if usr.IsTempAdmin() {
		v, err := api.deps.TempAdmins.Validate(reqCtx, usr.ID)
		if err != nil {
			return nil, errors.Wrap(err, "validating temp admin")
		}
		if !v.IsValid {
			return nil, errAccountDeactivated
		}
	}

	usr, err = api.deps.UserSvc.SetLastLogin(reqCtx, usr)
	if err != nil {
		return nil, errors.Wrap(err, "setting lastLogin")
	}
	return GetUserClaims(api.deps.Conf, usr), nil
}

func (api *userApi) logout(ctx echo.Context) error {
	clearSessionCookie(ctx, api.deps.Conf)
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	resp := MeResponse{User: usr}
	if grant, ok := ctx.Get(contextGrantKey).(tempadmin.Grant); ok {
		resp.TempAdmin = &grant
	}
	return ctx.JSON(http.StatusOK, resp)
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	SuccessResponse struct {
		Success bool `json:"success"`
	}

	MeResponse struct {
		user.User
		TempAdmin *tempadmin.Grant `json:"tempAdmin,omitempty"`
	}
)
