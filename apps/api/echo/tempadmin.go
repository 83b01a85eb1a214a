package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/tempadmin"
)

type tempAdminApi struct {
	deps ServerDeps
}

func registerTempAdminAPI(g *echo.Group, jwt, gate echo.MiddlewareFunc, deps ServerDeps) {
	api := tempAdminApi{deps: deps}
	limiter := newIPRateLimiter(deps.Conf.TempAdmin.CleanupRateLimit, deps.Conf.TempAdmin.CleanupBurst)

	tg := g.Group("/temp-admins")

	// machine endpoint: shared cleanup token instead of a user session
	tg.POST("/cleanup", api.cleanup, limiter.middleware(), cleanupTokenMiddleware(deps.Conf))

	// primary admins only
	ag := tg.Group("", jwt, gate, primaryAdminMiddleware(deps.UserSvc))
	ag.GET("", api.query)
	ag.POST("/create", api.create)
	ag.POST("/revoke", api.revoke)
	ag.GET("/:id/audit", api.auditTrail)
}

// Handlers

func (api *tempAdminApi) create(ctx echo.Context) error {
	var data CreateTempAdminRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CreateTempAdminRequest")
	}
	if core.CleanString(data.CreatedBy) == "" {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		data.CreatedBy = claims.Subject
	}

	grant, pwd, err := api.deps.TempAdmins.Create(ctx.Request().Context(), tempadmin.NewGrant{
		Email:       data.Email,
		Password:    data.Password,
		ExpiresAt:   data.ExpiresAt,
		Permissions: data.Permissions,
		CreatedBy:   data.CreatedBy,
		Reason:      data.Reason,
	})
	if err != nil {
		return errors.Wrap(err, "creating temp admin")
	}

	return ctx.JSON(http.StatusOK, CreateTempAdminResponse{
		Success:   true,
		TempAdmin: newGrantResponse(grant),
		Password:  pwd,
	})
}

func (api *tempAdminApi) revoke(ctx echo.Context) error {
	var data tempadmin.Revocation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Revocation")
	}
	if core.CleanString(data.RevokedBy) == "" {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		data.RevokedBy = claims.Subject
	}

	if err := api.deps.TempAdmins.Revoke(ctx.Request().Context(), data.GrantID, data.RevokedBy, data.Reason); err != nil {
		return errors.Wrap(err, "revoking temp admin")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (api *tempAdminApi) cleanup(ctx echo.Context) error {
	count, err := api.deps.TempAdmins.SweepExpired(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "sweeping expired temp admins")
	}
	return ctx.JSON(http.StatusOK, CleanupResponse{Success: true, CleanedCount: count})
}

func (api *tempAdminApi) query(ctx echo.Context) error {
	includeInactive, _ := strconv.ParseBool(ctx.QueryParam("include_inactive"))

	grants, err := api.deps.TempAdmins.List(ctx.Request().Context(), includeInactive)
	if err != nil {
		return errors.Wrap(err, "listing temp admins")
	}

	resp := ListTempAdminsResponse{Success: true, TempAdmins: make([]GrantResponse, 0, len(grants))}
	for _, g := range grants {
		resp.TempAdmins = append(resp.TempAdmins, newGrantResponse(g))
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *tempAdminApi) auditTrail(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	id := ctx.Param("id")

	if _, err := api.deps.TempAdmins.Get(reqCtx, id); err != nil {
		return errors.Wrap(err, "getting temp admin")
	}
	events, err := api.deps.TempAdmins.AuditTrail(reqCtx, id)
	if err != nil {
		return errors.Wrap(err, "getting audit trail")
	}
	if events == nil {
		events = []tempadmin.AuditEvent{}
	}
	return ctx.JSON(http.StatusOK, AuditTrailResponse{Success: true, Events: events})
}

type (
	CreateTempAdminRequest struct {
		Email       string    `json:"email"`
		Password    string    `json:"password"`
		ExpiresAt   time.Time `json:"expiresAt"`
		Permissions []string  `json:"permissions"`
		CreatedBy   string    `json:"createdBy"`
		Reason      string    `json:"reason"`
	}

	// GrantResponse is a Grant with its display status.
	GrantResponse struct {
		tempadmin.Grant
		Status string `json:"status"`
	}

	CreateTempAdminResponse struct {
		Success   bool          `json:"success"`
		TempAdmin GrantResponse `json:"tempAdmin"`
		// Password is only set when it was generated, and is never returned again.
		Password string `json:"password,omitempty"`
	}

	ListTempAdminsResponse struct {
		Success    bool            `json:"success"`
		TempAdmins []GrantResponse `json:"tempAdmins"`
	}

	AuditTrailResponse struct {
		Success bool                   `json:"success"`
		Events  []tempadmin.AuditEvent `json:"events"`
	}

	CleanupResponse struct {
		Success      bool `json:"success"`
		CleanedCount int  `json:"cleanedCount"`
	}
)

func newGrantResponse(g tempadmin.Grant) GrantResponse {
	return GrantResponse{Grant: g, Status: g.Status(tempadmin.NowFunc())}
}
