package tests

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core/tempadmin"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/services/email"
	"github.com/trezcool/shule/tests"
)

func createAdmins(t *testing.T, env *testEnv) (admin, teacher user.User) {
	admin = testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	teacher = testutil.CreateUser(t, env.usrRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	return admin, teacher
}

func Test_tempAdminApi_create_errors(t *testing.T) {
	env := setup(t)
	admin, teacher := createAdmins(t, env)
	adminToken := getToken(t, admin)
	_, tempUsr := createTempAdmin(t, env, "existing@test.cd", time.Hour)

	path := "/v1/temp-admins/create"
	valid := CreateTempAdminRequest{
		Email:       "new@test.cd",
		ExpiresAt:   time.Now().Add(24 * time.Hour),
		Permissions: []string{tempadmin.PermissionAdmin},
		Reason:      "exams",
	}
	with := func(fn func(r *CreateTempAdminRequest)) []byte {
		r := valid
		fn(&r)
		return marchallObj(t, r)
	}

	required := "this field is required"
	runHTTPTests(t, env, []httpTest{
		{name: "auth required", method: http.MethodPost, path: path, body: marchallObj(t, valid), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", method: http.MethodPost, path: path, body: marchallObj(t, valid), token: getToken(t, teacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "temp admins cannot create temp admins", method: http.MethodPost, path: path, body: marchallObj(t, valid), token: getToken(t, tempUsr),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "empty body", method: http.MethodPost, path: path, body: []byte(`{}`), token: adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, ErrorResponse{
				Error: "invalid input",
				Fields: map[string]string{
					"email":       required,
					"expiresAt":   required,
					"permissions": required,
					"reason":      required,
				},
			}),
		},
		{
			name: "unknown permission", method: http.MethodPost, path: path, token: adminToken,
			body:     with(func(r *CreateTempAdminRequest) { r.Permissions = []string{"admin", "lol"} }),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, ErrorResponse{
				Error:  "invalid input",
				Fields: map[string]string{"permissions": "permissions must be any of admin, teacher, student or parent"},
			}),
		},
		{
			name: "expiry in the past", method: http.MethodPost, path: path, token: adminToken,
			body:     with(func(r *CreateTempAdminRequest) { r.ExpiresAt = time.Now().Add(-time.Minute) }),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, ErrorResponse{
				Error:  "expiration date must be in the future",
				Fields: map[string]string{"expiresAt": "expiration date must be in the future"},
			}),
		},
		{
			name: "weak password", method: http.MethodPost, path: path, token: adminToken,
			body:     with(func(r *CreateTempAdminRequest) { r.Password = "short" }),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, ErrorResponse{
				Error:  "password must contain at least 8 characters",
				Fields: map[string]string{"password": "password must contain at least 8 characters"},
			}),
		},
		{
			name: "active grant exists", method: http.MethodPost, path: path, token: adminToken,
			body:     with(func(r *CreateTempAdminRequest) { r.Email = " EXISTING@test.cd " }),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, ErrorResponse{Error: "an active temporary admin already exists for this email"}),
		},
	})

	// nothing was created by the failed requests
	grants, err := env.mgr.List(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, grants, 1)
}

func Test_tempAdminApi_create(t *testing.T) {
	env := setup(t)
	admin, _ := createAdmins(t, env)
	adminToken := getToken(t, admin)
	ctx := context.Background()

	expiresAt := time.Now().Add(24 * time.Hour).Truncate(time.Second).UTC()
	body := marchallObj(t, CreateTempAdminRequest{
		Email:       "Temp@Test.cd",
		ExpiresAt:   expiresAt,
		Permissions: []string{"admin", "teacher"},
		Reason:      "exams",
	})

	req, rec := newAuthRequest(http.MethodPost, "/v1/temp-admins/create", adminToken, body)
	env.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp CreateTempAdminResponse
	unmarshalBody(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Len(t, resp.Password, 16, "generated password")

	grant := resp.TempAdmin
	assert.Equal(t, "temp@test.cd", grant.Email)
	assert.True(t, grant.ExpiresAt.Equal(expiresAt))
	assert.ElementsMatch(t, []string{"admin", "teacher"}, grant.Permissions)
	assert.Equal(t, admin.ID, grant.CreatedBy, "createdBy defaults to the current user")
	assert.True(t, grant.IsActive)
	assert.Equal(t, tempadmin.StatusActive, grant.Status)

	t.Run("identity", func(t *testing.T) {
		usr, err := env.usrRepo.GetUserByID(ctx, grant.ID)
		require.NoError(t, err)
		assert.True(t, usr.IsActive)
		assert.True(t, usr.IsTempAdmin())
		assert.False(t, usr.IsPrimaryAdmin())
		assert.ElementsMatch(t, []string{"admin", "teacher"}, usr.Metadata.Permissions)
		require.NotNil(t, usr.Metadata.ExpiresAt)
		assert.True(t, usr.Metadata.ExpiresAt.Equal(expiresAt))
		assert.NoError(t, usr.CheckPassword(resp.Password), "generated password is the login password")
	})

	t.Run("audit", func(t *testing.T) {
		events, err := env.auditRepo.QueryAuditEvents(ctx, grant.ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, tempadmin.ActionCreate, events[0].Action)
		assert.Equal(t, admin.ID, events[0].PerformedBy)
		assert.Equal(t, "exams", events[0].Details["reason"])
	})

	t.Run("notification", func(t *testing.T) {
		msgs := emailsvc.GetSentMessages()
		require.Len(t, msgs, 1)
		assert.Equal(t, "temp@test.cd", msgs[0].To[0].Address)
		assert.Contains(t, msgs[0].TextContent, "exams")
		assert.NotContains(t, msgs[0].TextContent, resp.Password)
		assert.NotContains(t, msgs[0].HTMLContent, resp.Password)
	})

	t.Run("chosen password is not returned", func(t *testing.T) {
		body := marchallObj(t, CreateTempAdminRequest{
			Email:       "other@test.cd",
			Password:    tempAdminPwd,
			ExpiresAt:   expiresAt,
			Permissions: []string{"student"},
			CreatedBy:   "someone-else",
			Reason:      "support",
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/temp-admins/create", adminToken, body)
		env.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.NotContains(t, rec.Body.String(), `"password"`)

		var resp CreateTempAdminResponse
		unmarshalBody(t, rec, &resp)
		assert.Equal(t, "someone-else", resp.TempAdmin.CreatedBy)
	})
}

func Test_tempAdminApi_revoke(t *testing.T) {
	env := setup(t)
	admin, teacher := createAdmins(t, env)
	adminToken := getToken(t, admin)
	ctx := context.Background()

	grant, _ := createTempAdmin(t, env, "temp@test.cd", time.Hour)
	emailsvc.ResetSentMessages()

	path := "/v1/temp-admins/revoke"
	body := marchallObj(t, tempadmin.Revocation{GrantID: grant.ID, Reason: "done"})
	ok := marchallObj(t, SuccessResponse{Success: true})

	runHTTPTests(t, env, []httpTest{
		{name: "auth required", method: http.MethodPost, path: path, body: body, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", method: http.MethodPost, path: path, body: body, token: getToken(t, teacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "missing id", method: http.MethodPost, path: path, body: []byte(`{}`), token: adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, ErrorResponse{Error: "invalid input", Fields: map[string]string{"tempAdminId": "this field is required"}}),
		},
		{
			name: "unknown grant", method: http.MethodPost, path: path, token: adminToken,
			body:     marchallObj(t, tempadmin.Revocation{GrantID: "lol"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, ErrorResponse{Error: "temporary admin not found"}),
		},
		{name: "revoke", method: http.MethodPost, path: path, body: body, token: adminToken, wantCode: http.StatusOK, wantData: ok},
		{name: "revoke again", method: http.MethodPost, path: path, body: body, token: adminToken, wantCode: http.StatusOK, wantData: ok},
	})

	refreshed, err := env.taRepo.GetGrantByID(ctx, grant.ID)
	require.NoError(t, err)
	assert.False(t, refreshed.IsActive)
	assert.Equal(t, admin.ID, refreshed.RevokedBy, "revokedBy defaults to the current user")
	assert.Equal(t, "done", refreshed.RevokeReason)
	require.NotNil(t, refreshed.RevokedAt)

	usr, err := env.usrRepo.GetUserByID(ctx, grant.ID)
	require.NoError(t, err)
	assert.False(t, usr.IsActive, "identity disabled")

	events, err := env.auditRepo.QueryAuditEvents(ctx, grant.ID)
	require.NoError(t, err)
	require.Len(t, events, 2, "one CREATE and a single REVOKE")
	assert.Equal(t, tempadmin.ActionRevoke, events[1].Action)

	assert.Len(t, emailsvc.GetSentMessages(), 1, "one revocation notice")
}

func Test_tempAdminApi_cleanup(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	expired, _ := createTempAdmin(t, env, "expired@test.cd", time.Hour)
	active, _ := createTempAdmin(t, env, "active@test.cd", 3*time.Hour)
	shiftTime(t, 2*time.Hour)

	path := "/v1/temp-admins/cleanup"
	runHTTPTests(t, env, []httpTest{
		{name: "token required", method: http.MethodPost, path: path, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "wrong token", method: http.MethodPost, path: path, token: "lol", wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{
			name: "sweep", method: http.MethodPost, path: path, token: conf.TempAdmin.CleanupToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, CleanupResponse{Success: true, CleanedCount: 1}),
		},
		{
			name: "nothing left", method: http.MethodPost, path: path, token: conf.TempAdmin.CleanupToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, CleanupResponse{Success: true, CleanedCount: 0}),
		},
	})

	g, err := env.taRepo.GetGrantByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.False(t, g.IsActive)
	assert.Equal(t, tempadmin.SystemActor, g.RevokedBy)
	assert.Equal(t, "Expired - Auto cleanup", g.RevokeReason)

	g, err = env.taRepo.GetGrantByID(ctx, active.ID)
	require.NoError(t, err)
	assert.True(t, g.IsActive)
}

func Test_tempAdminApi_cleanup_rateLimit(t *testing.T) {
	env := setup(t)

	var codes []int
	for i := 0; i < conf.TempAdmin.CleanupBurst+1; i++ {
		req, rec := newAuthRequest(http.MethodPost, "/v1/temp-admins/cleanup", conf.TempAdmin.CleanupToken)
		env.app.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	for _, code := range codes[:conf.TempAdmin.CleanupBurst] {
		assert.Equal(t, http.StatusOK, code)
	}
	assert.Equal(t, http.StatusTooManyRequests, codes[len(codes)-1])

	// other clients are not affected
	req, rec := newAuthRequest(http.MethodPost, "/v1/temp-admins/cleanup", conf.TempAdmin.CleanupToken)
	req.RemoteAddr = "198.51.100.7:4321"
	env.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_tempAdminApi_query(t *testing.T) {
	env := setup(t)
	admin, teacher := createAdmins(t, env)
	adminToken := getToken(t, admin)

	first, _ := createTempAdmin(t, env, "first@test.cd", time.Hour)
	second, _ := createTempAdmin(t, env, "second@test.cd", time.Hour)
	require.NoError(t, env.mgr.Revoke(context.Background(), first.ID, admin.ID, ""))

	active := ListTempAdminsResponse{Success: true, TempAdmins: []GrantResponse{
		{Grant: second, Status: tempadmin.StatusActive},
	}}

	runHTTPTests(t, env, []httpTest{
		{name: "auth required", method: http.MethodGet, path: "/v1/temp-admins", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", method: http.MethodGet, path: "/v1/temp-admins", token: getToken(t, teacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{name: "active only", method: http.MethodGet, path: "/v1/temp-admins", token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, active)},
	})

	t.Run("include inactive", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/temp-admins?include_inactive=true", adminToken)
		env.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ListTempAdminsResponse
		unmarshalBody(t, rec, &resp)
		statuses := make(map[string]string)
		for _, g := range resp.TempAdmins {
			statuses[g.Email] = g.Status
		}
		assert.Equal(t, map[string]string{
			"first@test.cd":  tempadmin.StatusRevoked,
			"second@test.cd": tempadmin.StatusActive,
		}, statuses)
	})

	t.Run("expired but not yet swept", func(t *testing.T) {
		shiftTime(t, 2*time.Hour)

		req, rec := newAuthRequest(http.MethodGet, "/v1/temp-admins", adminToken)
		env.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), `"status":"expired"`), rec.Body.String())
	})
}

func Test_tempAdminApi_auditTrail(t *testing.T) {
	env := setup(t)
	admin, _ := createAdmins(t, env)
	adminToken := getToken(t, admin)

	grant, _ := createTempAdmin(t, env, "temp@test.cd", time.Hour)
	require.NoError(t, env.mgr.Revoke(context.Background(), grant.ID, admin.ID, "done"))

	runHTTPTests(t, env, []httpTest{
		{
			name: "unknown grant", method: http.MethodGet, path: "/v1/temp-admins/lol/audit", token: adminToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, ErrorResponse{Error: "temporary admin not found"}),
		},
	})

	req, rec := newAuthRequest(http.MethodGet, "/v1/temp-admins/"+grant.ID+"/audit", adminToken)
	env.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp AuditTrailResponse
	unmarshalBody(t, rec, &resp)
	assert.True(t, resp.Success)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, tempadmin.ActionCreate, resp.Events[0].Action)
	assert.Equal(t, tempadmin.ActionRevoke, resp.Events[1].Action)
	assert.Equal(t, admin.ID, resp.Events[1].PerformedBy)
	assert.Equal(t, "done", resp.Events[1].Details["reason"])
}
