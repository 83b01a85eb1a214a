package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core/tempadmin"
	"github.com/trezcool/shule/core/user"
)

const tempAdminPwd = "Zq7!vR2#kLp9"

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(conf, usr)
	token, err := GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func unmarshalBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal(%s): %v", rec.Body.String(), err)
	}
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	assert.Equal(t, tt.wantCode, rec.Code, "code")
	if tt.wantData != nil {
		assert.JSONEq(t, string(tt.wantData), rec.Body.String(), "data")
	}
}

func runHTTPTests(t *testing.T, env *testEnv, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

// createTempAdmin issues a grant expiring in `expiresIn`, and returns it with its identity.
func createTempAdmin(t *testing.T, env *testEnv, email string, expiresIn time.Duration, perms ...string) (tempadmin.Grant, user.User) {
	if len(perms) == 0 {
		perms = []string{tempadmin.PermissionAdmin}
	}
	ctx := context.Background()
	grant, _, err := env.mgr.Create(ctx, tempadmin.NewGrant{
		Email:       email,
		Password:    tempAdminPwd,
		ExpiresAt:   time.Now().Add(expiresIn),
		Permissions: perms,
		CreatedBy:   "creator-id",
		Reason:      "audit season",
	})
	require.NoError(t, err)
	usr, err := env.usrRepo.GetUserByID(ctx, grant.ID)
	require.NoError(t, err)
	return grant, usr
}

// shiftTime moves the temp admin clock by `d` until the test ends.
func shiftTime(t *testing.T, d time.Duration) {
	orig := tempadmin.NowFunc
	tempadmin.NowFunc = func() time.Time { return time.Now().Add(d) }
	t.Cleanup(func() { tempadmin.NowFunc = orig })
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
