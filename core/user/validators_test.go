package user_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/tests"
)

var (
	conf   *core.Config
	logger core.Logger
)

func TestMain(m *testing.M) {
	conf = core.NewTestConfig()
	logger = testutil.NewLogger(conf)
	testutil.LoadAssets(conf, logger)
	os.Exit(m.Run())
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name    string
		pwd     string
		attrs   []string
		wantErr string
	}{
		{name: "too short", pwd: "Ab1!", wantErr: "password must contain at least 8 characters"},
		{name: "whitespace", pwd: "Abcd 1234!", wantErr: "password must not contain whitespace"},
		{name: "all numeric", pwd: "1234567890", wantErr: "password cannot be entirely numeric"},
		{name: "no uppercase", pwd: "abcd1234!", wantErr: "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"},
		{name: "no special", pwd: "Abcd12345", wantErr: "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"},
		{name: "similar to attrs", pwd: "Jdoe2020!", attrs: []string{"jdoe2020"}, wantErr: "password cannot be similar to user attributes"},
		{name: "common", pwd: "P@ssw0rd", wantErr: "password is too common"},
		{name: "empty attrs ignored", pwd: "Zq7!vR2#kLp9", attrs: []string{"", "jdoe@x.com"}},
		{name: "valid", pwd: "Zq7!vR2#kLp9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := user.ValidatePassword(tt.pwd, tt.attrs...)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *core.ValidationError
			if assert.ErrorAs(t, err, &vErr) {
				assert.Equal(t, []core.FieldError{{Field: "password", Error: tt.wantErr}}, vErr.Fields)
			}
		})
	}
}
