package appfs

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFS(t *testing.T) {
	for _, fp := range []string{
		"templates/email/_base.txt",
		"templates/email/_base.gohtml",
		"templates/email/tempadmin_created.txt",
		"templates/email/tempadmin_created.gohtml",
		"templates/email/tempadmin_revoked.txt",
		"templates/email/tempadmin_revoked.gohtml",
		CommonPasswordsPath,
	} {
		t.Run(fp, func(t *testing.T) {
			_, err := fs.Stat(FS, fp)
			assert.NoError(t, err)
		})
	}

	migrations, err := fs.Glob(FS, MigrationsDir+"/*.sql")
	require.NoError(t, err)
	assert.NotEmpty(t, migrations)
}
