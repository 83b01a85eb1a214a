// Package appfs embeds the static files shipped with the binaries: SQL migrations, email templates
// and the common passwords list used by the password policy.
package appfs

import "embed"

//go:embed migrations/*.sql templates/email/* common-passwords.txt
var FS embed.FS

const (
	MigrationsDir       = "migrations"
	CommonPasswordsPath = "common-passwords.txt"
)
