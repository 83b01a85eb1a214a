package tempadmin

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

var (
	permissionsTag  = "permissions"
	permissionsText = "permissions must be any of admin, teacher, student or parent"
)

// InitValidators registers the temporary admin validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(permissionsTag, permissionsValidation)
	core.RegisterCustomTranslation(validate, translator, permissionsTag, permissionsText)
}

// permissionsValidation checks that provided permissions are all in AllPermissions
func permissionsValidation(fl validator.FieldLevel) bool {
	perms, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	for _, perm := range perms {
		if !isPermission(perm) {
			return false
		}
	}
	return true
}

func isPermission(perm string) bool {
	for _, p := range AllPermissions {
		if perm == p {
			return true
		}
	}
	return false
}
