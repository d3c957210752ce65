package user

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/gibigubae/registry/core"
)

var (
	// password policy
	pwdMinLen     = 6
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceText = "password must not contain whitespace"

	pwdMaxSim      = .7
	pwdAttrSimText = "password cannot be similar to your username or name"

	pwdSameText = "the new password must differ from the current one"
)

// validatePassword applies the password policy to a new password chosen by its owner:
// - minLen: 6
// - no whitespace
// - no similarity with the username or name
func validatePassword(field, pwd, uname, name string) error {
	reportErr := func(text string) error {
		return core.NewValidationError(nil, core.FieldError{Field: field, Error: text})
	}

	if len([]rune(pwd)) < pwdMinLen {
		return reportErr(pwdMinLenText)
	}
	for _, char := range pwd {
		if unicode.IsSpace(char) {
			return reportErr(pwdNoSpaceText)
		}
	}

	getRatio := func(pass, usrAttr string) float64 {
		if usrAttr == "" {
			return 0
		}
		return difflib.NewMatcher(strings.Split(strings.ToLower(pass), ""), strings.Split(strings.ToLower(usrAttr), "")).Ratio()
	}
	if getRatio(pwd, uname) >= pwdMaxSim || getRatio(pwd, name) >= pwdMaxSim {
		return reportErr(pwdAttrSimText)
	}
	return nil
}
