package identity

import "tasker/cmd/security/password"

// PasswordHasher hashes and verifies account passwords.
// password.Config satisfies it.
type PasswordHasher interface {
	Validate(plain string) error
	Hash(plain string) (string, error)
	Verify(encoded, plain string) (bool, error)
	NeedsRehash(encoded string) bool
}

var _ PasswordHasher = password.Config{}

func isPolicyError(err error) bool {
	switch err {
	case password.ErrPasswordTooShort, password.ErrPasswordTooLong,
		password.ErrForbiddenWord, password.ErrWeakPassword:
		return true
	}
	return false
}

// passwordPolicyMessage renders a policy failure for a validation response.
func passwordPolicyMessage(err error) string {
	switch err {
	case password.ErrPasswordTooShort:
		return "is too short"
	case password.ErrPasswordTooLong:
		return "is too long"
	case password.ErrForbiddenWord:
		return `cannot contain "password"`
	case password.ErrWeakPassword:
		return "is too weak"
	default:
		return "is invalid"
	}
}
