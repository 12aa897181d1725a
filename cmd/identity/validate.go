package identity

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Draft is a signup request.
type Draft struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Age      int    `json:"age"`
}

// Patch is a partial profile update. Only these fields may be changed;
// JSON decoders that reject unknown fields enforce the allow-list.
type Patch struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	Age      *int    `json:"age,omitempty"`
}

// Empty reports whether p names no field.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Password == nil && p.Age == nil
}

func (d *Draft) normalize() {
	d.Name = NormalizeName(d.Name)
	d.Email = NormalizeEmail(d.Email)
	d.Password = strings.TrimSpace(d.Password)
}

func (p *Patch) normalize() {
	if p.Name != nil {
		v := NormalizeName(*p.Name)
		p.Name = &v
	}
	if p.Email != nil {
		v := NormalizeEmail(*p.Email)
		p.Email = &v
	}
	if p.Password != nil {
		v := strings.TrimSpace(*p.Password)
		p.Password = &v
	}
}

func validateDraft(op string, d Draft, pw PasswordHasher) error {
	err := validation.ValidateStruct(&d,
		validation.Field(&d.Name, validation.Required),
		validation.Field(&d.Email, validation.Required, is.Email),
		validation.Field(&d.Password, validation.Required, passwordRule(pw)),
		validation.Field(&d.Age, validation.Min(0)),
	)
	return asValidationError(op, err)
}

func validatePatch(op string, p Patch, pw PasswordHasher) error {
	if p.Empty() {
		return ValidationError{Op: op, Msg: "no updates"}
	}
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.NilOrNotEmpty),
		validation.Field(&p.Email, validation.NilOrNotEmpty, is.Email),
		validation.Field(&p.Password, validation.NilOrNotEmpty, passwordRule(pw)),
		validation.Field(&p.Age, validation.Min(0)),
	)
	return asValidationError(op, err)
}

// passwordRule applies the hasher's policy to a string or *string field.
func passwordRule(pw PasswordHasher) validation.Rule {
	return validation.By(func(value interface{}) error {
		v, isNil := validation.Indirect(value)
		if isNil {
			return nil
		}
		s, ok := v.(string)
		if !ok || s == "" {
			return nil
		}
		if err := pw.Validate(s); err != nil {
			return errors.New(passwordPolicyMessage(err))
		}
		return nil
	})
}

func asValidationError(op string, err error) error {
	if err == nil {
		return nil
	}
	var fields validation.Errors
	if errors.As(err, &fields) {
		return ValidationError{Op: op, Fields: fields}
	}
	return ValidationError{Op: op, Msg: "invalid input"}
}
