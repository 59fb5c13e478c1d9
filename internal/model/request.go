package model

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"

	"eventmaster-auth/internal/util"
)

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// CredentialsRequest is the body of both register and login.
type CredentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Validate checks the login as it will be stored, that is trimmed.
func (r CredentialsRequest) Validate() error {
	r.Login = strings.TrimSpace(r.Login)
	return validation.ValidateStruct(&r,
		validation.Field(&r.Login,
			validation.Required.Error("login is required"),
			validation.By(visibleText("login must not contain control or invisible characters")),
			validation.RuneLength(1, 50).Error("login can't be longer than 50 characters"),
		),
		validation.Field(&r.Password,
			validation.Required.Error("password is required"),
			validation.RuneLength(6, 100).Error("password must be between 6 and 100 characters long"),
			validation.By(maxBytes(MaxPasswordBytes, "password must not exceed 72 bytes")),
		),
	)
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r RefreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken,
			validation.Required.Error("refresh token is required"),
			validation.By(notBlank("refresh token is required")),
		),
	)
}

type UserRoleRequest struct {
	UserID string `json:"userId"`
	RoleID string `json:"roleId"`
}

func (r UserRoleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required.Error("userId is required"), validation.By(isUUID)),
		validation.Field(&r.RoleID, validation.Required.Error("roleId is required"), validation.By(isUUID)),
	)
}

// ValidateID checks a path parameter that must carry an entity id.
func ValidateID(name string, value string) error {
	return validation.Errors{
		name: validation.Validate(value, validation.Required.Error(name+" is required"), validation.By(isUUID)),
	}.Filter()
}

func isUUID(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := uuid.Parse(s); err != nil {
		return errors.New("must be a valid UUID")
	}
	return nil
}

func notBlank(message string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != "" && strings.TrimSpace(s) == "" {
			return errors.New(message)
		}
		return nil
	}
}

func maxBytes(limit int, message string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if len(s) > limit {
			return errors.New(message)
		}
		return nil
	}
}

func visibleText(message string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if util.HasHiddenRunes(s) {
			return errors.New(message)
		}
		return nil
	}
}
