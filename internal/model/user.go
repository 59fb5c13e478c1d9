package model

import "time"

// RevokedRefreshExpiry is stored alongside an empty refresh token once a
// session has been revoked.
var RevokedRefreshExpiry = time.Time{}

type User struct {
	ID                 string    `json:"id"`
	Login              string    `json:"login"`
	PasswordHash       string    `json:"-"`
	RefreshToken       string    `json:"-"`
	RefreshTokenExpiry time.Time `json:"-"`
	IsDeleted          bool      `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// HasActiveRefreshToken reports whether the user holds a refresh token that
// has not expired at now.
func (u User) HasActiveRefreshToken(now time.Time) bool {
	return u.RefreshToken != "" && u.RefreshTokenExpiry.After(now)
}

type Role struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDeleted bool   `json:"-"`
}

type UserRole struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	IsDeleted bool      `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type UserResponse struct {
	ID    string `json:"id"`
	Login string `json:"login"`
}

type RoleResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoleUsageResponse tells whether any user still holds a role.
type RoleUsageResponse struct {
	RoleID string `json:"roleId"`
	InUse  bool   `json:"inUse"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func ToUserResponse(u User) UserResponse {
	return UserResponse{ID: u.ID, Login: u.Login}
}

func ToUserResponses(users []User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, ToUserResponse(u))
	}
	return out
}

func ToRoleResponses(roles []Role) []RoleResponse {
	out := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		out = append(out, RoleResponse{ID: r.ID, Name: r.Name})
	}
	return out
}

// RoleNames returns the names of roles in input order.
func RoleNames(roles []Role) []string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names
}
