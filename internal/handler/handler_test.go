package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"eventmaster-auth/internal/middleware"
	"eventmaster-auth/internal/model"
	"eventmaster-auth/internal/repository/memstore"
	"eventmaster-auth/internal/security"
	"eventmaster-auth/internal/service"
	"eventmaster-auth/pkg/apierror"
)

type testEnv struct {
	store  *memstore.Store
	issuer *security.TokenIssuer
	auth   *AuthHandler
	users  *UserHandler
	roles  *RoleHandler
	router chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memstore.New(service.AdminRole, service.ResidentRole)
	issuer, err := security.NewTokenIssuer(security.TokenConfig{
		Secret:    "handler-test-secret-with-enough-bytes!",
		Issuer:    "eventmaster",
		Audience:  "eventmaster-client",
		AccessTTL: time.Hour,
	})
	require.NoError(t, err)

	hasher := security.NewPasswordHasher(bcrypt.MinCost)
	authService := service.NewAuthService(store.Users(), store.Roles(), store, hasher, issuer, service.AuthConfig{
		RefreshTTL:    7 * 24 * time.Hour,
		RotateRefresh: true,
		DefaultRole:   service.ResidentRole,
	})
	roleService := service.NewRoleService(store.Users(), store.Roles(), store)

	env := &testEnv{
		store:  store,
		issuer: issuer,
		auth:   NewAuthHandler(authService),
		users:  NewUserHandler(authService),
		roles:  NewRoleHandler(roleService),
	}

	r := chi.NewRouter()
	r.Post("/register", env.auth.Register)
	r.Post("/login", env.auth.Login)
	r.Post("/refreshToken", env.auth.RefreshToken)
	r.Delete("/logout/{userId}", env.auth.Logout)
	r.Get("/users", env.users.GetAll)
	r.Get("/roles", env.roles.GetAll)
	r.Get("/roles/{userId}", env.roles.GetRolesByUser)
	r.Get("/roles/inUse/{roleId}", env.roles.IsInUse)
	r.Put("/roles/set", env.roles.SetRoleToUser)
	r.Put("/roles/remove", env.roles.RemoveRoleFromUser)
	env.router = r

	return env
}

func (e *testEnv) do(t *testing.T, method string, path string, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) register(t *testing.T, login string) model.TokenPair {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/register", `{"login":"`+login+`","password":"Secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var pair model.TokenPair
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&pair))
	return pair
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) model.APIError {
	t.Helper()

	var body model.APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.False(t, body.Success)
	require.NotNil(t, body.Error)
	return *body.Error
}

func TestAuthHandler_Register(t *testing.T) {
	t.Parallel()

	t.Run("returns a bare token pair", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodPost, "/register", `{"login":"alice","password":"Secret123"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var raw map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
		require.Len(t, raw, 2)
		require.NotEmpty(t, raw["accessToken"])
		require.NotEmpty(t, raw["refreshToken"])

		claims, err := env.issuer.ParseAccessToken(raw["accessToken"])
		require.NoError(t, err)
		require.Equal(t, "alice", claims.Name)
		require.Equal(t, []string{service.ResidentRole}, claims.Roles)
	})

	t.Run("duplicate login conflicts", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "alice")

		rec := env.do(t, http.MethodPost, "/register", `{"login":"ALICE","password":"Other123"}`)
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, apierror.CodeAlreadyExists, decodeError(t, rec).Code)
	})

	t.Run("rejects invalid bodies", func(t *testing.T) {
		env := newTestEnv(t)

		cases := map[string]string{
			"empty login":      `{"login":"","password":"Secret123"}`,
			"blank login":      `{"login":"   ","password":"Secret123"}`,
			"short password":   `{"login":"bob","password":"123"}`,
			"long login":       `{"login":"` + strings.Repeat("x", 51) + `","password":"Secret123"}`,
			"hidden character": `{"login":"ad\u200bmin","password":"Secret123"}`,
			"80 byte password": `{"login":"bob","password":"` + strings.Repeat("p", 80) + `"}`,
			"80 byte runes":    `{"login":"bob","password":"` + strings.Repeat("\u00e9", 40) + `"}`,
		}
		for name, body := range cases {
			rec := env.do(t, http.MethodPost, "/register", body)
			require.Equal(t, http.StatusBadRequest, rec.Code, name)
			require.Equal(t, apierror.CodeValidation, decodeError(t, rec).Code, name)
		}
	})

	t.Run("measures the trimmed login", func(t *testing.T) {
		env := newTestEnv(t)

		login := strings.Repeat("a", 50)
		rec := env.do(t, http.MethodPost, "/register", `{"login":"  `+login+`  ","password":"Secret123"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		stored, err := env.store.Users().FindByLogin(context.Background(), login)
		require.NoError(t, err)
		require.Equal(t, login, stored.Login)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodPost, "/register", `{"login":`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, apierror.CodeBadRequest, decodeError(t, rec).Code)
	})
}

func TestAuthHandler_Login(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.register(t, "alice")

	rec := env.do(t, http.MethodPost, "/login", `{"login":"alice","password":"Secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/login", `{"login":"alice","password":"Wrong1234"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	wrongPassword := decodeError(t, rec)

	rec = env.do(t, http.MethodPost, "/login", `{"login":"nobody","password":"Secret123"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	unknownLogin := decodeError(t, rec)

	require.Equal(t, wrongPassword, unknownLogin)
}

func TestAuthHandler_RefreshToken_BodyShapes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	shapes := map[string]func(token string) string{
		"json string": func(token string) string { return `"` + token + `"` },
		"json object": func(token string) string { return `{"refreshToken":"` + token + `"}` },
		"plain text":  func(token string) string { return token },
	}

	for name, shape := range shapes {
		pair := env.register(t, "user-"+strings.ReplaceAll(name, " ", "-"))

		rec := env.do(t, http.MethodPost, "/refreshToken", shape(pair.RefreshToken))
		require.Equal(t, http.StatusOK, rec.Code, name)

		var refreshed model.TokenPair
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&refreshed))
		require.NotEmpty(t, refreshed.AccessToken, name)
		require.NotEqual(t, pair.RefreshToken, refreshed.RefreshToken, name)
	}
}

func TestAuthHandler_RefreshToken_Failures(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/refreshToken", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, apierror.CodeValidation, decodeError(t, rec).Code)

	rec = env.do(t, http.MethodPost, "/refreshToken", `"never-issued"`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, apierror.CodeNotFound, decodeError(t, rec).Code)

	rec = env.do(t, http.MethodPost, "/refreshToken", `{"refreshToken":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandler_Logout(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	pair := env.register(t, "alice")
	alice, err := env.store.Users().FindByLogin(context.Background(), "alice")
	require.NoError(t, err)

	rec := env.do(t, http.MethodDelete, "/logout/"+alice.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, rec.Body.Len())

	rec = env.do(t, http.MethodPost, "/refreshToken", pair.RefreshToken)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/logout/"+alice.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/logout/"+strings.ToUpper(alice.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/logout/not-a-uuid", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/logout/7f2b4f7c-0000-4000-8000-000000000000", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUserHandler_GetAll(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.register(t, "bob")
	env.register(t, "alice")

	rec := env.do(t, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "password")
	require.NotContains(t, rec.Body.String(), "refresh")

	var users []model.UserResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&users))
	require.Len(t, users, 2)
	require.Equal(t, "alice", users[0].Login)
	require.Equal(t, "bob", users[1].Login)
}

func TestRoleHandler(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.register(t, "alice")
	ctx := context.Background()
	alice, err := env.store.Users().FindByLogin(ctx, "alice")
	require.NoError(t, err)
	admin, err := env.store.Roles().FindByName(ctx, service.AdminRole)
	require.NoError(t, err)

	body := `{"userId":"` + alice.ID + `","roleId":"` + admin.ID + `"}`
	withActor := func(method string, path string, payload string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(payload))
		req = req.WithContext(middleware.WithClaims(req.Context(), security.ClaimSet{Subject: "admin-id", Roles: []string{service.AdminRole}}))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec
	}

	rec := env.do(t, http.MethodGet, "/roles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var roles []model.RoleResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&roles))
	require.Len(t, roles, 2)

	var usage model.RoleUsageResponse
	rec = env.do(t, http.MethodGet, "/roles/inUse/"+admin.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&usage))
	require.Equal(t, model.RoleUsageResponse{RoleID: admin.ID, InUse: false}, usage)

	rec = withActor(http.MethodPut, "/roles/set", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = withActor(http.MethodPut, "/roles/set", body)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/roles/inUse/"+strings.ToUpper(admin.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&usage))
	require.Equal(t, model.RoleUsageResponse{RoleID: admin.ID, InUse: true}, usage)

	rec = env.do(t, http.MethodGet, "/roles/"+alice.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&roles))
	require.ElementsMatch(t, []string{service.AdminRole, service.ResidentRole}, []string{roles[0].Name, roles[1].Name})

	rec = withActor(http.MethodPut, "/roles/remove", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = withActor(http.MethodPut, "/roles/remove", body)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = withActor(http.MethodPut, "/roles/set", `{"userId":"bad","roleId":"`+admin.ID+`"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, apierror.CodeValidation, decodeError(t, rec).Code)

	rec = env.do(t, http.MethodGet, "/roles/7f2b4f7c-0000-4000-8000-000000000000", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/roles/inUse/7f2b4f7c-0000-4000-8000-000000000000", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/roles/inUse/not-a-uuid", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	NewHealthHandler(nil).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler(func(context.Context) error { return errors.New("db down") }).
		Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWriteError_Mapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{model.ErrUserAlreadyExists, http.StatusConflict, apierror.CodeAlreadyExists},
		{model.ErrInvalidCredentials, http.StatusUnauthorized, apierror.CodeUnauthorized},
		{model.ErrForbidden, http.StatusForbidden, apierror.CodeForbidden},
		{model.ErrRoleNotFound, http.StatusNotFound, apierror.CodeNotFound},
		{apierror.RateLimited(), http.StatusTooManyRequests, apierror.CodeRateLimited},
		{model.ErrDefaultRoleMissing, http.StatusInternalServerError, apierror.CodeInternal},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		require.Equal(t, tc.code, decodeError(t, rec).Code, tc.err.Error())
	}
}
